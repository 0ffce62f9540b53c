package sending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/personalize"
)

// recordingSleep replaces the real pause and records each requested delay.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
}

func newTestDispatcher(rs *recordingSleep) *Dispatcher {
	d := NewDispatcher(5, time.Second)
	d.sleep = rs.sleep
	return d
}

func TestDispatch_SevenRecipientsTwoWindows(t *testing.T) {
	rs := &recordingSleep{}
	tr := &fakeTransport{hold: 50 * time.Millisecond}

	outcomes := newTestDispatcher(rs).Dispatch(context.Background(), tr,
		Outgoing{Subject: "s", Body: "b"}, recipientsN(7), nil)

	sent, failed := Tally(outcomes)
	assert.Equal(t, 7, sent)
	assert.Equal(t, 0, failed)
	assert.Len(t, tr.sends(), 7)
	assert.Equal(t, []time.Duration{time.Second}, rs.delays, "one pause between two windows")
	assert.Equal(t, int32(5), tr.peak)
}

func TestDispatch_WindowCountAndPacing(t *testing.T) {
	for _, n := range []int{1, 5, 6, 10, 11, 23} {
		rs := &recordingSleep{}
		newTestDispatcher(rs).Dispatch(context.Background(), &fakeTransport{}, Outgoing{}, recipientsN(n), nil)

		windows := (n + 4) / 5
		assert.Len(t, rs.delays, windows-1, "n=%d", n)
	}
}

func TestDispatch_RealPacingDelay(t *testing.T) {
	d := NewDispatcher(2, 50*time.Millisecond)

	start := time.Now()
	d.Dispatch(context.Background(), &fakeTransport{}, Outgoing{}, recipientsN(5), nil)

	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestDispatch_OutcomesFollowRecipientOrder(t *testing.T) {
	tr := &fakeTransport{fail: map[string]string{
		"r1@example.com": "550 no such user",
		"r5@example.com": "timeout",
	}}

	outcomes := newTestDispatcher(&recordingSleep{}).Dispatch(context.Background(), tr, Outgoing{}, recipientsN(7), nil)

	require.Len(t, outcomes, 7)
	for i, o := range outcomes {
		assert.Equal(t, recipientsN(7)[i].Email, o.Recipient.Email)
	}
	assert.False(t, outcomes[1].OK)
	assert.Equal(t, "550 no such user", outcomes[1].Err)
	assert.False(t, outcomes[5].OK)
	assert.Equal(t, "timeout", outcomes[5].Err)

	sent, failed := Tally(outcomes)
	assert.Equal(t, 5, sent)
	assert.Equal(t, 2, failed)
}

func TestDispatch_BulkSingleMessage(t *testing.T) {
	rs := &recordingSleep{}
	tr := &fakeTransport{}

	outcomes := newTestDispatcher(rs).Dispatch(context.Background(), tr,
		Outgoing{Subject: "s", Body: "b", SendType: domain.SendBulk}, recipientsN(50), nil)

	sends := tr.sends()
	require.Len(t, sends, 1)
	assert.Len(t, sends[0].To, 50)
	assert.Empty(t, rs.delays)
	sent, failed := Tally(outcomes)
	assert.Equal(t, 50, sent)
	assert.Equal(t, 0, failed)
}

func TestDispatch_BulkFailureMarksEveryone(t *testing.T) {
	tr := &fakeTransport{failAll: errors.New("421 service not available")}

	outcomes := newTestDispatcher(&recordingSleep{}).Dispatch(context.Background(), tr,
		Outgoing{SendType: domain.SendBulk}, recipientsN(50), nil)

	sent, failed := Tally(outcomes)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 50, failed)
	for _, o := range outcomes {
		assert.Equal(t, "421 service not available", o.Err)
	}
}

func TestDispatch_PersonalizesIndividualSends(t *testing.T) {
	tr := &fakeTransport{}
	tpl := personalize.NewEngine().Prepare("Hi {{ first_name }}", "For {{ email }}", false)

	newTestDispatcher(&recordingSleep{}).Dispatch(context.Background(), tr,
		Outgoing{Renderer: tpl}, []domain.Recipient{{Email: "ann@example.com", Name: "Ann Lee"}}, nil)

	sends := tr.sends()
	require.Len(t, sends, 1)
	assert.Equal(t, "Hi Ann", sends[0].Subject)
	assert.Equal(t, "For ann@example.com", sends[0].Body)
}

type panickyTransport struct{ fakeTransport }

func (p *panickyTransport) Send(ctx context.Context, msg *domain.EmailMessage) error {
	if msg.To[0].Email == "r0@example.com" {
		panic("boom")
	}
	return p.fakeTransport.Send(ctx, msg)
}

func TestDispatch_PanicIsolatedToRecipient(t *testing.T) {
	outcomes := newTestDispatcher(&recordingSleep{}).Dispatch(context.Background(), &panickyTransport{}, Outgoing{}, recipientsN(3), nil)

	assert.False(t, outcomes[0].OK)
	assert.True(t, outcomes[1].OK)
	assert.True(t, outcomes[2].OK)
}
