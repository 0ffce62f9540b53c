package sending

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/profile-mailer/internal/domain"
)

// fakeTransport records sends, fails configured addresses and tracks the
// peak number of concurrent Send calls.
type fakeTransport struct {
	kind      domain.TransportKind
	fail      map[string]string
	failAll   error
	verifyErr error
	hold      time.Duration

	mu       sync.Mutex
	sent     []*domain.EmailMessage
	inflight int32
	peak     int32
	verified int
}

func (f *fakeTransport) Kind() domain.TransportKind {
	if f.kind == "" {
		return domain.TransportSMTP
	}
	return f.kind
}

func (f *fakeTransport) Verify(ctx context.Context) error {
	f.mu.Lock()
	f.verified++
	f.mu.Unlock()
	return f.verifyErr
}

func (f *fakeTransport) Send(ctx context.Context, msg *domain.EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()

	if f.failAll != nil {
		return f.failAll
	}
	if reason, ok := f.fail[msg.To[0].Email]; ok {
		return errors.New(reason)
	}
	return nil
}

func (f *fakeTransport) sends() []*domain.EmailMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.EmailMessage(nil), f.sent...)
}

func recipientsN(n int) []domain.Recipient {
	out := make([]domain.Recipient, n)
	for i := range out {
		out[i] = domain.Recipient{Email: fmt.Sprintf("r%d@example.com", i)}
	}
	return out
}

func subscribersN(n int) []domain.Subscriber {
	out := make([]domain.Subscriber, n)
	for i := range out {
		out[i] = domain.Subscriber{
			ID:        fmt.Sprintf("sub-%d", i),
			ProfileID: "profile-1",
			Email:     fmt.Sprintf("r%d@example.com", i),
			IsActive:  true,
		}
	}
	return out
}

// memLedger is an in-memory Ledger.
type memLedger struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
	rows      []domain.SentEmail
	warning   string
	recordErr error
}

func newMemLedger() *memLedger {
	return &memLedger{campaigns: map[string]*domain.Campaign{}}
}

func (l *memLedger) Open(ctx context.Context, c *domain.Campaign) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c.ID = fmt.Sprintf("camp-%d", len(l.campaigns)+1)
	c.Status = domain.CampaignSending
	cp := *c
	l.campaigns[c.ID] = &cp
	return nil
}

func (l *memLedger) Record(ctx context.Context, c *domain.Campaign, outcomes []domain.SendOutcome) error {
	if l.recordErr != nil {
		return l.recordErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range outcomes {
		st := domain.SentEmailSent
		if !o.OK {
			st = domain.SentEmailFailed
		}
		l.rows = append(l.rows, domain.SentEmail{CampaignID: c.ID, RecipientEmail: o.Recipient.Email, Status: st, ErrorMessage: o.Err})
	}
	return nil
}

func (l *memLedger) Finalize(ctx context.Context, c *domain.Campaign, sent, failed int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored := l.campaigns[c.ID]
	stored.SentCount, stored.FailedCount = sent, failed
	stored.Status = domain.FinalStatus(sent)
	return l.warning
}

type stubProfiles struct{ profile *domain.Profile }

func (s stubProfiles) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	if s.profile == nil || s.profile.UserID != userID {
		return nil, domain.NotFound("profile")
	}
	return s.profile, nil
}

type stubSubscribers struct{ subs []domain.Subscriber }

func (s stubSubscribers) ListByProfile(ctx context.Context, profileID string) ([]domain.Subscriber, error) {
	return s.subs, nil
}

type stubGmail struct{ account *domain.GmailAccount }

func (s stubGmail) Get(ctx context.Context, userID string) (*domain.GmailAccount, error) {
	if s.account == nil {
		return nil, domain.ErrNotFound
	}
	return s.account, nil
}

type stubSettings struct{ setting *domain.SmtpSetting }

func (s stubSettings) Get(ctx context.Context, userID, id string) (*domain.SmtpSetting, error) {
	if s.setting == nil || s.setting.ID != id || s.setting.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return s.setting, nil
}
