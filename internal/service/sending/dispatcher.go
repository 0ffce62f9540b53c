package sending

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/profile-mailer/internal/config"
	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/pkg/logger"
)

// Renderer personalizes subject and body for one recipient.
type Renderer interface {
	Render(r domain.Recipient) (subject, body string)
}

// Outgoing is everything the dispatcher needs besides the recipients.
type Outgoing struct {
	FromName  string
	FromEmail string
	Subject   string
	Body      string
	IsHTML    bool
	SendType  domain.SendType
	// Renderer is used in individual mode when non-nil.
	Renderer Renderer
}

// Dispatcher sends in windows. Windows run strictly one after another;
// every send inside a window runs concurrently and the window ends when
// all of them have settled. Between windows, never after the last, the
// dispatcher sleeps PacingDelay.
type Dispatcher struct {
	WindowSize  int
	PacingDelay time.Duration

	sleep func(ctx context.Context, d time.Duration)
}

// NewDispatcher returns a Dispatcher; non-positive values take the defaults.
func NewDispatcher(windowSize int, pacing time.Duration) *Dispatcher {
	if windowSize <= 0 {
		windowSize = config.DefaultWindowSize
	}
	if pacing < 0 {
		pacing = time.Duration(config.DefaultPacingDelayMs) * time.Millisecond
	}
	return &Dispatcher{WindowSize: windowSize, PacingDelay: pacing, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Dispatch delivers out to recipients and returns one outcome per
// recipient, in recipient order.
func (d *Dispatcher) Dispatch(ctx context.Context, t Transport, out Outgoing, recipients []domain.Recipient, log *logger.Logger) []domain.SendOutcome {
	if log == nil {
		log = logger.Default()
	}
	if len(recipients) == 0 {
		return nil
	}
	if out.SendType == domain.SendBulk {
		return d.dispatchBulk(ctx, t, out, recipients, log)
	}
	return d.dispatchIndividual(ctx, t, out, recipients, log)
}

// dispatchBulk sends one message addressed to everyone; its single result
// applies to every recipient.
func (d *Dispatcher) dispatchBulk(ctx context.Context, t Transport, out Outgoing, recipients []domain.Recipient, log *logger.Logger) []domain.SendOutcome {
	msg := &domain.EmailMessage{
		FromName:  out.FromName,
		FromEmail: out.FromEmail,
		To:        recipients,
		Subject:   out.Subject,
		Body:      out.Body,
		IsHTML:    out.IsHTML,
	}
	err := t.Send(ctx, msg)

	outcomes := make([]domain.SendOutcome, len(recipients))
	for i, r := range recipients {
		outcomes[i] = outcome(r, err)
	}
	if err != nil {
		log.Warn("bulk send failed", "recipients", len(recipients), "error", err)
	} else {
		log.Info("bulk send delivered", "recipients", len(recipients))
	}
	return outcomes
}

func (d *Dispatcher) dispatchIndividual(ctx context.Context, t Transport, out Outgoing, recipients []domain.Recipient, log *logger.Logger) []domain.SendOutcome {
	outcomes := make([]domain.SendOutcome, len(recipients))
	windows := (len(recipients) + d.WindowSize - 1) / d.WindowSize

	for w := 0; w < windows; w++ {
		if w > 0 {
			d.sleep(ctx, d.PacingDelay)
		}
		start := w * d.WindowSize
		end := start + d.WindowSize
		if end > len(recipients) {
			end = len(recipients)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outcomes[i] = d.sendOne(ctx, t, out, recipients[i])
			}(i)
		}
		wg.Wait()

		failed := 0
		for _, o := range outcomes[start:end] {
			if !o.OK {
				failed++
			}
		}
		log.Debug("window settled", "window", w+1, "of", windows, "size", end-start, "failed", failed)
	}
	return outcomes
}

func (d *Dispatcher) sendOne(ctx context.Context, t Transport, out Outgoing, r domain.Recipient) (o domain.SendOutcome) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("send panicked", "recipient", r.Email, "panic", p)
			o = domain.SendOutcome{Recipient: r, Err: "internal error while sending"}
		}
	}()

	subject, body := out.Subject, out.Body
	if out.Renderer != nil {
		subject, body = out.Renderer.Render(r)
	}
	err := t.Send(ctx, &domain.EmailMessage{
		FromName:  out.FromName,
		FromEmail: out.FromEmail,
		To:        []domain.Recipient{r},
		Subject:   subject,
		Body:      body,
		IsHTML:    out.IsHTML,
	})
	return outcome(r, err)
}

func outcome(r domain.Recipient, err error) domain.SendOutcome {
	if err != nil {
		return domain.SendOutcome{Recipient: r, Err: err.Error()}
	}
	return domain.SendOutcome{Recipient: r, OK: true}
}

// Tally counts successes and failures.
func Tally(outcomes []domain.SendOutcome) (sent, failed int) {
	for _, o := range outcomes {
		if o.OK {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}
