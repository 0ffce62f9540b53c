package sending

import (
	"context"

	"github.com/ignite/profile-mailer/internal/domain"
)

// Transport delivers one message. Implementations must be safe for
// concurrent use; the dispatcher calls Send from several goroutines.
type Transport interface {
	Kind() domain.TransportKind
	Send(ctx context.Context, msg *domain.EmailMessage) error
}

// VerifyingTransport can check connectivity before a batch starts.
type VerifyingTransport interface {
	Transport
	Verify(ctx context.Context) error
}

// GmailTransportFactory builds a transport bound to one mailbox.
type GmailTransportFactory func(account *domain.GmailAccount) Transport

// SMTPTransportFactory builds a transport for a stored SMTP setting.
type SMTPTransportFactory func(setting *domain.SmtpSetting) VerifyingTransport
