// Package smtp delivers campaign mail through a user-supplied SMTP server.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/transport/rfc822"
)

// ImplicitTLSPort is the submission port that expects TLS from the first byte.
const ImplicitTLSPort = 465

// DefaultTimeout bounds dialing and each SMTP exchange.
const DefaultTimeout = 30 * time.Second

// Config is the connection detail of one SMTP server.
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	LocalName string
	Timeout   time.Duration
}

// FromSetting builds a Config from a stored setting.
func FromSetting(s *domain.SmtpSetting, timeout time.Duration) Config {
	return Config{Host: s.Host, Port: s.Port, Username: s.Username, Password: s.Password, Timeout: timeout}
}

// Transport opens one connection per Send. It is safe for concurrent use.
type Transport struct {
	cfg  Config
	kind domain.TransportKind
	now  func() time.Time
}

// New returns a Transport reporting kind (TransportSMTP for user settings,
// TransportPlatform for the env-configured server).
func New(cfg Config, kind domain.TransportKind) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LocalName == "" {
		cfg.LocalName = "localhost"
	}
	return &Transport{cfg: cfg, kind: kind, now: time.Now}
}

func (t *Transport) Kind() domain.TransportKind { return t.kind }

// Verify connects, authenticates and quits. Failures are *domain.ConnectionError.
func (t *Transport) Verify(ctx context.Context) error {
	c, err := t.connect(ctx)
	if err != nil {
		return &domain.ConnectionError{Err: err}
	}
	defer c.Close()
	if err := c.Quit(); err != nil {
		return &domain.ConnectionError{Err: err}
	}
	return nil
}

// Send delivers msg to every address in msg.To in one SMTP transaction.
func (t *Transport) Send(ctx context.Context, msg *domain.EmailMessage) error {
	raw, err := rfc822.Build(msg, t.now())
	if err != nil {
		return err
	}

	c, err := t.connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer c.Close()

	if err := c.Mail(msg.FromEmail, nil); err != nil {
		return fmt.Errorf("%w: MAIL FROM: %v", domain.ErrTransport, err)
	}
	for _, rcpt := range rfc822.Addresses(msg) {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("%w: RCPT TO %s: %v", domain.ErrTransport, rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("%w: DATA: %v", domain.ErrTransport, err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("%w: write body: %v", domain.ErrTransport, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	_ = c.Quit()
	return nil
}

// connect dials, greets, upgrades to TLS where possible and authenticates.
// Server certificates are not verified.
func (t *Transport) connect(ctx context.Context) (*gosmtp.Client, error) {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	tlsCfg := &tls.Config{ServerName: t.cfg.Host, InsecureSkipVerify: true}

	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	if t.cfg.Port == ImplicitTLSPort {
		d := &tls.Dialer{NetDialer: &net.Dialer{}, Config: tlsCfg}
		conn, err = d.DialContext(dialCtx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(dialCtx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(t.cfg.Timeout))

	c, err := gosmtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("greeting: %w", err)
	}
	if err := c.Hello(t.cfg.LocalName); err != nil {
		c.Close()
		return nil, fmt.Errorf("EHLO: %w", err)
	}
	if t.cfg.Port != ImplicitTLSPort {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsCfg); err != nil {
				c.Close()
				return nil, fmt.Errorf("STARTTLS: %w", err)
			}
		}
	}
	if t.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			c.Close()
			return nil, fmt.Errorf("server does not offer AUTH but credentials are configured")
		}
		if err := c.Auth(sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)); err != nil {
			c.Close()
			return nil, fmt.Errorf("AUTH: %w", err)
		}
	}
	return c, nil
}
