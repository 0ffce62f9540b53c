// Package rfc822 renders domain messages as MIME mail for the SMTP and
// Gmail transports.
package rfc822

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/ignite/profile-mailer/internal/domain"
)

// Build returns the wire form of msg: headers plus a single quoted-printable
// text/html or text/plain part.
func Build(msg *domain.EmailMessage, now time.Time) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("rfc822: message has no recipients")
	}

	var h mail.Header
	h.SetDate(now)
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: msg.FromEmail}})
	if msg.ReplyTo != "" {
		h.SetAddressList("Reply-To", []*mail.Address{{Address: msg.ReplyTo}})
	}

	to := make([]*mail.Address, 0, len(msg.To))
	for _, r := range msg.To {
		to = append(to, &mail.Address{Name: r.Name, Address: r.Email})
	}
	h.SetAddressList("To", to)

	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("rfc822: message id: %w", err)
	}
	for k, v := range msg.Headers {
		h.Set(k, v)
	}

	contentType := "text/plain"
	if msg.IsHTML {
		contentType = "text/html"
	}
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	h.Set("MIME-Version", "1.0")

	var buf bytes.Buffer
	w, err := message.CreateWriter(&buf, h.Header)
	if err != nil {
		return nil, fmt.Errorf("rfc822: create writer: %w", err)
	}
	if _, err := w.Write([]byte(msg.Body)); err != nil {
		return nil, fmt.Errorf("rfc822: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("rfc822: close: %w", err)
	}
	return buf.Bytes(), nil
}

// Addresses returns the envelope recipients of msg.
func Addresses(msg *domain.EmailMessage) []string {
	out := make([]string, 0, len(msg.To))
	for _, r := range msg.To {
		out = append(out, r.Email)
	}
	return out
}
