package sending

import (
	"strings"

	"github.com/ignite/profile-mailer/internal/domain"
)

// SendRequest is the body of both send endpoints.
type SendRequest struct {
	Subject       string          `json:"subject"`
	Body          string          `json:"body"`
	IsHTML        bool            `json:"isHtml"`
	Recipients    []string        `json:"recipients"`
	SendType      domain.SendType `json:"sendType"`
	SmtpSettingID string          `json:"smtpSettingId,omitempty"`
}

// Draft is a validated SendRequest.
type Draft struct {
	Subject      string
	Body         string
	IsHTML       bool
	SendType     domain.SendType
	RecipientIDs []string
}

// Composer validates requests locally, before any network call.
type Composer struct {
	MaxRecipients int
}

// Compose returns a Draft or a *domain.ValidationError.
func (c Composer) Compose(req SendRequest) (*Draft, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, domain.Validation("subject", "is required")
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, domain.Validation("body", "is required")
	}
	if len(req.Recipients) == 0 {
		return nil, domain.Validation("recipients", "at least one recipient is required")
	}
	if c.MaxRecipients > 0 && len(req.Recipients) > c.MaxRecipients {
		return nil, domain.Validation("recipients", "at most %d recipients per send, got %d", c.MaxRecipients, len(req.Recipients))
	}

	sendType := req.SendType
	if sendType == "" {
		sendType = domain.SendIndividual
	}
	if !sendType.Valid() {
		return nil, domain.Validation("sendType", "must be %q or %q", domain.SendIndividual, domain.SendBulk)
	}

	return &Draft{
		Subject:      subject,
		Body:         req.Body,
		IsHTML:       req.IsHTML,
		SendType:     sendType,
		RecipientIDs: req.Recipients,
	}, nil
}
