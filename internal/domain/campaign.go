package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignSending CampaignStatus = "sending"
	CampaignSent    CampaignStatus = "sent"
	CampaignFailed  CampaignStatus = "failed"
)

// SendType selects one message per recipient or one message to everyone.
type SendType string

const (
	SendIndividual SendType = "individual"
	SendBulk       SendType = "bulk"
)

// Valid reports whether t is a known send type.
func (t SendType) Valid() bool {
	return t == SendIndividual || t == SendBulk
}

// Campaign is one submitted send. The row is created with status "sending"
// and zero counts before dispatch and finalized once afterwards.
type Campaign struct {
	ID              string         `json:"id" db:"id"`
	UserID          string         `json:"user_id" db:"user_id"`
	Subject         string         `json:"subject" db:"subject"`
	Body            string         `json:"body" db:"body"`
	IsHTML          bool           `json:"is_html" db:"is_html"`
	SendType        SendType       `json:"send_type" db:"send_type"`
	Transport       TransportKind  `json:"transport" db:"transport"`
	RecipientsCount int            `json:"recipients_count" db:"recipients_count"`
	SentCount       int            `json:"sent_count" db:"sent_count"`
	FailedCount     int            `json:"failed_count" db:"failed_count"`
	Status          CampaignStatus `json:"status" db:"status"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	SentAt          *time.Time     `json:"sent_at" db:"sent_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignFailed
}

// FinalStatus is "sent" when at least one recipient succeeded.
func FinalStatus(sent int) CampaignStatus {
	if sent > 0 {
		return CampaignSent
	}
	return CampaignFailed
}

// SentEmailStatus is the outcome recorded for one recipient.
type SentEmailStatus string

const (
	SentEmailSent    SentEmailStatus = "sent"
	SentEmailFailed  SentEmailStatus = "failed"
	SentEmailPending SentEmailStatus = "pending"
)

// SentEmail is the append-only per-recipient record of a campaign.
type SentEmail struct {
	ID             string          `json:"id" db:"id"`
	CampaignID     string          `json:"campaign_id" db:"campaign_id"`
	UserID         string          `json:"user_id" db:"user_id"`
	RecipientEmail string          `json:"recipient_email" db:"recipient_email"`
	Subject        string          `json:"subject" db:"subject"`
	Body           string          `json:"body" db:"body"`
	Status         SentEmailStatus `json:"status" db:"status"`
	ErrorMessage   string          `json:"error_message,omitempty" db:"error_message"`
	SentAt         time.Time       `json:"sent_at" db:"sent_at"`
}
