package domain

import "time"

// SubscriberSource records how a subscriber entered the list.
type SubscriberSource string

const (
	SourceSubscriptionBlock SubscriberSource = "subscription_block"
	SourceManual            SubscriberSource = "manual"
	SourceImport            SubscriberSource = "import"
)

// Subscriber belongs to one profile. Email is unique per profile.
type Subscriber struct {
	ID        string           `json:"id" db:"id"`
	ProfileID string           `json:"profile_id" db:"profile_id"`
	Email     string           `json:"email" db:"email"`
	Name      string           `json:"name,omitempty" db:"name"`
	Phone     string           `json:"phone,omitempty" db:"phone"`
	Country   string           `json:"country,omitempty" db:"country"`
	City      string           `json:"city,omitempty" db:"city"`
	Source    SubscriberSource `json:"source" db:"source"`
	IsActive  bool             `json:"is_active" db:"is_active"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// Profile is the owner's public page. Only the fields the mailer reads are
// modelled here.
type Profile struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Slug         string    `json:"slug" db:"slug"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	ContactEmail string    `json:"contact_email" db:"contact_email"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Recipient is a resolved delivery target.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}
