package domain

import "time"

// TransportKind identifies which delivery variant carried a campaign.
type TransportKind string

const (
	TransportGmail    TransportKind = "gmail"
	TransportSMTP     TransportKind = "smtp"
	TransportPlatform TransportKind = "platform"
)

// EmailMessage is a fully rendered message ready for a transport. Bulk
// sends carry every recipient in To; individual sends carry one.
type EmailMessage struct {
	FromName  string
	FromEmail string
	ReplyTo   string
	To        []Recipient
	Subject   string
	Body      string
	IsHTML    bool
	Headers   map[string]string
}

// SendOutcome is the result of one recipient's delivery attempt.
type SendOutcome struct {
	Recipient Recipient
	OK        bool
	Err       string
}

// SmtpSetting is a user-supplied SMTP server. Password never leaves the
// server in responses.
type SmtpSetting struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Host      string    `json:"host" db:"host"`
	Port      int       `json:"port" db:"port"`
	Username  string    `json:"username" db:"username"`
	Password  string    `json:"-" db:"password"`
	FromEmail string    `json:"from_email" db:"from_email"`
	FromName  string    `json:"from_name" db:"from_name"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Sender is the From identity of a setting, falling back to the username.
func (s *SmtpSetting) Sender() (name, email string) {
	email = s.FromEmail
	if email == "" {
		email = s.Username
	}
	return s.FromName, email
}

// GmailAccount holds the OAuth tokens for a connected mailbox.
type GmailAccount struct {
	UserID       string    `json:"user_id" db:"user_id"`
	Email        string    `json:"email" db:"email"`
	AccessToken  string    `json:"-" db:"access_token"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	Expiry       time.Time `json:"expiry" db:"expiry"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
