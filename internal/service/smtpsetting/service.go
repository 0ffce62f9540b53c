// Package smtpsetting manages the SMTP servers users register for sending.
package smtpsetting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/pkg/distlock"
	"github.com/ignite/profile-mailer/internal/pkg/logger"
	"github.com/ignite/profile-mailer/internal/service/sending"
	"github.com/ignite/profile-mailer/internal/service/subscriber"
)

// Repository persists SMTP settings.
type Repository interface {
	Get(ctx context.Context, userID, id string) (*domain.SmtpSetting, error)
	List(ctx context.Context, userID string) ([]domain.SmtpSetting, error)
	Create(ctx context.Context, s *domain.SmtpSetting) error
	Update(ctx context.Context, s *domain.SmtpSetting) error
	Delete(ctx context.Context, userID, id string) error
}

// Locker hands out distributed locks.
type Locker interface {
	Lock(key string) distlock.DistLock
}

// LockKey is the lock serializing edits of one setting.
func LockKey(id string) string { return "smtp-setting:" + id }

// Input is the writable part of a setting. An empty Password on update
// keeps the stored one. A nil IsActive defaults to true on create and is
// left unchanged on update.
type Input struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
	IsActive  *bool  `json:"is_active"`
}

// Service is safe for concurrent use.
type Service struct {
	repo      Repository
	locks     Locker
	transport sending.SMTPTransportFactory
}

// NewService wires a Service. locks may be nil.
func NewService(repo Repository, locks Locker, transport sending.SMTPTransportFactory) *Service {
	return &Service{repo: repo, locks: locks, transport: transport}
}

func (s *Service) List(ctx context.Context, userID string) ([]domain.SmtpSetting, error) {
	return s.repo.List(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, id string) (*domain.SmtpSetting, error) {
	return s.repo.Get(ctx, userID, id)
}

// Create validates in and stores a new setting.
func (s *Service) Create(ctx context.Context, userID string, in Input) (*domain.SmtpSetting, error) {
	if in.Password == "" {
		return nil, domain.Validation("password", "is required")
	}
	setting := &domain.SmtpSetting{UserID: userID, IsActive: true}
	if err := apply(setting, in); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, setting); err != nil {
		return nil, fmt.Errorf("save smtp setting: %w", err)
	}
	return setting, nil
}

// Update changes a setting that is not in use by a send.
func (s *Service) Update(ctx context.Context, userID, id string, in Input) (*domain.SmtpSetting, error) {
	var out *domain.SmtpSetting
	err := s.withLock(ctx, id, func() error {
		setting, err := s.repo.Get(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := apply(setting, in); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, setting); err != nil {
			return err
		}
		out = setting
		return nil
	})
	return out, err
}

// Delete removes a setting that is not in use by a send.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.withLock(ctx, id, func() error {
		return s.repo.Delete(ctx, userID, id)
	})
}

// Test opens a connection with the stored credentials and closes it.
func (s *Service) Test(ctx context.Context, userID, id string) error {
	setting, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.transport(setting).Verify(ctx); err != nil {
		logger.Info("smtp setting test failed", "setting_id", id, "host", setting.Host, "error", err)
		var ce *domain.ConnectionError
		if !errors.As(err, &ce) {
			err = &domain.ConnectionError{Err: err}
		}
		return err
	}
	return nil
}

func (s *Service) withLock(ctx context.Context, id string, fn func() error) error {
	if s.locks == nil {
		return fn()
	}
	lock := s.locks.Lock(LockKey(id))
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock smtp setting: %w", err)
	}
	if !ok {
		return fmt.Errorf("SMTP setting is being changed by another request: %w", domain.ErrConflict)
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("release smtp setting lock failed", "setting_id", id, "error", err)
		}
	}()
	return fn()
}

func apply(s *domain.SmtpSetting, in Input) error {
	s.Name = strings.TrimSpace(in.Name)
	if s.Name == "" {
		return domain.Validation("name", "is required")
	}
	s.Host = strings.TrimSpace(in.Host)
	if s.Host == "" || strings.ContainsAny(s.Host, " /:") {
		return domain.Validation("host", "must be a hostname")
	}
	if in.Port < 1 || in.Port > 65535 {
		return domain.Validation("port", "must be between 1 and 65535")
	}
	s.Port = in.Port
	s.Username = strings.TrimSpace(in.Username)
	if s.Username == "" {
		return domain.Validation("username", "is required")
	}
	if in.Password != "" {
		s.Password = in.Password
	}
	s.FromEmail = ""
	if strings.TrimSpace(in.FromEmail) != "" {
		email, err := subscriber.NormalizeEmail(in.FromEmail)
		if err != nil {
			return domain.Validation("from_email", "is not a valid address")
		}
		s.FromEmail = email
	}
	s.FromName = strings.TrimSpace(in.FromName)
	if in.IsActive != nil {
		s.IsActive = *in.IsActive
	}
	return nil
}
