package gmail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/pkg/logger"
	"github.com/ignite/profile-mailer/internal/transport/rfc822"
)

// TokenRefresher exchanges a refresh token for a new access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// TokenStore persists refreshed credentials for a user.
type TokenStore interface {
	UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiry time.Time) error
}

// OAuthRefresher refreshes through an oauth2.Config token endpoint.
type OAuthRefresher struct {
	Config *oauth2.Config
}

func (r OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}

// Transport sends through one connected mailbox. The current access token
// is shared by every concurrent Send; after an expiry it is refreshed once
// and the new token is used by all later sends of the campaign. Once a
// refresh fails, every later Send fails without contacting Google.
type Transport struct {
	client    *Client
	refresher TokenRefresher
	store     TokenStore
	userID    string
	now       func() time.Time

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	refreshErr   error
}

// NewTransport binds a Client to account.
func NewTransport(client *Client, refresher TokenRefresher, store TokenStore, account *domain.GmailAccount) *Transport {
	return &Transport{
		client:       client,
		refresher:    refresher,
		store:        store,
		userID:       account.UserID,
		now:          time.Now,
		accessToken:  account.AccessToken,
		refreshToken: account.RefreshToken,
	}
}

func (t *Transport) Kind() domain.TransportKind { return domain.TransportGmail }

// Send delivers msg. On ErrAuthExpired it refreshes the token (unless a
// concurrent send already did) and retries exactly once.
func (t *Transport) Send(ctx context.Context, msg *domain.EmailMessage) error {
	raw, err := rfc822.Build(msg, t.now())
	if err != nil {
		return err
	}

	token, failed := t.currentToken()
	if failed {
		return errors.New(domain.ReconnectGmailMessage)
	}
	err = t.client.SendRaw(ctx, token, raw)
	if !errors.Is(err, domain.ErrAuthExpired) {
		return err
	}

	fresh, rerr := t.refresh(ctx, token)
	if rerr != nil {
		logger.Warn("gmail: token refresh failed", "user_id", t.userID, "error", rerr)
		return errors.New(domain.ReconnectGmailMessage)
	}
	if err := t.client.SendRaw(ctx, fresh, raw); err != nil {
		if errors.Is(err, domain.ErrAuthExpired) {
			return errors.New(domain.ReconnectGmailMessage)
		}
		return err
	}
	return nil
}

// currentToken also reports whether an earlier refresh failed.
func (t *Transport) currentToken() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accessToken, t.refreshErr != nil
}

// refresh returns a token newer than stale. If another send has already
// replaced stale, its token is reused without calling the provider. A
// failure is kept and returned to every later caller.
func (t *Transport) refresh(ctx context.Context, stale string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.refreshErr != nil {
		return "", t.refreshErr
	}
	if t.accessToken != stale {
		return t.accessToken, nil
	}

	tok, err := t.fetchToken(ctx)
	if err != nil {
		t.refreshErr = err
		return "", err
	}
	if tok.RefreshToken != "" {
		t.refreshToken = tok.RefreshToken
	}
	t.accessToken = tok.AccessToken

	if err := t.store.UpdateTokens(ctx, t.userID, tok.AccessToken, t.refreshToken, tok.Expiry); err != nil {
		logger.Error("gmail: persist refreshed token failed", "user_id", t.userID, "error", err)
	}
	logger.Info("gmail: access token refreshed", "user_id", t.userID)
	return tok.AccessToken, nil
}

func (t *Transport) fetchToken(ctx context.Context) (*oauth2.Token, error) {
	if t.refreshToken == "" {
		return nil, fmt.Errorf("no refresh token stored")
	}
	tok, err := t.refresher.Refresh(ctx, t.refreshToken)
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("provider returned an empty access token")
	}
	return tok, nil
}
