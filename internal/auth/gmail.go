package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/pkg/httputil"
	"github.com/ignite/profile-mailer/internal/pkg/logger"
)

// GmailSendScope allows sending only; the mailbox cannot be read.
const GmailSendScope = "https://www.googleapis.com/auth/gmail.send"

// GmailAccountStore persists connected mailboxes.
type GmailAccountStore interface {
	Get(ctx context.Context, userID string) (*domain.GmailAccount, error)
	Upsert(ctx context.Context, a *domain.GmailAccount) error
	Delete(ctx context.Context, userID string) error
}

// GmailStatus is returned by the status endpoint.
type GmailStatus struct {
	Connected bool       `json:"connected"`
	Email     string     `json:"email,omitempty"`
	Expiry    *time.Time `json:"expiry,omitempty"`
}

// GmailConnector runs the offline-consent flow that stores a refresh token
// for sending on the user's behalf.
type GmailConnector struct {
	oauth2Config *oauth2.Config
	accounts     GmailAccountStore
	httpClient   *http.Client
	userInfoURL  string
	secure       bool
}

// NewGmailConnector builds the consent config. tokenURL overrides Google's
// token endpoint when non-empty.
func NewGmailConnector(clientID, clientSecret, redirectURL, tokenURL string, secure bool, accounts GmailAccountStore) *GmailConnector {
	endpoint := google.Endpoint
	if tokenURL != "" {
		endpoint.TokenURL = tokenURL
	}
	return &GmailConnector{
		oauth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{GmailSendScope, "https://www.googleapis.com/auth/userinfo.email"},
			Endpoint:     endpoint,
		},
		accounts:    accounts,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		userInfoURL: defaultUserInfoURL,
		secure:      secure,
	}
}

// OAuthConfig is shared with the send path for token refresh.
func (g *GmailConnector) OAuthConfig() *oauth2.Config { return g.oauth2Config }

// HandleConnect redirects to the consent screen. It must run behind
// RequireAuth.
func (g *GmailConnector) HandleConnect(w http.ResponseWriter, r *http.Request) {
	state, err := setState(w, g.secure)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	url := g.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// HandleCallback stores the granted tokens. It must run behind RequireAuth.
func (g *GmailConnector) HandleCallback(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	if !checkState(w, r) {
		http.Redirect(w, r, "/settings?gmail=invalid_state", http.StatusTemporaryRedirect)
		return
	}
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		logger.Info("gmail connect declined", "user_id", userID, "error", errMsg)
		http.Redirect(w, r, "/settings?gmail=denied", http.StatusTemporaryRedirect)
		return
	}

	token, err := g.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		logger.Warn("gmail connect: exchange failed", "user_id", userID, "error", err)
		http.Redirect(w, r, "/settings?gmail=exchange_failed", http.StatusTemporaryRedirect)
		return
	}
	info, err := fetchUserInfo(r.Context(), g.httpClient, g.userInfoURL, token.AccessToken)
	if err != nil {
		logger.Warn("gmail connect: user info failed", "user_id", userID, "error", err)
		http.Redirect(w, r, "/settings?gmail=userinfo_failed", http.StatusTemporaryRedirect)
		return
	}

	account := &domain.GmailAccount{
		UserID:       userID,
		Email:        info.Email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	if err := g.accounts.Upsert(r.Context(), account); err != nil {
		httputil.InternalError(w, err)
		return
	}
	logger.Info("gmail connected", "user_id", userID, "email", info.Email, "has_refresh", token.RefreshToken != "")
	http.Redirect(w, r, "/settings?gmail=connected", http.StatusTemporaryRedirect)
}

// Status reports whether userID has a connected mailbox.
func (g *GmailConnector) Status(ctx context.Context, userID string) (*GmailStatus, error) {
	a, err := g.accounts.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &GmailStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	st := &GmailStatus{Connected: true, Email: a.Email}
	if !a.Expiry.IsZero() {
		exp := a.Expiry
		st.Expiry = &exp
	}
	return st, nil
}

// Disconnect forgets the stored tokens.
func (g *GmailConnector) Disconnect(ctx context.Context, userID string) error {
	return g.accounts.Delete(ctx, userID)
}
