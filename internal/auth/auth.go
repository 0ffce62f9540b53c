// Package auth handles Google sign-in, cookie sessions and connecting a
// Gmail mailbox for sending.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ignite/profile-mailer/internal/config"
	"github.com/ignite/profile-mailer/internal/pkg/httputil"
	"github.com/ignite/profile-mailer/internal/pkg/logger"
)

const (
	stateCookie         = "oauth_state"
	defaultUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
	stateCookieLifetime = 300
)

// GoogleUserInfo represents the user info returned by Google
type GoogleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

type ctxKey struct{}

// WithSession returns ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// SessionFrom returns the session RequireAuth attached, or nil.
func SessionFrom(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// UserID returns the authenticated user's id, or "".
func UserID(ctx context.Context) string {
	if s := SessionFrom(ctx); s != nil {
		return s.UserID
	}
	return ""
}

// Manager handles the login flow and session cookies.
type Manager struct {
	cfg          config.AuthConfig
	oauth2Config *oauth2.Config
	store        SessionStore
	httpClient   *http.Client
	userInfoURL  string
	now          func() time.Time
}

// NewManager creates a Manager. The redirect URL is BaseURL + /auth/callback.
func NewManager(cfg config.AuthConfig, store SessionStore) *Manager {
	return &Manager{
		cfg: cfg,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.BaseURL + "/auth/callback",
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		store:       store,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		userInfoURL: defaultUserInfoURL,
		now:         time.Now,
	}
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HandleLogin initiates the Google OAuth flow
func (m *Manager) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := setState(w, m.cfg.SecureCookie)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	http.Redirect(w, r, m.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusTemporaryRedirect)
}

// HandleCallback exchanges the code, creates a session and sets the cookie.
func (m *Manager) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if !checkState(w, r) {
		http.Redirect(w, r, "/?error=invalid_state", http.StatusTemporaryRedirect)
		return
	}
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		logger.Warn("auth: google returned error", "error", errMsg)
		http.Redirect(w, r, "/?error=access_denied", http.StatusTemporaryRedirect)
		return
	}

	token, err := m.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		logger.Warn("auth: code exchange failed", "error", err)
		http.Redirect(w, r, "/?error=exchange_failed", http.StatusTemporaryRedirect)
		return
	}
	info, err := fetchUserInfo(r.Context(), m.httpClient, m.userInfoURL, token.AccessToken)
	if err != nil {
		logger.Warn("auth: user info failed", "error", err)
		http.Redirect(w, r, "/?error=userinfo_failed", http.StatusTemporaryRedirect)
		return
	}

	id, err := randomToken()
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	now := m.now()
	session := &Session{
		UserID:    info.ID,
		Email:     info.Email,
		Name:      info.Name,
		Picture:   info.Picture,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.SessionTTL()),
	}
	if err := m.store.Save(r.Context(), id, session); err != nil {
		httputil.InternalError(w, err)
		return
	}
	logger.Info("auth: user logged in", "user_id", info.ID, "email", info.Email)

	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   m.cfg.CookieMaxAge,
		HttpOnly: true,
		Secure:   m.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// HandleLogout deletes the session and clears the cookie.
func (m *Manager) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(m.cfg.CookieName); err == nil {
		if err := m.store.Delete(r.Context(), c.Value); err != nil {
			logger.Warn("auth: delete session failed", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{Name: m.cfg.CookieName, Value: "", Path: "/", MaxAge: -1})
	httputil.NoContent(w)
}

// HandleUserInfo returns the current user's info as JSON
func (m *Manager) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	s := m.Session(r)
	if s == nil {
		httputil.JSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false})
		return
	}
	httputil.OK(w, map[string]any{
		"authenticated": true,
		"user": map[string]string{
			"id":      s.UserID,
			"email":   s.Email,
			"name":    s.Name,
			"picture": s.Picture,
		},
	})
}

// Session returns the live session for r, or nil.
func (m *Manager) Session(r *http.Request) *Session {
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	s, err := m.store.Get(r.Context(), c.Value)
	if err != nil {
		logger.Warn("auth: session lookup failed", "error", err)
		return nil
	}
	if s == nil {
		return nil
	}
	if s.Expired(m.now()) {
		_ = m.store.Delete(r.Context(), c.Value)
		return nil
	}
	return s
}

// RequireAuth rejects unauthenticated requests with 401 and otherwise puts
// the session on the request context.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.Session(r)
		if s == nil {
			httputil.Unauthorized(w, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func setState(w http.ResponseWriter, secure bool) (string, error) {
	state, err := randomToken()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieLifetime,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return state, nil
}

// checkState verifies and clears the state cookie.
func checkState(w http.ResponseWriter, r *http.Request) bool {
	c, err := r.Cookie(stateCookie)
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})
	if err != nil || c.Value == "" {
		return false
	}
	return r.URL.Query().Get("state") == c.Value
}

func fetchUserInfo(ctx context.Context, client *http.Client, url, accessToken string) (*GoogleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get user info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read user info: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google API error: HTTP %d", resp.StatusCode)
	}
	var info GoogleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parse user info: %w", err)
	}
	if info.ID == "" || info.Email == "" {
		return nil, fmt.Errorf("user info missing id or email")
	}
	return &info, nil
}
