package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/pkg/httpretry"
)

// fakeGmail accepts only the bearer token in valid and records decoded messages.
type fakeGmail struct {
	mu       sync.Mutex
	valid    string
	status   int
	calls    int
	messages []string
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if r.URL.Path != sendPath || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+f.valid {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		w.Write([]byte(`{"error":{"code":400,"message":"Invalid To header"}}`))
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	raw, _ := base64.URLEncoding.DecodeString(req.Raw)
	f.messages = append(f.messages, string(raw))
	w.Write([]byte(`{"id":"msg-1"}`))
}

func (f *fakeGmail) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGmail) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type stubRefresher struct {
	calls int32
	token string
	err   error
}

func (s *stubRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: s.token, Expiry: time.Now().Add(time.Hour)}, nil
}

type memStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *memStore) UpdateTokens(ctx context.Context, userID, access, refresh string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = map[string]string{}
	}
	m.tokens[userID] = access
	return nil
}

func (m *memStore) get(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[userID]
}

func testMessage(to string) *domain.EmailMessage {
	return &domain.EmailMessage{
		FromEmail: "owner@gmail.com",
		To:        []domain.Recipient{{Email: to}},
		Subject:   "Hello",
		Body:      "Body text",
	}
}

func newTestTransport(t *testing.T, api *fakeGmail, ref TokenRefresher, store TokenStore) *Transport {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	account := &domain.GmailAccount{UserID: "user-1", Email: "owner@gmail.com", AccessToken: "old", RefreshToken: "refresh-1"}
	return NewTransport(NewClient(srv.URL, srv.Client()), ref, store, account)
}

func TestSend_ValidToken(t *testing.T) {
	api := &fakeGmail{valid: "old"}
	ref := &stubRefresher{token: "new"}
	tr := newTestTransport(t, api, ref, &memStore{})

	require.NoError(t, tr.Send(context.Background(), testMessage("a@example.com")))
	assert.Equal(t, int32(0), atomic.LoadInt32(&ref.calls))
	msgs := api.received()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Subject: Hello")
	assert.Equal(t, domain.TransportGmail, tr.Kind())
}

func TestSend_RefreshesThenRetries(t *testing.T) {
	api := &fakeGmail{valid: "new"}
	ref := &stubRefresher{token: "new"}
	store := &memStore{}
	tr := newTestTransport(t, api, ref, store)

	require.NoError(t, tr.Send(context.Background(), testMessage("a@example.com")))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ref.calls))
	assert.Equal(t, "new", store.get("user-1"))
	assert.Equal(t, 2, api.callCount())

	// Later sends reuse the refreshed token.
	require.NoError(t, tr.Send(context.Background(), testMessage("b@example.com")))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ref.calls))
	assert.Equal(t, 3, api.callCount())
}

func TestSend_SecondExpiryFails(t *testing.T) {
	api := &fakeGmail{valid: "never"}
	ref := &stubRefresher{token: "new"}
	tr := newTestTransport(t, api, ref, &memStore{})

	err := tr.Send(context.Background(), testMessage("a@example.com"))
	require.Error(t, err)
	assert.Equal(t, domain.ReconnectGmailMessage, err.Error())
	assert.Equal(t, 2, api.callCount())
	assert.Equal(t, int32(1), atomic.LoadInt32(&ref.calls))
}

func TestSend_RefreshFailure(t *testing.T) {
	api := &fakeGmail{valid: "new"}
	ref := &stubRefresher{err: errors.New("invalid_grant")}
	store := &memStore{}
	tr := newTestTransport(t, api, ref, store)

	err := tr.Send(context.Background(), testMessage("a@example.com"))
	require.Error(t, err)
	assert.Equal(t, domain.ReconnectGmailMessage, err.Error())
	assert.Equal(t, 1, api.callCount())
	assert.Empty(t, store.get("user-1"))
}

func TestSend_RefreshFailureStopsLaterSends(t *testing.T) {
	api := &fakeGmail{valid: "new"}
	ref := &stubRefresher{err: errors.New("invalid_grant")}
	tr := newTestTransport(t, api, ref, &memStore{})

	for _, to := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		err := tr.Send(context.Background(), testMessage(to))
		require.Error(t, err)
		assert.Equal(t, domain.ReconnectGmailMessage, err.Error())
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&ref.calls))
	assert.Equal(t, 1, api.callCount())
}

func TestSend_ServerErrorIsNotRepeated(t *testing.T) {
	api := &fakeGmail{valid: "old", status: http.StatusInternalServerError}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	doer := httpretry.NewRetryClient(srv.Client(), 3, httpretry.WithBackoff(time.Millisecond, 2*time.Millisecond))
	account := &domain.GmailAccount{UserID: "user-1", AccessToken: "old", RefreshToken: "refresh-1"}
	tr := NewTransport(NewClient(srv.URL, doer), &stubRefresher{}, &memStore{}, account)

	err := tr.Send(context.Background(), testMessage("a@example.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, 1, api.callCount())
}

func TestSend_ConcurrentExpiryRefreshesOnce(t *testing.T) {
	api := &fakeGmail{valid: "new"}
	ref := &stubRefresher{token: "new"}
	tr := newTestTransport(t, api, ref, &memStore{})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = tr.Send(context.Background(), testMessage("r@example.com"))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&ref.calls))
}

func TestSendRaw_ProviderError(t *testing.T) {
	api := &fakeGmail{valid: "old", status: http.StatusBadRequest}
	tr := newTestTransport(t, api, &stubRefresher{}, &memStore{})

	err := tr.Send(context.Background(), testMessage("a@example.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Contains(t, err.Error(), "Invalid To header")
}

func TestOAuthRefresher(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	ref := OAuthRefresher{Config: &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenSrv.URL, AuthStyle: oauth2.AuthStyleInParams},
	}}

	tok, err := ref.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.True(t, tok.Expiry.After(time.Now()))
}

func TestClient_TrimsBaseURL(t *testing.T) {
	c := NewClient("https://gmail.googleapis.com/", http.DefaultClient)
	assert.True(t, strings.HasSuffix(c.baseURL, ".com"))
}
