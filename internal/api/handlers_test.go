package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/profile-mailer/internal/auth"
	"github.com/ignite/profile-mailer/internal/config"
	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/ratelimit"
	"github.com/ignite/profile-mailer/internal/service/campaign"
	"github.com/ignite/profile-mailer/internal/service/contact"
	"github.com/ignite/profile-mailer/internal/service/sending"
	"github.com/ignite/profile-mailer/internal/service/smtpsetting"
	"github.com/ignite/profile-mailer/internal/service/subscriber"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeSender struct {
	userID string
	req    sending.SendRequest
	res    *sending.Result
	err    error
}

func (f *fakeSender) SendGmail(_ context.Context, userID string, req sending.SendRequest) (*sending.Result, error) {
	f.userID, f.req = userID, req
	return f.res, f.err
}

func (f *fakeSender) SendSMTP(_ context.Context, userID string, req sending.SendRequest) (*sending.Result, error) {
	f.userID, f.req = userID, req
	return f.res, f.err
}

type fakeCampaigns struct {
	list   []domain.Campaign
	total  int
	filter campaign.ListFilter
	err    error
}

func (f *fakeCampaigns) List(_ context.Context, _ string, flt campaign.ListFilter) ([]domain.Campaign, int, error) {
	f.filter = flt
	return f.list, f.total, f.err
}

func (f *fakeCampaigns) Get(_ context.Context, _, id string) (*campaign.Detail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &campaign.Detail{Campaign: domain.Campaign{ID: id}, Emails: []domain.SentEmail{}}, nil
}

func (f *fakeCampaigns) Delete(context.Context, string, string) error { return f.err }

type fakeSubscribers struct {
	created bool
	err     error
	active  *bool
	deleted []string
}

func (f *fakeSubscribers) List(context.Context, string, subscriber.ListFilter) ([]domain.Subscriber, int, error) {
	return []domain.Subscriber{}, 0, f.err
}

func (f *fakeSubscribers) Add(_ context.Context, _ string, in subscriber.Input) (*domain.Subscriber, bool, error) {
	return &domain.Subscriber{ID: "s1", Email: in.Email}, f.created, f.err
}

func (f *fakeSubscribers) SetActive(_ context.Context, _, _ string, active bool) error {
	f.active = &active
	return f.err
}

func (f *fakeSubscribers) Delete(_ context.Context, _ string, ids []string) (int, error) {
	f.deleted = ids
	return len(ids), f.err
}

func (f *fakeSubscribers) Subscribe(_ context.Context, _ string, in subscriber.Input) (*domain.Subscriber, bool, error) {
	return &domain.Subscriber{Email: in.Email}, f.created, f.err
}

type fakeSettings struct{ err error }

func (f *fakeSettings) List(context.Context, string) ([]domain.SmtpSetting, error) {
	return []domain.SmtpSetting{{ID: "s1", Password: "secret"}}, f.err
}
func (f *fakeSettings) Create(_ context.Context, _ string, in smtpsetting.Input) (*domain.SmtpSetting, error) {
	return &domain.SmtpSetting{ID: "s1", Name: in.Name, Password: in.Password}, f.err
}
func (f *fakeSettings) Update(_ context.Context, _, id string, _ smtpsetting.Input) (*domain.SmtpSetting, error) {
	return &domain.SmtpSetting{ID: id}, f.err
}
func (f *fakeSettings) Delete(context.Context, string, string) error { return f.err }
func (f *fakeSettings) Test(context.Context, string, string) error   { return f.err }

type fakeGmail struct{}

func (fakeGmail) Status(context.Context, string) (*auth.GmailStatus, error) {
	return &auth.GmailStatus{Connected: true, Email: "me@gmail.com"}, nil
}
func (fakeGmail) Disconnect(context.Context, string) error { return nil }

type fakeContact struct {
	slug string
	err  error
}

func (f *fakeContact) Notify(_ context.Context, slug string, _ contact.Input) error {
	f.slug = slug
	return f.err
}

// =============================================================================
// HARNESS
// =============================================================================

type harness struct {
	router      http.Handler
	sender      *fakeSender
	campaigns   *fakeCampaigns
	subscribers *fakeSubscribers
	settings    *fakeSettings
	contact     *fakeContact
	health      *HealthChecker
}

func newHarness(t *testing.T, limiter ratelimit.Limiter) *harness {
	t.Helper()
	store := auth.NewMemorySessionStore()
	require.NoError(t, store.Save(context.Background(), "sid", &auth.Session{UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}))
	am := auth.NewManager(config.AuthConfig{CookieName: "pm_session", CookieMaxAge: 3600}, store)

	h := &harness{
		sender:      &fakeSender{res: &sending.Result{Success: true, CampaignID: "c1", Sent: 2, Errors: []sending.RecipientError{}}},
		campaigns:   &fakeCampaigns{},
		subscribers: &fakeSubscribers{},
		settings:    &fakeSettings{},
		contact:     &fakeContact{},
		health:      NewHealthChecker(),
	}
	handlers := NewHandlers(Services{
		Sender:       h.sender,
		Campaigns:    h.campaigns,
		Subscribers:  h.subscribers,
		SmtpSettings: h.settings,
		Gmail:        fakeGmail{},
		Contact:      h.contact,
		Health:       h.health,
	})
	h.router = SetupRoutes(RouterConfig{Handlers: handlers, Auth: am, Limiter: limiter})
	return h
}

func (h *harness) do(method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.AddCookie(&http.Cookie{Name: "pm_session", Value: "sid"})
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// =============================================================================
// SEND ENDPOINTS
// =============================================================================

func TestGmailSend_RequiresSession(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(http.MethodPost, "/api/gmail-send", map[string]string{"subject": "x"}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGmailSend_Success(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(http.MethodPost, "/api/gmail-send", map[string]interface{}{
		"subject": "Hello", "body": "Hi", "recipients": []string{"a", "b"}, "sendType": "bulk",
	}, true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", h.sender.userID)
	assert.Equal(t, domain.SendBulk, h.sender.req.SendType)
	assert.Equal(t, []string{"a", "b"}, h.sender.req.Recipients)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "c1", body["campaignId"])
	assert.Equal(t, float64(2), body["sent"])
	assert.Equal(t, []interface{}{}, body["errors"])
}

func TestSend_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", domain.Validation("subject", "is required"), http.StatusBadRequest, "subject: is required"},
		{"no recipients", domain.ErrMissingRecipients, http.StatusBadRequest, "No valid recipients found"},
		{"connection", &domain.ConnectionError{Err: errors.New("dial tcp: refused")}, http.StatusBadRequest, "SMTP connection failed: dial tcp: refused"},
		{"not found", fmt.Errorf("load: %w", domain.NotFound("SMTP setting")), http.StatusNotFound, "SMTP setting not found"},
		{"conflict", fmt.Errorf("busy: %w", domain.ErrConflict), http.StatusConflict, ""},
		{"internal", errors.New("pq: relation campaigns does not exist"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.sender.err = tc.err
			rec := h.do(http.MethodPost, "/api/smtp-send", map[string]string{"subject": "s"}, true)
			assert.Equal(t, tc.status, rec.Code)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, decodeBody(t, rec)["error"])
			}
			assert.NotContains(t, rec.Body.String(), "pq:")
		})
	}
}

func TestSend_InvalidJSON(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/gmail-send", bytes.NewBufferString("{"))
	req.AddCookie(&http.Cookie{Name: "pm_session", Value: "sid"})
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// RESOURCES
// =============================================================================

func TestListCampaigns_Paginates(t *testing.T) {
	h := newHarness(t, nil)
	h.campaigns.list = []domain.Campaign{{ID: "c1"}}
	h.campaigns.total = 45

	rec := h.do(http.MethodGet, "/api/campaigns?page=2&limit=20&status=sent", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, campaign.ListFilter{Status: "sent", Limit: 20, Offset: 20}, h.campaigns.filter)

	pg := decodeBody(t, rec)["pagination"].(map[string]interface{})
	assert.Equal(t, float64(3), pg["total_pages"])
	assert.Equal(t, true, pg["has_more"])
}

func TestGetCampaign_NotFound(t *testing.T) {
	h := newHarness(t, nil)
	h.campaigns.err = domain.NotFound("campaign")
	rec := h.do(http.MethodGet, "/api/campaigns/nope", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscribers(t *testing.T) {
	h := newHarness(t, nil)

	h.subscribers.created = true
	rec := h.do(http.MethodPost, "/api/subscribers", map[string]string{"email": "a@example.com"}, true)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodPatch, "/api/subscribers/s1", map[string]bool{"is_active": false}, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, h.subscribers.active)
	assert.False(t, *h.subscribers.active)

	rec = h.do(http.MethodPatch, "/api/subscribers/s1", map[string]string{}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodDelete, "/api/subscribers/s1", nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"s1"}, h.subscribers.deleted)
}

func TestSmtpSettings_HidePassword(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(http.MethodPost, "/api/smtp-settings", map[string]interface{}{"name": "Work", "password": "secret"}, true)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")

	rec = h.do(http.MethodGet, "/api/smtp-settings", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestSmtpSettings_ConflictAndTest(t *testing.T) {
	h := newHarness(t, nil)
	h.settings.err = fmt.Errorf("in use: %w", domain.ErrConflict)
	assert.Equal(t, http.StatusConflict, h.do(http.MethodDelete, "/api/smtp-settings/s1", nil, true).Code)

	h.settings.err = &domain.ConnectionError{Err: errors.New("535 auth failed")}
	rec := h.do(http.MethodPost, "/api/smtp-settings/s1/test", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "535")
}

func TestGmailStatus(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(http.MethodGet, "/api/gmail/status", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["connected"])
}

// =============================================================================
// PUBLIC & HEALTH
// =============================================================================

func TestPublicSubscribe(t *testing.T) {
	h := newHarness(t, nil)
	h.subscribers.created = true
	rec := h.do(http.MethodPost, "/public/profiles/ada/subscribe", map[string]string{"email": "fan@example.com"}, false)
	assert.Equal(t, http.StatusCreated, rec.Code)

	h.subscribers.created = false
	rec = h.do(http.MethodPost, "/public/profiles/ada/subscribe", map[string]string{"email": "fan@example.com"}, false)
	assert.Equal(t, http.StatusOK, rec.Code)

	h.subscribers.err = domain.NotFound("profile")
	rec = h.do(http.MethodPost, "/public/profiles/nobody/subscribe", map[string]string{"email": "fan@example.com"}, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublicContact_RateLimited(t *testing.T) {
	h := newHarness(t, ratelimit.NewMemoryLimiter(2))
	body := map[string]string{"name": "V", "email": "v@example.com", "message": "hi"}

	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/public/profiles/ada/contact", body, false).Code)
	assert.Equal(t, "ada", h.contact.slug)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/public/profiles/ada/contact", body, false).Code)
	assert.Equal(t, http.StatusTooManyRequests, h.do(http.MethodPost, "/public/profiles/ada/contact", body, false).Code)

	// subscribe has its own bucket
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/public/profiles/ada/subscribe", body, false).Code)
}

func TestPublicContact_ForwardedForDoesNotResetLimit(t *testing.T) {
	h := newHarness(t, ratelimit.NewMemoryLimiter(2))

	limited := 0
	for i := 0; i < 8; i++ {
		body := strings.NewReader(`{"name":"V","email":"v@example.com","message":"hi"}`)
		req := httptest.NewRequest(http.MethodPost, "/public/profiles/ada/contact", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.0.1.%d", i))
		req.RemoteAddr = "203.0.113.9:4000"
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	// At most two windows of two requests each can pass.
	assert.GreaterOrEqual(t, limited, 4)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	h.health.Register("database", func(context.Context) error { return nil })

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health/live", nil, false).Code)
	rec := h.do(http.MethodGet, "/health/ready", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	h.health.Register("redis", func(context.Context) error { return errors.New("dial tcp 10.0.0.5:6379: refused") })
	rec = h.do(http.MethodGet, "/health/ready", nil, false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")

	rec = h.do(http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decodeBody(t, rec)["status"])
}

func TestParsePagination(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?page=0&limit=5000", nil)
	p := ParsePagination(r, 20, 100)
	assert.Equal(t, PaginationParams{Page: 1, Limit: 100, Offset: 0}, p)
}
