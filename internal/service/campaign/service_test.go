package campaign_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/service/campaign"
)

// memRepo is an in-memory campaign repository for unit testing.
type memRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
	emails    []domain.SentEmail

	updateErr error
	// drift is added to the stored sent count, simulating a concurrent writer.
	drift int
}

func newMemRepo() *memRepo {
	return &memRepo{campaigns: make(map[string]*domain.Campaign)}
}

func (m *memRepo) Create(_ context.Context, c *domain.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *memRepo) Get(_ context.Context, userID, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.UserID != userID {
		return nil, domain.NotFound("campaign")
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, userID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if c.UserID != userID {
			continue
		}
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memRepo) UpdateResult(_ context.Context, id string, r campaign.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	c, ok := m.campaigns[id]
	if !ok {
		return domain.NotFound("campaign")
	}
	c.SentCount = r.SentCount + m.drift
	c.FailedCount = r.FailedCount
	c.Status = r.Status
	at := r.SentAt
	c.SentAt = &at
	return nil
}

func (m *memRepo) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.UserID != userID {
		return domain.NotFound("campaign")
	}
	delete(m.campaigns, id)
	kept := m.emails[:0]
	for _, e := range m.emails {
		if e.CampaignID != id {
			kept = append(kept, e)
		}
	}
	m.emails = kept
	return nil
}

func (m *memRepo) InsertSentEmails(_ context.Context, rows []domain.SentEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails = append(m.emails, rows...)
	return nil
}

func (m *memRepo) ListSentEmails(_ context.Context, campaignID string) ([]domain.SentEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SentEmail
	for _, e := range m.emails {
		if e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	return out, nil
}

func openCampaign(t *testing.T, svc *campaign.Service, recipients int) *domain.Campaign {
	t.Helper()
	c := &domain.Campaign{
		UserID:          "user-1",
		Subject:         "Spring update",
		Body:            "Hello",
		SendType:        domain.SendIndividual,
		Transport:       domain.TransportGmail,
		RecipientsCount: recipients,
	}
	require.NoError(t, svc.Open(context.Background(), c))
	return c
}

func TestOpen_CreatesSendingRow(t *testing.T) {
	repo := newMemRepo()
	svc := campaign.NewService(repo)

	c := openCampaign(t, svc, 3)

	require.NotEmpty(t, c.ID)
	stored := repo.campaigns[c.ID]
	require.NotNil(t, stored)
	assert.Equal(t, domain.CampaignSending, stored.Status)
	assert.Equal(t, 0, stored.SentCount)
	assert.Equal(t, 0, stored.FailedCount)
	assert.Equal(t, 3, stored.RecipientsCount)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.Nil(t, stored.SentAt)
}

func TestRecord_SnapshotsContent(t *testing.T) {
	repo := newMemRepo()
	svc := campaign.NewService(repo)
	c := openCampaign(t, svc, 2)

	err := svc.Record(context.Background(), c, []domain.SendOutcome{
		{Recipient: domain.Recipient{Email: "a@example.com"}, OK: true},
		{Recipient: domain.Recipient{Email: "b@example.com"}, Err: "550 rejected"},
	})
	require.NoError(t, err)

	require.Len(t, repo.emails, 2)
	assert.Equal(t, domain.SentEmailSent, repo.emails[0].Status)
	assert.Equal(t, "Spring update", repo.emails[0].Subject)
	assert.Equal(t, "user-1", repo.emails[0].UserID)
	assert.Equal(t, domain.SentEmailFailed, repo.emails[1].Status)
	assert.Equal(t, "550 rejected", repo.emails[1].ErrorMessage)
	assert.NotEqual(t, repo.emails[0].ID, repo.emails[1].ID)
}

func TestFinalize_Verified(t *testing.T) {
	repo := newMemRepo()
	svc := campaign.NewService(repo)
	c := openCampaign(t, svc, 7)

	warning := svc.Finalize(context.Background(), c, 6, 1)
	assert.Empty(t, warning)

	stored := repo.campaigns[c.ID]
	assert.Equal(t, 6, stored.SentCount)
	assert.Equal(t, 1, stored.FailedCount)
	assert.Equal(t, domain.CampaignSent, stored.Status)
	assert.NotNil(t, stored.SentAt)
	assert.LessOrEqual(t, stored.SentCount+stored.FailedCount, stored.RecipientsCount)
}

func TestFinalize_AllFailed(t *testing.T) {
	repo := newMemRepo()
	svc := campaign.NewService(repo)
	c := openCampaign(t, svc, 50)

	assert.Empty(t, svc.Finalize(context.Background(), c, 0, 50))
	assert.Equal(t, domain.CampaignFailed, repo.campaigns[c.ID].Status)
}

func TestFinalize_MismatchWarns(t *testing.T) {
	repo := newMemRepo()
	repo.drift = 1
	svc := campaign.NewService(repo)
	c := openCampaign(t, svc, 3)

	assert.Equal(t, campaign.WarnMismatch, svc.Finalize(context.Background(), c, 2, 1))
}

func TestFinalize_UpdateErrorWarns(t *testing.T) {
	repo := newMemRepo()
	repo.updateErr = errors.New("connection reset")
	svc := campaign.NewService(repo)
	c := openCampaign(t, svc, 3)

	assert.Equal(t, campaign.WarnUpdateFailed, svc.Finalize(context.Background(), c, 3, 0))
	assert.Equal(t, domain.CampaignSending, repo.campaigns[c.ID].Status)
}

func TestGet_IncludesEmails(t *testing.T) {
	repo := newMemRepo()
	svc := campaign.NewService(repo)
	c := openCampaign(t, svc, 1)
	require.NoError(t, svc.Record(context.Background(), c, []domain.SendOutcome{
		{Recipient: domain.Recipient{Email: "a@example.com"}, OK: true},
	}))

	d, err := svc.Get(context.Background(), "user-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, d.ID)
	assert.Len(t, d.Emails, 1)

	_, err = svc.Get(context.Background(), "user-2", c.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete_CascadesEmails(t *testing.T) {
	repo := newMemRepo()
	svc := campaign.NewService(repo)
	c := openCampaign(t, svc, 1)
	require.NoError(t, svc.Record(context.Background(), c, []domain.SendOutcome{
		{Recipient: domain.Recipient{Email: "a@example.com"}, OK: true},
	}))

	assert.ErrorIs(t, svc.Delete(context.Background(), "intruder", c.ID), domain.ErrNotFound)
	require.NoError(t, svc.Delete(context.Background(), "user-1", c.ID))
	assert.Empty(t, repo.emails)
}

func TestList_ValidatesStatus(t *testing.T) {
	svc := campaign.NewService(newMemRepo())

	_, _, err := svc.List(context.Background(), "user-1", campaign.ListFilter{Status: "bogus"})
	assert.True(t, domain.IsValidation(err))

	_, total, err := svc.List(context.Background(), "user-1", campaign.ListFilter{Status: "sent"})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}
