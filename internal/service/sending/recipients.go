package sending

import (
	"strings"

	"github.com/ignite/profile-mailer/internal/domain"
)

// ResolveRecipients maps ids onto the owner's loaded subscribers. Output
// follows request order; unknown, inactive and repeated entries are
// dropped. An empty result is domain.ErrMissingRecipients.
func ResolveRecipients(ids []string, subscribers []domain.Subscriber) ([]domain.Recipient, error) {
	byID := make(map[string]*domain.Subscriber, len(subscribers))
	for i := range subscribers {
		byID[subscribers[i].ID] = &subscribers[i]
	}

	seenID := make(map[string]bool, len(ids))
	seenEmail := make(map[string]bool, len(ids))
	out := make([]domain.Recipient, 0, len(ids))
	for _, id := range ids {
		if seenID[id] {
			continue
		}
		seenID[id] = true

		s, ok := byID[id]
		if !ok || !s.IsActive || s.Email == "" {
			continue
		}
		key := strings.ToLower(s.Email)
		if seenEmail[key] {
			continue
		}
		seenEmail[key] = true
		out = append(out, domain.Recipient{Email: s.Email, Name: s.Name})
	}

	if len(out) == 0 {
		return nil, domain.ErrMissingRecipients
	}
	return out, nil
}
