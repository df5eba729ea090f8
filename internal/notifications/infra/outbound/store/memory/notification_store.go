package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/davicafu/feedbacklab/internal/notifications/domain"
)

// NotificationStore guarda las notificaciones en un mapa (fallback sin Mongo y tests).
type NotificationStore struct {
	mu   sync.RWMutex
	byID map[string]domain.Notification
}

var _ domain.Store = (*NotificationStore)(nil)

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{byID: make(map[string]domain.Notification)}
}

func (s *NotificationStore) Save(ctx context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[n.ID.String()] = *n
	return nil
}

// ListByRecipient devuelve las más recientes primero.
func (s *NotificationStore) ListByRecipient(ctx context.Context, recipient string, limit int) ([]*domain.Notification, error) {
	recipient = strings.ToLower(recipient)

	s.mu.RLock()
	var out []*domain.Notification
	for _, n := range s.byID {
		if n.Recipient == recipient {
			n := n
			out = append(out, &n)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len es útil en tests.
func (s *NotificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
