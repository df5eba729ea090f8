package domain

import (
	"context"
)

// Store persiste notificaciones. Save es un upsert por ID.
type Store interface {
	Save(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, recipient string, limit int) ([]*Notification, error)
}
