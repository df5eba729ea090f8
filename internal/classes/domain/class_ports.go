package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ---------- Errores de dominio ----------
var (
	ErrClassNotFound      = errors.New("class not found")
	ErrClassAlreadyExists = errors.New("class already exists")
	ErrInvalidClass       = errors.New("invalid class")
)

// ---------- Interfaces (Ports) ----------

// ClassRepository se construye siempre sobre un Querier: dentro de una UoW para
// escribir, o sobre la conexión directa para lecturas sueltas.
type ClassRepository interface {
	Create(ctx context.Context, c *Class) error
	GetByID(ctx context.Context, id uuid.UUID) (*Class, error)
	ListByOrganization(ctx context.Context, organizationID string, limit int) ([]*Class, error)
}
