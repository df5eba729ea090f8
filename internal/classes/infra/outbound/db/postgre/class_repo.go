package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/davicafu/feedbacklab/internal/classes/domain"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/uow"
)

const uniqueViolation = "23505"

type ClassRepoPostgres struct {
	q uow.Querier
}

func NewClassRepoPostgres(q uow.Querier) *ClassRepoPostgres {
	return &ClassRepoPostgres{q: q}
}

// NewClassRepository tiene la firma que espera uow.GetRepository.
func NewClassRepository(q uow.Querier) domain.ClassRepository {
	return NewClassRepoPostgres(q)
}

func (r *ClassRepoPostgres) Create(ctx context.Context, c *domain.Class) error {
	students, err := json.Marshal(c.StudentEmails)
	if err != nil {
		return fmt.Errorf("failed to marshal student emails: %w", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO classes (id, organization_id, name, teacher_email, student_emails, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.OrganizationID, c.Name, c.TeacherEmail, students, c.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrClassAlreadyExists
	}
	return err
}

func (r *ClassRepoPostgres) GetByID(ctx context.Context, id uuid.UUID) (*domain.Class, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, organization_id, name, teacher_email, student_emails, created_at
		 FROM classes WHERE id = $1`, id)

	c, err := scanClass(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrClassNotFound
	}
	return c, err
}

func (r *ClassRepoPostgres) ListByOrganization(ctx context.Context, organizationID string, limit int) ([]*domain.Class, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, organization_id, name, teacher_email, student_emails, created_at
		 FROM classes WHERE organization_id = $1 ORDER BY created_at DESC LIMIT $2`,
		organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []*domain.Class
	for rows.Next() {
		c, err := scanClass(rows.Scan)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

func scanClass(scan func(dest ...any) error) (*domain.Class, error) {
	var c domain.Class
	var students []byte // JSONB
	if err := scan(&c.ID, &c.OrganizationID, &c.Name, &c.TeacherEmail, &students, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(students, &c.StudentEmails); err != nil {
		return nil, fmt.Errorf("invalid student_emails in class %s: %w", c.ID, err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

// InitPostgres crea la tabla classes si no existe.
func InitPostgres(ctx context.Context, q uow.Querier) error {
	_, err := q.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS classes (
			id UUID PRIMARY KEY,
			organization_id TEXT NOT NULL,
			name TEXT NOT NULL,
			teacher_email TEXT NOT NULL,
			student_emails JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_classes_org ON classes (organization_id, created_at);
	`)
	return err
}

// Verificación en tiempo de compilación.
var _ domain.ClassRepository = (*ClassRepoPostgres)(nil)
