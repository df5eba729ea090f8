package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	// _ "github.com/mattn/go-sqlite3" // better performance but requires gcc
	_ "modernc.org/sqlite"

	"github.com/davicafu/feedbacklab/internal/classes/domain"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/uow"
)

type ClassRepoSQLite struct {
	q uow.Querier
}

func NewClassRepoSQLite(q uow.Querier) *ClassRepoSQLite {
	return &ClassRepoSQLite{q: q}
}

// NewClassRepository tiene la firma que espera uow.GetRepository.
func NewClassRepository(q uow.Querier) domain.ClassRepository {
	return NewClassRepoSQLite(q)
}

func (r *ClassRepoSQLite) Create(ctx context.Context, c *domain.Class) error {
	students, err := json.Marshal(c.StudentEmails)
	if err != nil {
		return fmt.Errorf("failed to marshal student emails: %w", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO classes (id, organization_id, name, teacher_email, student_emails, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.OrganizationID, c.Name, c.TeacherEmail, string(students), c.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrClassAlreadyExists
		}
		return err
	}
	return nil
}

func (r *ClassRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*domain.Class, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, organization_id, name, teacher_email, student_emails, created_at
		 FROM classes WHERE id = ?`, id.String())

	c, err := scanClass(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrClassNotFound
	}
	return c, err
}

func (r *ClassRepoSQLite) ListByOrganization(ctx context.Context, organizationID string, limit int) ([]*domain.Class, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, organization_id, name, teacher_email, student_emails, created_at
		 FROM classes WHERE organization_id = ? ORDER BY created_at DESC LIMIT ?`,
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
	var idStr, studentsStr string
	var createdAt time.Time
	if err := scan(&idStr, &c.OrganizationID, &c.Name, &c.TeacherEmail, &studentsStr, &createdAt); err != nil {
		return nil, err
	}

	parsedID, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID in DB: %w", err)
	}
	c.ID = parsedID
	c.CreatedAt = createdAt.UTC()

	if err := json.Unmarshal([]byte(studentsStr), &c.StudentEmails); err != nil {
		return nil, fmt.Errorf("invalid student_emails in class %s: %w", idStr, err)
	}
	return &c, nil
}

// ------------------ Inicialización de DB ------------------

// InitSQLite crea la tabla classes si no existe.
func InitSQLite(ctx context.Context, q uow.Querier) error {
	_, err := q.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS classes (
            id TEXT PRIMARY KEY,
            organization_id TEXT NOT NULL,
            name TEXT NOT NULL,
            teacher_email TEXT NOT NULL,
            student_emails TEXT NOT NULL,
            created_at DATETIME NOT NULL
        );
        CREATE INDEX IF NOT EXISTS idx_classes_org ON classes (organization_id, created_at);
    `)
	return err
}

// Verificación en tiempo de compilación.
var _ domain.ClassRepository = (*ClassRepoSQLite)(nil)
