package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedEvents "github.com/davicafu/feedbacklab/internal/shared/events"
)

const AggregateType = "class"

// Class es un grupo de alumnos de una organización con un profesor responsable.
type Class struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	TeacherEmail   string    `json:"teacher_email"`
	StudentEmails  []string  `json:"student_emails"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewClass valida los datos y crea la clase con un ID nuevo.
func NewClass(organizationID, name, teacherEmail string, studentEmails []string) (*Class, error) {
	organizationID = strings.TrimSpace(organizationID)
	name = strings.TrimSpace(name)
	if organizationID == "" || name == "" {
		return nil, fmt.Errorf("%w: organization and name are required", ErrInvalidClass)
	}
	if _, err := mail.ParseAddress(teacherEmail); err != nil {
		return nil, fmt.Errorf("%w: teacher email %q", ErrInvalidClass, teacherEmail)
	}

	students := make([]string, 0, len(studentEmails))
	seen := make(map[string]struct{}, len(studentEmails))
	for _, email := range studentEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, fmt.Errorf("%w: student email %q", ErrInvalidClass, email)
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		students = append(students, email)
	}

	return &Class{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		Name:           name,
		TeacherEmail:   strings.ToLower(teacherEmail),
		StudentEmails:  students,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// CreatedPayload es el contrato que viaja en class.created.
func (c *Class) CreatedPayload() sharedEvents.ClassCreatedPayload {
	return sharedEvents.ClassCreatedPayload{
		ClassID:        c.ID,
		OrganizationID: c.OrganizationID,
		Name:           c.Name,
		TeacherEmail:   c.TeacherEmail,
		StudentEmails:  c.StudentEmails,
	}
}

func CacheKeyByID(id uuid.UUID) string {
	return "class:" + id.String()
}
