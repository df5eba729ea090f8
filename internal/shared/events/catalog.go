package events

import (
	"github.com/google/uuid"
)

// Nombres de los eventos que cruzan módulos.
const (
	ClassCreated    = "class.created"
	AlertGenerated  = "alert.generated"
	ReportGenerated = "report.generated"
)

// Estos son contratos entre módulos, NO entidades del dominio.
// Se definen planos para que productor y consumidores no compartan tipos internos.

type ClassCreatedPayload struct {
	ClassID        uuid.UUID `json:"classId"`
	OrganizationID string    `json:"organizationId"`
	Name           string    `json:"name"`
	TeacherEmail   string    `json:"teacherEmail"`
	StudentEmails  []string  `json:"studentEmails"`
}

type AlertGeneratedPayload struct {
	AlertID        uuid.UUID `json:"alertId"`
	OrganizationID string    `json:"organizationId"`
	Severity       string    `json:"severity"`
	Message        string    `json:"message"`
	Recipients     []string  `json:"recipients"`
}

type ReportGeneratedPayload struct {
	ReportID       uuid.UUID `json:"reportId"`
	OrganizationID string    `json:"organizationId"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Recipients     []string  `json:"recipients"`
}
