package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedEvents "github.com/davicafu/feedbacklab/internal/shared/events"
)

var ErrInvalidFeedback = errors.New("invalid feedback")

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Alert se genera cuando el feedback de una clase cruza un umbral.
type Alert struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Severity       string    `json:"severity"`
	Message        string    `json:"message"`
	Recipients     []string  `json:"recipients"`
	CreatedAt      time.Time `json:"created_at"`
}

// Report es un informe periódico ya generado y accesible en URL.
type Report struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Recipients     []string  `json:"recipients"`
	GeneratedAt    time.Time `json:"generated_at"`
}

func NewAlert(organizationID, severity, message string, recipients []string) (*Alert, error) {
	switch severity {
	case SeverityLow, SeverityMedium, SeverityHigh:
	default:
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidFeedback, severity)
	}
	if strings.TrimSpace(organizationID) == "" || strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: organization and message are required", ErrInvalidFeedback)
	}
	rcpts, err := normalizeRecipients(recipients)
	if err != nil {
		return nil, err
	}
	return &Alert{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		Severity:       severity,
		Message:        message,
		Recipients:     rcpts,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func NewReport(organizationID, title, url string, recipients []string) (*Report, error) {
	if strings.TrimSpace(organizationID) == "" || strings.TrimSpace(title) == "" || strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: organization, title and url are required", ErrInvalidFeedback)
	}
	rcpts, err := normalizeRecipients(recipients)
	if err != nil {
		return nil, err
	}
	return &Report{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		Title:          title,
		URL:            url,
		Recipients:     rcpts,
		GeneratedAt:    time.Now().UTC(),
	}, nil
}

func normalizeRecipients(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient", ErrInvalidFeedback)
	}
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.ToLower(strings.TrimSpace(r))
		if _, err := mail.ParseAddress(r); err != nil {
			return nil, fmt.Errorf("%w: recipient %q", ErrInvalidFeedback, r)
		}
		out = append(out, r)
	}
	return out, nil
}

func (a *Alert) GeneratedPayload() sharedEvents.AlertGeneratedPayload {
	return sharedEvents.AlertGeneratedPayload{
		AlertID:        a.ID,
		OrganizationID: a.OrganizationID,
		Severity:       a.Severity,
		Message:        a.Message,
		Recipients:     a.Recipients,
	}
}

func (r *Report) GeneratedPayload() sharedEvents.ReportGeneratedPayload {
	return sharedEvents.ReportGeneratedPayload{
		ReportID:       r.ID,
		OrganizationID: r.OrganizationID,
		Title:          r.Title,
		URL:            r.URL,
		Recipients:     r.Recipients,
	}
}
