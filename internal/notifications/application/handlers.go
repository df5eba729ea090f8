package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/davicafu/feedbacklab/internal/notifications/domain"
	"github.com/davicafu/feedbacklab/internal/shared/domain/events"
	sharedEvents "github.com/davicafu/feedbacklab/internal/shared/events"
)

// saveAll guarda todas las notificaciones aunque alguna falle. Como los IDs son
// deterministas, reintentar el evento entero no duplica las que ya se guardaron.
func saveAll(ctx context.Context, store domain.Store, ns []*domain.Notification) error {
	var errs []error
	for _, n := range ns {
		if err := store.Save(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("save notification for %s: %w", n.Recipient, err))
		}
	}
	return errors.Join(errs...)
}

// ---------------- class.created ----------------

// EnrollmentEmailHandler avisa a cada alumno de su alta y al profesor del resumen.
type EnrollmentEmailHandler struct {
	events.BaseHandler
	store domain.Store
}

func NewEnrollmentEmailHandler(store domain.Store, log *zap.Logger) *EnrollmentEmailHandler {
	return &EnrollmentEmailHandler{
		BaseHandler: events.NewBaseHandler(sharedEvents.ClassCreated, "enrollment-email", log),
		store:       store,
	}
}

func (h *EnrollmentEmailHandler) Handle(ctx context.Context, evt events.DomainEvent) error {
	h.LogStarted(evt)

	p, err := events.DecodePayload[sharedEvents.ClassCreatedPayload](evt)
	if err != nil {
		h.LogFailed(evt, err)
		return err
	}

	source := p.ClassID.String()
	ns := make([]*domain.Notification, 0, len(p.StudentEmails)+1)
	for _, student := range p.StudentEmails {
		ns = append(ns, domain.NewEmail(evt.Name(), source, student,
			fmt.Sprintf("You have been enrolled in %s", p.Name),
			fmt.Sprintf("Welcome! Your teacher %s added you to %s.", p.TeacherEmail, p.Name),
			evt.OccurredOn(),
		))
	}
	ns = append(ns, domain.NewEmail(evt.Name(), source, p.TeacherEmail,
		fmt.Sprintf("Class %s is ready", p.Name),
		fmt.Sprintf("%d students were invited to %s.", len(p.StudentEmails), p.Name),
		evt.OccurredOn(),
	))

	if err := saveAll(ctx, h.store, ns); err != nil {
		h.LogFailed(evt, err)
		return err
	}
	h.LogSucceeded(evt)
	return nil
}

// ---------------- alert.generated ----------------

type AlertNotificationHandler struct {
	events.BaseHandler
	store domain.Store
}

func NewAlertNotificationHandler(store domain.Store, log *zap.Logger) *AlertNotificationHandler {
	return &AlertNotificationHandler{
		BaseHandler: events.NewBaseHandler(sharedEvents.AlertGenerated, "alert-notification", log),
		store:       store,
	}
}

func (h *AlertNotificationHandler) Handle(ctx context.Context, evt events.DomainEvent) error {
	h.LogStarted(evt)

	p, err := events.DecodePayload[sharedEvents.AlertGeneratedPayload](evt)
	if err != nil {
		h.LogFailed(evt, err)
		return err
	}

	subject := fmt.Sprintf("[%s] Feedback alert", strings.ToUpper(p.Severity))
	ns := make([]*domain.Notification, 0, len(p.Recipients))
	for _, r := range p.Recipients {
		ns = append(ns, domain.NewEmail(evt.Name(), p.AlertID.String(), r, subject, p.Message, evt.OccurredOn()))
	}

	if err := saveAll(ctx, h.store, ns); err != nil {
		h.LogFailed(evt, err)
		return err
	}
	h.LogSucceeded(evt)
	return nil
}

// ---------------- report.generated ----------------

type ReportNotificationHandler struct {
	events.BaseHandler
	store domain.Store
}

func NewReportNotificationHandler(store domain.Store, log *zap.Logger) *ReportNotificationHandler {
	return &ReportNotificationHandler{
		BaseHandler: events.NewBaseHandler(sharedEvents.ReportGenerated, "report-notification", log),
		store:       store,
	}
}

func (h *ReportNotificationHandler) Handle(ctx context.Context, evt events.DomainEvent) error {
	h.LogStarted(evt)

	p, err := events.DecodePayload[sharedEvents.ReportGeneratedPayload](evt)
	if err != nil {
		h.LogFailed(evt, err)
		return err
	}

	ns := make([]*domain.Notification, 0, len(p.Recipients))
	for _, r := range p.Recipients {
		ns = append(ns, domain.NewEmail(evt.Name(), p.ReportID.String(), r,
			fmt.Sprintf("Report available: %s", p.Title),
			fmt.Sprintf("Your report %q is ready at %s", p.Title, p.URL),
			evt.OccurredOn(),
		))
	}

	if err := saveAll(ctx, h.store, ns); err != nil {
		h.LogFailed(evt, err)
		return err
	}
	h.LogSucceeded(evt)
	return nil
}

// Verificación en tiempo de compilación.
var (
	_ events.EventHandler = (*EnrollmentEmailHandler)(nil)
	_ events.EventHandler = (*AlertNotificationHandler)(nil)
	_ events.EventHandler = (*ReportNotificationHandler)(nil)
)
