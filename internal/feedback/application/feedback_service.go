package application

import (
	"context"

	"go.uber.org/zap"

	"github.com/davicafu/feedbacklab/internal/feedback/domain"
	"github.com/davicafu/feedbacklab/internal/shared/domain/events"
	sharedEvents "github.com/davicafu/feedbacklab/internal/shared/events"
	sharedBus "github.com/davicafu/feedbacklab/internal/shared/infra/platform/bus"
)

// FeedbackService publica alertas e informes. No hay escritura de negocio que
// proteger, así que publica directamente (fire-and-forget) sin outbox.
type FeedbackService struct {
	publisher sharedBus.Publisher
	log       *zap.Logger
}

func NewFeedbackService(publisher sharedBus.Publisher, log *zap.Logger) *FeedbackService {
	return &FeedbackService{publisher: publisher, log: log}
}

func (s *FeedbackService) RaiseAlert(ctx context.Context, organizationID, severity, message string, recipients []string) (*domain.Alert, error) {
	alert, err := domain.NewAlert(organizationID, severity, message, recipients)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.NewAt(sharedEvents.AlertGenerated, alert.CreatedAt, alert.GeneratedPayload()))
	s.log.Info("Alert raised", zap.String("alert_id", alert.ID.String()), zap.String("severity", alert.Severity))
	return alert, nil
}

func (s *FeedbackService) GenerateReport(ctx context.Context, organizationID, title, url string, recipients []string) (*domain.Report, error) {
	report, err := domain.NewReport(organizationID, title, url, recipients)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.NewAt(sharedEvents.ReportGenerated, report.GeneratedAt, report.GeneratedPayload()))
	s.log.Info("Report generated", zap.String("report_id", report.ID.String()))
	return report, nil
}
