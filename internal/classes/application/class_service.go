package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davicafu/feedbacklab/internal/classes/domain"
	sharedDomain "github.com/davicafu/feedbacklab/internal/shared/domain"
	sharedEvents "github.com/davicafu/feedbacklab/internal/shared/events"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/cache"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/uow"
	"github.com/davicafu/feedbacklab/internal/shared/infra/utils"
)

const cacheTTLSecs = 60

// Repositories agrupa los constructores de repositorio del driver elegido.
type Repositories struct {
	Classes func(q uow.Querier) domain.ClassRepository
	Outbox  func(q uow.Querier) sharedDomain.OutboxWriter
}

// ClassService define los casos de uso relacionados con Class.
type ClassService struct {
	uows   *uow.Factory
	reader uow.Querier
	repos  Repositories
	cache  cache.Cache
	log    *zap.Logger
}

// NewClassService: reader se usa para lecturas fuera de transacción (normalmente el *sql.DB).
func NewClassService(uows *uow.Factory, reader uow.Querier, repos Repositories, c cache.Cache, log *zap.Logger) *ClassService {
	return &ClassService{uows: uows, reader: reader, repos: repos, cache: c, log: log}
}

// CreateClass guarda la clase y su evento class.created en la misma transacción.
// El relayer del outbox lo llevará a la cola después del commit.
func (s *ClassService) CreateClass(ctx context.Context, organizationID, name, teacherEmail string, studentEmails []string) (*domain.Class, error) {
	class, err := domain.NewClass(organizationID, name, teacherEmail, studentEmails)
	if err != nil {
		return nil, err
	}

	outboxEvent, err := sharedDomain.NewOutboxEvent(domain.AggregateType, class.ID.String(), sharedEvents.ClassCreated, class.CreatedPayload())
	if err != nil {
		return nil, fmt.Errorf("build outbox event: %w", err)
	}

	err = s.uows.New().WithTransaction(ctx, func(ctx context.Context, tx *uow.Tx) error {
		classes, err := uow.GetRepository(tx, s.repos.Classes)
		if err != nil {
			return err
		}
		outbox, err := uow.GetRepository(tx, s.repos.Outbox)
		if err != nil {
			return err
		}

		if err := classes.Create(ctx, class); err != nil {
			return err
		}
		return outbox.Save(ctx, outboxEvent)
	})
	if err != nil {
		s.log.Warn("Class creation rolled back",
			zap.String("organization_id", organizationID),
			zap.Error(err),
		)
		return nil, err
	}

	s.log.Info("Class created",
		zap.String("class_id", class.ID.String()),
		zap.Int("students", len(class.StudentEmails)),
	)
	cache.AsyncCacheSet(ctx, s.cache, domain.CacheKeyByID(class.ID), class, cacheTTLSecs, s.log)
	return class, nil
}

// GetClass obtiene una clase (primero intenta desde cache).
func (s *ClassService) GetClass(ctx context.Context, id uuid.UUID) (*domain.Class, error) {
	// 1. Intentar cache
	if s.cache != nil {
		var c domain.Class
		if ok, _ := s.cache.Get(ctx, domain.CacheKeyByID(id), &c); ok {
			return &c, nil
		}
	}

	// 2. Ir al repo con reintentos; un "not found" no se reintenta
	var class *domain.Class
	err := utils.Retry(ctx, 3, utils.DefaultRetryDelay, func() error {
		var err error
		class, err = s.repos.Classes(s.reader).GetByID(ctx, id)
		return err
	}, domain.ErrClassNotFound)
	if err != nil {
		return nil, err
	}

	// 3. Actualizar cache en background sin bloquear la respuesta
	cache.AsyncCacheSet(ctx, s.cache, domain.CacheKeyByID(id), class, cacheTTLSecs, s.log)
	return class, nil
}

func (s *ClassService) ListClasses(ctx context.Context, organizationID string, limit int) ([]*domain.Class, error) {
	return s.repos.Classes(s.reader).ListByOrganization(ctx, organizationID, limit)
}
