package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/davicafu/feedbacklab/internal/shared/domain/events"
)

// MockPublisher simula el Event Store visto desde un caso de uso (fire-and-forget).
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, evt events.DomainEvent) {
	m.Called(ctx, evt)
}

// MockEnqueuer simula el Event Store visto desde el relayer del outbox.
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, evt events.DomainEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}
