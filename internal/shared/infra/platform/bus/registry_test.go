package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/davicafu/feedbacklab/internal/shared/domain/events"
)

type fakeSubscriber struct {
	mock.Mock
}

func (f *fakeSubscriber) Subscribe(eventName string, fn HandlerFunc) error {
	args := f.Called(eventName, fn)
	return args.Error(0)
}

// acceptingSubscriber acepta cualquier suscripción.
func acceptingSubscriber() *fakeSubscriber {
	s := &fakeSubscriber{}
	s.On("Subscribe", mock.Anything, mock.Anything).Return(nil)
	return s
}

type funcHandler struct {
	events.BaseHandler
	calls atomic.Int32
	fn    func(ctx context.Context, evt events.DomainEvent) error
}

func newFuncHandler(eventName, name string, fn func(ctx context.Context, evt events.DomainEvent) error) *funcHandler {
	return &funcHandler{BaseHandler: events.NewBaseHandler(eventName, name, nil), fn: fn}
}

func (h *funcHandler) Handle(ctx context.Context, evt events.DomainEvent) error {
	h.calls.Add(1)
	if h.fn == nil {
		return nil
	}
	return h.fn(ctx, evt)
}

func TestRegistry_FanOutIsolatesFailures(t *testing.T) {
	r := NewRegistry(acceptingSubscriber(), zap.NewNop())

	ok := newFuncHandler("class.created", "ok", nil)
	failing := newFuncHandler("class.created", "failing", func(ctx context.Context, evt events.DomainEvent) error {
		return errors.New("smtp down")
	})
	panicking := newFuncHandler("class.created", "panicking", func(ctx context.Context, evt events.DomainEvent) error {
		panic("nil map")
	})
	for _, h := range []events.EventHandler{ok, failing, panicking} {
		require.NoError(t, r.RegisterHandler("class.created", h))
	}

	report := r.HandleEvent(context.Background(), events.New("class.created", nil))

	assert.Equal(t, 1, report.Handled)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, int32(1), ok.calls.Load())
	assert.Equal(t, int32(1), failing.calls.Load())
	assert.Equal(t, int32(1), panicking.calls.Load())

	names := []string{report.Failures[0].Handler, report.Failures[1].Handler}
	assert.ElementsMatch(t, []string{"failing", "panicking"}, names)
	assert.Error(t, report.Err())
}

func TestRegistry_HandlersRunConcurrently(t *testing.T) {
	r := NewRegistry(acceptingSubscriber(), zap.NewNop())

	release := make(chan struct{})
	var started atomic.Int32
	block := func(ctx context.Context, evt events.DomainEvent) error {
		started.Add(1)
		<-release
		return nil
	}
	require.NoError(t, r.RegisterHandler("report.generated", newFuncHandler("report.generated", "a", block)))
	require.NoError(t, r.RegisterHandler("report.generated", newFuncHandler("report.generated", "b", block)))

	done := make(chan DispatchReport, 1)
	go func() { done <- r.HandleEvent(context.Background(), events.New("report.generated", nil)) }()

	assert.Eventually(t, func() bool { return started.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(release)

	report := <-done
	assert.Equal(t, 2, report.Handled)
	assert.NoError(t, report.Err())
}

func TestRegistry_NoHandlersLogsOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewRegistry(acceptingSubscriber(), zap.New(core))

	report := r.HandleEvent(context.Background(), events.New("class.deleted", nil))

	assert.Zero(t, report.Handled)
	assert.Empty(t, report.Failures)
	entries := logs.FilterMessage("no handlers found for event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "class.deleted", entries[0].ContextMap()["event"])
}

func TestRegistry_SkipsHandlersThatDecline(t *testing.T) {
	r := NewRegistry(acceptingSubscriber(), zap.NewNop())
	// Registrado bajo un nombre que su predicado no acepta.
	other := newFuncHandler("alert.generated", "other", nil)
	require.NoError(t, r.RegisterHandler("class.created", other))

	report := r.HandleEvent(context.Background(), events.New("class.created", nil))

	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, other.calls.Load())
}

func TestRegistry_DuplicateRegistrationRunsTwice(t *testing.T) {
	r := NewRegistry(acceptingSubscriber(), zap.NewNop())
	h := newFuncHandler("class.created", "dup", nil)
	require.NoError(t, r.RegisterHandler("class.created", h))
	require.NoError(t, r.RegisterHandler("class.created", h))

	report := r.HandleEvent(context.Background(), events.New("class.created", nil))

	assert.Equal(t, 2, report.Handled)
	assert.Equal(t, int32(2), h.calls.Load())
}

func TestRegistry_SubscribesOncePerName(t *testing.T) {
	sub := &fakeSubscriber{}
	sub.On("Subscribe", "class.created", mock.Anything).Return(nil).Once()
	sub.On("Subscribe", "alert.generated", mock.Anything).Return(nil).Once()
	sub.On("Subscribe", Wildcard, mock.Anything).Return(nil).Once()

	r := NewRegistry(sub, zap.NewNop())
	require.NoError(t, r.RegisterHandler("class.created", newFuncHandler("class.created", "a", nil)))
	require.NoError(t, r.RegisterHandler("class.created", newFuncHandler("class.created", "b", nil)))
	require.NoError(t, r.RegisterHandler("alert.generated", newFuncHandler("alert.generated", "c", nil)))

	require.NoError(t, r.Listen())
	require.NoError(t, r.Listen())

	sub.AssertExpectations(t)
	sub.AssertNumberOfCalls(t, "Subscribe", 3)
}

func TestRegistry_SubscribeErrorIsReturned(t *testing.T) {
	sub := &fakeSubscriber{}
	sub.On("Subscribe", "class.created", mock.Anything).Return(ErrAlreadySubscribed).Once()

	r := NewRegistry(sub, zap.NewNop())
	err := r.RegisterHandler("class.created", newFuncHandler("class.created", "a", nil))

	assert.ErrorIs(t, err, ErrAlreadySubscribed)
}

func TestRegistry_NilHandler(t *testing.T) {
	r := NewRegistry(acceptingSubscriber(), zap.NewNop())
	assert.ErrorIs(t, r.RegisterHandler("x", nil), ErrNilHandler)
}

func TestRegistry_WithEventStoreEndToEnd(t *testing.T) {
	store, q := newStore(t, zap.NewNop())
	r := NewRegistry(store, zap.NewNop())

	delivered := make(chan string, 4)
	good := newFuncHandler("class.created", "good", func(ctx context.Context, evt events.DomainEvent) error {
		delivered <- "good"
		return nil
	})
	bad := newFuncHandler("class.created", "bad", func(ctx context.Context, evt events.DomainEvent) error {
		delivered <- "bad"
		return errors.New("boom")
	})
	require.NoError(t, r.RegisterHandler("class.created", good))
	require.NoError(t, r.RegisterHandler("class.created", bad))
	require.NoError(t, r.Listen())

	store.Publish(context.Background(), events.New("class.created", nil))
	store.Publish(context.Background(), events.New("nobody.listens", nil))

	assert.Eventually(t, func() bool { return len(delivered) == 2 }, time.Second, 5*time.Millisecond)
	// Un handler que falla no reencola el job.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, delivered, 2)
	_, delayed, failed := q.Counts()
	assert.Zero(t, delayed)
	assert.Zero(t, failed)
}

func TestRegistry_WildcardHandlersReceiveEveryEvent(t *testing.T) {
	sub := &fakeSubscriber{}
	sub.On("Subscribe", "class.created", mock.Anything).Return(nil).Once()
	sub.On("Subscribe", Wildcard, mock.Anything).Return(nil).Once()

	r := NewRegistry(sub, zap.NewNop())
	audit := &catchAll{}
	named := newFuncHandler("class.created", "named", nil)
	require.NoError(t, r.RegisterHandler("class.created", named))
	require.NoError(t, r.RegisterHandler(Wildcard, audit))
	// Listen después de registrar "*" no vuelve a suscribir.
	require.NoError(t, r.Listen())

	report := r.HandleEvent(context.Background(), events.New("class.created", nil))
	assert.Equal(t, 2, report.Handled)

	report = r.HandleEvent(context.Background(), events.New("survey.closed", nil))
	assert.Equal(t, 1, report.Handled)

	assert.Equal(t, int32(2), audit.calls.Load())
	assert.Equal(t, int32(1), named.calls.Load())
	sub.AssertExpectations(t)
	sub.AssertNumberOfCalls(t, "Subscribe", 2)
}

func TestRegistry_WildcardHandlerThroughEventStore(t *testing.T) {
	store, _ := newStore(t, zap.NewNop())
	r := NewRegistry(store, zap.NewNop())

	audit := &catchAll{seen: make(chan string, 2)}
	require.NoError(t, r.RegisterHandler(Wildcard, audit))

	store.Publish(context.Background(), events.New("survey.closed", nil))

	select {
	case name := <-audit.seen:
		assert.Equal(t, "survey.closed", name)
	case <-time.After(time.Second):
		t.Fatal("wildcard handler not invoked")
	}
}

// catchAll acepta cualquier evento.
type catchAll struct {
	calls atomic.Int32
	seen  chan string
}

func (c *catchAll) CanHandle(string) bool { return true }

func (c *catchAll) Handle(ctx context.Context, evt events.DomainEvent) error {
	c.calls.Add(1)
	if c.seen != nil {
		c.seen <- evt.Name()
	}
	return nil
}
