package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	classApp "github.com/davicafu/feedbacklab/internal/classes/application"
	classHttp "github.com/davicafu/feedbacklab/internal/classes/infra/inbound/http"
	classPostgres "github.com/davicafu/feedbacklab/internal/classes/infra/outbound/db/postgre"
	classSQLite "github.com/davicafu/feedbacklab/internal/classes/infra/outbound/db/sqlite"
	config "github.com/davicafu/feedbacklab/internal/config"
	feedbackApp "github.com/davicafu/feedbacklab/internal/feedback/application"
	feedbackHttp "github.com/davicafu/feedbacklab/internal/feedback/infra/inbound/http"
	notifApp "github.com/davicafu/feedbacklab/internal/notifications/application"
	notifDomain "github.com/davicafu/feedbacklab/internal/notifications/domain"
	notifHttp "github.com/davicafu/feedbacklab/internal/notifications/infra/inbound/http"
	notifMemory "github.com/davicafu/feedbacklab/internal/notifications/infra/outbound/store/memory"
	notifMongo "github.com/davicafu/feedbacklab/internal/notifications/infra/outbound/store/mongodb"
	opsHttp "github.com/davicafu/feedbacklab/internal/ops/infra/inbound/http"
	sharedDomain "github.com/davicafu/feedbacklab/internal/shared/domain"
	"github.com/davicafu/feedbacklab/internal/shared/domain/events"
	sharedEvents "github.com/davicafu/feedbacklab/internal/shared/events"
	infraEvents "github.com/davicafu/feedbacklab/internal/shared/infra/events"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/bus"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/cache"
	outboxPostgres "github.com/davicafu/feedbacklab/internal/shared/infra/platform/db/postgres"
	outboxSQLite "github.com/davicafu/feedbacklab/internal/shared/infra/platform/db/sqlite"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/metrics"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/queue"
	memoryQueue "github.com/davicafu/feedbacklab/internal/shared/infra/platform/queue/memory"
	redisQueue "github.com/davicafu/feedbacklab/internal/shared/infra/platform/queue/redis"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/uow"
	"github.com/davicafu/feedbacklab/internal/shared/infra/relayer"
	"github.com/davicafu/feedbacklab/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const shutdownTimeout = 10 * time.Second

// ---------------- Main ----------------
func main() {
	logger.Init()          // inicializa zap
	log := logger.Logger() // obtiene logger estructurado
	defer log.Sync()       // flush buffers al salir

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	ln, err := net.Listen("tcp", ":"+cfg.HTTPPort)
	if err != nil {
		log.Fatal("failed to listen", zap.String("port", cfg.HTTPPort), zap.Error(err))
	}
	if err := run(ctx, cfg, log, ln); err != nil {
		log.Fatal("💥 feedbacklab detenido con error", zap.Error(err))
	}
}

// run monta todas las dependencias y sirve HTTP en ln hasta que ctx se cancela.
func run(ctx context.Context, cfg *config.Config, log *zap.Logger, ln net.Listener) error {
	defer ln.Close() // Serve ya lo cierra; cubre los retornos tempranos

	// ---------------- DB ----------------
	db, persist, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	// -------------- Metrics ---------------
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("feedbacklab", reg)

	// ----------- Queue + Cache ------------
	var (
		eventQueue    queue.Queue
		cacheInstance cache.Cache
	)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	checks := map[string]opsHttp.Checker{"db": db.PingContext}

	if err := redisQueue.ConnectWithRetry(ctx, rdb, cfg.RedisConnectTimeout, log); err != nil {
		log.Warn("⚠️ Redis no disponible, cola y cache en memoria", zap.Error(err))
		_ = rdb.Close()
		eventQueue = memoryQueue.NewQueue(bus.DefaultTopic, log, m)
		memCache := cache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
		defer memCache.Stop()
		cacheInstance = memCache
	} else {
		log.Info("✅ Redis conectado, cola durable y cache habilitados", zap.String("worker_id", cfg.QueueWorkerID))
		defer rdb.Close()
		eventQueue = redisQueue.NewQueue(rdb, redisQueue.Config{
			Prefix:   cfg.QueuePrefix,
			Name:     bus.DefaultTopic,
			WorkerID: cfg.QueueWorkerID,
		}, log, m)
		cacheInstance = cache.NewRedisCache(rdb, cfg.QueuePrefix+":cache")
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	defer eventQueue.Close()

	// ------------- Event Store -------------
	store := bus.NewEventStore(eventQueue, log, bus.WithMetrics(m))
	defer store.Close()
	registry := bus.NewRegistry(store, log, bus.WithMetrics(m))

	// ----------- Notifications ------------
	var notifications notifDomain.Store = notifMemory.NewNotificationStore()
	if cfg.UseMongo {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return fmt.Errorf("connect to MongoDB: %w", err)
		}
		defer client.Disconnect(context.Background())

		mongoStore, err := notifMongo.NewNotificationStoreMongoDB(ctx, client, cfg.MongoDB)
		if err != nil {
			return fmt.Errorf("initialize MongoDB store: %w", err)
		}
		notifications = mongoStore
		checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		log.Info("✅ MongoDB conectado para notificaciones")
	}

	handlers := []binding{
		{sharedEvents.ClassCreated, notifApp.NewEnrollmentEmailHandler(notifications, log)},
		{sharedEvents.AlertGenerated, notifApp.NewAlertNotificationHandler(notifications, log)},
		{sharedEvents.ReportGenerated, notifApp.NewReportNotificationHandler(notifications, log)},
	}

	// ---------------- Kafka ----------------
	if cfg.UseKafka {
		log.Info("🚀 Reenviando eventos de integración a Kafka", zap.String("topic", cfg.KafkaTopic))

		writer := &kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBrokers...),
			Topic:    cfg.KafkaTopic,
			Balancer: &kafka.Hash{},
		}
		defer writer.Close()

		names := []string{sharedEvents.ClassCreated, sharedEvents.AlertGenerated, sharedEvents.ReportGenerated}
		forwarder := infraEvents.NewKafkaForwarder(writer, log, names...)
		for _, name := range names {
			handlers = append(handlers, binding{name, forwarder})
		}

		if cfg.KafkaInboundTopic != "" {
			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:  cfg.KafkaBrokers,
				Topic:    cfg.KafkaInboundTopic,
				GroupID:  cfg.KafkaConsumerGroup,
				MinBytes: 10e3, // 10KB
				MaxBytes: 10e6, // 10MB
			})
			defer reader.Close()
			infraEvents.NewKafkaBridge(reader, store, log).Start(ctx)
		}
	}

	for _, h := range handlers {
		if err := registry.RegisterHandler(h.event, h.handler); err != nil {
			return fmt.Errorf("register handler for %s: %w", h.event, err)
		}
	}
	if err := registry.Listen(); err != nil {
		return fmt.Errorf("start event listener: %w", err)
	}

	// ------------ Outbox Worker ------------
	uows := uow.NewFactory(db, store, log)
	var workerOpts []relayer.Option
	if persist.txOutbox != nil {
		workerOpts = append(workerOpts, relayer.WithTransactionalBatches(uows.New(), persist.txOutbox))
	}
	outboxWorker := relayer.NewOutboxWorker(persist.outbox, store, cfg.OutboxPeriod, cfg.OutboxLimit, log, workerOpts...)

	workerCtx, stopWorker := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		outboxWorker.Start(workerCtx)
	}()
	// Se para antes de cerrar store, cola y DB.
	defer func() {
		stopWorker()
		wg.Wait()
	}()

	// --------------- Servicios --------------
	classService := classApp.NewClassService(uows, db, persist.repos, cacheInstance, log)
	feedbackService := feedbackApp.NewFeedbackService(store, log)

	// ---------------- HTTP ----------------
	router := gin.Default()
	classHttp.RegisterClassRoutes(router, classHttp.NewClassHandler(classService))
	feedbackHttp.RegisterFeedbackRoutes(router, feedbackHttp.NewFeedbackHandler(feedbackService))
	notifHttp.RegisterNotificationRoutes(router, notifHttp.NewNotificationHandler(notifications))
	opsHttp.RegisterOpsRoutes(router, opsHttp.NewOpsHandler(eventQueue, checks), reg)

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("🚀 Server running", zap.String("addr", ln.Addr().String()))
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}
	log.Info("🛑 Apagando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	return nil
}

type binding struct {
	event   string
	handler events.EventHandler
}

// persistence agrupa los adaptadores que dependen del driver elegido.
type persistence struct {
	repos  classApp.Repositories
	outbox sharedDomain.OutboxRepository
	// txOutbox solo con Postgres: el relayer lee con FOR UPDATE SKIP LOCKED
	// dentro de una transacción. SQLite no tiene bloqueos por fila.
	txOutbox func(uow.Querier) sharedDomain.OutboxRepository
}

func openDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) (*sql.DB, persistence, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return nil, persistence{}, fmt.Errorf("open Postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, persistence{}, fmt.Errorf("ping Postgres: %w", err)
		}
		if err := classPostgres.InitPostgres(ctx, db); err != nil {
			_ = db.Close()
			return nil, persistence{}, fmt.Errorf("initialize Postgres: %w", err)
		}
		if err := outboxPostgres.InitOutboxSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, persistence{}, fmt.Errorf("initialize outbox: %w", err)
		}
		log.Info("✅ Postgres conectado")
		return db, persistence{
			repos: classApp.Repositories{
				Classes: classPostgres.NewClassRepository,
				Outbox: func(q uow.Querier) sharedDomain.OutboxWriter {
					return outboxPostgres.NewOutboxRepoPostgres(q)
				},
			},
			outbox: outboxPostgres.NewOutboxRepoPostgres(db),
			txOutbox: func(q uow.Querier) sharedDomain.OutboxRepository {
				return outboxPostgres.NewOutboxRepoPostgres(q)
			},
		}, nil

	default:
		dsn := "file:" + cfg.SQLitePath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, persistence{}, fmt.Errorf("open SQLite: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, persistence{}, fmt.Errorf("ping SQLite: %w", err)
		}
		if err := classSQLite.InitSQLite(ctx, db); err != nil {
			_ = db.Close()
			return nil, persistence{}, fmt.Errorf("initialize SQLite: %w", err)
		}
		if err := outboxSQLite.InitOutboxSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, persistence{}, fmt.Errorf("initialize outbox: %w", err)
		}
		log.Info("✅ SQLite abierto", zap.String("path", cfg.SQLitePath))
		return db, persistence{
			repos: classApp.Repositories{
				Classes: classSQLite.NewClassRepository,
				Outbox: func(q uow.Querier) sharedDomain.OutboxWriter {
					return outboxSQLite.NewOutboxRepoSQLite(q)
				},
			},
			outbox: outboxSQLite.NewOutboxRepoSQLite(db),
		}, nil
	}
}
