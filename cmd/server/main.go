// Command server runs the legal hold engine: the HTTP API, the async
// notification queue, the audit pipeline and the reminder sweep.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"holdright/internal/audit"
	auditkafka "holdright/internal/audit/kafka"
	"holdright/internal/hold/handler"
	"holdright/internal/hold/reminder"
	"holdright/internal/hold/service"
	"holdright/internal/hold/store"
	"holdright/internal/notify"
	"holdright/internal/platform/config"
	"holdright/internal/platform/httpserver"
	"holdright/internal/platform/logger"
	"holdright/internal/platform/metrics"
	platformredis "holdright/internal/platform/redis"
	"holdright/pkg/platform/middleware/auth"
	"holdright/pkg/platform/middleware/logging"
	"holdright/pkg/platform/middleware/metadata"
	"holdright/pkg/platform/middleware/requestid"
	"holdright/pkg/platform/middleware/requesttime"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Storage. Postgres when configured, in-memory otherwise.
	var (
		db         *sql.DB
		holdStore  store.Store
		auditStore audit.Store
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		holdStore = store.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
		log.Info("using postgres storage")
	} else {
		holdStore = store.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
		log.Info("using in-memory storage")
	}

	trail := audit.NewTrail(auditStore, log)

	// Reminder dedupe guard; redis-backed when configured.
	var dedupe notify.Deduper = notify.NoopDeduper{}
	if cfg.RedisURL != "" {
		rc, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rc.Close()
		dedupe = notify.NewRedisDeduper(rc.Client)
		log.Info("reminder dedupe backed by redis")
	}

	// Async notification pipeline. Dispatch feedback lands on the audit
	// inbox and a worker appends it outside any hold lock.
	auditInbox := make(chan audit.Entry, cfg.NotifyQueueSize)
	dispatcher := notify.NewLogDispatcher(log)
	queue := notify.NewQueue(dispatcher, notify.StaticPreferences{
		Default: notify.Preferences{Channel: notify.ChannelEmail},
	}, auditInbox, cfg.NotifyQueueSize, config.DefaultDispatchTimeout, log, m)
	auditWorker := audit.NewWorker(trail, auditInbox, log)

	svc := service.NewService(holdStore, service.NewShardedTx(db), trail, queue, m, log)
	sweeper := reminder.NewSweeper(svc, svc, queue, dedupe, m, log)

	router := chi.NewRouter()
	router.Use(logging.Recovery(log))
	router.Use(requestid.Middleware)
	router.Use(requesttime.Middleware)
	router.Use(metadata.ClientMetadata)
	router.Use(logging.Logger(log))
	router.Use(logging.Timeout(30 * time.Second))

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	validator := auth.NewHMACValidator(cfg.JWTSigningKey)
	router.Group(func(r chi.Router) {
		r.Use(logging.ContentTypeJSON)
		r.Use(auth.RequireAuth(validator, log))
		handler.New(svc, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return queue.Run(ctx)
	})
	g.Go(func() error {
		return auditWorker.Run(ctx)
	})

	// Reminder sweep on the configured cron schedule.
	cronRunner := cron.New()
	if _, err := sweeper.Schedule(cronRunner, cfg.ReminderCron); err != nil {
		return err
	}
	cronRunner.Start()
	g.Go(func() error {
		<-ctx.Done()
		<-cronRunner.Stop().Done()
		return nil
	})

	// Audit outbox relay to Kafka, only with both postgres and brokers.
	if db != nil && len(cfg.KafkaBrokers) > 0 {
		relay, err := auditkafka.NewRelay(cfg.KafkaBrokers, cfg.AuditTopic, db, log)
		if err != nil {
			return err
		}
		if err := relay.EnsureTopic(ctx, 3, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer relay.Close()
			return relay.Run(ctx)
		})
		log.Info("audit relay enabled", slog.String("topic", cfg.AuditTopic))
	}

	g.Go(func() error {
		log.Info("holdright listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
