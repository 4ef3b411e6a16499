package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"steward/internal/audit"
	auditstore "steward/internal/audit/store"
	"steward/internal/backup"
	"steward/internal/dedupe"
	entitystore "steward/internal/entity/store"
	identitystore "steward/internal/identity/store"
	"steward/internal/oplock"
	"steward/internal/platform/authdb"
	"steward/internal/platform/config"
	"steward/internal/platform/httpserver"
	"steward/internal/platform/logger"
	"steward/internal/platform/metrics"
	"steward/internal/platform/postgres"
	platformredis "steward/internal/platform/redis"
	"steward/internal/recon"
	transport "steward/internal/transport/http"
	"steward/internal/wipe"
)

func main() {
	log := logger.New()

	cfg := config.FromEnv()
	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	if cfg.AuthDatabaseURL == "" {
		log.Error("AUTH_DATABASE_URL is required")
		os.Exit(1)
	}
	if cfg.AdminJWTSecret == "" || cfg.AdminPasswordHash == "" {
		log.Error("ADMIN_JWT_SECRET and ADMIN_PASSWORD_HASH are required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL, 5)
	if err != nil {
		log.Error("open application database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	authPool, err := authdb.Open(ctx, cfg.AuthDatabaseURL)
	if err != nil {
		log.Error("open identity database", "error", err)
		os.Exit(1)
	}
	defer authPool.Close()

	m := metrics.New()

	auditOpts := []audit.Option{
		audit.WithLogger(log),
		audit.WithPublishFailureCounter(m.AuditPublishFailures),
		audit.WithAsyncBuffer(256),
	}
	var kafkaPub *audit.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub, err = audit.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("connect kafka audit mirror", "error", err)
			os.Exit(1)
		}
		defer kafkaPub.Close()
		auditOpts = append(auditOpts, audit.WithPublisher(kafkaPub))
	}
	auditor := audit.NewService(auditstore.NewPostgres(db), auditOpts...)
	defer auditor.Close()

	var lock *oplock.Lock
	rdb, err := platformredis.Open(ctx, cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
		lock = oplock.New(rdb, 10*time.Minute)
	} else {
		log.Warn("redis not configured, bulk operations run unguarded")
	}

	reconSvc := recon.New(
		identitystore.NewIdentities(authPool),
		identitystore.NewProfiles(db),
		recon.WithLogger(log),
		recon.WithAuditor(auditor),
		recon.WithMetrics(m),
		recon.WithRepairSettle(cfg.RepairSettle),
		recon.WithPurgeSettle(cfg.PurgeSettle),
	)

	entities := entitystore.NewPostgres(db)

	dedupeSvc := dedupe.New(
		entities,
		dedupe.WithLogger(log),
		dedupe.WithAuditor(auditor),
		dedupe.WithMetrics(m),
		dedupe.WithMergeSettle(cfg.MergeSettle),
	)

	var sink backup.Sink
	if cfg.BackupBucket != "" {
		sink, err = backup.NewS3Sink(ctx, cfg.BackupBucket)
		if err != nil {
			log.Error("configure s3 backup sink", "error", err)
			os.Exit(1)
		}
	} else {
		sink = backup.NewDirSink(cfg.BackupDir)
	}

	wipeSvc := wipe.New(
		entities,
		sink,
		wipe.WithLogger(log),
		wipe.WithAuditor(auditor),
		wipe.WithMetrics(m),
	)

	r := chi.NewRouter()
	transport.New(log, reconSvc, dedupeSvc, wipeSvc, auditor, lock,
		cfg.AdminJWTSecret, cfg.AdminPasswordHash).Register(r)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, r)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("server stopped")
}
