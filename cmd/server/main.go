// Command server wires the claims adjudication engine: storage backends
// selected by config, the provider directory with optional Redis caching,
// the HTTP router, and the server lifecycle. Business logic lives in the
// internal services packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"medisure/internal/benefits"
	claimshandler "medisure/internal/claims/handler"
	"medisure/internal/claims/ledger"
	claimsmetrics "medisure/internal/claims/metrics"
	"medisure/internal/claims/ports"
	"medisure/internal/claims/service"
	claimstore "medisure/internal/claims/store/claim"
	utilstore "medisure/internal/claims/store/utilization"
	"medisure/internal/claims/verification"
	"medisure/internal/notify"
	"medisure/internal/payments"
	"medisure/internal/platform/config"
	"medisure/internal/platform/httpserver"
	"medisure/internal/platform/logger"
	platformmetrics "medisure/internal/platform/metrics"
	platformredis "medisure/internal/platform/redis"
	"medisure/internal/providers"
	"medisure/pkg/platform/audit"
	auditmem "medisure/pkg/platform/audit/store/memory"
	auditpg "medisure/pkg/platform/audit/store/postgres"
)

func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var (
		claims   ports.ClaimStore
		usage    ports.UtilizationStore
		trail    audit.Store
		txRunner ports.TxRunner
	)

	switch cfg.StorageDriver {
	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
		claims = claimstore.NewPostgres(db)
		usage = utilstore.NewPostgres(db)
		trail = auditpg.New(db)
		txRunner = newClaimsPostgresTx(db)
	default:
		claims = claimstore.NewInMemoryStore()
		usage = utilstore.NewInMemoryStore()
		trail = auditmem.NewInMemoryStore()
		txRunner = service.PassthroughTx{}
	}

	var directory ports.ProviderDirectory = providers.NewInMemoryDirectory()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		directory = providers.NewCachedDirectory(directory, redisClient.Client, cfg.ProviderCacheTTL, log)
		log.Info("provider directory cache enabled", "ttl", cfg.ProviderCacheTTL.String())
	}

	schedule := benefits.NewInMemorySchedule()

	verifier, err := verification.New(directory, log)
	if err != nil {
		log.Error("failed to build verifier", "error", err)
		os.Exit(1)
	}

	ldg, err := ledger.New(usage, schedule, ledger.WithLogger(log))
	if err != nil {
		log.Error("failed to build ledger", "error", err)
		os.Exit(1)
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(claimsmetrics.New()),
		service.WithGateway(payments.NewFakeGateway()),
		service.WithReverifyOnPayment(cfg.ReverifyOnPayment),
	}
	var notifier ports.TerminalNotifier = notify.NopNotifier{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier, err := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, notify.WithLogger(log))
		if err != nil {
			log.Error("failed to build kafka notifier", "error", err)
			os.Exit(1)
		}
		defer kafkaNotifier.Close(context.Background())
		notifier = kafkaNotifier
		log.Info("terminal notifier enabled", "topic", cfg.KafkaTopic)
	}
	opts = append(opts, service.WithNotifier(notifier))

	svc, err := service.New(claims, ldg, verifier, schedule, trail, txRunner, opts...)
	if err != nil {
		log.Error("failed to build claims service", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	httpMetrics := platformmetrics.NewHTTP()
	claimshandler.New(svc, log, httpMetrics).Register(router)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, `{"status":"degraded"}`, http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting claims engine", "addr", cfg.Addr, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
