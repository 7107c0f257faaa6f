package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"dealflow/internal/admin"
	adminhandler "dealflow/internal/admin/handler"
	"dealflow/internal/checklist"
	checklisthandler "dealflow/internal/checklist/handler"
	"dealflow/internal/document"
	documenthandler "dealflow/internal/document/handler"
	jwttoken "dealflow/internal/jwt_token"
	"dealflow/internal/notify"
	"dealflow/internal/objectstore"
	"dealflow/internal/platform/config"
	"dealflow/internal/platform/httpserver"
	"dealflow/internal/platform/logger"
	"dealflow/internal/platform/metrics"
	"dealflow/internal/platform/postgres"
	platformredis "dealflow/internal/platform/redis"
	"dealflow/internal/timeline"
	timelinehandler "dealflow/internal/timeline/handler"
	"dealflow/internal/transaction"
	transactionhandler "dealflow/internal/transaction/handler"
	httptransport "dealflow/internal/transport/http"
	"dealflow/pkg/platform/tx"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New(cfg.LogFormat, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	healthChecks := map[string]func() error{}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}

	var runner tx.Runner = tx.Passthrough{}
	var (
		txnStore       transaction.Store
		docStore       document.Store
		entryStore     timeline.Store
		checklistStore checklist.Store
		auditStore     admin.Store
	)
	if pool != nil {
		defer pool.Close()
		runner = &tx.PgxRunner{Pool: pool}
		txnStore = transaction.NewPostgresStore(pool)
		docStore = document.NewPostgresStore(pool)
		entryStore = timeline.NewPostgresStore(pool)
		checklistStore = checklist.NewPostgresStore(pool)
		auditStore = admin.NewPostgresStore(pool)
		healthChecks["database"] = func() error { return pool.Ping(context.Background()) }
		log.Info("using postgres persistence")
	} else {
		txnStore = transaction.NewMemoryStore()
		docStore = document.NewMemoryStore()
		entryStore = timeline.NewMemoryStore()
		checklistStore = checklist.NewMemoryStore()
		auditStore = admin.NewMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory persistence")
	}

	rdb, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	var deduper timeline.Deduper
	if rdb != nil {
		defer rdb.Close()
		deduper = timeline.NewRedisDeduper(rdb.Client, cfg.TimelineDedupTTL)
		healthChecks["redis"] = func() error { return rdb.Health(context.Background()) }
		log.Info("using redis-backed timeline dedup")
	} else {
		deduper = timeline.NewLRUDeduper(4096, cfg.TimelineDedupTTL)
	}

	var files objectstore.Store
	if cfg.MinioEndpoint != "" {
		minioStore, err := objectstore.NewMinioStore(objectstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Error("object storage setup failed", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			log.Error("object storage bucket setup failed", "error", err)
			os.Exit(1)
		}
		files = minioStore
		log.Info("using minio object storage", "bucket", cfg.MinioBucket)
	} else {
		files = objectstore.NewMemoryStore()
		log.Warn("MINIO_ENDPOINT not set, using in-memory object storage")
	}

	var notifier notify.Notifier
	if cfg.KafkaBrokers != "" {
		kafkaNotifier, err := notify.NewKafkaNotifier(splitBrokers(cfg.KafkaBrokers), cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka setup failed", "error", err)
			os.Exit(1)
		}
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
		log.Info("using kafka notifications", "topic", cfg.KafkaTopic)
	} else {
		notifier = &notify.Memory{}
		log.Warn("KAFKA_BROKERS not set, notifications are in-memory only")
	}

	// Services. The gateway breaks the import cycle between transaction and
	// document/checklist.
	gateway := transaction.NewGateway(txnStore)
	timelineSvc := timeline.NewService(entryStore, txnStore, deduper, log)
	checklistEngine := checklist.NewEngine(runner, checklistStore, document.ApprovalChecker{Store: docStore}, gateway, log)
	documentSvc := document.NewService(runner, docStore, gateway, checklistEngine, timelineSvc, files, notifier, log)
	transactionSvc := transaction.NewService(runner, txnStore, timelineSvc, notifier, log)
	adminSvc := admin.NewService(runner, txnStore, docStore, entryStore, checklistStore, files, auditStore, log)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "dealflow", "dealflow-api")

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:       log,
		JWTValidator: jwttoken.NewJWTServiceAdapter(jwtService),
		Handlers: []httptransport.Registrar{
			transactionhandler.New(transactionSvc, log, m),
			documenthandler.New(documentSvc, log, m),
			checklisthandler.New(checklistEngine, transactionSvc, log),
			timelinehandler.New(timelineSvc, transactionSvc, log),
			adminhandler.New(adminSvc, log, m),
		},
		HealthChecks: healthChecks,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting dealflow", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		return httpserver.Shutdown(srv, 10*time.Second)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
