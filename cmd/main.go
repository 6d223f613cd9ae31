/**
 * @description
 * This is the main entry point for the payout gateway. It loads configuration, connects
 * the ledger database, the optional Redis idempotency store and RabbitMQ producer,
 * builds the payout router and request orchestrator, schedules the daily ledger digest
 * and serves the HTTP API until it receives a shutdown signal.
 *
 * @dependencies
 * - github.com/joho/godotenv: For local .env loading.
 * - github.com/jackc/pgx/v5: PostgreSQL driver for the ledger.
 * - github.com/redis/go-redis/v9: For the payout idempotency guard.
 * - github.com/prometheus/client_golang: For the metrics registry.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/payoutclient, pkg/rabbitmq: Provider and broker clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/payout-gateway/internal/api"
	"github.com/transfa/payout-gateway/internal/app"
	"github.com/transfa/payout-gateway/internal/config"
	"github.com/transfa/payout-gateway/internal/metrics"
	"github.com/transfa/payout-gateway/internal/store"
	"github.com/transfa/payout-gateway/pkg/payoutclient"
	"github.com/transfa/payout-gateway/pkg/rabbitmq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using process environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.SharedSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"shared secret must be configured\" env=FIM_SHARED_SECRET")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url must be configured\" env=DATABASE_URL")
	}
	policy, err := cfg.PayoutPolicy()
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"payout policy invalid\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting payout-gateway\" port=%s currencies=%s", cfg.ServerPort, strings.Join(cfg.CurrencyCodes(), ","))

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; payout events disabled\" env=RABBITMQ_URL")
	} else if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		publisher = producer
		defer producer.Close()
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	var guard app.IdempotencyGuard = app.NoopIdempotencyGuard{}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; relying on provider idempotency keys only\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; idempotency guard disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; idempotency guard disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				guard = app.NewRedisIdempotencyGuard(redisClient, cfg.RedisIdempotencyPrefix, cfg.PayoutTimeout()*2, cfg.IdempotencyTTL())
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gatewayMetrics := metrics.New(registry)

	payoutClient := payoutclient.NewClient(cfg.PayoutAPIBaseURL, cfg.PayoutAPIKey)
	if !payoutClient.Configured() {
		log.Println("level=warn component=bootstrap msg=\"payout api key missing; supported-currency payouts will fail\" env=PAYOUT_API_KEY")
	}

	verifier, err := app.NewSignatureVerifier(cfg.SharedSecret)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"signature verifier init failed\" err=%v", err)
	}

	repository := store.NewPostgresRepository(dbpool)
	router := app.NewPayoutRouter(policy, payoutClient, guard, cfg.PayoutTimeout(), gatewayMetrics)
	gatewayService := app.NewService(verifier, repository, router, app.ServiceOptions{
		EventProducer: publisher,
		Exchange:      cfg.PayoutEventsExchange,
		LedgerTimeout: cfg.LedgerTimeout(),
		Metrics:       gatewayMetrics,
	})

	digest := app.NewLedgerDigest(repository, publisher, cfg.PayoutEventsExchange, 30*time.Second)
	scheduler := app.NewScheduler(digest, cfg.LedgerDigestSchedule)
	if err := scheduler.Start(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"ledger digest disabled\" err=%v", err)
	}

	if cfg.AdminJWTSecret == "" {
		log.Println("level=info component=bootstrap msg=\"admin jwt secret missing; ledger query api disabled\" env=ADMIN_JWT_SECRET")
	}
	handlers := api.NewGatewayHandlers(gatewayService, cfg.SignatureHeader, cfg.MaxBodyBytes)
	handler := api.GatewayRoutes(handlers, api.RouterOptions{
		AdminJWTSecret: cfg.AdminJWTSecret,
		Gatherer:       registry,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
		log.Println("level=warn component=digest msg=\"digest job still running at shutdown\"")
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
