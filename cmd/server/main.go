package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finvault/transaction-service/internal/api"
	"github.com/finvault/transaction-service/internal/config"
	"github.com/finvault/transaction-service/internal/events"
	"github.com/finvault/transaction-service/internal/infrastructure/identity"
	"github.com/finvault/transaction-service/internal/infrastructure/kafka"
	"github.com/finvault/transaction-service/internal/infrastructure/ledger"
	"github.com/finvault/transaction-service/internal/infrastructure/notifier"
	"github.com/finvault/transaction-service/internal/infrastructure/redis"
	"github.com/finvault/transaction-service/internal/infrastructure/resilience"
	"github.com/finvault/transaction-service/internal/observability"
	core "github.com/finvault/transaction-service/internal/repository/postgres"
	service "github.com/finvault/transaction-service/internal/services"
	pkgerrors "github.com/finvault/transaction-service/pkg/errors"
	_ "github.com/lib/pq"
)

func main() {
	shutdown, metricsHandler := observability.Setup("transaction-service")
	defer shutdown(context.Background())

	cfg := config.Load()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping Postgres: %v", err)
	}

	transactionRepo := core.NewPostgresTransactionRepository(db)
	redisClient := redis.NewClient(cfg.RedisAddr)
	defer redisClient.Close()

	// Service-to-service token refresh for outbound notification calls.
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	tokens := notifier.NewTokenSource(cfg.TokenURL, cfg.TokenClientID, cfg.TokenClientSecret, 5*time.Minute)
	go tokens.Start(rootCtx)

	retryable := func(err error) bool { return err != nil && !pkgerrors.IsDomain(err) }
	accountPolicy := resilience.NewPolicy("account-service", 3, 100*time.Millisecond, 5, 30*time.Second, retryable)
	userPolicy := resilience.NewPolicy("user-service", 3, 100*time.Millisecond, 5, 30*time.Second, retryable)

	accountClient := ledger.NewClient(cfg.AccountServiceURL, 5*time.Second, accountPolicy)
	identityClient := identity.NewClient(cfg.UserServiceURL, 5*time.Second, userPolicy)
	notifierClient := notifier.NewClient(cfg.NotificationServiceURL, 5*time.Second, tokens)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()
	publisher := events.NewPublisher(producer, notifierClient, 256, 5*time.Second)
	defer publisher.Close()

	svc := service.NewTransactionService(transactionRepo, accountClient, identityClient, publisher)

	router := api.SetupRouter(svc, redisClient, cfg.JWTSecret, metricsHandler)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
