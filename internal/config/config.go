package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr               string
	PostgresDSN            string
	RedisAddr              string
	KafkaBrokers           []string
	KafkaTopic             string
	JWTSecret              string
	AccountServiceURL      string
	UserServiceURL         string
	NotificationServiceURL string
	TokenURL               string
	TokenClientID          string
	TokenClientSecret      string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:               os.Getenv("HTTP_ADDR"),
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		KafkaBrokers:           []string{os.Getenv("KAFKA_BROKER")},
		KafkaTopic:             os.Getenv("KAFKA_TOPIC"),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		AccountServiceURL:      os.Getenv("ACCOUNT_SERVICE_URL"),
		UserServiceURL:         os.Getenv("USER_SERVICE_URL"),
		NotificationServiceURL: os.Getenv("NOTIFICATION_SERVICE_URL"),
		TokenURL:               os.Getenv("SERVICE_TOKEN_URL"),
		TokenClientID:          os.Getenv("SERVICE_CLIENT_ID"),
		TokenClientSecret:      os.Getenv("SERVICE_CLIENT_SECRET"),
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=transactions sslmode=disable"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 1 && cfg.KafkaBrokers[0] == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "transaction-events"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "supersecret"
	}
	if cfg.AccountServiceURL == "" {
		cfg.AccountServiceURL = "http://localhost:8081"
	}
	if cfg.UserServiceURL == "" {
		cfg.UserServiceURL = "http://localhost:8082"
	}
	if cfg.NotificationServiceURL == "" {
		cfg.NotificationServiceURL = "http://localhost:8083"
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"kafka_topic", cfg.KafkaTopic,
		"account_service_url", cfg.AccountServiceURL,
		"user_service_url", cfg.UserServiceURL,
		"notification_service_url", cfg.NotificationServiceURL)
	return cfg
}
