package config

import (
	"errors"
	"fmt"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
	BackendJSON     = "json"
)

type AppConfig struct {
	BotToken        string
	AdminTelegramID int64

	YooMoneyWallet             string
	YooMoneyNotificationSecret string
	PaymentTTL                 time.Duration

	StoreBackend string
	DatabaseURL  string
	DataFile     string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	DynamoDBEndpoint    string
	DynamoDBTablePrefix string

	HTTPAddr      string
	MinWithdrawal decimal.Decimal
	BackupDir     string
}

var ErrMissingToken = errors.New("BOT_TOKEN is not set")

// Load читает .env (если есть) и переменные окружения.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, relying on environment variables")
	}

	cfg := &AppConfig{
		BotToken:                   os.Getenv("BOT_TOKEN"),
		YooMoneyWallet:             os.Getenv("YOOMONEY_WALLET"),
		YooMoneyNotificationSecret: os.Getenv("YOOMONEY_NOTIFICATION_SECRET"),
		StoreBackend:               strings.ToLower(getenvDefault("STORE_BACKEND", BackendJSON)),
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		DataFile:                   getenvDefault("DATA_FILE", "data.json"),
		AWSRegion:                  getenvDefault("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:             getenvDefault("AWS_ACCESS_KEY_ID", "local"),
		AWSSecretAccessKey:         getenvDefault("AWS_SECRET_ACCESS_KEY", "local"),
		DynamoDBEndpoint:           os.Getenv("DYNAMODB_ENDPOINT"),
		DynamoDBTablePrefix:        os.Getenv("DYNAMODB_TABLE_PREFIX"),
		HTTPAddr:                   getenvDefault("HTTP_ADDR", ":8080"),
		BackupDir:                  getenvDefault("BACKUP_DIR", "backups"),
	}

	if cfg.BotToken == "" {
		return nil, ErrMissingToken
	}

	if raw := os.Getenv("ADMIN_TELEGRAM_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID: %w", err)
		}
		cfg.AdminTelegramID = id
	}

	ttlHours, err := strconv.Atoi(getenvDefault("PAYMENT_TTL_HOURS", "24"))
	if err != nil || ttlHours <= 0 {
		return nil, fmt.Errorf("PAYMENT_TTL_HOURS: некорректное значение %q", os.Getenv("PAYMENT_TTL_HOURS"))
	}
	cfg.PaymentTTL = time.Duration(ttlHours) * time.Hour

	minWithdrawal, err := decimal.NewFromString(getenvDefault("MIN_WITHDRAWAL", "500"))
	if err != nil || minWithdrawal.IsNegative() {
		return nil, fmt.Errorf("MIN_WITHDRAWAL: некорректное значение %q", os.Getenv("MIN_WITHDRAWAL"))
	}
	cfg.MinWithdrawal = minWithdrawal

	switch cfg.StoreBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for postgres backend")
		}
	case BackendDynamoDB, BackendJSON:
	default:
		return nil, fmt.Errorf("STORE_BACKEND: unknown backend %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// MustLoad завершает процесс, если обязательные переменные не заданы.
func MustLoad() *AppConfig {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Critical configuration error, bot will exit: %v", err)
	}
	return cfg
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
