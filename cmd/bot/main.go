package main

import (
	"context"
	"errors"
	"freelance-market-bot/config"
	"freelance-market-bot/internal/admin"
	"freelance-market-bot/internal/auth"
	"freelance-market-bot/internal/bot"
	"freelance-market-bot/internal/chat"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/db/dynamostore"
	"freelance-market-bot/internal/db/gormstore"
	"freelance-market-bot/internal/db/jsonstore"
	"freelance-market-bot/internal/ledger"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/order"
	"freelance-market-bot/internal/payment"
	"freelance-market-bot/internal/services"
	"freelance-market-bot/internal/session"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func openStore(ctx context.Context, cfg *config.AppConfig) (db.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		return gormstore.Open(cfg.DatabaseURL)
	case config.BackendDynamoDB:
		return dynamostore.Connect(ctx, dynamostore.Options{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Endpoint:        cfg.DynamoDBEndpoint,
			TablePrefix:     cfg.DynamoDBTablePrefix,
		})
	default:
		return jsonstore.New(cfg.DataFile)
	}
}

func main() {
	cfg := config.MustLoad()
	defer logger.Sync()

	// --- Логирование в файл и консоль ---
	logFile, err := os.OpenFile("bot.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("Не удалось открыть файл логов: %v", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer store.Close()

	botapi, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}
	logger.InitNotifier(botapi, cfg.AdminTelegramID)
	if cfg.AdminTelegramID == 0 {
		logger.Warn("ADMIN_TELEGRAM_ID is not set, admin panel and alerts are disabled")
	}
	if cfg.YooMoneyWallet == "" {
		logger.Warn("YOOMONEY_WALLET is not set, payment links will be invalid")
	}

	sessions := session.NewManager(store)
	accounts := auth.NewService(store)
	balances := ledger.New(store, cfg.MinWithdrawal)
	orders := order.NewService(store, balances)
	payments := payment.NewService(store, cfg.YooMoneyWallet, cfg.PaymentTTL)
	relay := chat.NewRelay(store, botapi)

	var backup *admin.Backup
	if cfg.StoreBackend == config.BackendPostgres {
		backup = admin.NewBackup(cfg.BackupDir, cfg.DatabaseURL)
	}
	panel := admin.NewPanel(admin.Deps{
		Sender:   botapi,
		Store:    store,
		Sessions: sessions,
		Auth:     accounts,
		Orders:   orders,
		Ledger:   balances,
		Payments: payments,
		Chat:     relay,
		Backup:   backup,
		AdminID:  cfg.AdminTelegramID,
	})
	b := bot.New(bot.Deps{
		Sender:   botapi,
		Store:    store,
		Sessions: sessions,
		Auth:     accounts,
		Orders:   orders,
		Ledger:   balances,
		Payments: payments,
		Chat:     relay,
		Admin:    panel,
		AdminID:  cfg.AdminTelegramID,
	})

	jobs := services.NewJobs(orders, payments, b)
	c := cron.New()
	if err := jobs.Schedule(c, ctx); err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}
	// Автоматический бэкап БД раз в сутки
	if backup != nil {
		if _, err := c.AddFunc("0 3 * * *", func() {
			defer logger.NotifyOnPanic("AutoBackup")
			backup.Auto(ctx)
		}); err != nil {
			log.Fatalf("Failed to schedule backup: %v", err)
		}
	}
	c.Start()
	defer c.Stop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           services.NewRouter(jobs, cfg.YooMoneyNotificationSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server started", zap.String("addr", cfg.HTTPAddr), zap.Bool("yoomoney_notifications", cfg.YooMoneyNotificationSecret != ""))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.NotifyAdmin("HTTP server error: " + err.Error())
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	b.Run(ctx, botapi)

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	logger.Info("Bot stopped")
}
