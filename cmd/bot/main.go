package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studytips-bot/internal/config"
	"github.com/ignatzorin/studytips-bot/internal/db"
	"github.com/ignatzorin/studytips-bot/internal/dialogue"
	"github.com/ignatzorin/studytips-bot/internal/goroutine"
	httpHandlers "github.com/ignatzorin/studytips-bot/internal/http/handlers"
	httpRouter "github.com/ignatzorin/studytips-bot/internal/http/router"
	"github.com/ignatzorin/studytips-bot/internal/logger"
	"github.com/ignatzorin/studytips-bot/internal/notify"
	"github.com/ignatzorin/studytips-bot/internal/repository"
	"github.com/ignatzorin/studytips-bot/internal/service"
	"github.com/ignatzorin/studytips-bot/internal/storage"
	"github.com/ignatzorin/studytips-bot/internal/telegram"
	"github.com/ignatzorin/studytips-bot/internal/ws"
)

const (
	sweepInterval           = time.Minute
	attachmentSweepInterval = time.Hour
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logger.Init(cfg.LogLevel)
	if !cfg.IsProduction() {
		logger.SetTextFormatter()
	}
	mainLog := logger.WithComponent("main")

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		mainLog.WithError(err).Fatal("database connection failed")
	}
	defer safeClose(dbConn, mainLog)

	if err := db.RunMigrations(ctx, dbConn, db.Migrations); err != nil {
		mainLog.WithError(err).Fatal("migrations failed")
	}

	checks := map[string]httpHandlers.Pinger{"database": dbConn}
	store, closeStore := newSessionStore(ctx, cfg, checks, mainLog)
	defer closeStore()

	attachments, err := storage.NewAttachmentStorage(cfg.UploadPath, cfg.MaxFileSizeBytes(), cfg.AllowedFileTypes)
	if err != nil {
		mainLog.WithError(err).Fatal("attachment storage init failed")
	}

	// Telegram.
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		mainLog.WithError(err).Fatal("telegram auth failed")
	}
	api.Debug = cfg.LogLevel == "debug" && !cfg.IsProduction()
	mainLog.WithField("bot", api.Self.UserName).Info("authorized in telegram")
	bot := telegram.NewBot(api)

	// Лента событий для админов.
	hub := ws.NewHub()
	goroutine.SafeGoWithContext(ctx, hub.Run)

	// Репозитории.
	repos := service.Repositories{
		Users:    repository.NewUserRepository(dbConn),
		Orders:   repository.NewOrderRepository(dbConn),
		Disputes: repository.NewDisputeRepository(dbConn),
		Ratings:  repository.NewRatingRepository(dbConn),
		Chats:    repository.NewChatRepository(dbConn),
	}

	// Сервисы.
	dispatcher := notify.NewDispatcher(bot, notify.WithPublisher(hub))
	tokens := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)
	userService := service.NewUserService(repos.Users, tokens)
	orderService := service.NewOrderService(repos, dispatcher, service.OrderConfig{
		MaxActiveOrders: cfg.MaxActiveOrders,
		ChannelID:       cfg.AdminChatID,
	})

	if err := userService.BootstrapAdmins(ctx, cfg.AdminIDs); err != nil {
		mainLog.WithError(err).Fatal("admin bootstrap failed")
	}

	orderDialogue := dialogue.New(store, orderService, attachments, dialogue.Config{
		AllowedExtensions: cfg.AllowedFileTypes,
		MaxFileBytes:      cfg.MaxFileSizeBytes(),
	})
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		sweepAttachments(ctx, orderDialogue, orderService, cfg.SessionTTL, mainLog)
	})
	handler := telegram.NewHandler(bot, userService, orderService, orderDialogue, telegram.Config{
		SupportURL:        cfg.SupportURL,
		MaxActiveOrders:   cfg.MaxActiveOrders,
		AllowedExtensions: cfg.AllowedFileTypes,
		MaxFileSizeMB:     cfg.MaxFileSizeMB,
		RateLimit:         cfg.RateLimitLimit,
		RatePeriod:        cfg.RateLimitPeriod,
	})

	// HTTP.
	opts := httpRouter.Options{
		Production:      cfg.IsProduction(),
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitLimit:  cfg.RateLimitLimit,
		RateLimitPeriod: cfg.RateLimitPeriod,
		Auth:            userService,
		Health:          httpHandlers.NewHealthHandler(checks),
		Admin:           httpHandlers.NewAdminHandler(orderService),
		WS:              httpHandlers.NewWSHandler(hub, userService, cfg.AllowedOrigins),
	}

	if cfg.WebhookURL != "" {
		opts.Webhook = httpHandlers.NewWebhookHandler(handler, cfg.WebhookSecret)
		wh, err := tgbotapi.NewWebhook(cfg.WebhookEndpoint())
		if err != nil {
			mainLog.WithError(err).Fatal("invalid webhook url")
		}
		if _, err := api.Request(wh); err != nil {
			mainLog.WithError(err).Fatal("set webhook failed")
		}
		// Секрет входит в адрес, в лог пишем только базовый URL.
		mainLog.WithField("url", cfg.WebhookURL).Info("webhook registered")
	} else {
		// Long polling не работает при установленном webhook.
		if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			mainLog.WithError(err).Warn("delete webhook failed")
		}
		goroutine.SafeGo(func() { handler.Poll(ctx, api) })
	}

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           httpRouter.SetupRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.SafeGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			mainLog.WithError(err).Error("http server shutdown failed")
		}
	})

	mainLog.WithField("port", cfg.HTTPPort).Info("http server started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		mainLog.WithError(err).Fatal("http server failed")
	}
	mainLog.Info("bot stopped")
}

// sweepAttachments периодически удаляет файлы черновиков, истёкших без подтверждения.
func sweepAttachments(ctx context.Context, d *dialogue.Dialogue, orders *service.OrderService, ttl time.Duration, log *logrus.Entry) {
	ticker := time.NewTicker(attachmentSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.SweepAttachments(ctx, time.Now().Add(-2*ttl), orders.AttachmentInUse); err != nil {
				log.WithError(err).Warn("attachment sweep failed")
			}
		}
	}
}

// newSessionStore выбирает Redis, если он настроен, иначе память процесса.
func newSessionStore(ctx context.Context, cfg *config.Config, checks map[string]httpHandlers.Pinger, log *logrus.Entry) (dialogue.Store, func()) {
	if cfg.RedisURL == "" {
		mem := dialogue.NewMemoryStore(cfg.SessionTTL)
		goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := mem.Sweep(); n > 0 {
						log.WithField("expired", n).Debug("sessions swept")
					}
				}
			}
		})
		log.Info("dialogue sessions kept in memory")
		return mem, func() {}
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("invalid REDIS_URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("redis connection failed")
	}
	checks["redis"] = httpHandlers.PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})

	log.Info("dialogue sessions kept in redis")
	return dialogue.NewRedisStore(client, cfg.SessionTTL), func() {
		if err := client.Close(); err != nil {
			log.WithError(err).Error("redis close failed")
		}
	}
}

// safeClose закрывает соединение с базой.
func safeClose(conn *sqlx.DB, log *logrus.Entry) {
	if err := conn.Close(); err != nil {
		log.WithError(err).Error("database close failed")
	}
}
