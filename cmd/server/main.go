package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/app"
	"github.com/Freeeeeet/tutorlink/internal/config"
	internalhttp "github.com/Freeeeeet/tutorlink/internal/controller/http"
	"github.com/Freeeeeet/tutorlink/internal/controller/telegram"
	"github.com/Freeeeeet/tutorlink/internal/events"
	"github.com/Freeeeeet/tutorlink/internal/identity"
	"github.com/Freeeeeet/tutorlink/internal/repository"
	"github.com/Freeeeeet/tutorlink/internal/service"
	"github.com/Freeeeeet/tutorlink/internal/storage"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting TutorLink",
		zap.String("environment", cfg.Environment),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	// База данных и миграции
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath, logger)
	if err != nil {
		return err
	}
	if err := migrator.Run(ctx); err != nil {
		migrator.Close()
		return err
	}
	migrator.Close()

	// Redis: шина событий и отозванные токены
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}
	broker := events.NewRedisBroker(rdb, logger)

	blobs, err := storage.NewMinioStore(ctx, storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return err
	}

	var mailer identity.Mailer = identity.NewLogMailer(logger)
	if cfg.SMTPHost != "" {
		mailer = identity.NewSMTPMailer(identity.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	}

	users := repository.NewUserRepository(pool)
	sessions := repository.NewSessionRepository(pool)
	chats := repository.NewChatRepository(pool)
	helpRequests := repository.NewHelpRequestRepository(pool)

	// Telegram опционален: без токена уведомления отключены
	var (
		notifier service.Notifier = service.NopNotifier{}
		tgBot    *bot.Bot
	)
	if cfg.TelegramToken != "" {
		tgBot, err = bot.New(cfg.TelegramToken)
		if err != nil {
			return err
		}
		notifier = telegram.NewNotifier(tgBot, users, logger)
	} else {
		logger.Warn("TELEGRAM_TOKEN is not set, notifications are disabled")
	}

	tokens := identity.NewRedisTokenStore(rdb)
	identityService := identity.NewService(
		users,
		tokens,
		identity.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL),
		mailer,
		broker,
		cfg.VerifyURL,
		logger,
	)
	sessionService := service.NewSessionService(sessions, users, broker, notifier, logger)
	linkService := service.NewTelegramLinkService(users, tokens, broker, logger)

	server := internalhttp.NewServer(internalhttp.Services{
		Identity: identityService,
		Tutors:   service.NewTutorService(users, logger),
		Sessions: sessionService,
		Ratings:  service.NewRatingService(users, sessions, broker, logger),
		Chats:    service.NewChatService(chats, users, broker, notifier, logger),
		Profiles: service.NewProfileService(users, blobs, broker, logger),
		Help:     service.NewHelpService(helpRequests, users, logger),
		Links:    linkService,
	}, logger)

	scheduler := app.NewScheduler(sessionService, cfg.ExpirySweepInterval, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if tgBot != nil {
		controller := telegram.NewBotController(tgBot, users, sessionService, linkService, logger)
		if err := controller.RegisterHandlers(ctx); err != nil {
			logger.Warn("Bot commands were not registered", zap.Error(err))
		}
		go controller.Start(ctx)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		// Открытые SSE-потоки завершаются вместе с ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("✅ HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}

	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	return nil
}
