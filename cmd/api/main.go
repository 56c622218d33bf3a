package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edunotify/edunotify/internal/config"
	"github.com/edunotify/edunotify/internal/handler"
	"github.com/edunotify/edunotify/internal/infra/postgresql"
	"github.com/edunotify/edunotify/internal/infra/postgresql/migrations"
	infraredis "github.com/edunotify/edunotify/internal/infra/redis"
	"github.com/edunotify/edunotify/internal/observability"
	"github.com/edunotify/edunotify/internal/provider"
	"github.com/edunotify/edunotify/internal/render"
	"github.com/edunotify/edunotify/internal/repository"
	"github.com/edunotify/edunotify/internal/service"
	"github.com/edunotify/edunotify/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(observability.LoggerOptions{
		Level:   cfg.LogLevel,
		Service: "edunotify-api",
		Format:  cfg.LogFormat,
	})
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL, "edunotify-api")
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	locker, err := infraredis.NewRedisLocker(rdb)
	if err != nil {
		logger.Fatal("publish lock init failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	renderer := render.NewRenderer(
		render.WithInstitution(cfg.Institution, cfg.InstitutionShort),
		render.WithFromName(cfg.FromName),
	)

	emailSender, err := newEmailSender(cfg)
	if err != nil {
		logger.Fatal("email provider init failed", zap.Error(err))
	}
	smsClient, err := provider.NewSMSServiceClient(cfg.SMSServiceURL, nil)
	if err != nil {
		logger.Fatal("sms service client init failed", zap.Error(err))
	}

	emailChannel, err := service.NewEmailChannel(emailSender, cfg.EmailRetryBase, cfg.EmailSendDelay, logger)
	if err != nil {
		logger.Fatal("email channel init failed", zap.Error(err))
	}
	dispatcher, err := service.NewDispatcher(emailChannel, smsClient, cfg.EmailConcurrency, logger)
	if err != nil {
		logger.Fatal("dispatcher init failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	studentRepo := repository.NewGormStudentRepo(db, logger)
	courseRepo := repository.NewGormCourseRepo(db, logger)
	resultRepo := repository.NewGormResultRepo(db, logger)
	notificationRepo := repository.NewGormNotificationRepo(db, logger)

	resultService, err := service.NewResultService(studentRepo, courseRepo, resultRepo, logger)
	if err != nil {
		logger.Fatal("result service init failed", zap.Error(err))
	}
	studentService, err := service.NewStudentService(studentRepo, logger)
	if err != nil {
		logger.Fatal("student service init failed", zap.Error(err))
	}
	notificationService, err := service.NewNotificationService(studentRepo, notificationRepo, dispatcher, renderer, logger)
	if err != nil {
		logger.Fatal("notification service init failed", zap.Error(err))
	}
	publisher, err := service.NewResultPublisher(resultRepo, notificationRepo, locker, dispatcher, renderer,
		service.PublisherOptions{
			RenotifyPublished: cfg.RenotifyPublished,
			LockTTL:           cfg.PublishLockTTL,
		}, logger)
	if err != nil {
		logger.Fatal("result publisher init failed", zap.Error(err))
	}
	publisher.SetMetrics(metrics)

	app := transport.NewApp(transport.AppOptions{
		Name:         "edunotify-api",
		AllowOrigins: cfg.FrontendURL,
		Logger:       logger,
		Metrics:      metrics,
	})
	handler.RegisterHealthRoutes(app,
		handler.DatabaseCheck(sqlDB),
		handler.RedisCheck(rdb),
		handler.Check{Name: "sms_service", Probe: smsClient.Health},
	)

	app.Use("/v1", transport.NewRateLimiter(transport.RateLimit{
		Max:     cfg.APIRateLimit,
		Window:  cfg.APIRateWindow,
		Message: "Too many requests from this IP, please try again later.",
	}))
	if err := handler.RegisterResultRoutes(app, resultService, publisher); err != nil {
		logger.Fatal("result routes init failed", zap.Error(err))
	}
	if err := handler.RegisterNotificationRoutes(app, notificationService); err != nil {
		logger.Fatal("notification routes init failed", zap.Error(err))
	}
	if err := handler.RegisterStudentRoutes(app, studentService); err != nil {
		logger.Fatal("student routes init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("edunotify api started", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if cfg.AutoPublishCron != "" {
		scheduler, err := service.NewScheduler(publisher, cfg.AutoPublishCron, logger)
		if err != nil {
			logger.Fatal("auto-publish scheduler init failed", zap.Error(err))
		}
		g.Go(func() error {
			return scheduler.Start(groupCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("edunotify api stopped with error", zap.Error(err))
		return
	}
	logger.Info("edunotify api stopped")
}

func newEmailSender(cfg *config.Config) (provider.EmailSender, error) {
	switch cfg.EmailProvider {
	case config.EmailProviderSendGrid:
		return provider.NewSendGridSender(provider.SendGridConfig{
			Host:      cfg.SendGridHost,
			APIKey:    cfg.SendGridAPIKey,
			FromName:  cfg.FromName,
			FromEmail: cfg.FromEmail,
		})
	default:
		return provider.NewEmailJSSender(provider.EmailJSConfig{
			Endpoint:    cfg.EmailJSEndpoint,
			ServiceID:   cfg.EmailJSServiceID,
			TemplateID:  cfg.EmailJSTemplateID,
			PublicKey:   cfg.EmailJSPublicKey,
			PrivateKey:  cfg.EmailJSPrivateKey,
			Institution: cfg.Institution,
			FromName:    cfg.FromName,
			FromEmail:   cfg.FromEmail,
		}, nil)
	}
}
