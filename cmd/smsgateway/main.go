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

// gateway is an SMS gateway that can tell whether its sender identity is set.
type gateway interface {
	provider.SMSGateway
	Configured() bool
}

func main() {
	cfg, err := config.LoadSMS()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(observability.LoggerOptions{
		Level:   cfg.LogLevel,
		Service: "edunotify-sms",
		Format:  cfg.LogFormat,
	})
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	// Migrations are owned by the api process.
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolOptions{})
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL, "edunotify-sms")
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	gw, err := newGateway(cfg)
	if err != nil {
		logger.Fatal("sms gateway init failed", zap.Error(err))
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.GatewayRateSec, time.Second)
	if err != nil {
		logger.Fatal("gateway rate limiter init failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	renderer := render.NewRenderer(render.WithInstitution(cfg.Institution, cfg.InstitutionShort))

	smsService, err := service.NewSMSService(
		repository.NewGormStudentRepo(db, logger),
		repository.NewGormResultRepo(db, logger),
		gw,
		limiter,
		renderer,
		service.SMSServiceOptions{
			SendDelay: cfg.SendDelay,
			RetryBase: cfg.RetryBase,
			MaxBatch:  cfg.MaxBatchStudent,
		},
		logger,
	)
	if err != nil {
		logger.Fatal("sms service init failed", zap.Error(err))
	}
	smsService.SetMetrics(metrics)

	app := transport.NewApp(transport.AppOptions{
		Name:         "edunotify-sms",
		AllowOrigins: cfg.FrontendURL,
		Logger:       logger,
		Metrics:      metrics,
	})
	err = handler.RegisterSMSRoutes(app, smsService, handler.SMSRouteOptions{
		APILimit: transport.RateLimit{
			Max:     cfg.APIRateLimit,
			Window:  cfg.APIRateWindow,
			Message: "Too many requests from this IP, please try again later.",
		},
		SMSLimit: transport.RateLimit{
			Max:     cfg.SMSRateLimit,
			Window:  cfg.SMSRateWindow,
			Message: "SMS rate limit exceeded, please try again later.",
		},
		Checks: []handler.Check{
			handler.StaticCheck("gateway", gw != nil),
			handler.DatabaseCheck(sqlDB),
			handler.RedisCheck(rdb),
			handler.StaticCheck("sender", gw.Configured()),
		},
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("sms routes init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("edunotify sms service started",
			zap.String("addr", addr),
			zap.String("gateway", gw.Name()),
		)
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

	if err := g.Wait(); err != nil {
		logger.Error("edunotify sms service stopped with error", zap.Error(err))
		return
	}
	logger.Info("edunotify sms service stopped")
}

func newGateway(cfg *config.SMSConfig) (gateway, error) {
	switch cfg.Gateway {
	case config.SMSGatewaySendchamp:
		return provider.NewSendchampGateway(provider.SendchampConfig{
			Endpoint:   cfg.SendchampEndpoint,
			APIKey:     cfg.SendchampAPIKey,
			SenderName: cfg.SendchampSender,
		}, nil)
	default:
		return provider.NewTwilioGateway(provider.TwilioConfig{
			BaseURL:        cfg.TwilioBaseURL,
			AccountSID:     cfg.TwilioAccountSID,
			AuthToken:      cfg.TwilioAuthToken,
			FromNumber:     cfg.TwilioPhoneNumber,
			StatusCallback: cfg.TwilioCallbackURL,
		}, nil)
	}
}
