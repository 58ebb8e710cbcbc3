package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-users/internal/config"
	httptransport "github.com/smallbiznis/smallbiznis-users/internal/http"
	"github.com/smallbiznis/smallbiznis-users/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/smallbiznis-users/internal/http/middleware"
	"github.com/smallbiznis/smallbiznis-users/internal/jwt"
	"github.com/smallbiznis/smallbiznis-users/internal/mail"
	apimiddleware "github.com/smallbiznis/smallbiznis-users/internal/middleware"
	"github.com/smallbiznis/smallbiznis-users/internal/notify"
	"github.com/smallbiznis/smallbiznis-users/internal/password"
	"github.com/smallbiznis/smallbiznis-users/internal/repository"
	"github.com/smallbiznis/smallbiznis-users/internal/seed"
	"github.com/smallbiznis/smallbiznis-users/internal/server"
	"github.com/smallbiznis/smallbiznis-users/internal/service"
	"github.com/smallbiznis/smallbiznis-users/internal/storage"
	"github.com/smallbiznis/smallbiznis-users/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newPGXPool,
			newAccountRepository,
			newMessageRepository,
			newRateLimiter,
			newHasher,
			newTokenGenerator,
			newPublisher,
			newMailer,
			newUploader,
			service.NewAccountService,
			newAccountHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, runSeeder, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newAccountRepository(pool *pgxpool.Pool) repository.AccountRepository {
	return repository.NewPostgresAccountRepo(pool)
}

func newMessageRepository(pool *pgxpool.Pool) repository.MessageRepository {
	return repository.NewPostgresMessageRepo(pool)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newHasher(cfg config.Config) *password.Hasher {
	return password.NewHasher(cfg.BcryptCost)
}

func newTokenGenerator(cfg config.Config) *jwt.Generator {
	return jwt.NewGenerator([]byte(cfg.JWTSecret), cfg.TokenIssuer, cfg.TokenTTL)
}

func newPublisher(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (service.EventPublisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka disabled, notification events go to the log")
		return notify.NewLogPublisher(logger), nil
	}

	publisher, err := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.NotificationTopic)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})

	return publisher, nil
}

func newMailer(cfg config.Config, logger *zap.Logger) service.Mailer {
	if cfg.SMTPHost == "" {
		return mail.NewLogSender(logger)
	}
	return mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailSender)
}

func newUploader(cfg config.Config) (handler.PictureUploader, error) {
	uploader, err := storage.NewS3Uploader(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}
	return uploader, nil
}

func newAccountHandler(accounts *service.AccountService, uploader handler.PictureUploader) *handler.AccountHandler {
	return handler.NewAccountHandler(accounts, uploader)
}

func newAuthMiddleware(tokens *jwt.Generator) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Tokens: tokens}
}

func runSeeder(accounts repository.AccountRepository, hasher *password.Hasher, cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return seed.New(accounts, hasher, cfg, logger).Run(ctx)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
