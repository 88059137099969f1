package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ravigill3969/examly/backend/billing"
	"github.com/ravigill3969/examly/backend/config"
	"github.com/ravigill3969/examly/backend/credits"
	"github.com/ravigill3969/examly/backend/database"
	"github.com/ravigill3969/examly/backend/handlers"
	"github.com/ravigill3969/examly/backend/logging"
	middleware "github.com/ravigill3969/examly/backend/middlewares"
	"github.com/ravigill3969/examly/backend/plans"
	"github.com/ravigill3969/examly/backend/routes"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func runServe(ctx context.Context) error {
	logging.Init(logging.Config{Level: "info", Component: "examly"})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "examly",
	})

	db, err := database.Connect(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("error closing database connection")
		}
	}()
	if err := database.Migrate(ctx, db, cfg.DatabaseDriver); err != nil {
		return err
	}

	service := credits.NewService(credits.NewSQLStore(db), billing.NewStripeGateway(cfg.StripeSecretKey), credits.Options{
		CreditsPerPurchase: cfg.CreditsPerPurchase,
		RechargeAmount:     cfg.RechargeAmount,
		Currency:           cfg.Currency,
		PriceID:            cfg.StripePriceID,
		Policy:             credits.Policy{FreeMax: cfg.FreeMax, FreeWindow: cfg.FreeWindow},
	})

	var archive plans.Archive
	if cfg.ArchiveEnabled() {
		s3Archive, err := plans.NewS3Archive(cfg.AWSRegion, cfg.AWSAccessKey, cfg.AWSSecretKey, cfg.AWSBucket)
		if err != nil {
			return err
		}
		archive = s3Archive
		log.Info().Str("bucket", cfg.AWSBucket).Msg("plan results archived to S3")
	}

	auth, err := newAuthenticator(cfg)
	if err != nil {
		return err
	}

	limiter, closeRedis, err := newRateLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRedis()

	router := routes.NewRouter(routes.Deps{
		DB:            db,
		Logger:        logger,
		Auth:          auth,
		Limiter:       limiter,
		AllowedOrigin: cfg.AllowedOrigin,
		Credits:       &handlers.CreditsHandler{Service: service},
		Stripe: &handlers.Stripe{
			Service:       service,
			WebhookSecret: cfg.StripeWebhookSecret,
			SiteURL:       cfg.SiteURL,
		},
		Plans: &handlers.PlanHandler{Store: plans.NewStore(db, archive)},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newAuthenticator(cfg config.Config) (*middleware.Authenticator, error) {
	if cfg.AuthDisabled {
		log.Warn().Msg("AUTH_DISABLED is set, every request runs as the local user")
		return &middleware.Authenticator{DevUser: &middleware.AuthUser{ID: "local-user", Email: "local@examly.test"}}, nil
	}

	var (
		verifier *middleware.Verifier
		err      error
	)
	if cfg.SupabaseJWKSURL != "" {
		verifier, err = middleware.NewJWKSVerifier(cfg.SupabaseJWKSURL, cfg.JWTIssuer, cfg.JWTAudience)
	} else {
		verifier, err = middleware.NewHMACVerifier([]byte(cfg.SupabaseJWTSecret), cfg.JWTIssuer, cfg.JWTAudience)
	}
	if err != nil {
		return nil, fmt.Errorf("configure token verifier: %w", err)
	}
	return &middleware.Authenticator{Verifier: verifier}, nil
}

// newRateLimiter returns a nil limiter when REDIS_URL is unset. An
// unreachable Redis only logs; the limiter fails open per request.
func newRateLimiter(ctx context.Context, cfg config.Config) (*middleware.RateLimiter, func(), error) {
	if cfg.RedisURL == "" {
		return nil, func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis not reachable, rate limiting will fail open")
	}

	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis client")
		}
	}
	return &middleware.RateLimiter{Client: client, Limit: cfg.RateLimitPerMinute, Window: time.Minute}, closeFn, nil
}

func runMigrate(ctx context.Context) error {
	logging.Init(logging.Config{Level: "info", Component: "examly-migrate"})

	driver, dsn, err := config.LoadDatabase()
	if err != nil {
		return err
	}

	db, err := database.Connect(ctx, driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, driver); err != nil {
		return err
	}
	log.Info().Str("driver", driver).Msg("schema applied")
	return nil
}
