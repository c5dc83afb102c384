package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	appconfig "waitlist/cmd/internal/config"
	"waitlist/cmd/internal/domain/policy"
	"waitlist/cmd/internal/domain/sqlite"
	"waitlist/cmd/internal/domain/sqlite/repository"
	"waitlist/cmd/internal/http/handler"
	authmw "waitlist/cmd/internal/http/middleware"
	"waitlist/cmd/internal/infrastructure/sse"
	"waitlist/cmd/internal/routes"
	"waitlist/cmd/internal/service"
	"waitlist/cmd/internal/service/jobs"
	"waitlist/cmd/internal/utils"
	"waitlist/cmd/internal/utils/uid"
	"waitlist/cmd/internal/utils/validators"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"
)

const (
	envVarsPrefix   = "/waitlist/prod/"
	shutdownTimeout = 10 * time.Second
)

func main() {
	validate := validator.New()
	validators.Register(validate)

	// Loads env vars depending on environment
	if os.Getenv("GO_ENV") == "production" {
		loadProdEnv() // AWS SSM Parameter Store
	} else {
		// Loads from .env, if there is one
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("unable to load .env file, %v", err)
		}
	}

	cfg, err := appconfig.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	log.SetLevel(cfg.LogLevel)
	uid.Init(cfg.MachineID)

	// Init SQLite
	db, err := sqlite.Init(cfg.DBPath)
	if err != nil {
		log.Fatalf("unable to open database %s: %v", cfg.DBPath, err)
	}

	tokens, err := utils.NewTokenManager(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("unable to create session manager: %v", err)
	}

	// Getting repos
	userRepo := repository.NewUserRepository(db)
	referralRepo := repository.NewReferralRepository(db)

	// Live updates
	registry := sse.NewRegistry(sse.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		InactivityTimeout: cfg.InactivityTimeout,
	})

	// Getting services
	notifier := service.NewNotificationService(registry)
	referralService := service.NewReferralService(referralRepo, notifier, policy.NewReferralPolicy(cfg.ClaimWindow), validate)
	waitlistService := service.NewWaitlistService(userRepo, referralRepo, referralService, tokens, validate, cfg.PublicURL)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowCredentials: !slices.Contains(cfg.AllowedOrigins, "*"),
	}))
	e.Use(middleware.BodyLimit("16K"))
	if cfg.HTTPAccessLog {
		e.Use(middleware.Logger())
	}

	routes.Register(e, &routes.Handlers{
		Waitlist: handler.NewWaitlistDefault(waitlistService, strings.HasPrefix(cfg.PublicURL, "https://")),
		Referral: handler.NewReferralRoute(referralService),
		Events:   handler.NewEventRoute(registry, cfg.WriteTimeout),
	}, &routes.Middlewares{
		Auth:        authmw.NewAuthMiddleware(&authmw.AuthMiddlewareConfig{UserRepo: userRepo, Tokens: tokens}),
		JoinLimiter: authmw.NewJoinRateLimiter(cfg.JoinRateLimit, cfg.JoinRateBurst),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Infof("waitlist api listening on %s", cfg.Addr())
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		jobs.NewRegistryReporter(registry, cfg.ReportInterval).Start(ctx)
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down...")

		// Streams never finish on their own, close them first so Shutdown
		// does not wait on them.
		registry.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
	log.Info("bye")
}

func loadProdEnv() {
	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("us-east-2"))
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	client := ssm.NewFromConfig(cfg)
	paginator := ssm.NewGetParametersByPathPaginator(client, &ssm.GetParametersByPathInput{
		Path:           aws.String(envVarsPrefix),
		WithDecryption: aws.Bool(true),
		Recursive:      aws.Bool(true),
	})

	prefixLength := len(envVarsPrefix)
	loaded := 0
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			log.Fatalf("unable to load prod environment, %v", err)
		}

		// Export vars
		for _, param := range out.Parameters {
			key := (*param.Name)[prefixLength:]
			if err := os.Setenv(key, aws.ToString(param.Value)); err != nil {
				log.Fatalf("unable to set environment variable, %v", err)
			}
			loaded++
		}
	}
	log.Debugf("loaded %d prod environment variables", loaded)
}
