package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identity-hub/internal/adapter/gateway"
	adapterhandler "identity-hub/internal/adapter/handler"
	"identity-hub/internal/domain"
	infracache "identity-hub/internal/infrastructure/cache"
	infratoken "identity-hub/internal/infrastructure/token"
	"identity-hub/internal/usecase"

	"identity-hub/config"
	appmiddleware "identity-hub/middleware"
	"identity-hub/utils/logger"
	"identity-hub/utils/otel"
	"identity-hub/utils/validator"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Handle healthcheck subcommand (for Docker healthcheck in distroless image)
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		if err := runHealthcheck(); err != nil {
			fmt.Fprintf(os.Stderr, "Healthcheck failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	otelCfg := otel.ConfigFromEnv()
	otelShutdown, err := otel.InitProvider(ctx, otelCfg)
	if err != nil {
		slog.Warn("failed to initialize OpenTelemetry, continuing without tracing", "error", err)
		otelCfg.Enabled = false
		otelShutdown = func(context.Context) error { return nil }
	}

	log := logger.Init(otelCfg.Enabled)

	cfg, err := config.Load()
	if err != nil {
		log.ErrorContext(ctx, "failed to load configuration", "error", err)
		os.Exit(1)
	}

	log.InfoContext(ctx, "configuration loaded",
		"upstream", cfg.Auth0BaseURL,
		"port", cfg.Port,
		"allowed_roles", cfg.AllowedRoles,
		"shared_token_store", cfg.RedisURL != "",
		"service_key_check", cfg.ServiceAPIKey != "")

	// Infrastructure
	var (
		tokenStore  domain.TokenStore = infracache.NewMemoryTokenStore()
		storePinger adapterhandler.Pinger
		redisStore  *infracache.RedisTokenStore
	)
	if cfg.RedisURL != "" {
		redisStore, err = infracache.NewRedisTokenStoreWithURL(cfg.RedisURL)
		if err != nil {
			log.ErrorContext(ctx, "invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		if err := redisStore.Ping(ctx); err != nil {
			log.WarnContext(ctx, "token store unreachable, requests will exchange credentials directly", "error", err)
		}
		tokenStore = redisStore
		storePinger = redisStore
	}

	exchanger := gateway.NewClientCredentialsExchanger(gateway.CredentialsConfig{
		BaseURL:      cfg.Auth0BaseURL,
		ClientID:     cfg.Auth0ClientID,
		ClientSecret: cfg.Auth0ClientSecret,
		Audience:     cfg.Auth0Audience,
		Timeout:      cfg.UpstreamTimeout,
	})
	tokenCache := infracache.NewTokenCache(exchanger, tokenStore, log)
	managementGateway := gateway.NewManagementGateway(cfg.Auth0BaseURL, tokenCache, cfg.UpstreamTimeout)
	sessionVerifier := infratoken.NewSessionVerifier(cfg.SessionSecret)

	// Usecases
	authenticateUC := usecase.NewAuthenticate(sessionVerifier, cfg.AllowedRoles, log)
	exportUC := usecase.NewExportUsers(managementGateway, usecase.ExportConfig{
		ConnectionStrategy: cfg.ExportConnectionStrategy,
		ConnectionName:     cfg.ExportConnectionName,
		PollInterval:       cfg.ExportPollInterval,
		MaxAttempts:        cfg.ExportMaxAttempts,
	}, log)
	router := usecase.NewRouter(managementGateway, exportUC, validator.New(), log)

	// Handlers
	managementHandler := adapterhandler.NewManagementHandler(router)
	healthHandler := adapterhandler.NewHealthHandler(storePinger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = adapterhandler.NewHTTPErrorHandler(log)

	e.Use(appmiddleware.CORS(cfg.AllowedOrigin))
	e.Use(appmiddleware.SecurityHeaders(cfg.HSTS))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			c.SetRequest(c.Request().WithContext(logger.WithRequestID(c.Request().Context(), id)))
		},
	}))

	if otelCfg.Enabled {
		e.Use(otelecho.Middleware(otelCfg.ServiceName))
		e.Use(appmiddleware.OTelStatusMiddleware())
	}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/metrics"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			rctx := c.Request().Context()
			l := logger.FromContext(rctx)
			if v.Error == nil {
				l.InfoContext(rctx, "request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				l.ErrorContext(rctx, "request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))

	e.Use(middleware.Recover())

	// Public routes
	e.GET("/health", healthHandler.Handle)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Management surface: service credential, then session and role check
	rateLimiter := appmiddleware.NewRateLimiterPerMinute(cfg.RateLimitPerMinute)
	defer rateLimiter.Stop()

	management := e.Group(adapterhandler.ManagementMount,
		rateLimiter.Middleware(),
		middleware.BodyLimit("1M"),
		appmiddleware.ServiceAuth(cfg.ServiceAPIKey),
		appmiddleware.SessionAuth(authenticateUC),
	)
	management.Any("", managementHandler.Handle)
	management.Any("/*", managementHandler.Handle)

	address := fmt.Sprintf(":%s", cfg.Port)
	log.InfoContext(ctx, "starting identity-hub server", "address", address)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down server...")
		// Grace period for in-flight requests, including export runs.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return otelShutdown(shutdownCtx)
	})

	if redisStore != nil {
		g.Go(func() error {
			<-gCtx.Done()
			return redisStore.Close()
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server exited properly")
}

// runHealthcheck performs a health check against the local server.
func runHealthcheck() error {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8888"
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%s/health", port))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned status: %d", resp.StatusCode)
	}
	return nil
}
