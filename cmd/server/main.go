package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/chatmux/chatmux/internal/config"
	"github.com/chatmux/chatmux/internal/handlers"
	"github.com/chatmux/chatmux/internal/i18n"
	"github.com/chatmux/chatmux/internal/middleware"
	"github.com/chatmux/chatmux/internal/services/ai"
	"github.com/chatmux/chatmux/internal/services/auth"
	"github.com/chatmux/chatmux/internal/services/cache"
	"github.com/chatmux/chatmux/internal/services/chat"
	"github.com/chatmux/chatmux/internal/services/mode"
	"github.com/chatmux/chatmux/internal/services/storage"
	"github.com/chatmux/chatmux/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Server stopped with error")
	}
	log.Info("Server stopped")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	log.WithFields(logrus.Fields{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"storage": cfg.Storage.Type,
	}).Info("Starting chat backend...")

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		return fmt.Errorf("initialize i18n: %w", err)
	}

	storageManager, err := storage.NewManager(&cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer storageManager.Close()

	authService, err := auth.NewService(&cfg.Auth)
	if err != nil {
		return fmt.Errorf("initialize auth: %w", err)
	}
	if !authService.Enabled() {
		log.Warn("Auth secret not configured, all requests are anonymous")
	}

	metrics := middleware.NewMetrics()

	provider := ai.NewOpenAIProvider(cfg.Provider, log, ai.WithObserver(metrics.RecordProviderRequest))

	classifier := mode.NewClassifier(cfg.Cache.ModeDetectionTTL, localizer, log)
	classifier.OnLookup(func(hit bool) {
		if hit {
			metrics.RecordCacheHit(classifier.Cache().Name())
		} else {
			metrics.RecordCacheMiss(classifier.Cache().Name())
		}
	})

	orchestrator := chat.NewOrchestrator(chat.Deps{
		Provider:   provider,
		Store:      storageManager,
		Classifier: classifier,
		Translator: localizer,
		Metrics:    metrics,
		Logger:     log,
	}, chat.OptionsFromConfig(cfg))

	rateLimiter := middleware.NewRateLimiter(cfg, log)

	janitor := cache.NewJanitor(cfg.Janitor.Interval, cfg.Janitor.Retry, log,
		cache.CacheTarget(orchestrator.ResponseCache()),
		cache.CacheTarget(classifier.Cache()),
		cache.Target{
			Name: "rate_limit_windows",
			Sweep: func() (int, error) {
				return rateLimiter.Sweep(), nil
			},
		},
	)
	janitor.OnSweep(metrics.RecordEvictions)

	router := handlers.NewRouter(
		handlers.NewHandler(orchestrator, storageManager, localizer, log),
		handlers.RouterDeps{
			Limiter:        rateLimiter,
			ExemptPaths:    cfg.RateLimit.ExemptPaths,
			Resolver:       authService,
			Metrics:        metrics,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		},
	)

	apiServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.Monitoring.Metrics.Enabled {
		metricsServer = middleware.NewMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return janitor.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("API server shutdown failed")
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Error("Metrics server shutdown failed")
			}
		}
		if err := orchestrator.Wait(shutdownCtx); err != nil {
			log.WithError(err).Warn("Pending session writes did not finish")
		}
		return nil
	})

	return g.Wait()
}
