package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atendai/chatd/internal/chat"
	"github.com/atendai/chatd/internal/observability"
	"github.com/atendai/chatd/internal/provider"
	"github.com/atendai/chatd/internal/server"
	"github.com/atendai/chatd/pkg/config"
	obs "github.com/atendai/chatd/pkg/observability"
	"github.com/atendai/chatd/pkg/security"
	"github.com/atendai/chatd/pkg/session"
)

var (
	// Version information (set via ldflags)
	Version = "dev"

	configFile = flag.String("config", getEnv("CONFIG_FILE", ""), "Configuration file (YAML)")
	httpPort   = flag.Int("http-port", 0, "HTTP server port (overrides config)")
)

func main() {
	flag.Parse()

	log.Printf("Starting chatd v%s", Version)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *httpPort != 0 {
		cfg.Port = *httpPort
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	obs.InitMetrics()
	if err := observability.InitFromEnv(); err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	healthChecker := obs.NewHealthChecker()
	healthChecker.RegisterCheck(obs.PingCheck())

	store, sweeper, err := buildStore(cfg, healthChecker)
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}
	defer func() { _ = store.Close() }()

	llm, err := provider.NewOpenAIProvider(cfg.OpenAIKey)
	if err != nil {
		log.Fatalf("Failed to initialize provider: %v", err)
	}

	service := chat.NewService(llm, store, chat.ServiceConfig{
		SystemPrompt:  cfg.SystemPrompt,
		Model:         cfg.Model,
		Temperature:   cfg.Temperature,
		FallbackReply: cfg.FallbackReply,
		HistoryLimit:  cfg.HistoryLimit,
	})

	opts := server.Options{
		Port:        cfg.Port,
		CORSOrigins: cfg.CORSOrigins,
		Health:      healthChecker,
	}
	if cfg.RateLimit.Enabled {
		opts.RateLimiter = security.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	srv := server.New(service, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if sweeper != nil {
		sweeper.Start()
		defer sweeper.Stop()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("HTTP server listening on :%d (model %s)", cfg.Port, cfg.Model)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	if ms, ok := store.(*session.MemoryStore); ok {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					obs.SetActiveSessions(ms.Len())
				}
			}
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return observability.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("chatd exited with error: %v", err)
	}
	log.Println("chatd stopped")
}

// buildStore wires the configured session store backend and its health
// check. A sweeper is returned only for the memory backend with sweeping
// enabled; the Redis backend expires sessions through key TTLs.
func buildStore(cfg *config.Config, health *obs.HealthChecker) (session.Store, *session.Sweeper, error) {
	switch cfg.Store.Backend {
	case "redis":
		store, err := session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
			TTL:      cfg.Store.Redis.TTL.Std(),
		})
		if err != nil {
			return nil, nil, err
		}
		health.RegisterCheck(obs.StoreCheck(store.Ping))
		log.Printf("Session store: redis (%s)", cfg.Store.Redis.Addr)
		return store, nil, nil

	default:
		store := session.NewMemoryStore()
		var sweeper *session.Sweeper
		if cfg.Sweep.Enabled {
			var err error
			sweeper, err = session.NewSweeper(store, cfg.Sweep.Schedule, cfg.Sweep.MaxIdle.Std())
			if err != nil {
				return nil, nil, fmt.Errorf("invalid sweep schedule: %w", err)
			}
			log.Printf("Session sweep enabled: %s (max idle %s)", cfg.Sweep.Schedule, cfg.Sweep.MaxIdle.Std())
		}
		log.Println("Session store: memory")
		return store, sweeper, nil
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
