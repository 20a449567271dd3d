package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/skillforge/server/internal/auth"
	"github.com/skillforge/server/internal/config"
	"github.com/skillforge/server/internal/db"
	httphandler "github.com/skillforge/server/internal/http"
	"github.com/skillforge/server/internal/http/handlers"
	"github.com/skillforge/server/internal/ratelimit"
	"github.com/skillforge/server/internal/repo"

	_ "github.com/lib/pq"
)

const reapInterval = 10 * time.Minute

func main() {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories
	userRepo := repo.NewUserRepo(database)
	sessionRepo := repo.NewSessionRepo(database)

	// Auth core
	hasher := auth.NewPasswordHasher(cfg.HashTimeCost)
	codec := auth.NewTokenCodec(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService := auth.NewService(userRepo, sessionRepo, hasher, codec, cfg.RotateRefresh)

	// Rate limiting: Redis-backed when REDIS_URL is set so replicas share one
	// admission decision, process-local otherwise.
	limiterStore, err := newLimiterStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize rate limiter store: %v", err)
	}
	authLimiter := ratelimit.NewLimiter(limiterStore, "auth", ratelimit.Policy{
		MaxRequests: cfg.AuthRateLimit.MaxRequests,
		Window:      cfg.AuthRateLimit.Window,
	})
	generalLimiter := ratelimit.NewLimiter(limiterStore, "general", ratelimit.Policy{
		MaxRequests: cfg.GeneralRateLimit.MaxRequests,
		Window:      cfg.GeneralRateLimit.Window,
	})

	// Periodic reaper for expired session rows
	go runSessionReaper(ctx, authService)

	authHandler := handlers.NewAuthHandler(authService)
	router := httphandler.NewRouter(authHandler, authService, authLimiter, generalLimiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// newLimiterStore picks the rate-limit backend. The in-memory store gets a
// background sweeper sized to the larger configured window.
func newLimiterStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, error) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		log.Println("Rate limiting backed by Redis")
		return ratelimit.NewRedisStore(client, ""), nil
	}

	store := ratelimit.NewMemoryStore()
	window := cfg.AuthRateLimit.Window
	if cfg.GeneralRateLimit.Window > window {
		window = cfg.GeneralRateLimit.Window
	}
	store.StartSweeper(ctx, window, window)
	log.Println("Rate limiting backed by process-local memory")
	return store, nil
}

// runSessionReaper deletes expired session rows on a fixed schedule.
func runSessionReaper(ctx context.Context, svc *auth.Service) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reapCtx, reapCancel := context.WithTimeout(ctx, 30*time.Second)
			n, err := svc.ReapExpiredSessions(reapCtx)
			reapCancel()
			if err != nil {
				log.Printf("Session reaper error: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Session reaper removed %d expired sessions", n)
			}
		}
	}
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the module root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
