package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foundercrm/commitment-engine/internal/aggregator"
	"github.com/foundercrm/commitment-engine/internal/api"
	"github.com/foundercrm/commitment-engine/internal/auth"
	"github.com/foundercrm/commitment-engine/internal/commitment"
	"github.com/foundercrm/commitment-engine/internal/config"
	"github.com/foundercrm/commitment-engine/internal/connection"
	"github.com/foundercrm/commitment-engine/internal/credits"
	"github.com/foundercrm/commitment-engine/internal/extraction"
	"github.com/foundercrm/commitment-engine/internal/notify"
	"github.com/foundercrm/commitment-engine/internal/pipeline"
	"github.com/foundercrm/commitment-engine/internal/pkg/distlock"
	"github.com/foundercrm/commitment-engine/internal/pkg/logger"
	"github.com/foundercrm/commitment-engine/internal/storage"
	"github.com/foundercrm/commitment-engine/internal/warehouse"

	_ "github.com/lib/pq" // PostgreSQL driver (advisory-lock fallback)
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  FounderCRM Commitment Engine (cmd/server/main.go)         ║")
	log.Println("║  Gmail ingest → extraction → commitment lifecycle API      ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	log.Printf("DynamoDB storage initialized: table=%s", cfg.Storage.DynamoDBTable)

	// Redis backs deletion shadows and the provision lock. When it is
	// unreachable, shadows are skipped and locks fall back to Postgres
	// advisory locks over DATABASE_URL.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v — falling back to PG advisory locks", cfg.Redis.Addr, err)
			redisClient.Close()
			redisClient = nil
		} else {
			log.Printf("Redis connected: %s", cfg.Redis.Addr)
		}
		pingCancel()
	}

	var pgDB *sql.DB
	if redisClient == nil && cfg.Postgres.URL != "" {
		pgDB, err = sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			log.Printf("Warning: PG advisory-lock fallback unavailable: %v", err)
			pgDB = nil
		} else {
			pgDB.SetMaxOpenConns(5)
			log.Println("PG advisory locks enabled (DATABASE_URL)")
		}
	}

	shadows := storage.NewShadowStore(redisClient)

	commitments := commitment.NewService(store.Commitments(), shadows, commitment.Options{
		UpcomingDays: cfg.Query.UpcomingDays,
		DefaultLimit: cfg.Query.DefaultLimit,
	})

	notifier, err := notify.New(ctx, cfg.Notify)
	if err != nil {
		log.Fatalf("Failed to initialize notifier: %v", err)
	}

	exporter, err := warehouse.New(cfg.Warehouse)
	if err != nil {
		log.Fatalf("Failed to initialize warehouse exporter: %v", err)
	}
	var sink credits.EventSink
	if exporter != nil {
		exporter.Start(ctx)
		sink = exporter
		log.Printf("Warehouse export enabled: table=%s flush=%s", cfg.Warehouse.Table, cfg.Warehouse.FlushInterval())
	}

	// The pause hook closes over connSvc, which is wired further down;
	// the meter never fires it before the server starts taking traffic.
	var connSvc *connection.Service
	pauseHook := func(ctx context.Context, userID string) {
		if connSvc != nil {
			if err := connSvc.Pause(ctx, userID); err != nil {
				logger.Error("pause hook: disabling ingest failed", "user_id", userID, "error", err)
			}
		}
		state, err := store.Connections().Get(ctx, userID)
		if err != nil {
			logger.Warn("pause hook: no connection state for notification", "user_id", userID, "error", err)
			return
		}
		if err := notifier.CreditsExhausted(ctx, state.FounderEmail, state.FounderName); err != nil {
			logger.Error("pause hook: exhaustion notice failed", "user_id", userID, "error", err)
		}
	}

	meter := credits.NewMeter(store.Credits(), credits.Config{
		InputTokensPerCredit:  cfg.Credits.InputTokensPerCredit,
		OutputTokensPerCredit: cfg.Credits.OutputTokensPerCredit,
		DefaultFreeTrial:      cfg.Credits.DefaultFreeTrial,
	}, storage.ErrNotFound, pauseHook, sink)

	aggClient := aggregator.NewClient(cfg.Aggregator, nil)

	model, err := extraction.NewBedrockClient(ctx, cfg.Extraction)
	if err != nil {
		log.Fatalf("Failed to initialize Bedrock client: %v", err)
	}
	prompts, err := extraction.NewPromptBuilder()
	if err != nil {
		log.Fatalf("Failed to build extraction prompts: %v", err)
	}
	engine := extraction.NewEngine(model, meter, prompts, cfg.Extraction.Retries)
	log.Printf("Extraction engine ready: model=%s", cfg.Extraction.ModelID)

	pipe := pipeline.New(aggClient, engine, commitments, store.Commitments(), meter, store, store.Connections(), cfg.Sync)

	lockFactory := func(key string, ttl time.Duration) distlock.DistLock {
		return distlock.NewLock(redisClient, pgDB, key, ttl)
	}
	connSvc = connection.NewService(
		store.Connections(), aggClient, pipe, lockFactory, storage.ErrNotFound,
		cfg.Aggregator.InboxTriggerSlug, cfg.Aggregator.SentTriggerSlug,
	)

	queue := pipeline.NewQueue(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, pipe.HandleJob)
	queue.Start(ctx)
	log.Printf("Ingest queue started: workers=%d buffer=%d", cfg.Pipeline.Workers, cfg.Pipeline.QueueSize)

	baseURL := fmt.Sprintf("http://%s:%d", host, port)
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" {
		baseURL = "https://app.foundercrm.io"
	}
	if envURL := os.Getenv("AUTH_BASE_URL"); envURL != "" {
		baseURL = envURL
	}
	authManager := auth.NewManager(&cfg.Auth, baseURL)

	var oauthManager *auth.Manager
	if cfg.Auth.Enabled && cfg.Auth.GoogleClientID != "" {
		log.Println("Validating Google OAuth credentials...")
		if err := authManager.ValidateCredentials(ctx); err != nil {
			log.Fatalf("OAuth pre-flight FAILED: %v", err)
		}
		log.Printf("Google OAuth enabled (callback: %s/auth/callback)", baseURL)
		authManager.CleanupExpiredSessions()
		oauthManager = authManager
	} else {
		log.Println("Google OAuth disabled — internal bearer and DEV_MODE only")
	}

	handlers := api.NewHandlers(
		connSvc, commitments, meter, store.Connections(), queue, authManager,
		func() bool {
			probeCtx, probeCancel := context.WithTimeout(context.Background(), time.Second)
			defer probeCancel()
			return shadows.Available(probeCtx)
		},
		cfg.Aggregator.WebhookSecret,
		storage.ErrNotFound,
	)
	server := api.NewServer(cfg.Server, handlers, oauthManager)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized — server is ready")

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Drain workers and flush the warehouse buffer before exit.
	queue.Stop()
	if exporter != nil {
		exporter.Stop()
	}
	cancel()
	if pgDB != nil {
		pgDB.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}

	log.Println("Server stopped")
}
