package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"faniq-realtime-service/internal/app"
	"faniq-realtime-service/internal/config"
	"faniq-realtime-service/internal/infra/memory"
	"faniq-realtime-service/internal/infra/postgres"
	infraredis "faniq-realtime-service/internal/infra/redis"
	transport "faniq-realtime-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the realtime server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	// Postgres and Redis are both optional: without them the server runs
	// fully in-process, which is what the tests and local demos use.
	var store app.Store
	var questionLoader memory.QuestionLoader
	if pool != nil {
		pgStore := postgres.NewStore(pool)
		store = pgStore
		questionLoader = pgStore
	} else {
		memStore := memory.NewStore()
		store = memStore
		questionLoader = memStore
	}

	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var questions app.QuestionSource
	if redisClient != nil {
		questions = infraredis.NewQuestionCache(redisClient, questionLoader, cacheTTL)
	} else {
		questions = memory.NewQuestionCache(questionLoader, cacheTTL)
	}

	var presence app.PresenceRegistry
	if redisClient != nil {
		presence = infraredis.NewPresenceRegistry(redisClient)
	} else {
		presence = memory.NewPresenceRegistry()
	}

	hub := app.NewHub()
	feed := app.NewFeedService(store, presence, hub)
	quiz := app.NewQuizService(store, store, questions, presence, hub)
	wsHandler := transport.NewWSHandler(feed, quiz, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting realtime service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)

	// Drain the store pool only after in-flight handlers have finished.
	if pool != nil {
		pool.Close()
	}
	return err
}
