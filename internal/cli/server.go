package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/config"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/infra/memory"
	pgloader "trivia-room-service/internal/infra/postgres"
	redismirror "trivia-room-service/internal/infra/redis"
	transport "trivia-room-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia room server",
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

	var loader memory.QuestionLoader = memory.NewStaticLoader(sampleQuestions())
	if pool != nil {
		loader = pgloader.NewQuestionLoader(pool)
	}
	questionTTL := config.Duration(cfg.Game.QuestionTTL, 10*time.Minute)
	catalog := memory.NewCatalog(loader, questionTTL)

	var mirror app.RoomMirror = app.NopMirror{}
	if redisClient != nil {
		mirrorTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)
		mirror = redismirror.NewRoomMirror(redisClient, mirrorTTL)
	}

	engineCfg := app.Config{
		MaxRounds:     cfg.Game.MaxRounds,
		AdvanceDelay:  config.Duration(cfg.Game.AdvanceDelay, 5*time.Second),
		IdleThreshold: config.Duration(cfg.Game.IdleThreshold, 300*time.Second),
	}
	registry := app.NewRegistry(catalog, mirror, engineCfg)

	var verifier transport.IdentityVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = transport.NewJWTVerifier(cfg.Auth.JWTSecret)
	}
	wsHandler := transport.NewWSHandler(registry, verifier)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.Handle("/questions", transport.NewQuestionsHandler(catalog))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				registry.Sweep(sweepCtx)
			case <-sweepCtx.Done():
				return
			}
		}
	}()

	go func() {
		log.Printf("starting trivia room service on :%s", finalPort)
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
	return server.Shutdown(shutdownCtx)
}

// sampleQuestions is a minimal built-in pool for running without Postgres.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: 1, Prompt: "What is the capital of France?", Answer: "Paris", MediaType: domain.MediaText},
		{ID: 2, Prompt: "How many legs does a spider have?", Answer: "8", MediaType: domain.MediaText},
		{ID: 3, Prompt: "Name this landmark", Answer: "Eiffel Tower", MediaRef: "eiffel.jpg", MediaType: domain.MediaImage},
	}
}
