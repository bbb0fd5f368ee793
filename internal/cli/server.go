package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"future-kids-game-service/internal/app"
	"future-kids-game-service/internal/auth"
	"future-kids-game-service/internal/config"
	"future-kids-game-service/internal/domain"
	"future-kids-game-service/internal/infra/memory"
	pgstore "future-kids-game-service/internal/infra/postgres"
	redisinfra "future-kids-game-service/internal/infra/redis"
	"future-kids-game-service/internal/transport/ws"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game session coordinator",
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

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
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
	publicURL := cfg.Server.PublicURL
	if publicURL == "" {
		publicURL = "http://localhost:" + finalPort
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
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	idleTTL := config.TTLDuration(cfg.Session.IdleTTL, 30*time.Minute)
	memStore := memory.NewSessionStore(idleTTL, logger)
	defer memStore.Stop()

	var store app.SessionStore = memStore
	if redisClient != nil {
		redisTTL := config.TTLDuration(cfg.Redis.TTL, idleTTL)
		store = redisinfra.NewSessionStore(memStore, redisClient, redisTTL)
	}

	var results app.ResultsSink
	if pool != nil {
		results = pgstore.NewResultsStore(pool)
	}

	var verifier *auth.Verifier
	if cfg.Auth.Secret != "" {
		verifier = auth.NewVerifier(cfg.Auth.Secret)
	}

	hub := ws.NewHub(logger)
	service := app.NewGameService(store, quizRepo, results, hub, logger)
	handler := ws.NewHandler(service, hub, verifier, logger)

	mux := http.NewServeMux()
	ws.RegisterRoutes(mux, handler, store, publicURL, logger)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket connections outlive any sane value.
	}

	go func() {
		logger.Info("starting game service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server...")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides a minimal quiz set so the service runs without a
// content store; swap in the postgres loader for real deployments.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Quick Math",
			Questions: []domain.Question{
				{
					ID:            "q1",
					Type:          domain.QuestionMultipleChoice,
					Prompt:        "What is 2 + 2?",
					Options:       []string{"3", "4", "5"},
					CorrectAnswer: "1",
					Points:        100,
					TimeLimitSecs: 30,
				},
				{
					ID:            "q2",
					Type:          domain.QuestionTrueFalse,
					Prompt:        "Is 7 a prime number?",
					CorrectAnswer: "true",
					Points:        100,
					TimeLimitSecs: 20,
				},
			},
		},
	}
}
