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

	"quiz-arena/internal/config"
	"quiz-arena/internal/domain"
	"quiz-arena/internal/grading"
	"quiz-arena/internal/infra/memory"
	pgloader "quiz-arena/internal/infra/postgres"
	redisinfra "quiz-arena/internal/infra/redis"
	"quiz-arena/internal/match"
	"quiz-arena/internal/session"
	transport "quiz-arena/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz arena server",
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
	snapshotTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo transport.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var snapshots session.SnapshotStore
	var channels match.ChannelFactory
	if redisClient != nil {
		snapshots = redisinfra.NewSnapshotStore(redisClient, snapshotTTL)
		channels = redisinfra.NewChannelFactory(redisClient)
	} else {
		snapshots = memory.NewSnapshotStore()
		channels = memory.NewHub()
	}
	rooms := match.NewRegistry(channels)

	// Reference block graphs in quiz content are stored pre-generated, so
	// the compiler is a passthrough; swap in a client of the real
	// block-to-code service when graphs are stored raw.
	engine := grading.NewEngine(grading.BlockCompilerFunc(func(graph string) (string, error) {
		return graph, nil
	}))

	wsHandler := transport.NewWSHandler(quizRepo, snapshots, rooms, engine, cfg.Match.CountdownSec)

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
		log.Printf("starting quiz arena on :%s", finalPort)
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

// sampleQuizzes seeds a demo quiz covering every question kind; production
// deployments load quizzes from Postgres instead.
func sampleQuizzes() map[string]domain.Quiz {
	noShuffle := false
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:           "quiz-1",
			Title:        "Programming basics",
			TimeLimitSec: 300,
			PassingScore: 50,
			Questions: []domain.Question{
				{
					ID:           "q1",
					Kind:         domain.KindMultipleChoice,
					Prompt:       "What does a for loop do?",
					Options:      []string{"Repeats a block", "Declares a variable", "Imports a module", "Throws an error"},
					CorrectIndex: 0,
					Points:       10,
				},
				{
					ID:             "q2",
					Kind:           domain.KindMultipleChoice,
					Prompt:         "Which comparison checks equality?",
					Options:        []string{"=", "==", ":=", "=>"},
					CorrectIndex:   1,
					Points:         10,
					ShuffleOptions: &noShuffle,
				},
				{
					ID:            "q3",
					Kind:          domain.KindCompiler,
					Prompt:        "Write a function that returns the number 1.",
					ReferenceCode: "function one() { return 1; }",
					Languages:     []string{"javascript"},
					Points:        20,
				},
				{
					ID:             "q4",
					Kind:           domain.KindBlock,
					Prompt:         "Assemble blocks that print hello.",
					ReferenceGraph: "print('hello')",
					Languages:      []string{"python"},
					Points:         20,
				},
				{
					ID:     "q5",
					Kind:   domain.KindText,
					Prompt: "Explain, in your own words, what recursion is.",
					Points: 0,
				},
			},
		},
	}
}
