// Package bootstrap assembles the application graph and the fiber app.
package bootstrap

import (
	"context"
	"os"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	httpin "mailagent/adapter/in/http"
	"mailagent/adapter/in/worker"
	"mailagent/adapter/out/mailbox"
	"mailagent/adapter/out/persistence"
	"mailagent/adapter/out/realtime"
	"mailagent/adapter/out/vectordb"
	"mailagent/config"
	"mailagent/core/agent/llm"
	"mailagent/core/agent/rag"
	"mailagent/core/service/auth"
	"mailagent/core/service/models"
	"mailagent/core/service/orchestrator"
	"mailagent/core/service/pipeline"
	"mailagent/core/service/summary"
	"mailagent/core/service/urgency"
	"mailagent/pkg/ratelimit"
)

// App is the wired application.
type App struct {
	Fiber *fiber.App
	Pools *worker.Manager
	Log   zerolog.Logger
}

// NewLogger builds the process logger. Development gets a console writer,
// everything else structured JSON; DEBUG=true lowers the level.
func NewLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	if cfg.Environment == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

// New wires every adapter and service. ctx bounds all background loops; the
// caller cancels it on shutdown before draining the pools.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	userStore, err := persistence.NewUserStore(cfg.DataDir, log)
	if err != nil {
		return nil, err
	}
	emailStore, err := persistence.NewEmailStore(cfg.DataDir, log)
	if err != nil {
		return nil, err
	}

	llmClient := llm.NewClient(llm.ClientConfig{
		DefaultBaseURL:  cfg.APIBaseURL,
		TimeoutSec:      cfg.LLMTimeoutSec,
		EmbedTimeoutSec: cfg.EmbedTimeoutSec,
		MaxRetries:      cfg.LLMMaxRetries,
	}, log)

	vectorStore := vectordb.NewStore(".", log)
	embedder := rag.NewEmbedder(llmClient, log)
	retriever := rag.NewRetriever(embedder, vectorStore, log)
	composer := rag.NewComposer(retriever, llmClient, log)
	indexer := rag.NewIndexer(cfg.KnowledgeDataDir, embedder, vectorStore, log)

	mailboxAdapter := mailbox.NewAdapter(mailbox.Config{
		IMAPHost: cfg.IMAPHost,
		IMAPPort: cfg.IMAPPort,
		SMTPHost: cfg.SMTPHost,
		SMTPPort: cfg.SMTPPort,
	}, log)

	bus := realtime.NewEventBus(log)
	pools := worker.NewManager(ctx, log)
	limiter := ratelimit.NewSendLimiter()

	engine := pipeline.NewEngine(llmClient, composer, mailboxAdapter, limiter, log)
	summarizer := summary.NewSummarizer(llmClient, pools, log)
	resolver := models.NewResolver(cfg)

	authSvc, err := auth.NewService(userStore, cfg.JWTSecret, log)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.NewManager(ctx, orchestrator.Deps{
		Engine:     engine,
		Pools:      pools,
		Mailbox:    mailboxAdapter,
		Realtime:   bus,
		EmailStore: emailStore,
		Resolver:   resolver,
		Urgency:    urgency.NewDetector(),
		Summarizer: summarizer,
		Composer:   composer,
		Indexer:    indexer,
		LLM:        llmClient,
		Limiter:    limiter,
	}, log)

	app := fiber.New(fiber.Config{
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             10 * 1024 * 1024,
		DisableStartupMessage: cfg.Environment == "production",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	router := httpin.NewRouter(authSvc, orch, bus, indexer, resolver, mailboxAdapter, llmClient, log)
	router.Register(app)

	return &App{Fiber: app, Pools: pools, Log: log}, nil
}
