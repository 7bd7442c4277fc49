package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"mailagent/adapter/out/realtime"
	"mailagent/core/agent/rag"
	"mailagent/core/port/out"
	"mailagent/core/service/auth"
	"mailagent/core/service/models"
	"mailagent/core/service/orchestrator"
	"mailagent/pkg/response"
)

// Router wires every handler under /api.
type Router struct {
	auth     *auth.Service
	orch     *orchestrator.Manager
	bus      *realtime.EventBus
	indexer  *rag.Indexer
	resolver *models.Resolver
	mailbox  out.MailboxPort
	llm      out.LLMPort
	log      zerolog.Logger
}

// NewRouter creates the router.
func NewRouter(authSvc *auth.Service, orch *orchestrator.Manager, bus *realtime.EventBus, indexer *rag.Indexer, resolver *models.Resolver, mailbox out.MailboxPort, llm out.LLMPort, log zerolog.Logger) *Router {
	return &Router{
		auth:     authSvc,
		orch:     orch,
		bus:      bus,
		indexer:  indexer,
		resolver: resolver,
		mailbox:  mailbox,
		llm:      llm,
		log:      log.With().Str("component", "http").Logger(),
	}
}

// Register mounts all routes on the app.
func (r *Router) Register(app *fiber.App) {
	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return response.OK(c, fiber.Map{"status": "ok"})
	})

	resolve := &runtimeResolver{auth: r.auth, orch: r.orch}

	authHandler := NewAuthHandler(r.auth, r.log)
	authHandler.Register(api)

	protected := api.Group("", r.jwtMiddleware())
	authHandler.RegisterProtected(protected)
	NewEmailHandler(resolve, r.orch, r.log).Register(protected)
	NewSettingsHandler(r.auth, resolve, r.resolver, r.mailbox, r.llm, r.log).Register(protected)
	NewKBHandler(resolve, r.orch, r.indexer, r.log).Register(protected)
	NewStatsHandler(resolve, r.log).Register(protected)
	NewSSEHandler(r.auth, r.bus, r.log).Register(api) // does its own token check
}

// jwtMiddleware validates the bearer token and stashes the identity in
// request locals.
func (r *Router) jwtMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return response.Unauthorized(c, "未登录")
		}
		userID, username, err := r.auth.ParseToken(token)
		if err != nil {
			return fail(c, err)
		}
		c.Locals("user_id", userID)
		c.Locals("username", username)
		return c.Next()
	}
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter for EventSource clients that cannot set headers.
func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}
