package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"mailagent/core/service/orchestrator"
	"mailagent/pkg/response"
)

// EmailHandler serves the message cache and all processing commands.
type EmailHandler struct {
	resolve *runtimeResolver
	orch    *orchestrator.Manager
	log     zerolog.Logger
}

// NewEmailHandler creates the handler.
func NewEmailHandler(resolve *runtimeResolver, orch *orchestrator.Manager, log zerolog.Logger) *EmailHandler {
	return &EmailHandler{resolve: resolve, orch: orch, log: log.With().Str("handler", "email").Logger()}
}

// Register mounts the email and monitor routes.
func (h *EmailHandler) Register(router fiber.Router) {
	grp := router.Group("/emails")
	grp.Get("/", h.List)
	grp.Post("/refresh", h.Refresh)
	grp.Post("/process-all", h.ProcessAll)
	grp.Post("/stop-all", h.StopAll)
	grp.Post("/:id/process", h.ProcessOne)
	grp.Post("/:id/stop", h.StopOne)
	grp.Post("/:id/send", h.SendReply)
	grp.Put("/:id/reply", h.UpdateReply)
	grp.Post("/:id/read", h.MarkRead)
	grp.Post("/:id/retry-rag", h.RetryRAG)
	grp.Post("/:id/summarize", h.Summarize)
	grp.Delete("/:id", h.Delete)

	mon := router.Group("/monitor")
	mon.Post("/start", h.StartMonitor)
	mon.Post("/stop", h.StopMonitor)
	mon.Get("/status", h.MonitorStatus)
}

// List returns the cached messages with monitor state.
func (h *EmailHandler) List(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	rt.Lock()
	lastCheck := rt.Data().LastCheckTime
	rt.Unlock()
	return response.OK(c, fiber.Map{
		"emails":          rt.Emails(),
		"monitor_running": h.orch.MonitorRunning(rt),
		"last_check_time": lastCheck,
	})
}

// Refresh polls the mailbox once and reconciles the cache.
func (h *EmailHandler) Refresh(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	added, err := h.orch.Refresh(c.Context(), rt)
	if err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{"new_emails": added, "emails": rt.Emails()})
}

type processRequest struct {
	AutoSend bool `json:"auto_send"`
}

// ProcessOne queues the pipeline for one message.
func (h *EmailHandler) ProcessOne(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	var req processRequest
	_ = c.BodyParser(&req) // empty body means no auto-send
	h.orch.ProcessOne(rt, c.Params("id"), req.AutoSend)
	return response.OK(c, fiber.Map{"queued": true})
}

// ProcessAll starts a sweep of all pending messages.
func (h *EmailHandler) ProcessAll(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	var req processRequest
	_ = c.BodyParser(&req)
	h.orch.ProcessAll(rt, req.AutoSend)
	return response.OK(c, fiber.Map{"queued": true})
}

// StopOne requests cancellation of one in-flight message.
func (h *EmailHandler) StopOne(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	h.orch.StopOne(rt, c.Params("id"))
	return response.OK(c, fiber.Map{"stopping": true})
}

// StopAll raises the global stop flag.
func (h *EmailHandler) StopAll(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	h.orch.StopAll(rt)
	return response.OK(c, fiber.Map{"stopping": true})
}

// SendReply sends the drafted reply subject to the rate limiter.
func (h *EmailHandler) SendReply(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	if err := h.orch.SendReply(c.Context(), rt, c.Params("id")); err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{"sent": true})
}

type updateReplyRequest struct {
	Reply string `json:"reply"`
}

// UpdateReply replaces the drafted reply text.
func (h *EmailHandler) UpdateReply(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	var req updateReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "请求格式错误")
	}
	if err := h.orch.UpdateReply(rt, c.Params("id"), req.Reply); err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{"updated": true})
}

// MarkRead flags one message read.
func (h *EmailHandler) MarkRead(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	if err := h.orch.MarkEmailRead(c.Context(), rt, c.Params("id")); err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{"read": true})
}

// Delete removes one message from the cache.
func (h *EmailHandler) Delete(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	if err := h.orch.DeleteEmail(rt, c.Params("id")); err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{"deleted": true})
}

type retryRAGRequest struct {
	Queries []string `json:"queries"`
}

// RetryRAG re-runs retrieval and drafting with user-edited queries.
func (h *EmailHandler) RetryRAG(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	var req retryRAGRequest
	if err := c.BodyParser(&req); err != nil || len(req.Queries) == 0 {
		return response.BadRequest(c, "queries 不能为空")
	}
	h.orch.RetryRAG(rt, c.Params("id"), req.Queries)
	return response.OK(c, fiber.Map{"queued": true})
}

// Summarize queues summarisation of one message's body and reply; the
// result arrives as a summary_saved event.
func (h *EmailHandler) Summarize(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	h.orch.SummarizeEmail(rt, c.Params("id"))
	return response.OK(c, fiber.Map{"queued": true})
}

// StartMonitor starts the polling and auto-send loops.
func (h *EmailHandler) StartMonitor(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	h.orch.StartMonitor(rt)
	return response.OK(c, fiber.Map{"running": true})
}

// StopMonitor stops both loops.
func (h *EmailHandler) StopMonitor(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	h.orch.StopMonitor(rt)
	return response.OK(c, fiber.Map{"running": false})
}

// MonitorStatus reports whether the loops are active.
func (h *EmailHandler) MonitorStatus(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	rt.Lock()
	lastCheck := rt.Data().LastCheckTime
	rt.Unlock()
	autoProcess := rt.Settings().AutoProcess
	return response.OK(c, fiber.Map{
		"running":         h.orch.MonitorRunning(rt),
		"auto_process":    autoProcess,
		"last_check_time": lastCheck,
	})
}
