package http

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"mailagent/core/domain"
	"mailagent/core/service/stats"
	"mailagent/pkg/response"
)

// StatsHandler serves derived statistics, history and the activity feed.
type StatsHandler struct {
	resolve *runtimeResolver
	log     zerolog.Logger
}

// NewStatsHandler creates the handler.
func NewStatsHandler(resolve *runtimeResolver, log zerolog.Logger) *StatsHandler {
	return &StatsHandler{resolve: resolve, log: log.With().Str("handler", "stats").Logger()}
}

// Register mounts the stats, history and activity routes.
func (h *StatsHandler) Register(router fiber.Router) {
	grp := router.Group("/stats")
	grp.Get("/overview", h.Overview)
	grp.Get("/categories", h.Categories)
	grp.Get("/trend", h.Trend)

	hist := router.Group("/history")
	hist.Get("/", h.History)
	hist.Get("/export", h.Export)
	hist.Delete("/", h.ClearHistory)

	router.Get("/activities", h.Activities)
}

// Overview returns the headline counters.
func (h *StatsHandler) Overview(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	rt.Lock()
	ov := stats.ComputeOverview(rt.Data(), time.Now())
	rt.Unlock()
	return response.OK(c, ov)
}

// Categories returns today's per-category counts.
func (h *StatsHandler) Categories(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	rt.Lock()
	cats := stats.ComputeCategories(rt.Data(), time.Now())
	rt.Unlock()
	return response.OK(c, fiber.Map{"categories": cats})
}

// Trend returns per-day received/processed counts, oldest first.
func (h *StatsHandler) Trend(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	days := c.QueryInt("days", 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}
	rt.Lock()
	trend := stats.ComputeTrend(rt.Data(), time.Now(), days)
	rt.Unlock()
	return response.OK(c, fiber.Map{"trend": trend})
}

// History returns the processed-email records, newest first.
func (h *StatsHandler) History(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	rt.Lock()
	records := make([]*domain.HistoryRecord, len(rt.Data().History))
	copy(records, rt.Data().History)
	rt.Unlock()
	return response.OK(c, fiber.Map{"history": records})
}

// Export streams the history as a JSON attachment.
func (h *StatsHandler) Export(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	rt.Lock()
	records := make([]*domain.HistoryRecord, len(rt.Data().History))
	copy(records, rt.Data().History)
	rt.Unlock()

	payload, err := json.MarshalIndent(fiber.Map{
		"exported_at": time.Now().Format("2006-01-02 15:04:05"),
		"count":       len(records),
		"history":     records,
	}, "", "  ")
	if err != nil {
		return fail(c, err)
	}

	name := fmt.Sprintf("history_%s.json", time.Now().Format("20060102_150405"))
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, name))
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.Send(payload)
}

// ClearHistory wipes the history records.
func (h *StatsHandler) ClearHistory(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	rt.Lock()
	rt.Data().History = []*domain.HistoryRecord{}
	rt.Data().AddActivity("info", "🗑️", "已清空历史记录")
	rt.SaveState()
	rt.Unlock()
	return response.OK(c, fiber.Map{"cleared": true})
}

// Activities returns the bounded activity feed, newest first.
func (h *StatsHandler) Activities(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	rt.Lock()
	acts := make([]domain.Activity, len(rt.Data().Activities))
	copy(acts, rt.Data().Activities)
	rt.Unlock()
	return response.OK(c, fiber.Map{"activities": acts})
}
