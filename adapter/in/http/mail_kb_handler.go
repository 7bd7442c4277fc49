package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"mailagent/core/agent/rag"
	"mailagent/core/service/orchestrator"
	"mailagent/pkg/response"
)

// KBHandler serves knowledge-base document management and index rebuilds.
type KBHandler struct {
	resolve *runtimeResolver
	orch    *orchestrator.Manager
	indexer *rag.Indexer
	log     zerolog.Logger
}

// NewKBHandler creates the handler.
func NewKBHandler(resolve *runtimeResolver, orch *orchestrator.Manager, indexer *rag.Indexer, log zerolog.Logger) *KBHandler {
	return &KBHandler{
		resolve: resolve,
		orch:    orch,
		indexer: indexer,
		log:     log.With().Str("handler", "kb").Logger(),
	}
}

// Register mounts the knowledge-base routes.
func (h *KBHandler) Register(router fiber.Router) {
	grp := router.Group("/kb")
	grp.Get("/documents", h.List)
	grp.Get("/documents/:name", h.Preview)
	grp.Get("/documents/:name/download", h.Download)
	grp.Delete("/documents/:name", h.Delete)
	grp.Post("/documents/:name/index", h.IndexOne)
	grp.Post("/rebuild", h.Rebuild)
	grp.Post("/test", h.Test)
}

// List returns every indexable file in the knowledge directory.
func (h *KBHandler) List(c *fiber.Ctx) error {
	docs, err := h.indexer.ListDocuments()
	if err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{"documents": docs})
}

const previewLimit = 2000

// Preview returns the first part of one document.
func (h *KBHandler) Preview(c *fiber.Ctx) error {
	text, err := h.indexer.ReadDocument(c.Params("name"))
	if err != nil {
		return fail(c, err)
	}
	runes := []rune(text)
	truncated := len(runes) > previewLimit
	if truncated {
		runes = runes[:previewLimit]
	}
	return response.OK(c, fiber.Map{
		"name":      c.Params("name"),
		"content":   string(runes),
		"truncated": truncated,
	})
}

// Download streams the full document as an attachment.
func (h *KBHandler) Download(c *fiber.Ctx) error {
	name := c.Params("name")
	text, err := h.indexer.ReadDocument(name)
	if err != nil {
		return fail(c, err)
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, name))
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(text)
}

// Delete removes one document from disk. The caller rebuilds when ready.
func (h *KBHandler) Delete(c *fiber.Ctx) error {
	if err := h.indexer.DeleteDocument(c.Params("name")); err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{"deleted": true})
}

// Rebuild reindexes every document for the user's embedding model. The
// embedding work runs on the worker pool; the handler waits for the result
// so the caller gets the chunk count back.
func (h *KBHandler) Rebuild(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	dim, chunks, err := h.orch.RebuildIndex(c.Context(), rt)
	if err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{"dimension": dim, "chunks": chunks})
}

// IndexOne reindexes a single document into the existing store.
func (h *KBHandler) IndexOne(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	dim, chunks, err := h.orch.IndexDocument(c.Context(), rt, c.Params("name"))
	if err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{"dimension": dim, "chunks": chunks})
}

type ragTestRequest struct {
	Text string `json:"text"`
}

// Test queues an end-to-end retrieval dry run; the result arrives as an
// rag_test_complete event on the SSE stream.
func (h *KBHandler) Test(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	var req ragTestRequest
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return response.BadRequest(c, "text 不能为空")
	}
	h.orch.TestRAG(rt, req.Text)
	return response.OK(c, fiber.Map{"queued": true})
}
