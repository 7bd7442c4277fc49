package http

import (
	"bufio"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"mailagent/adapter/out/realtime"
	"mailagent/core/service/auth"
	"mailagent/pkg/response"
)

const heartbeatInterval = 30 * time.Second

// SSEHandler streams the per-user event feed. It authenticates on its own
// because EventSource clients pass the token as a query parameter.
type SSEHandler struct {
	auth *auth.Service
	bus  *realtime.EventBus
	log  zerolog.Logger
}

// NewSSEHandler creates the handler.
func NewSSEHandler(authSvc *auth.Service, bus *realtime.EventBus, log zerolog.Logger) *SSEHandler {
	return &SSEHandler{
		auth: authSvc,
		bus:  bus,
		log:  log.With().Str("handler", "sse").Logger(),
	}
}

// Register mounts the event stream routes.
func (h *SSEHandler) Register(router fiber.Router) {
	router.Get("/events", h.Stream)
	router.Get("/events/status", h.Status)
}

// Stream opens the SSE connection and forwards bus events until the client
// goes away.
func (h *SSEHandler) Stream(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return response.Unauthorized(c, "未登录")
	}
	userID, username, err := h.auth.ParseToken(token)
	if err != nil {
		return fail(c, err)
	}

	events := h.bus.Subscribe(userID)

	h.log.Info().Str("user_id", userID).Str("username", username).Msg("sse client connected")

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no") // disable nginx buffering

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		defer func() {
			h.bus.Unsubscribe(userID, events)
			h.log.Info().Str("user_id", userID).Msg("sse client disconnected")
		}()

		w.WriteString("event: connected\n")
		w.WriteString("data: {\"status\":\"connected\"}\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				data, err := realtime.SerializeEvent(event)
				if err != nil {
					h.log.Error().Err(err).Msg("serialize event")
					continue
				}
				w.WriteString("event: ")
				w.WriteString(string(event.Type))
				w.WriteString("\ndata: ")
				w.Write(data)
				w.WriteString("\n\n")
				if err := w.Flush(); err != nil {
					return
				}

			case <-ticker.C:
				w.WriteString(": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

// Status reports whether the bus currently has any live subscribers.
func (h *SSEHandler) Status(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return response.Unauthorized(c, "未登录")
	}
	userID, _, err := h.auth.ParseToken(token)
	if err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{
		"user_id":         userID,
		"connected_users": h.bus.ConnectedCount(),
	})
}
