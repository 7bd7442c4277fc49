// Package http is the fiber surface of the service. Handlers only validate,
// enqueue and read state snapshots; anything that can block runs on the
// worker pools.
package http

import (
	"github.com/gofiber/fiber/v2"

	"mailagent/core/service/auth"
	"mailagent/core/service/orchestrator"
	"mailagent/pkg/apperr"
	"mailagent/pkg/response"
)

// Username returns the authenticated username set by the JWT middleware.
func Username(c *fiber.Ctx) string {
	name, _ := c.Locals("username").(string)
	return name
}

// UserID returns the authenticated stable user id.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

// runtimeResolver turns the request identity into the user's live runtime.
type runtimeResolver struct {
	auth *auth.Service
	orch *orchestrator.Manager
}

func (r *runtimeResolver) runtime(c *fiber.Ctx) (*orchestrator.UserRuntime, error) {
	name := Username(c)
	if name == "" {
		return nil, apperr.Unauthorized("")
	}
	u, err := r.auth.User(name)
	if err != nil {
		// the token predates a rename; force a fresh login
		return nil, apperr.InvalidToken("登录已过期，请重新登录")
	}
	return r.orch.Runtime(u, name)
}

// fail renders an application error onto the response envelope.
func fail(c *fiber.Ctx, err error) error {
	return response.FromError(c, err)
}
