package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailagent/core/domain"
	"mailagent/core/service/auth"
	"mailagent/pkg/response"
)

// AuthHandler serves registration, login and password management.
type AuthHandler struct {
	auth *auth.Service
	log  zerolog.Logger
}

// NewAuthHandler creates the handler.
func NewAuthHandler(svc *auth.Service, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, log: log.With().Str("handler", "auth").Logger()}
}

// Register mounts the auth routes. Login and register are public; the rest
// require a token and are mounted by the caller under the JWT middleware.
func (h *AuthHandler) Register(router fiber.Router) {
	grp := router.Group("/auth")
	grp.Post("/register", h.RegisterUser)
	grp.Post("/login", h.Login)
	grp.Post("/reset-password", h.ResetPassword)
}

// RegisterProtected mounts the routes that require authentication.
func (h *AuthHandler) RegisterProtected(router fiber.Router) {
	grp := router.Group("/auth")
	grp.Post("/change-password", h.ChangePassword)
	grp.Post("/rename", h.Rename)
	grp.Get("/profile", h.Profile)
}

type registerRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	Email         string `json:"email"`
	EmailAuthCode string `json:"email_auth_code"`
}

// RegisterUser creates a new account.
func (h *AuthHandler) RegisterUser(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "请求格式错误")
	}
	u, err := h.auth.Register(req.Username, req.Password, req.Email, req.EmailAuthCode)
	if err != nil {
		return fail(c, err)
	}
	return response.Created(c, fiber.Map{"user_id": u.UserID, "username": u.Username})
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

// Login verifies credentials and issues a session token.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "请求格式错误")
	}
	if req.DeviceID == "" {
		req.DeviceID = uuid.NewString()
	}
	token, u, err := h.auth.Login(req.Username, req.Password, req.DeviceID, req.DeviceName, c.Get(fiber.HeaderUserAgent), c.IP())
	if err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{
		"token":    token,
		"user_id":  u.UserID,
		"username": u.Username,
		"settings": u.Settings,
	})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword rotates the password after verifying the old one.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "请求格式错误")
	}
	if err := h.auth.ChangePassword(Username(c), req.OldPassword, req.NewPassword); err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{"changed": true})
}

type resetPasswordRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	NewPassword string `json:"new_password"`
}

// ResetPassword sets a new password after an email check.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "请求格式错误")
	}
	if err := h.auth.ResetPassword(req.Username, req.Email, req.NewPassword); err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{"reset": true})
}

type renameRequest struct {
	NewUsername string `json:"new_username"`
}

// Rename changes the display name; the old name joins the mapping chain and
// existing tokens become invalid.
func (h *AuthHandler) Rename(c *fiber.Ctx) error {
	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "请求格式错误")
	}
	u, err := h.auth.Rename(Username(c), req.NewUsername)
	if err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{"username": u.Username})
}

// Profile returns the account record without credential material.
func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	u, err := h.auth.User(Username(c))
	if err != nil {
		return fail(c, err)
	}
	return response.OK(c, profileView(u))
}

func profileView(u *domain.User) fiber.Map {
	return fiber.Map{
		"user_id":       u.UserID,
		"username":      u.Username,
		"email":         u.Email,
		"devices":       u.Devices,
		"settings":      u.Settings,
		"register_time": u.RegisterTime,
		"last_login":    u.LastLogin,
		"avatar":        u.Avatar,
	}
}
