package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailagent/core/domain"
	"mailagent/core/port/out"
	"mailagent/core/service/auth"
	"mailagent/core/service/models"
	"mailagent/pkg/response"
)

// SettingsHandler serves AI settings, custom models and connectivity tests.
type SettingsHandler struct {
	auth     *auth.Service
	resolve  *runtimeResolver
	resolver *models.Resolver
	mailbox  out.MailboxPort
	llm      out.LLMPort
	log      zerolog.Logger
}

// NewSettingsHandler creates the handler.
func NewSettingsHandler(authSvc *auth.Service, resolve *runtimeResolver, resolver *models.Resolver, mailbox out.MailboxPort, llm out.LLMPort, log zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{
		auth:     authSvc,
		resolve:  resolve,
		resolver: resolver,
		mailbox:  mailbox,
		llm:      llm,
		log:      log.With().Str("handler", "settings").Logger(),
	}
}

// Register mounts the settings routes.
func (h *SettingsHandler) Register(router fiber.Router) {
	grp := router.Group("/settings")
	grp.Get("/", h.Get)
	grp.Put("/", h.Save)
	grp.Post("/test-mailbox", h.TestMailbox)
	grp.Post("/test-ai", h.TestAI)
	grp.Get("/models", h.Models)
	grp.Post("/models", h.AddModel)
	grp.Delete("/models/:id", h.DeleteModel)
}

// Get returns the current settings.
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	u, err := h.auth.User(Username(c))
	if err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{
		"settings":        u.Settings,
		"email":           u.Email,
		"email_auth_code": u.EmailAuthCode != "",
		"custom_models":   u.CustomModels,
	})
}

type saveSettingsRequest struct {
	Settings      *domain.AISettings `json:"settings"`
	Email         *string            `json:"email"`
	EmailAuthCode *string            `json:"email_auth_code"`
}

// Save updates the settings and refreshes the live runtime.
func (h *SettingsHandler) Save(c *fiber.Ctx) error {
	var req saveSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "请求格式错误")
	}

	u, err := h.auth.UpdateUser(Username(c), func(u *domain.User) {
		if req.Settings != nil {
			u.Settings = *req.Settings
		}
		if req.Email != nil {
			u.Email = *req.Email
		}
		if req.EmailAuthCode != nil {
			u.EmailAuthCode = *req.EmailAuthCode
		}
	})
	if err != nil {
		return fail(c, err)
	}

	if rt, rerr := h.resolve.runtime(c); rerr == nil {
		rt.SetUser(u)
		rt.Lock()
		rt.Data().AutoProcess = u.Settings.AutoProcess
		rt.Data().CheckInterval = u.Settings.EffectiveCheckInterval()
		rt.SaveState()
		rt.Unlock()
	}
	return response.OK(c, fiber.Map{"settings": u.Settings})
}

type testMailboxRequest struct {
	Email    string `json:"email"`
	AuthCode string `json:"auth_code"`
}

// TestMailbox performs an IMAP login round trip with the given or saved
// credentials.
func (h *SettingsHandler) TestMailbox(c *fiber.Ctx) error {
	var req testMailboxRequest
	_ = c.BodyParser(&req)

	creds := out.MailboxCredentials{Address: req.Email, AuthCode: req.AuthCode}
	if creds.Address == "" {
		u, err := h.auth.User(Username(c))
		if err != nil {
			return fail(c, err)
		}
		creds = out.MailboxCredentials{Address: u.Email, AuthCode: u.EmailAuthCode}
	}
	if creds.Address == "" || creds.AuthCode == "" {
		return response.BadRequest(c, "邮箱未配置")
	}

	if err := h.mailbox.CheckLogin(c.Context(), creds); err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{"connected": true})
}

// TestAI performs a probe completion against the user's reply model.
func (h *SettingsHandler) TestAI(c *fiber.Ctx) error {
	rt, err := h.resolve.runtime(c)
	if err != nil {
		return fail(c, err)
	}
	if err := h.llm.Probe(c.Context(), rt.ReplySelection()); err != nil {
		return fail(c, err)
	}
	return response.OK(c, fiber.Map{"connected": true})
}

// Models lists the selectable reply and embedding models.
func (h *SettingsHandler) Models(c *fiber.Ctx) error {
	u, err := h.auth.User(Username(c))
	if err != nil {
		return fail(c, err)
	}
	reply, embedding := h.resolver.Known(u)
	return response.OK(c, fiber.Map{
		"reply_models":     reply,
		"embedding_models": embedding,
		"custom_models":    u.CustomModels,
	})
}

type addModelRequest struct {
	Provider string `json:"provider"`
	ModelID  string `json:"model_id"`
	APIKey   string `json:"api_key"`
	Kind     string `json:"kind"`
	BaseURL  string `json:"base_url"`
}

// AddModel registers a custom model descriptor.
func (h *SettingsHandler) AddModel(c *fiber.Ctx) error {
	var req addModelRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "请求格式错误")
	}
	kind := domain.CustomModelKind(req.Kind)
	if kind != domain.ModelKindReply && kind != domain.ModelKindEmbedding {
		return response.BadRequest(c, "kind 必须是 reply 或 embedding")
	}
	if req.ModelID == "" || req.APIKey == "" {
		return response.BadRequest(c, "model_id 和 api_key 不能为空")
	}

	model := domain.CustomModel{
		ID:       uuid.NewString(),
		Provider: req.Provider,
		ModelID:  req.ModelID,
		APIKey:   req.APIKey,
		Kind:     kind,
		BaseURL:  req.BaseURL,
	}
	u, err := h.auth.UpdateUser(Username(c), func(u *domain.User) {
		u.CustomModels = append(u.CustomModels, model)
	})
	if err != nil {
		return fail(c, err)
	}
	if rt, rerr := h.resolve.runtime(c); rerr == nil {
		rt.SetUser(u)
	}
	return response.Created(c, model)
}

// DeleteModel removes a custom model descriptor.
func (h *SettingsHandler) DeleteModel(c *fiber.Ctx) error {
	id := c.Params("id")
	u, err := h.auth.UpdateUser(Username(c), func(u *domain.User) {
		for i, cm := range u.CustomModels {
			if cm.ID == id {
				u.CustomModels = append(u.CustomModels[:i], u.CustomModels[i+1:]...)
				return
			}
		}
	})
	if err != nil {
		return fail(c, err)
	}
	if rt, rerr := h.resolve.runtime(c); rerr == nil {
		rt.SetUser(u)
	}
	return response.OK(c, fiber.Map{"deleted": true})
}
