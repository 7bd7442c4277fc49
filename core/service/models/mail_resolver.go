// Package models resolves per-user model selections. A user either runs on
// the process defaults or on a custom model they registered with their own
// key and endpoint.
package models

import (
	"mailagent/config"
	"mailagent/core/domain"
	"mailagent/core/port/out"
)

// Resolver turns user settings into concrete model selections.
type Resolver struct {
	cfg *config.Config
}

// NewResolver creates a resolver over the process configuration.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Reply resolves the reply model for a user.
func (r *Resolver) Reply(u *domain.User) out.ModelSelection {
	model := u.Settings.ReplyModel
	if model == "" {
		model = r.cfg.ReplyModel
	}
	return r.selection(u, model, domain.ModelKindReply)
}

// Embedding resolves the embedding model for a user.
func (r *Resolver) Embedding(u *domain.User) out.ModelSelection {
	model := u.Settings.EmbeddingModel
	if model == "" {
		model = r.cfg.EmbeddingModel
	}
	return r.selection(u, model, domain.ModelKindEmbedding)
}

// selection matches the model against the user's custom model list. A custom
// entry carries its own key and optional base URL; anything else runs on the
// default key and endpoint.
func (r *Resolver) selection(u *domain.User, model string, kind domain.CustomModelKind) out.ModelSelection {
	for _, cm := range u.CustomModels {
		if cm.Kind != kind {
			continue
		}
		if cm.ModelID != model && cm.ID != model {
			continue
		}
		base := cm.BaseURL
		if base == "" {
			base = r.cfg.APIBaseURL
		}
		return out.ModelSelection{Model: cm.ModelID, APIKey: cm.APIKey, BaseURL: base}
	}
	return out.ModelSelection{Model: model, APIKey: r.cfg.SiliconFlowAPIKey, BaseURL: r.cfg.APIBaseURL}
}

// Known lists the selectable reply and embedding models: the process
// defaults plus the user's custom entries.
func (r *Resolver) Known(u *domain.User) (reply, embedding []string) {
	reply = []string{r.cfg.ReplyModel}
	embedding = []string{r.cfg.EmbeddingModel}
	for _, cm := range u.CustomModels {
		switch cm.Kind {
		case domain.ModelKindReply:
			reply = append(reply, cm.ModelID)
		case domain.ModelKindEmbedding:
			embedding = append(embedding, cm.ModelID)
		}
	}
	return reply, embedding
}
