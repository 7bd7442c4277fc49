package models

import (
	"testing"

	"mailagent/config"
	"mailagent/core/domain"
)

func testConfig() *config.Config {
	return &config.Config{
		SiliconFlowAPIKey: "default-key",
		APIBaseURL:        config.DefaultAPIBaseURL,
		ReplyModel:        config.DefaultReplyModel,
		EmbeddingModel:    config.DefaultEmbeddingModel,
	}
}

func TestReplyDefaults(t *testing.T) {
	r := NewResolver(testConfig())
	sel := r.Reply(&domain.User{})
	if sel.Model != config.DefaultReplyModel {
		t.Errorf("model = %q", sel.Model)
	}
	if sel.APIKey != "default-key" || sel.BaseURL != config.DefaultAPIBaseURL {
		t.Errorf("selection = %+v", sel)
	}
}

func TestCustomModelCarriesOwnKey(t *testing.T) {
	r := NewResolver(testConfig())
	u := &domain.User{
		Settings: domain.AISettings{ReplyModel: "my-model"},
		CustomModels: []domain.CustomModel{
			{ID: "cm1", Provider: "openai", ModelID: "my-model", APIKey: "user-key", Kind: domain.ModelKindReply, BaseURL: "https://api.example.com/v1"},
		},
	}
	sel := r.Reply(u)
	if sel.APIKey != "user-key" || sel.BaseURL != "https://api.example.com/v1" {
		t.Errorf("selection = %+v", sel)
	}
}

func TestCustomModelKindIsolation(t *testing.T) {
	r := NewResolver(testConfig())
	u := &domain.User{
		Settings: domain.AISettings{EmbeddingModel: "my-model"},
		CustomModels: []domain.CustomModel{
			{ID: "cm1", ModelID: "my-model", APIKey: "reply-key", Kind: domain.ModelKindReply},
		},
	}
	// the reply-kind custom entry must not hijack the embedding selection
	sel := r.Embedding(u)
	if sel.APIKey != "default-key" {
		t.Errorf("selection = %+v", sel)
	}
}

func TestCustomModelDefaultBaseURL(t *testing.T) {
	r := NewResolver(testConfig())
	u := &domain.User{
		Settings: domain.AISettings{ReplyModel: "my-model"},
		CustomModels: []domain.CustomModel{
			{ID: "cm1", ModelID: "my-model", APIKey: "k", Kind: domain.ModelKindReply},
		},
	}
	if sel := r.Reply(u); sel.BaseURL != config.DefaultAPIBaseURL {
		t.Errorf("base url = %q", sel.BaseURL)
	}
}

func TestKnownIncludesCustom(t *testing.T) {
	r := NewResolver(testConfig())
	u := &domain.User{
		CustomModels: []domain.CustomModel{
			{ID: "cm1", ModelID: "m-reply", Kind: domain.ModelKindReply},
			{ID: "cm2", ModelID: "m-embed", Kind: domain.ModelKindEmbedding},
		},
	}
	reply, embedding := r.Known(u)
	if len(reply) != 2 || reply[1] != "m-reply" {
		t.Errorf("reply models = %v", reply)
	}
	if len(embedding) != 2 || embedding[1] != "m-embed" {
		t.Errorf("embedding models = %v", embedding)
	}
}
