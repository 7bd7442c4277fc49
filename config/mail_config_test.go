package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DEBUG", "API_BASE_URL", "LLM_TIMEOUT_SEC"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port = %s", cfg.Port)
	}
	if cfg.Debug {
		t.Error("debug should default off")
	}
	if cfg.APIBaseURL != DefaultAPIBaseURL {
		t.Errorf("base url = %s", cfg.APIBaseURL)
	}
	if cfg.LLMTimeoutSec != 90 {
		t.Errorf("llm timeout = %d", cfg.LLMTimeoutSec)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DEBUG", "true")
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_MAX_RETRIES", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("DEBUG=true not picked up")
	}
	if cfg.Port != "9090" {
		t.Errorf("port = %s", cfg.Port)
	}
	if cfg.LLMMaxRetries != 5 {
		t.Errorf("retries = %d", cfg.LLMMaxRetries)
	}
}
