package conf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Bootstrap {
	b := Default()
	b.Providers.OpenAI.APIKey = "sk-test"
	b.Redis.URL = "redis://localhost:6379/0"
	return b
}

func TestValidateDefaultsWithKey(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateMissingOpenAIKey(t *testing.T) {
	b := validConfig()
	b.Providers.OpenAI.APIKey = ""
	err := b.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() error = %v, want ErrInvalidConfig", err)
	}
}

func TestValidateUnknownProviders(t *testing.T) {
	b := validConfig()
	b.Providers.Text = "psychic"
	if err := b.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown text provider accepted: %v", err)
	}

	b = validConfig()
	b.Providers.Vision = "tea-leaves"
	if err := b.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown vision provider accepted: %v", err)
	}
}

func TestValidateGuardNeedsBaseURL(t *testing.T) {
	b := validConfig()
	b.Providers.Text = "guard"
	if err := b.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("guard provider without base url accepted: %v", err)
	}
	b.Providers.Guard.BaseURL = "http://localhost:8000"
	if err := b.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidateRateLimitNeedsRedis(t *testing.T) {
	b := validConfig()
	b.Redis.URL = ""
	if err := b.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("rate limit without redis accepted: %v", err)
	}
	b.Server.RateLimit.Enabled = false
	if err := b.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  addr: ":9000"
  rate_limit:
    enabled: false
moderation:
  fail_open: false
  video:
    max_frames: 5
providers:
  text: guard
  vision: openai
  guard:
    base_url: "http://localhost:8000"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("REDIS_URL", "")
	t.Setenv("X_BEARER_TOKEN", "")

	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if b.Server.Addr != ":9000" {
		t.Errorf("Addr = %q", b.Server.Addr)
	}
	if b.Moderation.FailOpen {
		t.Error("FailOpen = true, want false from file")
	}
	if b.Moderation.Video.MaxFrames != 5 {
		t.Errorf("MaxFrames = %d", b.Moderation.Video.MaxFrames)
	}
	if b.Providers.OpenAI.APIKey != "sk-env" {
		t.Errorf("APIKey = %q, want env override", b.Providers.OpenAI.APIKey)
	}
	if b.Providers.Text != "guard" {
		t.Errorf("Text provider = %q", b.Providers.Text)
	}
}

func TestLoadInvalidConfigFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
providers:
  text: nonsense
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	if _, err := Load(path); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
	}
}
