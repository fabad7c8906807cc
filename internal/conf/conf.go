// Package conf defines the gateway's bootstrap configuration, loaded once
// at startup and immutable afterwards.
package conf

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
)

// ErrInvalidConfig indicates the configuration cannot start the process.
var ErrInvalidConfig = errors.New("invalid configuration")

// Bootstrap is the root configuration.
type Bootstrap struct {
	Server     Server     `json:"server"`
	Moderation Moderation `json:"moderation"`
	Providers  Providers  `json:"providers"`
	Redis      Redis      `json:"redis"`
	XAPI       XAPI       `json:"xapi"`
}

// Server configures the HTTP transport.
type Server struct {
	Addr           string    `json:"addr"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	RateLimit      RateLimit `json:"rate_limit"`
}

// RateLimit configures the per-client request limiter.
type RateLimit struct {
	Enabled       bool `json:"enabled"`
	Max           int  `json:"max"`
	WindowSeconds int  `json:"window_seconds"`
}

// Moderation configures pipeline behavior.
type Moderation struct {
	FailOpen      bool  `json:"fail_open"`
	MaxConcurrent int   `json:"max_concurrent"`
	MaxImages     int   `json:"max_images"`
	MaxVideos     int   `json:"max_videos"`
	Video         Video `json:"video"`
}

// Video configures the per-video pipeline.
type Video struct {
	MaxFrames            int     `json:"max_frames"`
	FrameIntervalSeconds float64 `json:"frame_interval_seconds"`
	ImageWorkers         int     `json:"image_workers"`
	DedupThreshold       int     `json:"dedup_threshold"`
	EnableAudio          bool    `json:"enable_audio"`
	TempDir              string  `json:"temp_dir"`
	MaxFetchBytes        int64   `json:"max_fetch_bytes"`
}

// Providers selects and configures the upstream classifiers.
type Providers struct {
	Text   string `json:"text"`   // openai | guard | local
	Vision string `json:"vision"` // openai | nsfw

	OpenAI    OpenAI    `json:"openai"`
	Guard     Guard     `json:"guard"`
	NSFW      NSFW      `json:"nsfw"`
	Blocklist Blocklist `json:"blocklist"`
}

// OpenAI configures the OpenAI-backed providers.
type OpenAI struct {
	APIKey          string `json:"api_key"`
	BaseURL         string `json:"base_url"`
	ModerationModel string `json:"moderation_model"`
	VisionModel     string `json:"vision_model"`
	AudioModel      string `json:"audio_model"`
	AudioLanguage   string `json:"audio_language"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

// Guard configures an OpenAI-compatible guard-model server.
type Guard struct {
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// NSFW configures the Falconsai detector endpoint.
type NSFW struct {
	BaseURL        string  `json:"base_url"`
	Threshold      float64 `json:"threshold"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// BlocklistEntry is one local pattern.
type BlocklistEntry struct {
	Word     string  `json:"word"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// Blocklist configures the in-process text classifier.
type Blocklist struct {
	Entries []BlocklistEntry `json:"entries"`
}

// Redis configures the redis connection used by the rate limiter.
type Redis struct {
	URL string `json:"url"`
}

// XAPI configures social posting.
type XAPI struct {
	Enabled       bool   `json:"enabled"`
	BaseURL       string `json:"base_url"`
	UploadBaseURL string `json:"upload_base_url"`
	BearerToken   string `json:"bearer_token"`
}

// Default returns the configuration used when a field is absent from the
// config file.
func Default() *Bootstrap {
	return &Bootstrap{
		Server: Server{
			Addr:           ":8000",
			TimeoutSeconds: 120,
			RateLimit:      RateLimit{Enabled: true, Max: 10, WindowSeconds: 60},
		},
		Moderation: Moderation{
			FailOpen:      true,
			MaxConcurrent: 6,
			MaxImages:     4,
			MaxVideos:     2,
			Video: Video{
				MaxFrames:            10,
				FrameIntervalSeconds: 2.0,
				ImageWorkers:         4,
				DedupThreshold:       8,
				EnableAudio:          true,
				MaxFetchBytes:        100 * 1024 * 1024,
			},
		},
		Providers: Providers{
			Text:   "openai",
			Vision: "openai",
		},
	}
}

// Load reads the config file at path, layers it over Default and applies
// secret overrides from the environment.
func Load(path string) (*Bootstrap, error) {
	bc := Default()

	if path != "" {
		c := config.New(config.WithSource(file.NewSource(path)))
		defer c.Close()
		if err := c.Load(); err != nil {
			return nil, fmt.Errorf("%w: load %s: %w", ErrInvalidConfig, path, err)
		}
		if err := c.Scan(bc); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %w", ErrInvalidConfig, path, err)
		}
	}

	// Secrets stay out of the config file.
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		bc.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("X_BEARER_TOKEN"); v != "" {
		bc.XAPI.BearerToken = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		bc.Redis.URL = v
	}

	if err := bc.Validate(); err != nil {
		return nil, err
	}
	return bc, nil
}

// Validate rejects configurations that cannot serve requests. It runs once
// at startup; nothing here is checked again mid-request.
func (b *Bootstrap) Validate() error {
	switch b.Providers.Text {
	case "openai", "guard", "local":
	default:
		return fmt.Errorf("%w: unknown text provider %q", ErrInvalidConfig, b.Providers.Text)
	}
	switch b.Providers.Vision {
	case "openai", "nsfw":
	default:
		return fmt.Errorf("%w: unknown vision provider %q", ErrInvalidConfig, b.Providers.Vision)
	}

	needsOpenAI := b.Providers.Text == "openai" || b.Providers.Vision == "openai" || b.Moderation.Video.EnableAudio
	if needsOpenAI && b.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("%w: openai api key required for the selected providers", ErrInvalidConfig)
	}
	if b.Providers.Text == "guard" && b.Providers.Guard.BaseURL == "" {
		return fmt.Errorf("%w: guard base url required", ErrInvalidConfig)
	}
	if b.Providers.Vision == "nsfw" && b.Providers.NSFW.BaseURL == "" {
		return fmt.Errorf("%w: nsfw base url required", ErrInvalidConfig)
	}
	if b.Providers.Text == "local" && len(b.Providers.Blocklist.Entries) == 0 {
		return fmt.Errorf("%w: local text provider needs blocklist entries", ErrInvalidConfig)
	}

	if b.Moderation.Video.FrameIntervalSeconds <= 0 {
		return fmt.Errorf("%w: frame interval must be positive", ErrInvalidConfig)
	}
	if b.Moderation.Video.MaxFrames <= 0 {
		return fmt.Errorf("%w: max frames must be positive", ErrInvalidConfig)
	}
	if b.Server.RateLimit.Enabled && b.Redis.URL == "" {
		return fmt.Errorf("%w: rate limiting requires a redis url", ErrInvalidConfig)
	}
	if b.XAPI.Enabled && b.XAPI.BearerToken == "" {
		return fmt.Errorf("%w: xapi enabled without a bearer token", ErrInvalidConfig)
	}
	return nil
}
