package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// GuardConfig contains configuration for an OpenAI-compatible guard-model
// server (vLLM or similar).
type GuardConfig struct {
	BaseURL string // e.g., "http://localhost:8000"
	Model   string // e.g., "Qwen/Qwen3Guard-Gen-0.6B"
	APIKey  string // Optional API key
	Timeout time.Duration
}

// DefaultGuardConfig returns default configuration for a local guard server.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		BaseURL: "http://localhost:8000",
		Model:   "Qwen/Qwen3Guard-Gen-0.6B",
		Timeout: 30 * time.Second,
	}
}

// Guard-model severity mapped to a per-category score.
const (
	guardUnsafeScore        = 0.95
	guardControversialScore = 0.6
)

// GuardClient classifies text through a guard model served over the
// OpenAI-compatible chat API.
type GuardClient struct {
	config     GuardConfig
	httpClient *http.Client
}

// NewGuardClient creates a new guard-model client.
func NewGuardClient(config GuardConfig) *GuardClient {
	return &GuardClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type guardChatRequest struct {
	Model       string         `json:"model"`
	Messages    []guardMessage `json:"messages"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature float64        `json:"temperature"`
	Stream      bool           `json:"stream"`
}

type guardMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type guardChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// ClassifyText checks text for safety violations. The guard model answers
// in a fixed format:
//
//	Safety: Unsafe
//	Categories: Violent
func (c *GuardClient) ClassifyText(ctx context.Context, text string) (*TextResult, error) {
	reqBody := guardChatRequest{
		Model:       c.config.Model,
		Messages:    []guardMessage{{Role: "user", Content: text}},
		MaxTokens:   128,
		Temperature: 0.0,
		Stream:      false,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %w", ErrTransport, err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrTransport, err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: call guard API: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: guard API status %d: %s", ErrResponse, resp.StatusCode, string(body))
	}

	var chatResp guardChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", ErrResponse, err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("%w: guard error: %s", ErrResponse, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response choices", ErrResponse)
	}

	return parseGuardReply(chatResp.Choices[0].Message.Content), nil
}

// Regex patterns for guard-model response parsing.
var (
	guardSafetyPattern   = regexp.MustCompile(`(?i)Safety:\s*(Safe|Unsafe|Controversial)`)
	guardCategoryPattern = regexp.MustCompile(`(?i)(Violent|Non-violent Illegal Acts|Sexual Content or Sexual Acts|PII|Suicide & Self-Harm|Unethical Acts|Politically Sensitive Topics|Copyright Violation|Jailbreak|None)`)
)

func parseGuardReply(reply string) *TextResult {
	result := &TextResult{Scores: make(map[string]float64)}

	safetyMatch := guardSafetyPattern.FindStringSubmatch(reply)
	if len(safetyMatch) < 2 {
		// Can't parse: treat as safe to avoid blocking
		return result
	}

	var score float64
	switch strings.ToLower(safetyMatch[1]) {
	case "unsafe":
		score = guardUnsafeScore
	case "controversial":
		score = guardControversialScore
	default:
		return result
	}

	seen := make(map[string]bool)
	for _, cat := range guardCategoryPattern.FindAllString(reply, -1) {
		cat = strings.ToLower(strings.TrimSpace(cat))
		if cat == "" || cat == "none" || seen[cat] {
			continue
		}
		seen[cat] = true
		result.Flagged = append(result.Flagged, cat)
		result.Scores[cat] = score
	}

	// Unsafe verdict with no named category still has to flag something.
	if len(result.Flagged) == 0 {
		result.Flagged = append(result.Flagged, "unspecified")
		result.Scores["unspecified"] = score
	}
	return result
}

// Ping checks if the guard server is running.
func (c *GuardClient) Ping(ctx context.Context) error {
	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/v1/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("guard server not reachable at %s: %w", c.config.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("guard server returned status %d", resp.StatusCode)
	}
	return nil
}
