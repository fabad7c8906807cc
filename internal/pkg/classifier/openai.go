package classifier

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds configuration for the OpenAI-backed providers.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string // override for self-hosted gateways; empty means api.openai.com
	ModerationModel string
	VisionModel     string
	AudioModel      string
	AudioLanguage   string // optional ISO-639-1 hint for transcription
	Timeout         time.Duration
}

// DefaultOpenAIConfig returns default configuration.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		ModerationModel: "omni-moderation-latest",
		VisionModel:     openai.GPT4o,
		AudioModel:      openai.Whisper1,
		Timeout:         60 * time.Second,
	}
}

// OpenAIClient implements Text, Vision and Transcriber against the OpenAI
// API (or any OpenAI-compatible endpoint via BaseURL).
type OpenAIClient struct {
	config OpenAIConfig
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	def := DefaultOpenAIConfig()
	if config.ModerationModel == "" {
		config.ModerationModel = def.ModerationModel
	}
	if config.VisionModel == "" {
		config.VisionModel = def.VisionModel
	}
	if config.AudioModel == "" {
		config.AudioModel = def.AudioModel
	}

	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	return &OpenAIClient{
		config: config,
		client: openai.NewClientWithConfig(cfg),
	}
}

// ClassifyText runs the moderations endpoint and maps the fixed category
// set into a TextResult.
func (c *OpenAIClient) ClassifyText(ctx context.Context, text string) (*TextResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: c.config.ModerationModel,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: moderations: %w", ErrTransport, err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: moderations returned no results", ErrResponse)
	}

	r := resp.Results[0]
	result := &TextResult{Scores: make(map[string]float64, 11)}
	for _, cat := range []struct {
		name    string
		flagged bool
		score   float32
	}{
		{"hate", r.Categories.Hate, r.CategoryScores.Hate},
		{"hate/threatening", r.Categories.HateThreatening, r.CategoryScores.HateThreatening},
		{"harassment", r.Categories.Harassment, r.CategoryScores.Harassment},
		{"harassment/threatening", r.Categories.HarassmentThreatening, r.CategoryScores.HarassmentThreatening},
		{"self-harm", r.Categories.SelfHarm, r.CategoryScores.SelfHarm},
		{"self-harm/intent", r.Categories.SelfHarmIntent, r.CategoryScores.SelfHarmIntent},
		{"self-harm/instructions", r.Categories.SelfHarmInstructions, r.CategoryScores.SelfHarmInstructions},
		{"sexual", r.Categories.Sexual, r.CategoryScores.Sexual},
		{"sexual/minors", r.Categories.SexualMinors, r.CategoryScores.SexualMinors},
		{"violence", r.Categories.Violence, r.CategoryScores.Violence},
		{"violence/graphic", r.Categories.ViolenceGraphic, r.CategoryScores.ViolenceGraphic},
	} {
		result.Scores[cat.name] = float64(cat.score)
		if cat.flagged {
			result.Flagged = append(result.Flagged, cat.name)
		}
	}
	return result, nil
}

// ClassifyImage sends instruction plus the image to the vision chat model
// and returns the raw reply text.
func (c *OpenAIClient) ClassifyImage(ctx context.Context, img ImageInput, instruction string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	url := img.URL
	if url == "" {
		mime := img.Mime
		if mime == "" {
			mime = "image/jpeg"
		}
		url = "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.config.VisionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: instruction},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    url,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		MaxTokens: 300,
	})
	if err != nil {
		return "", fmt.Errorf("%w: vision chat: %w", ErrTransport, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: vision chat returned no choices", ErrResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// Transcribe runs whisper over the audio file at audioPath.
func (c *OpenAIClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.config.AudioModel,
		FilePath: audioPath,
		Language: c.config.AudioLanguage,
	})
	if err != nil {
		return "", fmt.Errorf("%w: transcription: %w", ErrTransport, err)
	}
	return resp.Text, nil
}

func (c *OpenAIClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.config.Timeout)
}
