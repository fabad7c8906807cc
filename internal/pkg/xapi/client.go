// Package xapi is a minimal client for the X (Twitter) v2 posting API:
// just enough surface to publish approved content.
package xapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Config holds configuration for the X API client.
type Config struct {
	BaseURL       string // e.g., "https://api.twitter.com/2"
	UploadBaseURL string // e.g., "https://upload.twitter.com/1.1"
	BearerToken   string
	Timeout       time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://api.twitter.com/2",
		UploadBaseURL: "https://upload.twitter.com/1.1",
		Timeout:       30 * time.Second,
	}
}

// Client posts tweets and uploads media.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new X API client.
func NewClient(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.UploadBaseURL == "" {
		config.UploadBaseURL = def.UploadBaseURL
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Tweet is the content of one post.
type Tweet struct {
	Text             string
	InReplyToTweetID string
	QuoteTweetID     string
	MediaIDs         []string
}

type tweetRequest struct {
	Text  string `json:"text"`
	Reply *struct {
		InReplyToTweetID string `json:"in_reply_to_tweet_id"`
	} `json:"reply,omitempty"`
	QuoteTweetID string `json:"quote_tweet_id,omitempty"`
	Media        *struct {
		MediaIDs []string `json:"media_ids"`
	} `json:"media,omitempty"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// PostTweet publishes a tweet and returns its id.
func (c *Client) PostTweet(ctx context.Context, t Tweet) (string, error) {
	reqBody := tweetRequest{Text: t.Text, QuoteTweetID: t.QuoteTweetID}
	if t.InReplyToTweetID != "" {
		reqBody.Reply = &struct {
			InReplyToTweetID string `json:"in_reply_to_tweet_id"`
		}{InReplyToTweetID: t.InReplyToTweetID}
	}
	if len(t.MediaIDs) > 0 {
		reqBody.Media = &struct {
			MediaIDs []string `json:"media_ids"`
		}{MediaIDs: t.MediaIDs}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/tweets", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.BearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call X API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("X API error (status %d): %s", resp.StatusCode, string(body))
	}

	var tweetResp tweetResponse
	if err := json.Unmarshal(body, &tweetResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return tweetResp.Data.ID, nil
}

// UploadMedia uploads image bytes and returns the media id to attach to a
// tweet.
func (c *Client) UploadMedia(ctx context.Context, data []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("media", "media")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write media data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.UploadBaseURL+"/media/upload.json", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.config.BearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call upload API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var uploadResp struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.Unmarshal(respBody, &uploadResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return uploadResp.MediaIDString, nil
}
