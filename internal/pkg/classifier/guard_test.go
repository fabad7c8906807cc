package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func guardServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		resp := map[string]any{
			"model": "test-guard",
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestGuardClassifyTextUnsafe(t *testing.T) {
	server := guardServer(t, "Safety: Unsafe\nCategories: Violent")
	defer server.Close()

	c := NewGuardClient(GuardConfig{BaseURL: server.URL, Model: "test-guard"})
	result, err := c.ClassifyText(context.Background(), "bad text")
	if err != nil {
		t.Fatalf("ClassifyText() error = %v", err)
	}
	if len(result.Flagged) != 1 || result.Flagged[0] != "violent" {
		t.Errorf("Flagged = %v, want [violent]", result.Flagged)
	}
	if result.Scores["violent"] != guardUnsafeScore {
		t.Errorf("score = %v, want %v", result.Scores["violent"], guardUnsafeScore)
	}
}

func TestGuardClassifyTextControversial(t *testing.T) {
	server := guardServer(t, "Safety: Controversial\nCategories: Politically Sensitive Topics")
	defer server.Close()

	c := NewGuardClient(GuardConfig{BaseURL: server.URL})
	result, err := c.ClassifyText(context.Background(), "edgy text")
	if err != nil {
		t.Fatalf("ClassifyText() error = %v", err)
	}
	if len(result.Flagged) != 1 {
		t.Fatalf("Flagged = %v, want one category", result.Flagged)
	}
	if got := result.Scores[result.Flagged[0]]; got != guardControversialScore {
		t.Errorf("score = %v, want %v", got, guardControversialScore)
	}
}

func TestGuardClassifyTextSafe(t *testing.T) {
	server := guardServer(t, "Safety: Safe\nCategories: None")
	defer server.Close()

	c := NewGuardClient(GuardConfig{BaseURL: server.URL})
	result, err := c.ClassifyText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("ClassifyText() error = %v", err)
	}
	if len(result.Flagged) != 0 {
		t.Errorf("Flagged = %v, want none", result.Flagged)
	}
}

func TestGuardClassifyTextUnparseable(t *testing.T) {
	server := guardServer(t, "I am not sure about this one.")
	defer server.Close()

	c := NewGuardClient(GuardConfig{BaseURL: server.URL})
	result, err := c.ClassifyText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("ClassifyText() error = %v", err)
	}
	if len(result.Flagged) != 0 {
		t.Errorf("unparseable reply should be safe, got Flagged = %v", result.Flagged)
	}
}

func TestGuardClassifyTextServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewGuardClient(GuardConfig{BaseURL: server.URL})
	if _, err := c.ClassifyText(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestParseGuardReplyUnsafeNoCategory(t *testing.T) {
	result := parseGuardReply("Safety: Unsafe")
	if len(result.Flagged) != 1 || result.Flagged[0] != "unspecified" {
		t.Errorf("Flagged = %v, want [unspecified]", result.Flagged)
	}
}

func TestGuardPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("Authorization = %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewGuardClient(GuardConfig{BaseURL: server.URL, APIKey: "key"})
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestGuardPingServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewGuardClient(GuardConfig{BaseURL: server.URL})
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}
