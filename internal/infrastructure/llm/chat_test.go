package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aktagon/llmkit/anthropic/types"

	"github.com/cjhyy/interview-QA-help/internal/ports"
)

func completionHandler(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	}
}

func TestChatClientInvoke(t *testing.T) {
	t.Parallel()

	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token: %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		completionHandler(t, "  [1,2,3]  ")(w, r)
	}))
	defer server.Close()

	client := NewChatClient(ChatConfig{Name: "zhipu", Endpoint: server.URL, Model: "glm-4", APIKey: "secret"})
	out, err := client.Invoke(context.Background(), "make questions", ports.InvokeOptions{MaxTokens: 4000, Temperature: 0.3})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if out != "[1,2,3]" {
		t.Fatalf("unexpected output: %q", out)
	}
	if got.Model != "glm-4" || got.MaxTokens != 4000 || got.Temperature != 0.3 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "make questions" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func TestChatClientRetriesRateLimits(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "2")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		completionHandler(t, "ok")(w, r)
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewChatClient(
		ChatConfig{Name: "openai", Endpoint: server.URL, Model: "m", APIKey: "k"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	out, err := client.Invoke(context.Background(), "p", ports.InvokeOptions{})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if out != "ok" || calls.Load() != 3 {
		t.Fatalf("expected success on third call, got %q after %d", out, calls.Load())
	}
	if len(slept) != 2 || slept[0] != 2*time.Second {
		t.Fatalf("Retry-After not honoured: %v", slept)
	}
}

func TestChatClientDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewChatClient(ChatConfig{Name: "openai", Endpoint: server.URL, Model: "m", APIKey: "k"}, WithSleeper(func(time.Duration) {}))
	_, err := client.Invoke(context.Background(), "p", ports.InvokeOptions{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("client errors must not be retried, got %d calls", calls.Load())
	}
}

func TestChatClientHealthCheck(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(completionHandler(t, "OK"))
	defer healthy.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	ctx := context.Background()
	if !NewChatClient(ChatConfig{Name: "a", Endpoint: healthy.URL, Model: "m", APIKey: "k"}).HealthCheck(ctx) {
		t.Fatalf("expected healthy backend")
	}
	if NewChatClient(ChatConfig{Name: "b", Endpoint: broken.URL, Model: "m", APIKey: "k"}).HealthCheck(ctx) {
		t.Fatalf("expected unhealthy backend")
	}
	unconfigured := NewChatClient(ChatConfig{Name: "c", Endpoint: healthy.URL, Model: "m"})
	if unconfigured.Configured() || unconfigured.HealthCheck(ctx) {
		t.Fatalf("missing key must be unconfigured and unhealthy")
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	if d, ok := parseRetryAfter("3"); !ok || d != 3*time.Second {
		t.Fatalf("unexpected seconds parse: %v %v", d, ok)
	}
	if _, ok := parseRetryAfter("-1"); ok {
		t.Fatalf("negative values must be rejected")
	}
	if _, ok := parseRetryAfter("soon"); ok {
		t.Fatalf("garbage must be rejected")
	}
}

func TestAnthropicClientInvoke(t *testing.T) {
	t.Parallel()

	client := NewAnthropicClient("key", "", "")
	var seen types.RequestSettings
	client.prompt = func(systemPrompt, userPrompt, apiKey string, settings types.RequestSettings) (string, error) {
		seen = settings
		if apiKey != "key" || userPrompt != "p" || systemPrompt == "" {
			return "", errors.New("unexpected arguments")
		}
		return " reply ", nil
	}

	out, err := client.Invoke(context.Background(), "p", ports.InvokeOptions{MaxTokens: 100, Temperature: 0.3})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if out != "reply" {
		t.Fatalf("unexpected output: %q", out)
	}
	if seen.Model != DefaultAnthropicModel || seen.MaxTokens != 100 {
		t.Fatalf("unexpected settings: %+v", seen)
	}
}

func TestAnthropicClientHonoursContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	client := NewAnthropicClient("key", "m", "")
	client.prompt = func(string, string, string, types.RequestSettings) (string, error) {
		<-release
		return "late", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Invoke(ctx, "p", ports.InvokeOptions{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestProvidersReportConfiguration(t *testing.T) {
	t.Parallel()

	if NewAnthropicClient("", "", "").Configured() {
		t.Fatalf("anthropic without key must be unconfigured")
	}
	gemini := NewGeminiClient(GeminiConfig{})
	if gemini.Configured() || gemini.HealthCheck(context.Background()) {
		t.Fatalf("gemini without project must be unconfigured")
	}
	if gemini.Name() != "gemini" || gemini.cfg.Model != DefaultGeminiModel {
		t.Fatalf("unexpected gemini defaults: %+v", gemini.cfg)
	}
	if err := gemini.Close(); err != nil {
		t.Fatalf("closing an unused client should be a no-op: %v", err)
	}
}
