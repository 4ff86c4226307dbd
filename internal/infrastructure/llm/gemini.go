package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/vertexai/genai"

	"github.com/cjhyy/interview-QA-help/internal/ports"
)

const (
	DefaultGeminiModel  = "gemini-1.5-flash"
	DefaultGeminiRegion = "us-central1"
)

// GeminiConfig locates a Vertex AI model. Credentials come from the
// application default credentials of the environment.
type GeminiConfig struct {
	ProjectID    string
	Region       string
	Model        string
	SystemPrompt string
}

// GeminiClient implements ports.Provider on Vertex AI.
type GeminiClient struct {
	cfg GeminiConfig

	mu     sync.Mutex
	client *genai.Client
}

var _ ports.Provider = (*GeminiClient)(nil)

// NewGeminiClient defers connecting until the first call.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.Region == "" {
		cfg.Region = DefaultGeminiRegion
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	cfg.SystemPrompt = safePrompt(cfg.SystemPrompt)
	return &GeminiClient{cfg: cfg}
}

// Name identifies the backend inside the selector.
func (c *GeminiClient) Name() string {
	return "gemini"
}

// Configured reports whether a project is set.
func (c *GeminiClient) Configured() bool {
	return strings.TrimSpace(c.cfg.ProjectID) != ""
}

// Invoke generates a completion for prompt.
func (c *GeminiClient) Invoke(ctx context.Context, prompt string, opts ports.InvokeOptions) (string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", err
	}

	model := client.GenerativeModel(c.cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(c.cfg.SystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if opts.MaxTokens > 0 {
		model.GenerationConfig.MaxOutputTokens = genai.Ptr(int32(opts.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("gemini generate: %w", errEmptyCompletion)
	}
	return strings.TrimSpace(b.String()), nil
}

// HealthCheck sends a minimal prompt.
func (c *GeminiClient) HealthCheck(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	_, err := c.Invoke(ctx, "Reply with OK.", ports.InvokeOptions{MaxTokens: 5})
	return err == nil
}

// Close releases the underlying client.
func (c *GeminiClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

func (c *GeminiClient) connect(ctx context.Context) (*genai.Client, error) {
	if !c.Configured() {
		return nil, errors.New("gemini client misconfigured")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, c.cfg.ProjectID, c.cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	c.client = client
	return client, nil
}
