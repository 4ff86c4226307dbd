// Package synthesis turns extracted content into QA items via an AI provider.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cjhyy/interview-QA-help/internal/domain"
	"github.com/cjhyy/interview-QA-help/internal/ports"
	"github.com/cjhyy/interview-QA-help/internal/segment"
)

const (
	DefaultItemsPerChunk    = "3-5"
	DefaultMaxItemsPerChunk = 8
	DefaultMaxTokens        = 4000
	DefaultTemperature      = 0.3
	DefaultTimeout          = 60 * time.Second

	classifyMaxTokens = 20
)

// ProviderSource hands out the provider to use for a run.
type ProviderSource interface {
	Active(ctx context.Context) (ports.Provider, error)
}

// Config tunes prompt size and provider budgets.
type Config struct {
	ItemsPerChunk    string
	MaxItemsPerChunk int
	Invoke           ports.InvokeOptions
	Classify         bool
}

// ChunkOutcome is the settled result of one chunk.
type ChunkOutcome struct {
	Index int
	Items []domain.QAItem
	Err   error
}

// Result is everything a synthesis run produced.
type Result struct {
	Provider string
	Category domain.Category
	Chunks   []ChunkOutcome
}

// Items returns per-chunk items in chunk order.
func (r Result) Items() [][]domain.QAItem {
	out := make([][]domain.QAItem, len(r.Chunks))
	for i, c := range r.Chunks {
		out[i] = c.Items
	}
	return out
}

// Failed counts chunks that contributed nothing because of an error.
func (r Result) Failed() int {
	n := 0
	for _, c := range r.Chunks {
		if c.Err != nil {
			n++
		}
	}
	return n
}

// Synthesizer fans chunk prompts out to the active provider.
type Synthesizer struct {
	providers ProviderSource
	segmenter segment.Segmenter
	cfg       Config
	logger    *slog.Logger
}

// New wires a synthesizer; zero config values take defaults.
func New(providers ProviderSource, segmenter segment.Segmenter, cfg Config, logger *slog.Logger) *Synthesizer {
	if cfg.ItemsPerChunk == "" {
		cfg.ItemsPerChunk = DefaultItemsPerChunk
	}
	if cfg.MaxItemsPerChunk <= 0 {
		cfg.MaxItemsPerChunk = DefaultMaxItemsPerChunk
	}
	if cfg.Invoke.MaxTokens <= 0 {
		cfg.Invoke.MaxTokens = DefaultMaxTokens
	}
	if cfg.Invoke.Temperature < 0 {
		cfg.Invoke.Temperature = DefaultTemperature
	}
	if cfg.Invoke.Timeout <= 0 {
		cfg.Invoke.Timeout = DefaultTimeout
	}
	return &Synthesizer{providers: providers, segmenter: segmenter, cfg: cfg, logger: logger}
}

// Synthesize generates QA items for every chunk of the extraction. The only
// error it returns is a provider selection failure; per-chunk failures are
// reported in the result and never abort sibling chunks.
func (s *Synthesizer) Synthesize(ctx context.Context, ext domain.Extraction) (Result, error) {
	result := Result{Category: domain.CategoryOther}
	if s.providers == nil {
		return result, domain.ErrProviderUnavailable
	}
	provider, err := s.providers.Active(ctx)
	if err != nil {
		return result, err
	}
	result.Provider = provider.Name()

	chunks := s.segmenter.Split(ext.Content)
	result.Chunks = make([]ChunkOutcome, len(chunks))
	s.debug("synthesis started", "provider", provider.Name(), "chunks", len(chunks))

	var g errgroup.Group
	for i, chunk := range chunks {
		g.Go(func() error {
			result.Chunks[i] = s.runChunk(ctx, provider, ext.Title, chunk, len(chunks))
			return nil
		})
	}
	_ = g.Wait()

	if s.cfg.Classify {
		result.Category = s.classify(ctx, provider, ext)
	}
	return result, nil
}

func (s *Synthesizer) runChunk(ctx context.Context, provider ports.Provider, title string, chunk segment.Chunk, total int) ChunkOutcome {
	outcome := ChunkOutcome{Index: chunk.Index}

	prompt, err := BuildChunkPrompt(title, chunk.Index+1, total, s.cfg.ItemsPerChunk, chunk.Text)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	raw, err := s.invoke(ctx, provider, prompt, s.cfg.Invoke)
	if err != nil {
		outcome.Err = fmt.Errorf("chunk %d: %w", chunk.Index, err)
		s.warn("provider call failed", "chunk", chunk.Index, "provider", provider.Name(), "error", err)
		return outcome
	}

	items, err := ParseItems(raw, s.cfg.MaxItemsPerChunk)
	if err != nil {
		var parseErr *domain.ResponseParseError
		if errors.As(err, &parseErr) {
			parseErr.Chunk = chunk.Index
		}
		outcome.Err = err
		s.warn("response unparseable", "chunk", chunk.Index, "error", err)
		return outcome
	}

	outcome.Items = items
	s.debug("chunk parsed", "chunk", chunk.Index, "items", len(items))
	return outcome
}

func (s *Synthesizer) classify(ctx context.Context, provider ports.Provider, ext domain.Extraction) domain.Category {
	prompt, err := BuildClassifyPrompt(ext.Title, ext.Keywords, ext.Content)
	if err != nil {
		return domain.CategoryOther
	}
	opts := ports.InvokeOptions{MaxTokens: classifyMaxTokens, Temperature: 0, Timeout: s.cfg.Invoke.Timeout}
	raw, err := s.invoke(ctx, provider, prompt, opts)
	if err != nil {
		s.warn("classification failed", "provider", provider.Name(), "error", err)
		return domain.CategoryOther
	}
	return ParseCategoryAnswer(raw)
}

func (s *Synthesizer) invoke(ctx context.Context, provider ports.Provider, prompt string, opts ports.InvokeOptions) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	return provider.Invoke(callCtx, prompt, opts)
}

// ParseCategoryAnswer picks the first known category mentioned in a reply.
func ParseCategoryAnswer(raw string) domain.Category {
	answer := strings.ToLower(strings.TrimSpace(raw))
	answer = strings.Trim(answer, " .\"'`\n")
	if c := domain.ParseCategory(answer); c != domain.CategoryOther {
		return c
	}
	for _, word := range strings.FieldsFunc(answer, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		if c := domain.ParseCategory(word); c != domain.CategoryOther {
			return c
		}
	}
	return domain.CategoryOther
}

func (s *Synthesizer) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Synthesizer) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
