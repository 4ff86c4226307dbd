// Package app wires configuration into adapters and use cases.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cjhyy/interview-QA-help/internal/config"
	"github.com/cjhyy/interview-QA-help/internal/infrastructure/cache"
	"github.com/cjhyy/interview-QA-help/internal/infrastructure/extractor"
	"github.com/cjhyy/interview-QA-help/internal/infrastructure/llm"
	"github.com/cjhyy/interview-QA-help/internal/infrastructure/scheduler"
	"github.com/cjhyy/interview-QA-help/internal/infrastructure/storage"
	"github.com/cjhyy/interview-QA-help/internal/infrastructure/telegram"
	"github.com/cjhyy/interview-QA-help/internal/logging"
	"github.com/cjhyy/interview-QA-help/internal/ports"
	"github.com/cjhyy/interview-QA-help/internal/provider"
	"github.com/cjhyy/interview-QA-help/internal/segment"
	"github.com/cjhyy/interview-QA-help/internal/synthesis"
	"github.com/cjhyy/interview-QA-help/internal/usecase"
)

type store interface {
	ports.TaskRepository
	ports.QARepository
	Close() error
}

// Application wires configs to use cases and owns adapter lifecycles.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	selector  *provider.Selector
	pipeline  *usecase.Pipeline
	reclaimer *usecase.Reclaimer
	closers   []func() error
}

// New opens storage and builds every component described by cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	st, sqlStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)

	summaryCache, err := buildCache(cfg.Cache, sqlStore)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.selector = provider.NewSelector(logging.Component(baseLogger, "provider"))
	for _, backend := range a.buildProviders() {
		a.selector.Register(backend)
	}

	ext := extractor.New(extractor.Config{
		Timeout:          cfg.Extractor.Timeout(),
		MaxRedirects:     cfg.Extractor.MaxRedirects,
		UserAgents:       cfg.Extractor.UserAgents,
		MaxContentLength: cfg.Extractor.MaxContentLength,
		KeywordCount:     cfg.Extractor.KeywordCount,
	}, nil, logging.Component(baseLogger, "extractor"))

	synth := synthesis.New(
		a.selector,
		segment.New(cfg.Segment.Threshold, cfg.Segment.ChunkSize, cfg.Segment.Overlap),
		synthesis.Config{
			ItemsPerChunk:    cfg.Synthesis.ItemsPerChunk,
			MaxItemsPerChunk: cfg.Synthesis.MaxItemsPerChunk,
			Invoke: ports.InvokeOptions{
				MaxTokens:   cfg.Synthesis.MaxTokens,
				Temperature: cfg.Synthesis.Temperature,
				Timeout:     cfg.Synthesis.Timeout(),
			},
			Classify: cfg.Synthesis.Classify,
		},
		logging.Component(baseLogger, "synthesis"),
	)

	var notifier ports.Notifier
	tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	if tg.Configured() {
		notifier = tg
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Tasks:       st,
		QA:          st,
		Extractor:   ext,
		Synthesizer: synth,
		Cache:       summaryCache,
		Notifier:    notifier,
		Logger:      logging.Component(baseLogger, "pipeline"),
		CacheTTL:    cfg.Cache.TTL(),
	})
	a.reclaimer = usecase.NewReclaimer(
		scheduler.NewTickerScheduler(cfg.Worker.Interval()),
		st,
		a.pipeline,
		cfg.Worker.StaleAfter(),
		logging.Component(baseLogger, "reclaimer"),
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (store, *storage.SQLStore, error) {
	switch cfg.Driver {
	case storage.DriverSQLite, storage.DriverPostgres:
		s, err := storage.OpenSQL(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case storage.DriverFirestore:
		s, err := storage.OpenFirestore(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func buildCache(cfg config.CacheConfig, sqlStore *storage.SQLStore) (ports.Cache, error) {
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "memory":
		return cache.NewMemory(), nil
	case "sql":
		// Document stores have no cache table; fall back to process memory.
		if sqlStore == nil {
			return cache.NewMemory(), nil
		}
		return cache.NewSQL(sqlStore.DB(), sqlStore.Builder()), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

func (a *Application) buildProviders() []ports.Provider {
	p := a.cfg.Providers
	var backends []ports.Provider
	for _, name := range p.Order {
		switch name {
		case "openai":
			backends = append(backends, llm.NewChatClient(llm.ChatConfig{
				Name:     "openai",
				Endpoint: orDefault(p.OpenAI.Endpoint, llm.OpenAIEndpoint),
				Model:    p.OpenAI.Model,
				APIKey:   p.OpenAI.APIKey,
			}))
		case "zhipu":
			backends = append(backends, llm.NewChatClient(llm.ChatConfig{
				Name:     "zhipu",
				Endpoint: orDefault(p.Zhipu.Endpoint, llm.ZhipuEndpoint),
				Model:    p.Zhipu.Model,
				APIKey:   p.Zhipu.APIKey,
			}))
		case "anthropic":
			backends = append(backends, llm.NewAnthropicClient(p.Anthropic.APIKey, p.Anthropic.Model, ""))
		case "gemini":
			gemini := llm.NewGeminiClient(llm.GeminiConfig{
				ProjectID: p.Gemini.ProjectID,
				Region:    p.Gemini.Region,
				Model:     p.Gemini.Model,
			})
			a.closers = append(a.closers, gemini.Close)
			backends = append(backends, gemini)
		default:
			a.logger.Warn("unknown provider in order, skipping", "provider", name)
		}
	}
	return backends
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Pipeline exposes the task use cases.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Providers exposes the backend selector.
func (a *Application) Providers() *provider.Selector {
	return a.selector
}

// Reclaimer exposes the stale-task worker.
func (a *Application) Reclaimer() *usecase.Reclaimer {
	return a.reclaimer
}

// Logger returns the base logger.
func (a *Application) Logger() *slog.Logger {
	return a.logger
}

// Close waits for running pipelines and releases adapters in reverse order.
func (a *Application) Close() error {
	if a.pipeline != nil {
		a.pipeline.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
