// Package usecase orchestrates the page-to-QA pipeline and its queries.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjhyy/interview-QA-help/internal/domain"
	"github.com/cjhyy/interview-QA-help/internal/ports"
	"github.com/cjhyy/interview-QA-help/internal/quality"
	"github.com/cjhyy/interview-QA-help/internal/synthesis"
)

const (
	DefaultCacheTTL = time.Hour

	msgNoItems = "no usable QA items generated"
)

// Synthesizer produces per-chunk QA items for an extraction.
type Synthesizer interface {
	Synthesize(ctx context.Context, ext domain.Extraction) (synthesis.Result, error)
}

// PipelineDeps wires all driven adapters into the pipeline.
type PipelineDeps struct {
	Tasks       ports.TaskRepository
	QA          ports.QARepository
	Extractor   ports.ContentExtractor
	Synthesizer Synthesizer
	Cache       ports.Cache
	Notifier    ports.Notifier
	Logger      *slog.Logger
	CacheTTL    time.Duration
	Now         func() time.Time
	NewID       func() string
}

// Pipeline owns the task lifecycle from submission to a terminal state.
type Pipeline struct {
	tasks       ports.TaskRepository
	qa          ports.QARepository
	extractor   ports.ContentExtractor
	synthesizer Synthesizer
	cache       ports.Cache
	notifier    ports.Notifier
	logger      *slog.Logger
	cacheTTL    time.Duration
	now         func() time.Time
	newID       func() string

	runs sync.WaitGroup
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		tasks:       deps.Tasks,
		qa:          deps.QA,
		extractor:   deps.Extractor,
		synthesizer: deps.Synthesizer,
		cache:       deps.Cache,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
		cacheTTL:    deps.CacheTTL,
		now:         deps.Now,
		newID:       deps.NewID,
	}
	if p.cacheTTL <= 0 {
		p.cacheTTL = DefaultCacheTTL
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newID == nil {
		p.newID = func() string { return uuid.NewString() }
	}
	return p
}

// Submission is the synchronous answer to Submit.
type Submission struct {
	TaskID string            `json:"taskId"`
	Status domain.TaskStatus `json:"status"`
	// Cached is set when the result came from the summary cache.
	Cached bool `json:"cached,omitempty"`
	// Started is set when this call launched a pipeline run.
	Started bool `json:"started"`
}

// Summary is a completed task with its QA records.
type Summary struct {
	domain.Task
	QA []domain.QARecord `json:"qaList"`
}

// CacheKey is the summary cache key for a url hash.
func CacheKey(urlHash string) string {
	return "summary:" + urlHash
}

// Submit yields or reuses the task for rawURL. A run is started in the
// background only when this call wins the claim on the task; concurrent
// callers for the same URL receive the same task id.
func (p *Pipeline) Submit(ctx context.Context, rawURL string, force bool) (Submission, error) {
	normalized, err := domain.ValidateURL(rawURL)
	if err != nil {
		return Submission{}, err
	}
	urlHash := domain.HashURL(normalized)

	if !force {
		if summary, ok := p.cachedSummary(ctx, urlHash); ok {
			p.bumpAccess(ctx, summary.ID)
			return Submission{TaskID: summary.ID, Status: domain.StatusCompleted, Cached: true}, nil
		}
	}

	now := p.now()
	task, created, err := p.tasks.CreateIfAbsent(ctx, domain.Task{
		ID:        p.newID(),
		URL:       normalized,
		URLHash:   urlHash,
		Status:    domain.StatusPending,
		Keywords:  []string{},
		Category:  domain.CategoryOther,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Submission{}, err
	}

	from := []domain.TaskStatus{domain.StatusPending, domain.StatusFailed, domain.StatusPartial}
	switch {
	case created:
		p.info("task created", "task", task.ID, "url_hash", urlHash)
	case task.Status == domain.StatusProcessing:
		return Submission{TaskID: task.ID, Status: domain.StatusProcessing}, nil
	case task.Status == domain.StatusCompleted && !force:
		p.bumpAccess(ctx, task.ID)
		return Submission{TaskID: task.ID, Status: domain.StatusCompleted}, nil
	case task.Status == domain.StatusCompleted:
		from = append(from, domain.StatusCompleted)
	case !task.Status.Terminal() && task.Status != domain.StatusPending:
		return Submission{}, fmt.Errorf("submit %s: unknown status %q", task.ID, task.Status)
	}

	claimed, err := p.tasks.Claim(ctx, task.ID, ports.ClaimCondition{From: from})
	if err != nil {
		return Submission{}, err
	}
	if !claimed {
		return Submission{TaskID: task.ID, Status: domain.StatusProcessing}, nil
	}

	task.Status = domain.StatusProcessing
	task.ErrorMessage = ""
	p.runs.Add(1)
	go func() {
		defer p.runs.Done()
		if err := p.Process(context.WithoutCancel(ctx), task); err != nil {
			p.warn("pipeline run aborted", "task", task.ID, "error", err)
		}
	}()

	return Submission{TaskID: task.ID, Status: domain.StatusProcessing, Started: true}, nil
}

// Wait blocks until every background run started by Submit has settled.
func (p *Pipeline) Wait() {
	p.runs.Wait()
}

// Process runs one claimed task to a terminal state. The only error it
// returns is a persistence failure, which leaves the task in its last
// durable state.
func (p *Pipeline) Process(ctx context.Context, task domain.Task) error {
	started := p.now()
	task.Status = domain.StatusProcessing
	task.ErrorMessage = ""
	task.ProviderUsed = ""
	task.Category = domain.CategoryOther

	if err := p.qa.DeleteByTaskID(ctx, task.ID); err != nil {
		return fmt.Errorf("clear qa records: %w", err)
	}
	p.evict(ctx, task.URLHash)

	ext, err := p.extractor.Extract(ctx, task.URL)
	task.ProcessingTime.Extract = p.since(started)
	if err != nil {
		p.warn("extraction failed", "task", task.ID, "error", err)
		task.Status = domain.StatusFailed
		task.Title = ""
		task.Keywords = nil
		task.QACount = 0
		task.QualityScore = 0
		task.SetError(err.Error())
		return p.finish(ctx, task, started, nil)
	}

	task.Title = domain.Truncate(ext.Title, domain.MaxTitleLength)
	task.Keywords = ext.Keywords
	task.Language = ext.Language

	synthStarted := p.now()
	result, err := p.synthesizer.Synthesize(ctx, ext)
	task.ProcessingTime.Synthesize = p.since(synthStarted)
	task.Category = result.Category
	if task.Category == "" {
		task.Category = domain.CategoryOther
	}
	if err != nil {
		p.warn("synthesis unavailable", "task", task.ID, "error", err)
		task.Status = domain.StatusPartial
		task.QACount = 0
		task.QualityScore = quality.Aggregate(nil)
		task.SetError(err.Error())
		return p.finish(ctx, task, started, nil)
	}
	task.ProviderUsed = result.Provider

	items := quality.Dedup(quality.Merge(result.Items()))
	records := quality.Records(task.ID, task.URLHash, items, p.now())
	if len(records) == 0 {
		task.Status = domain.StatusPartial
		task.QACount = 0
		task.QualityScore = quality.Aggregate(nil)
		task.SetError(msgNoItems)
		return p.finish(ctx, task, started, nil)
	}

	if err := p.qa.BulkCreate(ctx, records); err != nil {
		return fmt.Errorf("persist qa records: %w", err)
	}
	task.Status = domain.StatusCompleted
	task.QACount = len(records)
	task.QualityScore = quality.Aggregate(items)
	p.info("synthesis finished", "task", task.ID, "provider", result.Provider,
		"chunks", len(result.Chunks), "failed_chunks", result.Failed(), "items", len(records))
	return p.finish(ctx, task, started, records)
}

func (p *Pipeline) finish(ctx context.Context, task domain.Task, started time.Time, records []domain.QARecord) error {
	task.ProcessingTime.Total = p.since(started)
	task.UpdatedAt = p.now()
	if err := p.tasks.Save(ctx, task); err != nil {
		return fmt.Errorf("persist task %s: %w", task.ID, err)
	}
	p.info("task finished", "task", task.ID, "status", task.Status, "qa_count", task.QACount,
		"total_ms", task.ProcessingTime.Total)

	if task.Status == domain.StatusCompleted {
		p.store(ctx, Summary{Task: task, QA: records})
	}
	if p.notifier != nil {
		if err := p.notifier.NotifyTask(ctx, task); err != nil {
			p.warn("notification failed", "task", task.ID, "error", err)
		}
	}
	return nil
}

func (p *Pipeline) cachedSummary(ctx context.Context, urlHash string) (Summary, bool) {
	if p.cache == nil {
		return Summary{}, false
	}
	raw, ok, err := p.cache.Get(ctx, CacheKey(urlHash))
	if err != nil {
		p.warn("cache read failed", "url_hash", urlHash, "error", err)
		return Summary{}, false
	}
	if !ok {
		return Summary{}, false
	}
	var summary Summary
	if err := json.Unmarshal(raw, &summary); err != nil || summary.ID == "" {
		p.evict(ctx, urlHash)
		return Summary{}, false
	}
	return summary, true
}

func (p *Pipeline) store(ctx context.Context, summary Summary) {
	if p.cache == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		p.warn("encode summary failed", "task", summary.ID, "error", err)
		return
	}
	if err := p.cache.Set(ctx, CacheKey(summary.URLHash), raw, p.cacheTTL); err != nil {
		p.warn("cache write failed", "task", summary.ID, "error", err)
	}
}

func (p *Pipeline) evict(ctx context.Context, urlHash string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Del(ctx, CacheKey(urlHash)); err != nil {
		p.warn("cache evict failed", "url_hash", urlHash, "error", err)
	}
}

func (p *Pipeline) bumpAccess(ctx context.Context, id string) {
	if err := p.tasks.IncrementAccess(ctx, id); err != nil && !errors.Is(err, domain.ErrTaskNotFound) {
		p.warn("access counter update failed", "task", id, "error", err)
	}
}

func (p *Pipeline) since(t time.Time) int64 {
	return p.now().Sub(t).Milliseconds()
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
