package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cjhyy/interview-QA-help/internal/domain"
	"github.com/cjhyy/interview-QA-help/internal/ports"
	"github.com/cjhyy/interview-QA-help/internal/provider"
	"github.com/cjhyy/interview-QA-help/internal/segment"
	"github.com/cjhyy/interview-QA-help/internal/synthesis"
)

const threeItems = `[
 {"question":"What is a goroutine?","answer":"A lightweight thread managed by the Go runtime.","type":"concept","difficulty":"basic","tags":["go"],"score":4},
 {"question":"How do channels synchronise?","answer":"Unbuffered sends block until a receiver is ready.","type":"implementation","difficulty":"intermediate","tags":"channels","score":9},
 {"question":"When to prefer a mutex?","answer":"When guarding shared state with short critical sections."}
]`

type harness struct {
	pipeline  *Pipeline
	tasks     *memTasks
	qa        *memQA
	cache     *memCache
	notifier  *recordingNotifier
	extractor *stubExtractor
}

func newHarness(extractor *stubExtractor, backends ...ports.Provider) *harness {
	h := &harness{
		tasks:     newMemTasks(),
		qa:        newMemQA(),
		cache:     newMemCache(),
		notifier:  &recordingNotifier{},
		extractor: extractor,
	}
	synth := synthesis.New(provider.NewSelector(nil, backends...), segment.New(0, 0, 0), synthesis.Config{}, nil)
	h.pipeline = NewPipeline(PipelineDeps{
		Tasks:       h.tasks,
		QA:          h.qa,
		Extractor:   extractor,
		Synthesizer: synth,
		Cache:       h.cache,
		Notifier:    h.notifier,
	})
	return h
}

func shortPage() *stubExtractor {
	return &stubExtractor{ext: domain.Extraction{
		Title:    "Go concurrency",
		Content:  "Short text",
		Keywords: []string{"goroutine", "channel"},
		Language: "en",
	}}
}

func (h *harness) run(t *testing.T, url string, force bool) (Submission, domain.Task) {
	t.Helper()
	sub, err := h.pipeline.Submit(context.Background(), url, force)
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	h.pipeline.Wait()
	task, err := h.tasks.FindByID(context.Background(), sub.TaskID)
	if err != nil || task == nil {
		t.Fatalf("task %s not stored: %v", sub.TaskID, err)
	}
	return sub, *task
}

func TestSubmitCompletesShortPage(t *testing.T) {
	t.Parallel()

	h := newHarness(shortPage(), replyProvider{reply: threeItems})
	sub, task := h.run(t, "https://example.com/go", false)

	if !sub.Started || sub.Status != domain.StatusProcessing {
		t.Fatalf("first submit should start a run: %+v", sub)
	}
	if task.Status != domain.StatusCompleted || task.QACount != 3 {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.Title != "Go concurrency" || task.ProviderUsed != "stub" || task.ErrorMessage != "" {
		t.Fatalf("task fields not populated: %+v", task)
	}
	if task.QualityScore < 0 || task.QualityScore > 5 {
		t.Fatalf("aggregate score out of range: %v", task.QualityScore)
	}

	records, _ := h.qa.FindByTaskID(context.Background(), task.ID)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, r := range records {
		if r.Order != i+1 {
			t.Fatalf("record %d has order %d", i, r.Order)
		}
	}
	if records[1].Tags[0] != "channels" {
		t.Fatalf("scalar tags should be wrapped: %v", records[1].Tags)
	}
	if records[2].Type != domain.QATypeOther || records[2].Difficulty != domain.DifficultyIntermediate {
		t.Fatalf("missing type/difficulty should take defaults: %+v", records[2])
	}

	if !h.cache.has(CacheKey(task.URLHash)) {
		t.Fatalf("completed result should be cached")
	}
	if sent := h.notifier.sent(); len(sent) != 1 || sent[0].Status != domain.StatusCompleted {
		t.Fatalf("expected one completion notification, got %+v", sent)
	}
}

func TestSubmitExtractionFailure(t *testing.T) {
	t.Parallel()

	extErr := &domain.ExtractionError{Kind: domain.ExtractionTimeout, URL: "https://slow.example.com"}
	h := newHarness(&stubExtractor{err: extErr}, replyProvider{reply: threeItems})
	_, task := h.run(t, "https://slow.example.com", false)

	if task.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	if task.QACount != 0 || task.ErrorMessage != extErr.Error() {
		t.Fatalf("unexpected failure fields: %+v", task)
	}
	if h.cache.has(CacheKey(task.URLHash)) {
		t.Fatalf("failed tasks must not be cached")
	}
}

func TestSubmitWithoutProviderIsPartial(t *testing.T) {
	t.Parallel()

	h := newHarness(shortPage())
	_, task := h.run(t, "https://example.com/np", false)

	if task.Status != domain.StatusPartial {
		t.Fatalf("expected partial, got %s", task.Status)
	}
	if task.Title != "Go concurrency" || task.QACount != 0 {
		t.Fatalf("metadata should survive: %+v", task)
	}
	if !strings.Contains(task.ErrorMessage, domain.ErrProviderUnavailable.Error()) {
		t.Fatalf("error message should name provider failure: %q", task.ErrorMessage)
	}
}

func TestSubmitUnparseableResponseIsPartial(t *testing.T) {
	t.Parallel()

	h := newHarness(shortPage(), replyProvider{reply: "I cannot help with that."})
	_, task := h.run(t, "https://example.com/garbage", false)

	if task.Status != domain.StatusPartial || task.ErrorMessage != msgNoItems {
		t.Fatalf("expected partial with no-items message: %+v", task)
	}
	if task.QualityScore != 2 {
		t.Fatalf("empty result should score the floor, got %v", task.QualityScore)
	}
}

func TestSubmitWhileProcessingReturnsSameTask(t *testing.T) {
	t.Parallel()

	ext := shortPage()
	ext.gate = make(chan struct{})
	h := newHarness(ext, replyProvider{reply: threeItems})
	ctx := context.Background()

	first, err := h.pipeline.Submit(ctx, "https://example.com/race", false)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := h.pipeline.Submit(ctx, "HTTPS://EXAMPLE.COM/race ", false)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	close(ext.gate)
	h.pipeline.Wait()

	if first.TaskID != second.TaskID {
		t.Fatalf("duplicate submit got a new task: %s vs %s", first.TaskID, second.TaskID)
	}
	if second.Started || second.Status != domain.StatusProcessing {
		t.Fatalf("duplicate submit must not start a run: %+v", second)
	}
	if ext.count() != 1 {
		t.Fatalf("expected one pipeline run, got %d", ext.count())
	}
}

func TestSubmitReusesCompletedUnlessForced(t *testing.T) {
	t.Parallel()

	ext := shortPage()
	h := newHarness(ext, replyProvider{reply: threeItems})
	first, _ := h.run(t, "https://example.com/reuse", false)

	cached, err := h.pipeline.Submit(context.Background(), "https://example.com/reuse", false)
	if err != nil {
		t.Fatalf("cached submit: %v", err)
	}
	if !cached.Cached || cached.TaskID != first.TaskID || cached.Started {
		t.Fatalf("expected cache hit: %+v", cached)
	}

	_ = h.cache.Del(context.Background(), CacheKey(domain.HashURL("https://example.com/reuse")))
	reused, err := h.pipeline.Submit(context.Background(), "https://example.com/reuse", false)
	if err != nil {
		t.Fatalf("reuse submit: %v", err)
	}
	if reused.Started || reused.Status != domain.StatusCompleted {
		t.Fatalf("completed task should be reused: %+v", reused)
	}

	forced, task := h.run(t, "https://example.com/reuse", true)
	if !forced.Started || forced.TaskID != first.TaskID {
		t.Fatalf("force should rerun the same task: %+v", forced)
	}
	if task.Status != domain.StatusCompleted || ext.count() != 2 {
		t.Fatalf("expected a second run: status=%s runs=%d", task.Status, ext.count())
	}
	if records, _ := h.qa.FindByTaskID(context.Background(), task.ID); len(records) != 3 {
		t.Fatalf("rerun must replace records, got %d", len(records))
	}
	if task.AccessCount != 2 {
		t.Fatalf("cache hit and reuse should bump access, got %d", task.AccessCount)
	}
}

func TestSubmitRetriesFailedTask(t *testing.T) {
	t.Parallel()

	ext := &stubExtractor{err: &domain.ExtractionError{Kind: domain.ExtractionRefused, URL: "https://example.com/flaky"}}
	h := newHarness(ext, replyProvider{reply: threeItems})
	_, task := h.run(t, "https://example.com/flaky", false)
	if task.Status != domain.StatusFailed {
		t.Fatalf("expected failed first run, got %s", task.Status)
	}

	ext.err = nil
	ext.ext = shortPage().ext
	_, task = h.run(t, "https://example.com/flaky", false)
	if task.Status != domain.StatusCompleted || task.ErrorMessage != "" {
		t.Fatalf("resubmission should reprocess: %+v", task)
	}
}

func TestForcedRerunDropsStaleMetadata(t *testing.T) {
	t.Parallel()

	ext := shortPage()
	h := newHarness(ext, replyProvider{reply: threeItems})
	_, task := h.run(t, "https://example.com/gone", false)
	if task.ProviderUsed != "stub" || task.Title == "" {
		t.Fatalf("first run should record metadata: %+v", task)
	}

	ext.err = &domain.ExtractionError{Kind: domain.ExtractionHTTP, URL: task.URL, StatusCode: 404}
	_, task = h.run(t, "https://example.com/gone", true)
	if task.Status != domain.StatusFailed {
		t.Fatalf("expected failed rerun, got %s", task.Status)
	}
	if task.Title != "" || len(task.Keywords) != 0 || task.ProviderUsed != "" || task.Category != domain.CategoryOther {
		t.Fatalf("failed rerun kept old metadata: %+v", task)
	}
}

func TestProcessWithoutProviderClearsPreviousProvider(t *testing.T) {
	t.Parallel()

	h := newHarness(shortPage())
	task := domain.Task{
		ID:           "92eb5ffe-e6a0-4c2e-8c0a-3d6a1f4b7e01",
		URL:          "https://example.com/was-done",
		URLHash:      domain.HashURL("https://example.com/was-done"),
		Status:       domain.StatusProcessing,
		Category:     domain.CategoryScience,
		ProviderUsed: "openai",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	h.tasks.put(task)

	if err := h.pipeline.Process(context.Background(), task); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	got, _ := h.tasks.FindByID(context.Background(), task.ID)
	if got.Status != domain.StatusPartial {
		t.Fatalf("expected partial, got %s", got.Status)
	}
	if got.ProviderUsed != "" || got.Category != domain.CategoryOther {
		t.Fatalf("partial rerun kept old provider data: %+v", got)
	}
	if got.Title != "Go concurrency" {
		t.Fatalf("extracted title should be kept, got %q", got.Title)
	}
}

func TestSubmitRejectsUnknownStoredStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(shortPage(), replyProvider{reply: threeItems})
	h.tasks.put(domain.Task{
		ID:      "4a8a08f0-9d1c-4b8e-a6f2-5c7e3b2d1f00",
		URL:     "https://example.com/odd",
		URLHash: domain.HashURL("https://example.com/odd"),
		Status:  domain.TaskStatus("archived"),
	})

	if _, err := h.pipeline.Submit(context.Background(), "https://example.com/odd", false); err == nil {
		t.Fatalf("expected an error for an unknown stored status")
	}
	h.pipeline.Wait()
	if h.extractor.count() != 0 {
		t.Fatalf("no run should start for an unknown status")
	}
}

func TestSubmitRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	h := newHarness(shortPage())
	for _, raw := range []string{"", "ftp://example.com/file", "not a url"} {
		_, err := h.pipeline.Submit(context.Background(), raw, false)
		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("%q: expected validation error, got %v", raw, err)
		}
	}
	if h.extractor.count() != 0 {
		t.Fatalf("invalid urls must not reach the pipeline")
	}
}

func TestReclaimerResumesStaleTask(t *testing.T) {
	t.Parallel()

	h := newHarness(shortPage(), replyProvider{reply: threeItems})
	old := time.Now().Add(-time.Hour)
	stuck := domain.Task{
		ID:        "8f14e45f-ceea-4e1a-9c5e-6b0a3c1f2d11",
		URL:       "https://example.com/stuck",
		URLHash:   domain.HashURL("https://example.com/stuck"),
		Status:    domain.StatusProcessing,
		Category:  domain.CategoryOther,
		CreatedAt: old,
		UpdatedAt: old,
	}
	fresh := stuck
	fresh.ID = "0cc175b9-c0f1-4b6a-831c-399e26977266"
	fresh.URL = "https://example.com/fresh"
	fresh.URLHash = domain.HashURL(fresh.URL)
	fresh.UpdatedAt = time.Now()
	h.tasks.put(stuck)
	h.tasks.put(fresh)

	r := NewReclaimer(nil, h.tasks, h.pipeline, 10*time.Minute, nil)
	resumed, err := r.Sweep(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Sweep error: %v", err)
	}
	if resumed != 1 {
		t.Fatalf("expected one resumed task, got %d", resumed)
	}

	got, _ := h.tasks.FindByID(context.Background(), stuck.ID)
	if got.Status != domain.StatusCompleted {
		t.Fatalf("stale task should complete, got %s", got.Status)
	}
	got, _ = h.tasks.FindByID(context.Background(), fresh.ID)
	if got.Status != domain.StatusProcessing {
		t.Fatalf("fresh task must be left alone, got %s", got.Status)
	}
}

func TestReclaimerSweepPurgesExpiredCache(t *testing.T) {
	t.Parallel()

	h := newHarness(shortPage(), replyProvider{reply: threeItems})
	r := NewReclaimer(nil, h.tasks, h.pipeline, time.Minute, nil)
	if _, err := r.Sweep(context.Background(), time.Now()); err != nil {
		t.Fatalf("Sweep error: %v", err)
	}
	if h.cache.purgeCount() != 1 {
		t.Fatalf("sweep should purge the cache once, got %d", h.cache.purgeCount())
	}
}
