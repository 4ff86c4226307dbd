package ports

import (
	"context"
	"time"

	"github.com/cjhyy/interview-QA-help/internal/domain"
)

// ContentExtractor fetches a page and reduces it to text and metadata.
type ContentExtractor interface {
	Extract(ctx context.Context, rawURL string) (domain.Extraction, error)
}

// InvokeOptions bounds a single provider call.
type InvokeOptions struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Provider is an AI backend capable of text generation from a prompt.
type Provider interface {
	Name() string
	// Configured reports whether credentials for the backend are present.
	Configured() bool
	Invoke(ctx context.Context, prompt string, opts InvokeOptions) (string, error)
	HealthCheck(ctx context.Context) bool
}

// ClaimCondition restricts which tasks a claim may move into processing.
type ClaimCondition struct {
	From []domain.TaskStatus
	// UpdatedBefore, when non-zero, only matches tasks untouched since then.
	UpdatedBefore time.Time
}

// ListSort orders task listings.
type ListSort string

const (
	SortRecent  ListSort = "recent"
	SortPopular ListSort = "popular"
)

// ListQuery pages through completed tasks.
type ListQuery struct {
	Sort   ListSort
	Limit  int
	Offset int
}

// TaskRepository persists task records keyed by id and url hash.
type TaskRepository interface {
	// CreateIfAbsent inserts task unless its url hash already exists and
	// returns the stored record together with whether it was created.
	CreateIfAbsent(ctx context.Context, task domain.Task) (domain.Task, bool, error)
	FindByHash(ctx context.Context, urlHash string) (*domain.Task, error)
	FindByID(ctx context.Context, id string) (*domain.Task, error)
	// Claim atomically moves a task matching cond into processing and clears
	// its error. It reports false when another caller won the race.
	Claim(ctx context.Context, id string, cond ClaimCondition) (bool, error)
	Save(ctx context.Context, task domain.Task) error
	IncrementAccess(ctx context.Context, id string) error
	List(ctx context.Context, q ListQuery) ([]domain.Task, int, error)
	Search(ctx context.Context, query string, limit int) ([]domain.Task, error)
	Stale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Task, error)
	Delete(ctx context.Context, id string) error
}

// QARepository persists QA records owned by a task.
type QARepository interface {
	BulkCreate(ctx context.Context, records []domain.QARecord) error
	FindByTaskID(ctx context.Context, taskID string) ([]domain.QARecord, error)
	DeleteByTaskID(ctx context.Context, taskID string) error
}

// Cache is a best-effort key/value store with expiry.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns ok=false when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Del(ctx context.Context, key string) error
}

// CachePurger is implemented by caches that can drop expired entries in bulk.
type CachePurger interface {
	Purge(ctx context.Context) (int64, error)
}

// Notifier announces tasks that reached a terminal state.
type Notifier interface {
	NotifyTask(ctx context.Context, task domain.Task) error
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
