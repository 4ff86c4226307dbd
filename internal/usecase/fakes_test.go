package usecase

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cjhyy/interview-QA-help/internal/domain"
	"github.com/cjhyy/interview-QA-help/internal/ports"
)

type memTasks struct {
	mu     sync.Mutex
	byHash map[string]domain.Task
	claims int
}

func newMemTasks() *memTasks {
	return &memTasks{byHash: map[string]domain.Task{}}
}

func (m *memTasks) CreateIfAbsent(_ context.Context, task domain.Task) (domain.Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byHash[task.URLHash]; ok {
		return existing, false, nil
	}
	m.byHash[task.URLHash] = task
	return task, true, nil
}

func (m *memTasks) FindByHash(_ context.Context, urlHash string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.byHash[urlHash]; ok {
		return &t, nil
	}
	return nil, nil
}

func (m *memTasks) FindByID(_ context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.byHash {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *memTasks) Claim(_ context.Context, id string, cond ports.ClaimCondition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, t := range m.byHash {
		if t.ID != id {
			continue
		}
		if !slices.Contains(cond.From, t.Status) {
			return false, nil
		}
		if !cond.UpdatedBefore.IsZero() && !t.UpdatedAt.Before(cond.UpdatedBefore) {
			return false, nil
		}
		t.Status = domain.StatusProcessing
		t.ErrorMessage = ""
		t.UpdatedAt = time.Now()
		m.byHash[hash] = t
		m.claims++
		return true, nil
	}
	return false, nil
}

func (m *memTasks) Save(_ context.Context, task domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byHash[task.URLHash]
	if !ok {
		return &domain.PersistenceError{Op: "save task", Err: domain.ErrTaskNotFound}
	}
	task.AccessCount = existing.AccessCount
	m.byHash[task.URLHash] = task
	return nil
}

func (m *memTasks) IncrementAccess(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, t := range m.byHash {
		if t.ID == id {
			t.AccessCount++
			m.byHash[hash] = t
			return nil
		}
	}
	return domain.ErrTaskNotFound
}

func (m *memTasks) filter(keep func(domain.Task) bool) []domain.Task {
	var out []domain.Task
	for _, t := range m.byHash {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memTasks) List(_ context.Context, q ports.ListQuery) ([]domain.Task, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filter(func(t domain.Task) bool { return t.Status == domain.StatusCompleted })
	if q.Sort == ports.SortPopular {
		sort.SliceStable(all, func(i, j int) bool { return all[i].AccessCount > all[j].AccessCount })
	}
	total := len(all)
	if q.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[q.Offset:]
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, total, nil
}

func (m *memTasks) Search(_ context.Context, query string, limit int) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(query)
	out := m.filter(func(t domain.Task) bool {
		return t.Status == domain.StatusCompleted && strings.Contains(strings.ToLower(t.Title), needle)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTasks) Stale(_ context.Context, cutoff time.Time, limit int) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.filter(func(t domain.Task) bool {
		return (t.Status == domain.StatusPending || t.Status == domain.StatusProcessing) && t.UpdatedAt.Before(cutoff)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTasks) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, t := range m.byHash {
		if t.ID == id {
			delete(m.byHash, hash)
			return nil
		}
	}
	return domain.ErrTaskNotFound
}

func (m *memTasks) put(task domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHash[task.URLHash] = task
}

type memQA struct {
	mu      sync.Mutex
	records map[string][]domain.QARecord
}

func newMemQA() *memQA {
	return &memQA{records: map[string][]domain.QARecord{}}
}

func (m *memQA) BulkCreate(_ context.Context, records []domain.QARecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.TaskID] = append(m.records[r.TaskID], r)
	}
	return nil
}

func (m *memQA) FindByTaskID(_ context.Context, taskID string) ([]domain.QARecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]domain.QARecord{}, m.records[taskID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *memQA) DeleteByTaskID(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, taskID)
	return nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	purges  int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *memCache) Purge(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purges++
	return 0, nil
}

func (c *memCache) purgeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purges
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

type stubExtractor struct {
	ext   domain.Extraction
	err   error
	gate  chan struct{}
	mu    sync.Mutex
	calls int
}

func (s *stubExtractor) Extract(ctx context.Context, _ string) (domain.Extraction, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return domain.Extraction{}, ctx.Err()
		}
	}
	return s.ext, s.err
}

func (s *stubExtractor) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type replyProvider struct {
	reply string
}

func (p replyProvider) Name() string                     { return "stub" }
func (p replyProvider) Configured() bool                 { return true }
func (p replyProvider) HealthCheck(context.Context) bool { return true }

func (p replyProvider) Invoke(context.Context, string, ports.InvokeOptions) (string, error) {
	return p.reply, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	tasks []domain.Task
}

func (n *recordingNotifier) NotifyTask(_ context.Context, task domain.Task) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, task)
	return nil
}

func (n *recordingNotifier) sent() []domain.Task {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Task{}, n.tasks...)
}
