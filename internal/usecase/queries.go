package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cjhyy/interview-QA-help/internal/domain"
	"github.com/cjhyy/interview-QA-help/internal/ports"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 50
)

// StatusView is the status query contract.
type StatusView struct {
	Status       domain.TaskStatus `json:"status"`
	URL          string            `json:"url"`
	Data         *Summary          `json:"data,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
}

// Status reports a task's state. Data is attached only for completed tasks,
// whose access counter is bumped on every read.
func (p *Pipeline) Status(ctx context.Context, id string) (StatusView, error) {
	task, err := p.load(ctx, id)
	if err != nil {
		return StatusView{}, err
	}

	view := StatusView{Status: task.Status, URL: task.URL, ErrorMessage: task.ErrorMessage}
	if task.Status != domain.StatusCompleted {
		return view, nil
	}

	records, err := p.qa.FindByTaskID(ctx, task.ID)
	if err != nil {
		return StatusView{}, fmt.Errorf("load qa records: %w", err)
	}
	p.bumpAccess(ctx, task.ID)
	task.AccessCount++
	view.Data = &Summary{Task: *task, QA: records}
	return view, nil
}

// ListRequest pages through completed tasks. Page is 1-based.
type ListRequest struct {
	Sort  ports.ListSort
	Page  int
	Limit int
}

// Page is one page of completed tasks.
type Page struct {
	Items []domain.Task `json:"items"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func (p *Pipeline) List(ctx context.Context, req ListRequest) (Page, error) {
	if req.Sort != ports.SortPopular {
		req.Sort = ports.SortRecent
	}
	if req.Page < 1 {
		req.Page = 1
	}
	req.Limit = clampLimit(req.Limit)

	items, total, err := p.tasks.List(ctx, ports.ListQuery{
		Sort:   req.Sort,
		Limit:  req.Limit,
		Offset: (req.Page - 1) * req.Limit,
	})
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []domain.Task{}
	}
	return Page{Items: items, Total: total, Page: req.Page, Limit: req.Limit}, nil
}

// Search matches completed task titles.
func (p *Pipeline) Search(ctx context.Context, query string, limit int) ([]domain.Task, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &domain.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	items, err := p.tasks.Search(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Task{}
	}
	return items, nil
}

// QA returns the task's records in order.
func (p *Pipeline) QA(ctx context.Context, id string) ([]domain.QARecord, error) {
	task, err := p.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.qa.FindByTaskID(ctx, task.ID)
}

// Markdown renders the task and its records as a Markdown document.
func (p *Pipeline) Markdown(ctx context.Context, id string) (string, error) {
	task, err := p.load(ctx, id)
	if err != nil {
		return "", err
	}
	records, err := p.qa.FindByTaskID(ctx, task.ID)
	if err != nil {
		return "", err
	}
	return RenderMarkdown(*task, records), nil
}

// RenderMarkdown formats a task export.
func RenderMarkdown(task domain.Task, records []domain.QARecord) string {
	title := task.Title
	if title == "" {
		title = "Untitled"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Source: %s\n\n", task.URL)
	if len(task.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n\n", strings.Join(task.Keywords, ", "))
	}
	for _, r := range records {
		fmt.Fprintf(&b, "## %d. %s\n\n", r.Order, r.Question)
		fmt.Fprintf(&b, "%s\n\n", r.Answer)
		fmt.Fprintf(&b, "_%s · %s_", r.Type, r.Difficulty)
		if len(r.Tags) > 0 {
			fmt.Fprintf(&b, " Tags: %s", strings.Join(r.Tags, ", "))
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// Delete removes the task, its records and the cached summary.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	task, err := p.load(ctx, id)
	if err != nil {
		return err
	}
	if err := p.tasks.Delete(ctx, task.ID); err != nil {
		return err
	}
	p.evict(ctx, task.URLHash)
	p.info("task deleted", "task", task.ID)
	return nil
}

func (p *Pipeline) load(ctx context.Context, id string) (*domain.Task, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return nil, &domain.ValidationError{Field: "id", Reason: "must be a task identifier"}
	}
	task, err := p.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageLimit
	case limit > MaxPageLimit:
		return MaxPageLimit
	default:
		return limit
	}
}
