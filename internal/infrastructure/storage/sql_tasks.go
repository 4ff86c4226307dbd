package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/cjhyy/interview-QA-help/internal/domain"
	"github.com/cjhyy/interview-QA-help/internal/ports"
)

var _ ports.TaskRepository = (*SQLStore)(nil)

var taskColumns = []string{
	"id", "url", "url_hash", "title", "status", "qa_count", "keywords", "language",
	"category", "quality_score", "error_message", "extract_ms", "synthesize_ms",
	"total_ms", "provider_used", "access_count", "created_at", "updated_at",
}

// CreateIfAbsent inserts task unless a row with the same url hash exists.
func (s *SQLStore) CreateIfAbsent(ctx context.Context, task domain.Task) (domain.Task, bool, error) {
	keywords, err := encodeStrings(task.Keywords)
	if err != nil {
		return domain.Task{}, false, err
	}

	query, args, err := s.sb.Insert("tasks").
		Columns(taskColumns...).
		Values(
			task.ID, task.URL, task.URLHash, task.Title, string(task.Status), task.QACount, keywords,
			task.Language, string(task.Category), task.QualityScore, nullableString(task.ErrorMessage),
			task.ProcessingTime.Extract, task.ProcessingTime.Synthesize, task.ProcessingTime.Total,
			task.ProviderUsed, task.AccessCount, formatTime(task.CreatedAt), formatTime(task.UpdatedAt),
		).
		Suffix("ON CONFLICT (url_hash) DO NOTHING").
		ToSql()
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("build insert task: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Task{}, false, &domain.PersistenceError{Op: "create task", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Task{}, false, &domain.PersistenceError{Op: "create task", Err: err}
	}

	stored, err := s.FindByHash(ctx, task.URLHash)
	if err != nil {
		return domain.Task{}, false, err
	}
	if stored == nil {
		return domain.Task{}, false, &domain.PersistenceError{Op: "create task", Err: errors.New("row vanished after insert")}
	}
	return *stored, affected == 1, nil
}

// FindByHash returns nil when no task has the hash.
func (s *SQLStore) FindByHash(ctx context.Context, urlHash string) (*domain.Task, error) {
	return s.findOne(ctx, sq.Eq{"url_hash": urlHash})
}

// FindByID returns nil when no task has the id.
func (s *SQLStore) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	return s.findOne(ctx, sq.Eq{"id": id})
}

func (s *SQLStore) findOne(ctx context.Context, where sq.Sqlizer) (*domain.Task, error) {
	query, args, err := s.sb.Select(taskColumns...).From("tasks").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build task lookup: %w", err)
	}
	task, err := scanTask(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return &task, nil
}

// Claim moves a matching task into processing with a single conditional update.
func (s *SQLStore) Claim(ctx context.Context, id string, cond ports.ClaimCondition) (bool, error) {
	from := make([]string, 0, len(cond.From))
	for _, st := range cond.From {
		from = append(from, string(st))
	}
	where := sq.And{sq.Eq{"id": id}, sq.Eq{"status": from}}
	if !cond.UpdatedBefore.IsZero() {
		where = append(where, sq.Lt{"updated_at": formatTime(cond.UpdatedBefore)})
	}

	query, args, err := s.sb.Update("tasks").
		Set("status", string(domain.StatusProcessing)).
		Set("error_message", nil).
		Set("updated_at", formatTime(time.Now())).
		Where(where).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build claim: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, &domain.PersistenceError{Op: "claim task", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, &domain.PersistenceError{Op: "claim task", Err: err}
	}
	return affected == 1, nil
}

// Save overwrites every mutable field of an existing task.
func (s *SQLStore) Save(ctx context.Context, task domain.Task) error {
	keywords, err := encodeStrings(task.Keywords)
	if err != nil {
		return err
	}

	query, args, err := s.sb.Update("tasks").SetMap(map[string]any{
		"url":           task.URL,
		"title":         task.Title,
		"status":        string(task.Status),
		"qa_count":      task.QACount,
		"keywords":      keywords,
		"language":      task.Language,
		"category":      string(task.Category),
		"quality_score": task.QualityScore,
		"error_message": nullableString(task.ErrorMessage),
		"extract_ms":    task.ProcessingTime.Extract,
		"synthesize_ms": task.ProcessingTime.Synthesize,
		"total_ms":      task.ProcessingTime.Total,
		"provider_used": task.ProviderUsed,
		"updated_at":    formatTime(task.UpdatedAt),
	}).Where(sq.Eq{"id": task.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build save task: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &domain.PersistenceError{Op: "save task", Err: err}
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return &domain.PersistenceError{Op: "save task", Err: domain.ErrTaskNotFound}
	}
	return nil
}

// IncrementAccess bumps the access counter.
func (s *SQLStore) IncrementAccess(ctx context.Context, id string) error {
	query, args, err := s.sb.Update("tasks").
		Set("access_count", sq.Expr("access_count + 1")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build increment access: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &domain.PersistenceError{Op: "increment access", Err: err}
	}
	return nil
}

// List pages through completed tasks and returns the total count.
func (s *SQLStore) List(ctx context.Context, q ports.ListQuery) ([]domain.Task, int, error) {
	completed := sq.Eq{"status": string(domain.StatusCompleted)}

	countQuery, countArgs, err := s.sb.Select("COUNT(1)").From("tasks").Where(completed).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	builder := s.sb.Select(taskColumns...).From("tasks").Where(completed)
	if q.Sort == ports.SortPopular {
		builder = builder.OrderBy("access_count DESC", "created_at DESC")
	} else {
		builder = builder.OrderBy("created_at DESC")
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		builder = builder.Offset(uint64(q.Offset))
	}

	tasks, err := s.queryTasks(ctx, builder)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// Search matches completed task titles case-insensitively.
func (s *SQLStore) Search(ctx context.Context, query string, limit int) ([]domain.Task, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	builder := s.sb.Select(taskColumns...).From("tasks").
		Where(sq.Eq{"status": string(domain.StatusCompleted)}).
		Where(sq.Like{"LOWER(title)": pattern}).
		OrderBy("access_count DESC", "created_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return s.queryTasks(ctx, builder)
}

// Stale lists pending or processing tasks untouched since cutoff.
func (s *SQLStore) Stale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Task, error) {
	builder := s.sb.Select(taskColumns...).From("tasks").
		Where(sq.Eq{"status": []string{string(domain.StatusPending), string(domain.StatusProcessing)}}).
		Where(sq.Lt{"updated_at": formatTime(cutoff)}).
		OrderBy("updated_at ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return s.queryTasks(ctx, builder)
}

// Delete removes a task and its QA records.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "delete task", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	qaQuery, qaArgs, err := s.sb.Delete("qa_records").Where(sq.Eq{"task_id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete qa: %w", err)
	}
	if _, err := tx.ExecContext(ctx, qaQuery, qaArgs...); err != nil {
		return &domain.PersistenceError{Op: "delete qa records", Err: err}
	}

	taskQuery, taskArgs, err := s.sb.Delete("tasks").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete task: %w", err)
	}
	res, err := tx.ExecContext(ctx, taskQuery, taskArgs...)
	if err != nil {
		return &domain.PersistenceError{Op: "delete task", Err: err}
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.ErrTaskNotFound
	}

	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "delete task", Err: err}
	}
	return nil
}

func (s *SQLStore) queryTasks(ctx context.Context, builder sq.SelectBuilder) ([]domain.Task, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build task query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		task                 domain.Task
		status, category     string
		keywords             string
		errorMessage         sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&task.ID, &task.URL, &task.URLHash, &task.Title, &status, &task.QACount, &keywords,
		&task.Language, &category, &task.QualityScore, &errorMessage,
		&task.ProcessingTime.Extract, &task.ProcessingTime.Synthesize, &task.ProcessingTime.Total,
		&task.ProviderUsed, &task.AccessCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Task{}, err
	}
	task.Status = domain.TaskStatus(status)
	task.Category = domain.ParseCategory(category)
	task.ErrorMessage = errorMessage.String
	task.CreatedAt = parseTime(createdAt)
	task.UpdatedAt = parseTime(updatedAt)
	if err := json.Unmarshal([]byte(keywords), &task.Keywords); err != nil {
		return domain.Task{}, fmt.Errorf("decode keywords: %w", err)
	}
	return task, nil
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(raw), nil
}
