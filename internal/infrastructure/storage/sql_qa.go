package storage

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/cjhyy/interview-QA-help/internal/domain"
	"github.com/cjhyy/interview-QA-help/internal/ports"
)

var _ ports.QARepository = (*SQLStore)(nil)

var qaColumns = []string{
	"task_id", "url_hash", "position", "question", "answer", "qa_type",
	"difficulty", "tags", "quality_score", "created_at",
}

// BulkCreate inserts records in one statement.
func (s *SQLStore) BulkCreate(ctx context.Context, records []domain.QARecord) error {
	if len(records) == 0 {
		return nil
	}

	builder := s.sb.Insert("qa_records").Columns(qaColumns...)
	for _, r := range records {
		tags, err := encodeStrings(r.Tags)
		if err != nil {
			return err
		}
		builder = builder.Values(
			r.TaskID, r.URLHash, r.Order, r.Question, r.Answer, string(r.Type),
			string(r.Difficulty), tags, r.QualityScore, formatTime(r.CreatedAt),
		)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build insert qa: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &domain.PersistenceError{Op: "create qa records", Err: err}
	}
	return nil
}

// FindByTaskID returns records ordered by position.
func (s *SQLStore) FindByTaskID(ctx context.Context, taskID string) ([]domain.QARecord, error) {
	query, args, err := s.sb.Select(qaColumns...).From("qa_records").
		Where(sq.Eq{"task_id": taskID}).
		OrderBy("position ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build qa query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query qa records: %w", err)
	}
	defer rows.Close()

	records := []domain.QARecord{}
	for rows.Next() {
		var (
			r               domain.QARecord
			qaType, diff    string
			tags, createdAt string
		)
		if err := rows.Scan(&r.TaskID, &r.URLHash, &r.Order, &r.Question, &r.Answer, &qaType,
			&diff, &tags, &r.QualityScore, &createdAt); err != nil {
			return nil, fmt.Errorf("scan qa record: %w", err)
		}
		r.Type = domain.QAType(qaType)
		r.Difficulty = domain.Difficulty(diff)
		r.CreatedAt = parseTime(createdAt)
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

// DeleteByTaskID removes every record owned by the task.
func (s *SQLStore) DeleteByTaskID(ctx context.Context, taskID string) error {
	query, args, err := s.sb.Delete("qa_records").Where(sq.Eq{"task_id": taskID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete qa: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &domain.PersistenceError{Op: "delete qa records", Err: err}
	}
	return nil
}
