package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/cjhyy/interview-QA-help/internal/ports"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQL stores entries in the cache_entries table created by the storage
// migrations, so cached results survive restarts of the CLI.
type SQL struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

var (
	_ ports.Cache       = (*SQL)(nil)
	_ ports.CachePurger = (*SQL)(nil)
)

// NewSQL reuses an open handle and the driver's placeholder format.
func NewSQL(db *sql.DB, sb sq.StatementBuilderType) *SQL {
	return &SQL{db: db, sb: sb, now: time.Now}
}

func (c *SQL) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return c.Del(ctx, key)
	}
	expires := c.now().Add(ttl).UTC().Format(timeLayout)

	query, args, err := c.sb.Insert("cache_entries").
		Columns("cache_key", "cache_value", "expires_at").
		Values(key, string(value), expires).
		Suffix("ON CONFLICT (cache_key) DO UPDATE SET cache_value = excluded.cache_value, expires_at = excluded.expires_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build cache set: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *SQL) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query, args, err := c.sb.Select("cache_value", "expires_at").
		From("cache_entries").
		Where(sq.Eq{"cache_key": key}).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build cache get: %w", err)
	}

	var value, expiresAt string
	err = c.db.QueryRowContext(ctx, query, args...).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}

	expires, err := time.Parse(timeLayout, expiresAt)
	if err != nil || !c.now().Before(expires) {
		_ = c.Del(ctx, key)
		return nil, false, nil
	}
	return []byte(value), true, nil
}

func (c *SQL) Del(ctx context.Context, key string) error {
	query, args, err := c.sb.Delete("cache_entries").Where(sq.Eq{"cache_key": key}).ToSql()
	if err != nil {
		return fmt.Errorf("build cache delete: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Purge drops every expired entry and returns how many were removed.
func (c *SQL) Purge(ctx context.Context) (int64, error) {
	query, args, err := c.sb.Delete("cache_entries").
		Where(sq.LtOrEq{"expires_at": c.now().UTC().Format(timeLayout)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cache purge: %w", err)
	}
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return res.RowsAffected()
}
