package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cjhyy/interview-QA-help/internal/config"
	"github.com/cjhyy/interview-QA-help/internal/logging"
	"github.com/cjhyy/interview-QA-help/internal/usecase"
)

func TestNewWiresSQLiteStack(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "qa.db")
	cfg.Providers.Order = []string{"openai", "bogus", "gemini"}

	a, err := New(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			t.Fatalf("Close error: %v", err)
		}
	}()

	statuses := a.Providers().Statuses(context.Background())
	if len(statuses) != 2 || statuses[0].Name != "openai" || statuses[1].Name != "gemini" {
		t.Fatalf("unexpected providers: %+v", statuses)
	}
	for _, st := range statuses {
		if st.Configured || st.Active {
			t.Fatalf("no credentials were given: %+v", st)
		}
	}

	page, err := a.Pipeline().List(context.Background(), usecase.ListRequest{})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("fresh database should be empty, got %d", page.Total)
	}
}

func TestNewRejectsUnknownDrivers(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Storage.Driver = "mongo"
	if _, err := New(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatalf("expected unknown storage driver error")
	}

	cfg = config.Default()
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "qa.db")
	cfg.Cache.Driver = "redis"
	if _, err := New(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatalf("expected unknown cache driver error")
	}
}
