package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	body := "storage:\n  driver: sqlite\n  dsn: " + filepath.Join(dir, "qa.db") + "\n" +
		"cache:\n  driver: memory\n" +
		"logging:\n  level: error\n" +
		"providers:\n  order: [openai]\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestListOnEmptyStoreEmitsJSON(t *testing.T) {
	t.Parallel()

	out, err := runCLI(t, "list", "--limit", "5")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	var page struct {
		Items []any `json:"items"`
		Total int   `json:"total"`
		Page  int   `json:"page"`
		Limit int   `json:"limit"`
	}
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if page.Total != 0 || page.Page != 1 || page.Limit != 5 || page.Items == nil {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestListRejectsUnknownSort(t *testing.T) {
	t.Parallel()

	if _, err := runCLI(t, "list", "--sort", "oldest"); err == nil {
		t.Fatalf("expected invalid sort error")
	}
}

func TestStatusRejectsBadID(t *testing.T) {
	t.Parallel()

	_, err := runCLI(t, "status", "not-a-task")
	if err == nil || !strings.Contains(err.Error(), "invalid id") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitRejectsBadURL(t *testing.T) {
	t.Parallel()

	if _, err := runCLI(t, "submit", "ftp://example.com"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestProvidersListsConfiguredOrder(t *testing.T) {
	t.Parallel()

	out, err := runCLI(t, "providers")
	if err != nil {
		t.Fatalf("providers error: %v", err)
	}
	var statuses []struct {
		Name       string
		Configured bool
	}
	if err := json.Unmarshal([]byte(out), &statuses); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(statuses) != 1 || statuses[0].Name != "openai" {
		t.Fatalf("unexpected providers: %+v", statuses)
	}
}

func TestRenderTableAndClip(t *testing.T) {
	t.Parallel()

	rendered := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "x"}}, []columnAlignment{alignRight})
	if !strings.Contains(rendered, "A") || !strings.Contains(rendered, "x") {
		t.Fatalf("unexpected table:\n%s", rendered)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatalf("empty headers should render nothing")
	}

	if got := clip("hello   world", 20); got != "hello world" {
		t.Fatalf("clip should collapse spaces, got %q", got)
	}
	if got := clip("abcdefghij", 6); got != "abc..." {
		t.Fatalf("clip truncation got %q", got)
	}
	if got := clip("你好世界", 2); got != "你好" {
		t.Fatalf("clip should count runes, got %q", got)
	}
}
