package synthesis

import (
	"errors"
	"testing"

	"github.com/cjhyy/interview-QA-help/internal/domain"
)

func TestParseItemsRepairStages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		raw       string
		wantCount int
		wantFirst string
	}{
		{
			name:      "plain array",
			raw:       `[{"question":"Q1","answer":"A1"},{"question":"Q2","answer":"A2"}]`,
			wantCount: 2,
			wantFirst: "Q1",
		},
		{
			name:      "code fence",
			raw:       "```json\n[{\"question\":\"Q\",\"answer\":\"A\"}]\n```",
			wantCount: 1,
			wantFirst: "Q",
		},
		{
			name:      "missing closing bracket",
			raw:       `[{"question":"Q","answer":"A"`,
			wantCount: 1,
			wantFirst: "Q",
		},
		{
			name:      "cut inside second item",
			raw:       `[{"question":"Q1","answer":"A1"},{"question":"Q2","answer":"A2 is cut`,
			wantCount: 1,
			wantFirst: "Q1",
		},
		{
			name:      "cut on a dangling key",
			raw:       `[{"question":"Q1","answer":"A1"},{"question":"Q2","ans`,
			wantCount: 1,
			wantFirst: "Q1",
		},
		{
			name:      "prose around array",
			raw:       `Here you go: [{"question":"Q","answer":"A"}] hope it helps [1]`,
			wantCount: 1,
			wantFirst: "Q",
		},
		{
			name:      "wrapped object",
			raw:       `{"qaList":[{"question":"Q","answer":"A"}]}`,
			wantCount: 1,
			wantFirst: "Q",
		},
		{
			name:      "truncated wrapper ending in a brace",
			raw:       `{"items":[{"question":"Q1","answer":"A1"},{"question":"Q2","answer":"A2"}`,
			wantCount: 2,
			wantFirst: "Q1",
		},
		{
			name:      "truncated qaList wrapper",
			raw:       `{"qaList":[{"question":"Q","answer":"A"}`,
			wantCount: 1,
			wantFirst: "Q",
		},
		{
			name:      "loose objects",
			raw:       `1. {"question":"Q1","answer":"A1"} 2. {"question":"Q2","answer":"A2"}`,
			wantCount: 2,
			wantFirst: "Q1",
		},
		{
			name:      "empty array",
			raw:       `[]`,
			wantCount: 0,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			items, err := ParseItems(tc.raw, 8)
			if err != nil {
				t.Fatalf("ParseItems error: %v", err)
			}
			if len(items) != tc.wantCount {
				t.Fatalf("expected %d items, got %d: %+v", tc.wantCount, len(items), items)
			}
			if tc.wantCount > 0 && items[0].Question != tc.wantFirst {
				t.Fatalf("unexpected first question: %q", items[0].Question)
			}
		})
	}
}

func TestParseItemsUnrecoverable(t *testing.T) {
	t.Parallel()

	_, err := ParseItems("I cannot help with that.", 8)
	var parseErr *domain.ResponseParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ResponseParseError, got %v", err)
	}
}

func TestParseItemsCoercesFields(t *testing.T) {
	t.Parallel()

	raw := `[
	  {"question":" Q1 ","answer":"A1","tags":"go","score":9,"type":"权衡","difficulty":"hard"},
	  {"question":"Q2","answer":"A2","tags":["a","a",""," b "],"score":"0.2"},
	  {"question":"Q3","answer":"A3","score":"high","type":"unknown"},
	  {"question":"","answer":"dropped"},
	  {"answer":"no question"},
	  "not an object"
	]`

	items, err := ParseItems(raw, 8)
	if err != nil {
		t.Fatalf("ParseItems error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	first := items[0]
	if first.Question != "Q1" {
		t.Fatalf("question should be trimmed: %q", first.Question)
	}
	if len(first.Tags) != 1 || first.Tags[0] != "go" {
		t.Fatalf("scalar tag should be wrapped: %v", first.Tags)
	}
	if first.Score != 5 {
		t.Fatalf("score should clamp to 5, got %v", first.Score)
	}
	if first.Type != domain.QATypeTradeoffs || first.Difficulty != domain.DifficultyAdvanced {
		t.Fatalf("aliases not mapped: %s/%s", first.Type, first.Difficulty)
	}

	second := items[1]
	if len(second.Tags) != 2 || second.Tags[1] != "b" {
		t.Fatalf("tags should be trimmed and deduplicated: %v", second.Tags)
	}
	if second.Score != 1 {
		t.Fatalf("score should clamp to 1, got %v", second.Score)
	}

	third := items[2]
	if third.Score != 3 || third.Type != domain.QATypeOther || third.Difficulty != domain.DifficultyIntermediate {
		t.Fatalf("defaults not applied: %+v", third)
	}
	if third.Tags == nil {
		t.Fatalf("missing tags should become an empty list")
	}
}

func TestParseItemsCapsPerChunk(t *testing.T) {
	t.Parallel()

	raw := `[{"question":"1","answer":"a"},{"question":"2","answer":"a"},{"question":"3","answer":"a"}]`
	items, err := ParseItems(raw, 2)
	if err != nil {
		t.Fatalf("ParseItems error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected cap of 2, got %d", len(items))
	}
}

func TestParseItemsIsStableUnderReapplication(t *testing.T) {
	t.Parallel()

	raw := "```\n[{\"question\":\"Q\",\"answer\":\"A\",\"tags\":[\"x\"]}]\n```"
	if stripCodeFence(stripCodeFence(raw)) != stripCodeFence(raw) {
		t.Fatalf("fence stripping must be idempotent")
	}
}
