package domain

import (
	"errors"
	"testing"
)

func TestHashURLIgnoresCaseAndWhitespace(t *testing.T) {
	t.Parallel()

	if HashURL(" https://A.com ") != HashURL("https://a.com") {
		t.Fatalf("hash should not depend on case or surrounding whitespace")
	}
	if HashURL("https://a.com") == HashURL("https://b.com") {
		t.Fatalf("different urls must not collide")
	}
	if got := len(HashURL("https://a.com")); got != 32 {
		t.Fatalf("expected 32 hex chars, got %d", got)
	}
}

func TestValidateURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		ok    bool
	}{
		{name: "https", input: "https://example.com/post", ok: true},
		{name: "padded", input: "  http://example.com  ", ok: true},
		{name: "empty", input: "   ", ok: false},
		{name: "ftp", input: "ftp://example.com", ok: false},
		{name: "relative", input: "/just/a/path", ok: false},
		{name: "no host", input: "https://", ok: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ValidateURL(tc.input)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
			}
		})
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	t.Parallel()

	if got := Truncate("你好世界", 2); got != "你好" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Fatalf("short strings must be untouched: %q", got)
	}
}

func TestExtractionErrorMessages(t *testing.T) {
	t.Parallel()

	err := &ExtractionError{Kind: ExtractionHTTP, StatusCode: 404}
	if err.Error() != "target site responded with HTTP 404" {
		t.Fatalf("unexpected message: %s", err.Error())
	}

	inner := errors.New("boom")
	wrapped := &ExtractionError{Kind: ExtractionUnknown, Err: inner}
	if !errors.Is(wrapped, inner) {
		t.Fatalf("extraction error should unwrap to its cause")
	}
}
