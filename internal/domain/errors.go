package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTaskNotFound is returned when a task identifier matches nothing.
var ErrTaskNotFound = errors.New("task not found")

// ErrProviderUnavailable means no configured AI backend passed selection.
var ErrProviderUnavailable = errors.New("no AI provider available")

// ValidationError rejects malformed input before it reaches the pipeline.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExtractionKind classifies why fetching a page failed.
type ExtractionKind string

const (
	ExtractionDNS     ExtractionKind = "dns"
	ExtractionRefused ExtractionKind = "refused"
	ExtractionTimeout ExtractionKind = "timeout"
	ExtractionHTTP    ExtractionKind = "http"
	ExtractionUnknown ExtractionKind = "unknown"
)

// ExtractionError reports a failed fetch or parse of the source page.
type ExtractionError struct {
	Kind       ExtractionKind
	URL        string
	StatusCode int
	Err        error
}

func (e *ExtractionError) Error() string {
	switch e.Kind {
	case ExtractionDNS:
		return "cannot resolve host, check the URL"
	case ExtractionRefused:
		return "connection refused by the target site"
	case ExtractionTimeout:
		return "timed out fetching the page"
	case ExtractionHTTP:
		return fmt.Sprintf("target site responded with HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		return "failed to extract page content: " + e.Err.Error()
	}
	return "failed to extract page content"
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ResponseParseError means a provider response survived no repair stage.
type ResponseParseError struct {
	Chunk   int
	Snippet string
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("chunk %d: unparseable provider response: %s", e.Chunk, strings.TrimSpace(e.Snippet))
}

// PersistenceError wraps a store write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
