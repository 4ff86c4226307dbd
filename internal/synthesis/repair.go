package synthesis

import (
	"encoding/json"
	"strings"

	"github.com/cjhyy/interview-QA-help/internal/domain"
)

const snippetLimit = 200

// ParseItems turns a raw provider response into QA items. Stages run in order
// until one produces a JSON array: fence stripping, direct decode, truncation
// repair, first balanced array, then object-by-object salvage. The returned
// error is always a *domain.ResponseParseError.
func ParseItems(raw string, maxItems int) ([]domain.QAItem, error) {
	text := stripCodeFence(raw)

	elements, ok := decodeArray(text)
	if !ok {
		elements, ok = repairTruncated(text)
	}
	if !ok {
		elements, ok = firstBalancedArray(text)
	}
	if !ok {
		elements = scanObjects(text)
		ok = len(elements) > 0
	}
	if !ok {
		return nil, &domain.ResponseParseError{Snippet: domain.Truncate(text, snippetLimit)}
	}

	items := make([]domain.QAItem, 0, len(elements))
	for _, element := range elements {
		item, keep := normalizeItem(element)
		if !keep {
			continue
		}
		items = append(items, item)
		if maxItems > 0 && len(items) == maxItems {
			break
		}
	}
	return items, nil
}

func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	body := text[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimLeft(body, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// decodeArray accepts a bare array, an object wrapping one array field, or a
// single object that looks like an item.
func decodeArray(text string) ([]json.RawMessage, bool) {
	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(text), &elements); err == nil {
		return elements, true
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &wrapper); err != nil {
		return nil, false
	}
	if _, ok := wrapper["question"]; ok {
		return []json.RawMessage{json.RawMessage(text)}, true
	}
	for _, key := range []string{"items", "qaList", "qa_list", "questions", "data"} {
		if value, ok := wrapper[key]; ok {
			if err := json.Unmarshal(value, &elements); err == nil {
				return elements, true
			}
		}
	}
	return nil, false
}

// repairTruncated handles responses cut off before the closing bracket. It
// first keeps every complete object, then tries to close the open structure,
// backing off one comma at a time.
func repairTruncated(text string) ([]json.RawMessage, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.HasSuffix(trimmed, "]") || strings.HasSuffix(trimmed, "}") {
		return nil, false
	}
	start := strings.IndexByte(trimmed, '[')
	if start < 0 {
		return nil, false
	}
	body := trimmed[start:]

	if end := lastCompleteObject(body); end > 0 {
		if elements, ok := decodeArray(body[:end] + "]"); ok {
			return elements, true
		}
	}

	candidate := body
	for attempt := 0; attempt < 32; attempt++ {
		if closed, ok := closeStructure(candidate); ok {
			if elements, ok := decodeArray(closed); ok {
				return elements, true
			}
		}
		cut := lastCommaOutsideString(candidate)
		if cut <= 0 {
			break
		}
		candidate = candidate[:cut]
	}
	return nil, false
}

// lastCompleteObject returns the offset just past the last object closed at
// array depth one, or -1.
func lastCompleteObject(body string) int {
	end := -1
	depth := 0
	s := scanner{}
	for i := 0; i < len(body); i++ {
		c := body[i]
		if s.consume(c) {
			continue
		}
		switch c {
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if c == '}' && depth == 1 {
				end = i + 1
			}
		}
	}
	return end
}

// closeStructure terminates an open string and appends the missing closers.
func closeStructure(body string) (string, bool) {
	var stack []byte
	s := scanner{}
	for i := 0; i < len(body); i++ {
		c := body[i]
		if s.consume(c) {
			continue
		}
		switch c {
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", false
			}
			stack = stack[:len(stack)-1]
		}
	}

	var b strings.Builder
	b.WriteString(body)
	if s.inString {
		if s.escaped {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	out := strings.TrimRight(b.String(), " \t\r\n,")
	if strings.HasSuffix(out, ":") {
		return "", false
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out, true
}

func lastCommaOutsideString(body string) int {
	pos := -1
	s := scanner{}
	for i := 0; i < len(body); i++ {
		c := body[i]
		if s.consume(c) {
			continue
		}
		if c == ',' {
			pos = i
		}
	}
	return pos
}

// firstBalancedArray decodes the first bracket-matched [...] substring.
func firstBalancedArray(text string) ([]json.RawMessage, bool) {
	for offset := 0; offset < len(text); {
		rel := strings.IndexByte(text[offset:], '[')
		if rel < 0 {
			return nil, false
		}
		start := offset + rel
		if end := matchClose(text, start, '[', ']'); end > start {
			var elements []json.RawMessage
			if err := json.Unmarshal([]byte(text[start:end]), &elements); err == nil {
				return elements, true
			}
		}
		offset = start + 1
	}
	return nil, false
}

// scanObjects collects every balanced {...} that decodes on its own. Unclosed
// openers are skipped so items nested in a cut-off wrapper are still found.
func scanObjects(text string) []json.RawMessage {
	var objects []json.RawMessage
	for offset := 0; offset < len(text); {
		rel := strings.IndexByte(text[offset:], '{')
		if rel < 0 {
			break
		}
		start := offset + rel
		end := matchClose(text, start, '{', '}')
		if end < 0 {
			offset = start + 1
			continue
		}
		candidate := json.RawMessage(text[start:end])
		if json.Valid(candidate) {
			objects = append(objects, candidate)
			offset = end
			continue
		}
		offset = start + 1
	}
	return objects
}

// matchClose returns the offset just past the bracket closing text[start].
func matchClose(text string, start int, open, close byte) int {
	depth := 0
	s := scanner{}
	for i := start; i < len(text); i++ {
		c := text[i]
		if s.consume(c) {
			continue
		}
		switch c {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// scanner tracks JSON string state byte by byte.
type scanner struct {
	inString bool
	escaped  bool
}

// consume reports whether c belongs to a string literal, quotes included.
func (s *scanner) consume(c byte) bool {
	if s.inString {
		switch {
		case s.escaped:
			s.escaped = false
		case c == '\\':
			s.escaped = true
		case c == '"':
			s.inString = false
		}
		return true
	}
	if c == '"' {
		s.inString = true
		return true
	}
	return false
}
