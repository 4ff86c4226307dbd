// Package segment splits long text into overlapping windows.
package segment

const (
	DefaultThreshold = 4000
	DefaultSize      = 2000
	DefaultOverlap   = 200
)

// Chunk is a bounded slice of content. Offsets count runes.
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
	// CoreStart and CoreEnd delimit the non-overlapping part of the chunk.
	CoreStart int
	CoreEnd   int
}

// Segmenter holds the window parameters.
type Segmenter struct {
	threshold int
	size      int
	overlap   int
}

// New builds a segmenter; non-positive values fall back to defaults and the
// overlap is kept strictly below the window size.
func New(threshold, size, overlap int) Segmenter {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = size - 1
	}
	return Segmenter{threshold: threshold, size: size, overlap: overlap}
}

// NeedsSplit reports whether content exceeds the split threshold.
func (s Segmenter) NeedsSplit(content string) bool {
	return runeCount(content) > s.threshold
}

// Split returns the chunks for content. Content at or below the threshold
// comes back as a single chunk; empty content yields none.
func (s Segmenter) Split(content string) []Chunk {
	runes := []rune(content)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= s.threshold {
		return []Chunk{{Index: 0, Text: content, End: n, CoreEnd: n}}
	}

	count := (n + s.size - 1) / s.size
	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		coreStart := i * s.size
		coreEnd := min(n, coreStart+s.size)

		start := coreStart
		if i > 0 {
			start = max(0, coreStart-s.overlap)
		}
		end := coreEnd
		if i < count-1 {
			end = min(n, coreEnd+s.overlap)
		}

		chunks = append(chunks, Chunk{
			Index:     i,
			Text:      string(runes[start:end]),
			Start:     start,
			End:       end,
			CoreStart: coreStart,
			CoreEnd:   coreEnd,
		})
	}
	return chunks
}

// Core returns the non-overlapping part of the chunk text.
func (c Chunk) Core() string {
	runes := []rune(c.Text)
	return string(runes[c.CoreStart-c.Start : c.CoreEnd-c.Start])
}

func runeCount(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
