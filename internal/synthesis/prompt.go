package synthesis

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/cjhyy/interview-QA-help/internal/domain"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

const classifyExcerptLength = 1000

type chunkPrompt struct {
	Title   string
	Part    int
	Total   int
	Items   string
	Content string
}

type classifyPrompt struct {
	Categories []domain.Category
	Title      string
	Keywords   string
	Excerpt    string
}

// BuildChunkPrompt renders the generation prompt for one chunk. part is 1-based.
func BuildChunkPrompt(title string, part, total int, items, content string) (string, error) {
	return render("chunk.tmpl", chunkPrompt{
		Title:   title,
		Part:    part,
		Total:   total,
		Items:   items,
		Content: content,
	})
}

// BuildClassifyPrompt renders the category prompt.
func BuildClassifyPrompt(title string, keywords []string, content string) (string, error) {
	return render("classify.tmpl", classifyPrompt{
		Categories: domain.Categories,
		Title:      title,
		Keywords:   strings.Join(keywords, ", "),
		Excerpt:    domain.Truncate(content, classifyExcerptLength),
	})
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
