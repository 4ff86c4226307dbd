package domain

import "time"

// TaskStatus enumerates pipeline milestones of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusPartial    TaskStatus = "partial"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no pipeline run is attached to the status.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed:
		return true
	default:
		return false
	}
}

// Category is the coarse topic assigned to a processed page.
type Category string

const (
	CategoryTechnology    Category = "technology"
	CategoryNews          Category = "news"
	CategoryEducation     Category = "education"
	CategoryEntertainment Category = "entertainment"
	CategoryBusiness      Category = "business"
	CategoryScience       Category = "science"
	CategoryOther         Category = "other"
)

// Categories lists every accepted category value.
var Categories = []Category{
	CategoryTechnology,
	CategoryNews,
	CategoryEducation,
	CategoryEntertainment,
	CategoryBusiness,
	CategoryScience,
	CategoryOther,
}

// ParseCategory maps free text onto a known category, falling back to other.
func ParseCategory(value string) Category {
	for _, c := range Categories {
		if string(c) == value {
			return c
		}
	}
	return CategoryOther
}

// ProcessingTime records stage durations in milliseconds.
type ProcessingTime struct {
	Extract    int64 `json:"extract"`
	Synthesize int64 `json:"synthesize"`
	Total      int64 `json:"total"`
}

// Task is the per-URL unit of pipeline state.
type Task struct {
	ID             string         `json:"id"`
	URL            string         `json:"url"`
	URLHash        string         `json:"urlHash"`
	Title          string         `json:"title"`
	Status         TaskStatus     `json:"status"`
	QACount        int            `json:"qaCount"`
	Keywords       []string       `json:"keywords"`
	Language       string         `json:"language,omitempty"`
	Category       Category       `json:"category"`
	QualityScore   float64        `json:"qualityScore"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
	ProcessingTime ProcessingTime `json:"processingTime"`
	ProviderUsed   string         `json:"providerUsed,omitempty"`
	AccessCount    int64          `json:"accessCount"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// SetError stores msg as the task error, capped to MaxErrorMessageLength runes.
func (t *Task) SetError(msg string) {
	t.ErrorMessage = Truncate(msg, MaxErrorMessageLength)
}

// QAType is the taxonomy of generated questions.
type QAType string

const (
	QATypeConcept        QAType = "concept"
	QATypeImplementation QAType = "implementation"
	QATypeApplication    QAType = "application"
	QATypeTradeoffs      QAType = "tradeoffs"
	QATypeComparison     QAType = "comparison"
	QATypeExperience     QAType = "experience"
	QATypeOther          QAType = "other"
)

// Difficulty grades a question.
type Difficulty string

const (
	DifficultyBasic        Difficulty = "basic"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// QARecord is one persisted question/answer pair owned by a task.
type QARecord struct {
	TaskID       string     `json:"taskId"`
	URLHash      string     `json:"urlHash"`
	Question     string     `json:"question"`
	Answer       string     `json:"answer"`
	Order        int        `json:"order"`
	Type         QAType     `json:"type"`
	Difficulty   Difficulty `json:"difficulty"`
	Tags         []string   `json:"tags"`
	QualityScore float64    `json:"qualityScore"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Extraction is what the content extractor reduces a page to.
type Extraction struct {
	Title    string
	Content  string
	Keywords []string
	Language string
}

// Length limits applied before persistence.
const (
	MaxTitleLength        = 500
	MaxErrorMessageLength = 500
	MaxQuestionLength     = 1000
	MaxAnswerLength       = 5000
)

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// QAItem is a generated pair before it is numbered and persisted.
type QAItem struct {
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Type       QAType     `json:"type"`
	Difficulty Difficulty `json:"difficulty"`
	Tags       []string   `json:"tags"`
	// Score is the model's own rating, clamped to [1,5].
	Score float64 `json:"score"`
}
