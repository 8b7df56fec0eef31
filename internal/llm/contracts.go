package llm

import (
	"context"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/document"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
)

// Entry is one activity record extracted from a document, in canonical shape.
type Entry struct {
	entity.Classification
	entity.AnalysisContent
}

// StudentContext is what the prompt knows about the student.
type StudentContext struct {
	Grade          string // "1", "2학년", ...
	EnrollmentYear *int
}

// CompletionRequest is a single chat call. ImageDataURL, when set, is sent as
// a vision attachment next to UserText.
type CompletionRequest struct {
	System       string
	UserText     string
	ImageDataURL string
	MaxTokens    int
}

// Completion is the raw model answer.
type Completion struct {
	Content          string
	FinishReason     string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Truncated reports whether the model stopped at the output token ceiling.
func (c Completion) Truncated() bool { return c.FinishReason == "length" }

// Completer is the model transport the extractor depends on.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

type ExtractRequest struct {
	Student StudentContext
	Content document.Content
}

type ExtractResult struct {
	Entries      []Entry
	FinishReason string
	Shape        Shape
	Repaired     bool
	Violations   []Violation
	RawResponse  string
}
