package ai

import (
	"context"
	"errors"
)

var (
	ErrNoDocument = errors.New("ai: no catalog document attached")
	ErrEmptyPlan  = errors.New("ai: slide plan has no slides")
	ErrNotEnabled = errors.New("ai: assistant is not configured")
)

type SlideSpec struct {
	Title            string   `json:"title"`
	Points           []string `json:"points"`
	ImageDescription string   `json:"image_description,omitempty"`
}

type SlidePlan struct {
	Title  string      `json:"presentation_title"`
	Slides []SlideSpec `json:"slides"`
}

// Document is a catalog uploaded to the model provider. Text is used
// instead of URI when the upload was not possible.
type Document struct {
	Name        string
	DisplayName string
	URI         string
	MIMEType    string
	Text        string
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type AnswerRequest struct {
	Question   string
	WebContext string
	Document   *Document
	History    []Message
	Language   string
}

type Assistant interface {
	Answer(ctx context.Context, req AnswerRequest) (string, error)
	SlidePlan(ctx context.Context, analysis, language string) (SlidePlan, error)
	ListModels(ctx context.Context) ([]string, error)
	Upload(ctx context.Context, path, displayName string) (*Document, error)
	Delete(ctx context.Context, doc *Document) error
}

// ModelSelector is implemented by assistants that can switch models
// while keeping their connection.
type ModelSelector interface {
	ForModel(model string) Assistant
}

type Noop struct{}

func (Noop) Answer(ctx context.Context, req AnswerRequest) (string, error) { return "", ErrNotEnabled }
func (Noop) SlidePlan(ctx context.Context, analysis, language string) (SlidePlan, error) {
	return SlidePlan{}, ErrNotEnabled
}
func (Noop) ListModels(ctx context.Context) ([]string, error) { return []string{DefaultModel}, nil }
func (Noop) Upload(ctx context.Context, path, displayName string) (*Document, error) {
	return nil, ErrNotEnabled
}
func (Noop) Delete(ctx context.Context, doc *Document) error { return nil }

var (
	_ Assistant = Noop{}
	_ Assistant = (*Gemini)(nil)
)
