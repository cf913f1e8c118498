package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thywilljoshua/catalogdeck/internal/ai"
	"github.com/thywilljoshua/catalogdeck/internal/catalog"
	"github.com/thywilljoshua/catalogdeck/internal/deck"
	"github.com/thywilljoshua/catalogdeck/internal/search"
)

var (
	ErrNoCatalog       = errors.New("session: no catalog loaded")
	ErrNothingToExport = errors.New("session: no analysis to export yet")
)

// DeckWriter is satisfied by *deck.Builder.
type DeckWriter interface {
	WriteFile(ctx context.Context, plan deck.Plan, dir string) (string, deck.Report, error)
}

type Options struct {
	Model     string
	Language  string
	Assistant ai.Assistant
	Search    search.Searcher
	Deck      DeckWriter
	Logger    *slog.Logger
	Now       func() time.Time
}

// Session holds everything one interactive conversation accumulates.
// It is not safe for concurrent use.
type Session struct {
	ID           uuid.UUID
	Model        string
	Language     string
	Catalog      *catalog.Catalog
	History      []ai.Message
	LastAnalysis string
	Started      time.Time

	assistant ai.Assistant
	search    search.Searcher
	deck      DeckWriter
	logger    *slog.Logger
	now       func() time.Time
	models    []string
}

func New(opts Options) (*Session, error) {
	if opts.Assistant == nil {
		return nil, errors.New("session: assistant is required")
	}
	s := &Session{
		ID:        uuid.New(),
		Model:     opts.Model,
		Language:  opts.Language,
		assistant: opts.Assistant,
		search:    opts.Search,
		deck:      opts.Deck,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if s.search == nil {
		s.search = search.Disabled{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.Model == "" {
		s.Model = ai.DefaultModel
	}
	s.Started = s.now()
	s.logger = s.logger.With("session", s.ID.String())
	return s, nil
}

// Load ingests a catalog, replacing (and deleting) any previous one.
func (s *Session) Load(ctx context.Context, path string) (*catalog.Catalog, error) {
	c, err := catalog.Ingest(ctx, path, s.assistant, s.logger)
	if err != nil {
		return nil, err
	}
	if s.Catalog != nil {
		s.deleteDocument(ctx)
	}
	s.Catalog = c
	s.History = nil
	s.LastAnalysis = ""
	return c, nil
}

// Ask answers a question about the loaded catalog using fresh web context.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("session: empty question")
	}
	if s.Catalog == nil || s.Catalog.Document == nil {
		return "", ErrNoCatalog
	}

	web := s.search.Context(ctx, question)
	answer, err := s.assistant.Answer(ctx, ai.AnswerRequest{
		Question:   question,
		WebContext: web,
		Document:   s.Catalog.Document,
		History:    s.History,
		Language:   s.Language,
	})
	if err != nil {
		return "", fmt.Errorf("session: answer: %w", err)
	}
	s.History = append(s.History,
		ai.Message{Role: ai.RoleUser, Content: question},
		ai.Message{Role: ai.RoleAssistant, Content: answer},
	)
	s.LastAnalysis = answer
	return answer, nil
}

// ExportDeck turns the last analysis into a slide deck written under dir.
func (s *Session) ExportDeck(ctx context.Context, dir string) (string, deck.Report, error) {
	if strings.TrimSpace(s.LastAnalysis) == "" {
		return "", deck.Report{}, ErrNothingToExport
	}
	return ExportAnalysis(ctx, s.assistant, s.deck, s.LastAnalysis, s.Language, dir)
}

// ExportAnalysis plans and writes a deck for an analysis text.
func ExportAnalysis(ctx context.Context, assistant ai.Assistant, w DeckWriter, analysis, language, dir string) (string, deck.Report, error) {
	if w == nil {
		return "", deck.Report{}, errors.New("session: no deck writer configured")
	}
	plan, err := assistant.SlidePlan(ctx, analysis, language)
	if err != nil {
		return "", deck.Report{}, fmt.Errorf("session: slide plan: %w", err)
	}
	return w.WriteFile(ctx, plan, dir)
}

// Models lists selectable models once per session.
func (s *Session) Models(ctx context.Context) ([]string, error) {
	if s.models != nil {
		return s.models, nil
	}
	names, err := s.assistant.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	s.models = names
	return names, nil
}

// SetModel switches the language model for the following questions.
func (s *Session) SetModel(model string) error {
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if model == "" {
		return errors.New("session: empty model name")
	}
	sel, ok := s.assistant.(ai.ModelSelector)
	if !ok {
		return errors.New("session: assistant cannot switch models")
	}
	s.assistant = sel.ForModel(model)
	s.Model = model
	return nil
}

// Reset drops the conversation and deletes the uploaded catalog.
func (s *Session) Reset(ctx context.Context) {
	s.deleteDocument(ctx)
	s.Catalog = nil
	s.History = nil
	s.LastAnalysis = ""
	s.models = nil
}

func (s *Session) deleteDocument(ctx context.Context) {
	if s.Catalog == nil || !s.Catalog.Uploaded {
		return
	}
	if err := s.assistant.Delete(ctx, s.Catalog.Document); err != nil {
		s.logger.Warn("could not delete uploaded catalog", "name", s.Catalog.Document.Name, "err", err)
	}
}

// WriteTranscript writes the conversation as Markdown.
func (s *Session) WriteTranscript(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Catalog session %s\n\n", s.ID)
	fmt.Fprintf(&b, "- Started: %s\n", s.Started.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Model: %s\n", s.Model)
	if s.Catalog != nil {
		fmt.Fprintf(&b, "- Catalog: %s (%d pages)\n", s.Catalog.Name, s.Catalog.Pages)
	}
	b.WriteString("\n")
	for _, m := range s.History {
		switch m.Role {
		case ai.RoleUser:
			fmt.Fprintf(&b, "## Question\n\n%s\n\n", strings.TrimSpace(m.Content))
		default:
			fmt.Fprintf(&b, "## Answer\n\n%s\n\n", strings.TrimSpace(m.Content))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
