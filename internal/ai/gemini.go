package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	genai "google.golang.org/genai"
)

const (
	DefaultModel  = "gemini-2.5-flash"
	FallbackModel = "gemini-1.5-flash"
)

type Gemini struct {
	client       *genai.Client
	model        string
	logger       *slog.Logger
	pollInterval time.Duration
	pollTimeout  time.Duration
}

type GeminiOption func(*geminiOptions)

type geminiOptions struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(u string) GeminiOption {
	return func(o *geminiOptions) { o.baseURL = u }
}

func WithHTTPClient(c *http.Client) GeminiOption {
	return func(o *geminiOptions) { o.httpClient = c }
}

func WithLogger(l *slog.Logger) GeminiOption {
	return func(o *geminiOptions) { o.logger = l }
}

func NewGemini(ctx context.Context, apiKey, model string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("missing GOOGLE_API_KEY")
	}
	if model == "" {
		model = DefaultModel
	}
	o := geminiOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if o.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: o.baseURL}
	}
	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Gemini{
		client:       c,
		model:        model,
		logger:       o.logger,
		pollInterval: 2 * time.Second,
		pollTimeout:  2 * time.Minute,
	}, nil
}

// Client exposes the underlying genai client so image providers can share it.
func (g *Gemini) Client() *genai.Client { return g.client }

func (g *Gemini) Model() string { return g.model }

// WithModel returns a copy of g that talks to another model over the same client.
func (g *Gemini) WithModel(model string) *Gemini {
	cp := *g
	if model != "" {
		cp.model = model
	}
	return &cp
}

func (g *Gemini) ForModel(model string) Assistant { return g.WithModel(model) }

func (g *Gemini) prompt(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	res, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", err
	}
	return res.Text(), nil
}

func (g *Gemini) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	if strings.TrimSpace(req.Question) == "" {
		return "", errors.New("ai: empty question")
	}
	if req.Document == nil {
		return "", ErrNoDocument
	}

	var contents []*genai.Content
	for _, m := range req.History {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	parts := []*genai.Part{genai.NewPartFromText(answerPrompt(req))}
	if req.Document.URI != "" {
		parts = append(parts, genai.NewPartFromURI(req.Document.URI, req.Document.MIMEType))
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(req.Language), genai.RoleUser),
	}
	out, err := g.prompt(ctx, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("ai: model returned an empty answer")
	}
	return out, nil
}

func (g *Gemini) SlidePlan(ctx context.Context, analysis, language string) (SlidePlan, error) {
	if strings.TrimSpace(analysis) == "" {
		return SlidePlan{}, errors.New("ai: empty analysis")
	}
	contents := []*genai.Content{
		genai.NewContentFromText(slidePrompt(analysis, language), genai.RoleUser),
	}
	js, err := g.prompt(ctx, contents, &genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		return SlidePlan{}, fmt.Errorf("gemini API call failed: %w", err)
	}
	g.logger.Debug("slide plan response", "bytes", len(js))
	plan, err := ParseSlidePlan(js)
	if err != nil {
		return SlidePlan{}, err
	}
	g.logger.Info("parsed slide plan", "title", plan.Title, "slides", len(plan.Slides))
	return plan, nil
}

// ListModels returns generateContent-capable gemini models, newest name
// first. Any failure degrades to FallbackModel.
func (g *Gemini) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	for m, err := range g.client.Models.All(ctx) {
		if err != nil {
			g.logger.Warn("listing models failed, using fallback", "fallback", FallbackModel, "err", err)
			return []string{FallbackModel}, nil
		}
		if m == nil || !supportsGenerate(m.SupportedActions) {
			continue
		}
		name := strings.TrimPrefix(m.Name, "models/")
		if strings.Contains(name, "gemini") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return []string{FallbackModel}, nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func supportsGenerate(actions []string) bool {
	for _, a := range actions {
		if a == "generateContent" {
			return true
		}
	}
	return false
}

// Upload sends a PDF to the Files API and waits until it can be referenced.
func (g *Gemini) Upload(ctx context.Context, path, displayName string) (*Document, error) {
	if displayName == "" {
		displayName = filepath.Base(path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	f, err := g.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType:    "application/pdf",
		DisplayName: displayName,
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", displayName, err)
	}

	deadline := time.Now().Add(g.pollTimeout)
	for f.State == genai.FileStateProcessing {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("upload %s: still processing after %s", displayName, g.pollTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.pollInterval):
		}
		if f, err = g.client.Files.Get(ctx, f.Name, nil); err != nil {
			return nil, fmt.Errorf("upload %s: poll: %w", displayName, err)
		}
	}
	if f.State == genai.FileStateFailed {
		return nil, fmt.Errorf("upload %s: processing failed", displayName)
	}

	mt := f.MIMEType
	if mt == "" {
		mt = "application/pdf"
	}
	return &Document{Name: f.Name, DisplayName: displayName, URI: f.URI, MIMEType: mt}, nil
}

func (g *Gemini) Delete(ctx context.Context, doc *Document) error {
	if doc == nil || doc.Name == "" {
		return nil
	}
	if _, err := g.client.Files.Delete(ctx, doc.Name, nil); err != nil {
		return fmt.Errorf("delete %s: %w", doc.Name, err)
	}
	return nil
}
