package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	genai "google.golang.org/genai"

	"github.com/thywilljoshua/catalogdeck/internal/ai"
	"github.com/thywilljoshua/catalogdeck/internal/config"
	"github.com/thywilljoshua/catalogdeck/internal/deck"
	"github.com/thywilljoshua/catalogdeck/internal/imagegen"
	"github.com/thywilljoshua/catalogdeck/internal/metrics"
	"github.com/thywilljoshua/catalogdeck/internal/search"
	"github.com/thywilljoshua/catalogdeck/internal/session"
)

type flags struct {
	configPath  string
	verbose     bool
	logJSON     bool
	model       string
	language    string
	outDir      string
	concurrency int
	noImages    bool
	metricsAddr string
}

// assistantFactory returns the language assistant and, when available, the
// genai client image providers may share.
type assistantFactory func(ctx context.Context, a *app) (ai.Assistant, *genai.Client, error)

type app struct {
	flags   flags
	cfg     config.Config
	secrets config.Secrets
	getenv  func(string) string
	logger  *slog.Logger

	newAssistant assistantFactory
	httpClient   *http.Client
	summary      *metrics.Summary
	observer     imagegen.Observer
	metricsSrv   *http.Server
}

func newApp(getenv func(string) string) *app {
	return &app{getenv: getenv, newAssistant: geminiAssistant}
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("model") {
		cfg.Model = a.flags.model
	}
	if f.Changed("language") {
		cfg.Language = a.flags.language
	}
	if f.Changed("out") {
		cfg.OutDir = a.flags.outDir
	}
	if f.Changed("concurrency") {
		cfg.Images.Concurrency = a.flags.concurrency
	}
	if f.Changed("no-images") {
		cfg.Images.Disabled = a.flags.noImages
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = a.flags.metricsAddr
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	a.cfg = cfg
	a.secrets = config.SecretsFromEnv(a.getenv)
	a.logger = newLogger(cmd.ErrOrStderr(), a.flags.verbose, a.flags.logJSON)
	slog.SetDefault(a.logger)

	a.summary = metrics.NewSummary()
	a.observer = a.summary
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		rec, err := metrics.NewPrometheusRecorder(reg)
		if err != nil {
			return err
		}
		srv, err := metrics.StartPrometheusServer(cfg.Metrics.Addr, reg)
		if err != nil {
			return err
		}
		a.metricsSrv = srv
		a.observer = metrics.Multi{a.summary, rec}
		a.logger.Info("metrics endpoint started", "addr", srv.Addr)
	}
	return nil
}

func (a *app) close() {
	if a.metricsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metrics.StopServer(ctx, a.metricsSrv)
	a.metricsSrv = nil
}

func newLogger(w io.Writer, verbose, asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func geminiAssistant(ctx context.Context, a *app) (ai.Assistant, *genai.Client, error) {
	if err := a.secrets.RequireGoogle(); err != nil {
		return nil, nil, err
	}
	g, err := ai.NewGemini(ctx, a.secrets.GoogleAPIKey, a.cfg.Model, ai.WithLogger(a.logger), ai.WithHTTPClient(a.httpClient))
	if err != nil {
		return nil, nil, err
	}
	return g, g.Client(), nil
}

func (a *app) searcher() search.Searcher {
	t, err := search.NewTavily(search.Config{
		Endpoint:   a.cfg.Search.Endpoint,
		APIKey:     a.secrets.TavilyAPIKey,
		Depth:      a.cfg.Search.Depth,
		MaxResults: a.cfg.Search.MaxResults,
		Timeout:    a.cfg.SearchTimeout(),
		HTTPClient: a.httpClient,
		Logger:     a.logger,
	})
	if err != nil {
		a.logger.Warn("web search disabled", "err", err)
		return search.Disabled{}
	}
	return t
}

// acquirer builds the image pipeline; a nil result means placeholders only.
func (a *app) acquirer(gc *genai.Client) *imagegen.Acquirer {
	if a.cfg.Images.Disabled {
		return nil
	}
	providers, err := imagegen.BuildProviders(a.cfg.Images.Providers, imagegen.BuildDeps{
		Getenv:     a.getenv,
		HTTPClient: a.httpClient,
		GenAI:      gc,
		Logger:     a.logger,
	})
	if err != nil {
		a.logger.Warn("image generation disabled", "err", err)
		return nil
	}
	acq, err := imagegen.New(providers,
		imagegen.WithObserver(a.observer),
		imagegen.WithLogger(a.logger),
		imagegen.WithSize(a.cfg.Images.Width, a.cfg.Images.Height),
	)
	if err != nil {
		a.logger.Warn("image generation disabled", "err", err)
		return nil
	}
	return acq
}

func (a *app) builder(gc *genai.Client) *deck.Builder {
	b := &deck.Builder{Concurrency: a.cfg.Images.Concurrency, Logger: a.logger}
	if acq := a.acquirer(gc); acq != nil {
		b.Images = acq
	}
	return b
}

func (a *app) newSession(ctx context.Context) (*session.Session, error) {
	assistant, gc, err := a.newAssistant(ctx, a)
	if err != nil {
		return nil, err
	}
	return session.New(session.Options{
		Model:     a.cfg.Model,
		Language:  a.cfg.Language,
		Assistant: assistant,
		Search:    a.searcher(),
		Deck:      a.builder(gc),
		Logger:    a.logger,
	})
}

// printReport prints the deck outcome and the image statistics observed
// since before was taken, so each deck reports only its own attempts.
func (a *app) printReport(w io.Writer, path string, r deck.Report, before metrics.Snapshot) {
	fmt.Fprintf(w, "✅ Deck written: %s\n", path)
	fmt.Fprintf(w, "🖼️  %d slides, %d with placeholder images\n", len(r.Slides), r.Placeholders())
	for _, s := range r.Slides {
		if s.Placeholder {
			fmt.Fprintf(w, "   • slide %d %q: %s\n", s.Index, s.Title, s.Outcome)
		}
	}
	snap := a.summary.Snapshot().Since(before)
	for _, p := range snap.Providers {
		fmt.Fprintf(w, "   %s: %d attempts, %d failed, %d images\n", p.Provider, p.Attempts, p.Failures, p.Images)
	}
	if snap.Backoff > 0 {
		fmt.Fprintf(w, "   waited %s in backoff\n", snap.Backoff.Round(time.Second))
	}
}
