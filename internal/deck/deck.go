package deck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thywilljoshua/catalogdeck/internal/ai"
	"github.com/thywilljoshua/catalogdeck/internal/imagegen"
)

type (
	Plan  = ai.SlidePlan
	Slide = ai.SlideSpec
)

var ErrEmptyPlan = errors.New("deck: plan has no slides")

// ImageSource is satisfied by *imagegen.Acquirer.
type ImageSource interface {
	Acquire(ctx context.Context, req imagegen.Request) imagegen.Result
}

type Builder struct {
	// Images is optional; nil puts a placeholder on every slide.
	Images      ImageSource
	Concurrency int
	Logger      *slog.Logger
	Now         func() time.Time
}

type SlideReport struct {
	Index       int             `json:"index"`
	Title       string          `json:"title"`
	Provider    string          `json:"provider,omitempty"`
	Reason      imagegen.Reason `json:"-"`
	Outcome     string          `json:"outcome"`
	Attempts    int             `json:"attempts"`
	Placeholder bool            `json:"placeholder"`
	Error       string          `json:"error,omitempty"`
}

type Report struct {
	Title  string        `json:"title"`
	Path   string        `json:"path,omitempty"`
	Slides []SlideReport `json:"slides"`
}

func (r Report) Placeholders() int {
	n := 0
	for _, s := range r.Slides {
		if s.Placeholder {
			n++
		}
	}
	return n
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// Build writes the deck for plan to w. Image failures become placeholders;
// only an invalid plan, cancellation or a write error fail the build.
func (b *Builder) Build(ctx context.Context, plan Plan, w io.Writer) (Report, error) {
	if len(plan.Slides) == 0 {
		return Report{}, ErrEmptyPlan
	}
	title := strings.TrimSpace(plan.Title)
	if title == "" {
		title = "Portfolio Analysis"
	}
	report := Report{Title: title, Slides: make([]SlideReport, len(plan.Slides))}
	images := make([]*media, len(plan.Slides))

	g, gctx := errgroup.WithContext(ctx)
	limit := b.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, s := range plan.Slides {
		g.Go(func() error {
			images[i], report.Slides[i] = b.slideImage(gctx, i, s)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return report, err
	}

	parts := []slidePart{coverSlide(title)}
	for i, s := range plan.Slides {
		parts = append(parts, contentSlide(s, images[i]))
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	if err := writePackage(w, title, now(), parts); err != nil {
		return report, fmt.Errorf("deck: write pptx: %w", err)
	}
	return report, nil
}

func (b *Builder) slideImage(ctx context.Context, i int, s Slide) (*media, SlideReport) {
	rep := SlideReport{Index: i + 1, Title: s.Title, Placeholder: true}
	desc := strings.TrimSpace(s.ImageDescription)
	if desc == "" {
		desc = s.Title
	}
	if b.Images == nil || desc == "" {
		rep.Outcome = "disabled"
		return nil, rep
	}

	res := b.Images.Acquire(ctx, imagegen.Request{Description: desc})
	rep.Provider = res.Provider
	rep.Reason = res.Reason
	rep.Outcome = res.Reason.String()
	rep.Attempts = res.Attempts
	if !res.OK() {
		if res.Err != nil {
			rep.Error = res.Err.Error()
		}
		b.logger().Warn("image unavailable, using placeholder", "slide", i+1, "reason", res.Reason.String(), "attempts", res.Attempts)
		return nil, rep
	}

	m, err := prepareImage(res.Data)
	if err != nil {
		rep.Outcome = imagegen.InvalidContent.String()
		rep.Reason = imagegen.InvalidContent
		rep.Error = err.Error()
		b.logger().Warn("image not embeddable, using placeholder", "slide", i+1, "provider", res.Provider, "err", err)
		return nil, rep
	}
	rep.Placeholder = false
	b.logger().Info("image acquired", "slide", i+1, "provider", res.Provider, "attempts", res.Attempts)
	return m, rep
}

// WriteFile builds the deck into dir under a name derived from the title.
// The file is written to a temp name first and renamed when complete.
func (b *Builder) WriteFile(ctx context.Context, plan Plan, dir string) (string, Report, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", Report{}, err
	}
	var buf bytes.Buffer
	report, err := b.Build(ctx, plan, &buf)
	if err != nil {
		return "", report, err
	}
	path := filepath.Join(dir, FileName(report.Title))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", report, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", report, err
	}
	report.Path = path
	return path, report, nil
}
