package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"mime"
	"net"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrNoProviders is returned when an Acquirer is built without providers.
var ErrNoProviders = errors.New("imagegen: no image providers configured")

// ErrEmptyDescription is reported when a request has nothing to draw.
var ErrEmptyDescription = errors.New("imagegen: empty image description")

// Acquirer obtains an image for a description by walking an ordered list
// of providers, retrying each one with backoff before falling back to the
// next. It is safe for concurrent use when its providers are.
type Acquirer struct {
	providers []Provider
	sleep     func(ctx context.Context, d time.Duration) error
	seed      func() int64
	observer  Observer
	logger    *slog.Logger
	width     int
	height    int
}

type Option func(*Acquirer)

// WithSleep replaces the wait between attempts. Tests use it to record
// backoff intervals without blocking.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Acquirer) { a.sleep = fn }
}

// WithSeedSource replaces the per-attempt random seed generator.
func WithSeedSource(fn func() int64) Option {
	return func(a *Acquirer) { a.seed = fn }
}

func WithObserver(o Observer) Option {
	return func(a *Acquirer) {
		if o != nil {
			a.observer = o
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Acquirer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithSize sets the resolution used when a Request leaves it unset.
func WithSize(width, height int) Option {
	return func(a *Acquirer) {
		a.width, a.height = width, height
	}
}

func New(providers []Provider, opts ...Option) (*Acquirer, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	for i, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("imagegen: provider %d is nil", i)
		}
	}
	a := &Acquirer{
		providers: providers,
		sleep:     sleepContext,
		seed:      func() int64 { return rand.Int64N(1 << 31) },
		observer:  noopObserver{},
		logger:    slog.Default(),
		width:     1024,
		height:    768,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Providers returns the provider names in priority order.
func (a *Acquirer) Providers() []string {
	names := make([]string, len(a.providers))
	for i, p := range a.providers {
		names[i] = p.Name()
	}
	return names
}

// Acquire never returns an error: network, status and content failures are
// retried locally and only total exhaustion is reported, as a Result.
func (a *Acquirer) Acquire(ctx context.Context, req Request) Result {
	start := time.Now()
	desc := strings.Join(strings.Fields(req.Description), " ")
	if desc == "" {
		a.observer.ObserveResult("", InvalidContent, time.Since(start))
		return Result{Reason: InvalidContent, Err: ErrEmptyDescription}
	}
	width, height := req.Width, req.Height
	if width <= 0 || height <= 0 {
		width, height = a.width, a.height
	}

	var (
		attempts int
		lastErr  error
	)
	for _, p := range a.providers {
		policy := p.Policy().withDefaults()
		backoff := newBackoffState(policy.Backoff)
		prompt := truncate(desc, policy.MaxPromptLength)

		for n := 1; n <= policy.MaxAttempts; n++ {
			attempts++
			at := Attempt{Prompt: prompt, Width: width, Height: height, Seed: a.seed(), Number: n}
			a.logger.Debug("image attempt", "provider", p.Name(), "attempt", n, "seed", at.Seed)

			img, err := a.attempt(ctx, p, policy.Timeout, at)
			if err == nil {
				a.observer.ObserveAttempt(p.Name(), ReasonNone)
				a.observer.ObserveResult(p.Name(), ReasonNone, time.Since(start))
				return Result{
					Data:        img.Data,
					ContentType: img.ContentType,
					Provider:    p.Name(),
					Seed:        at.Seed,
					Attempts:    attempts,
				}
			}
			if ctx.Err() != nil {
				return a.canceled(ctx, p.Name(), attempts, start)
			}

			aerr := classify(err)
			lastErr = aerr
			a.observer.ObserveAttempt(p.Name(), aerr.Reason)
			if n == policy.MaxAttempts {
				a.logger.Warn("image provider exhausted", "provider", p.Name(), "attempts", n, "reason", aerr.Reason.String(), "err", err)
				break
			}

			wait := backoff.next(aerr)
			a.logger.Warn("image attempt failed, backing off",
				"provider", p.Name(), "attempt", n, "reason", aerr.Reason.String(), "wait", wait, "err", err)
			a.observer.ObserveBackoff(p.Name(), aerr.Reason, wait)
			if err := a.sleep(ctx, wait); err != nil {
				return a.canceled(ctx, p.Name(), attempts, start)
			}
		}
	}

	a.observer.ObserveResult("", AllProvidersExhausted, time.Since(start))
	return Result{Reason: AllProvidersExhausted, Attempts: attempts, Err: lastErr}
}

func (a *Acquirer) attempt(ctx context.Context, p Provider, timeout time.Duration, at Attempt) (*Image, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	img, err := p.Generate(actx, at)
	if err != nil {
		if ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return nil, &AttemptError{Reason: Timeout, Err: err}
		}
		return nil, err
	}
	if img == nil || len(img.Data) == 0 {
		return nil, &AttemptError{Reason: InvalidContent, Err: errors.New("empty image payload")}
	}
	if !IsImageContentType(img.ContentType) {
		return nil, &AttemptError{Reason: InvalidContent, Err: fmt.Errorf("unexpected content type %q", img.ContentType)}
	}
	return img, nil
}

func (a *Acquirer) canceled(ctx context.Context, provider string, attempts int, start time.Time) Result {
	a.observer.ObserveResult(provider, Canceled, time.Since(start))
	return Result{Reason: Canceled, Attempts: attempts, Err: ctx.Err()}
}

// classify maps any provider error onto an AttemptError.
func classify(err error) *AttemptError {
	var aerr *AttemptError
	if errors.As(err, &aerr) {
		return aerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &AttemptError{Reason: Timeout, Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &AttemptError{Reason: Timeout, Err: err}
	}
	return &AttemptError{Reason: ProviderError, Err: err}
}

// IsImageContentType reports whether a Content-Type header names an image.
func IsImageContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.TrimSpace(strings.ToLower(ct))
	}
	return strings.HasPrefix(mt, "image/")
}

// truncate cuts s to at most limit runes without splitting a rune.
func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:limit]))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
