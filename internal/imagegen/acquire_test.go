package imagegen

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n fake image")

// scripted is a Provider that replays a fixed list of outcomes and then
// repeats the last one.
type scripted struct {
	name     string
	policy   Policy
	outcomes []error
	mu       sync.Mutex
	calls    []Attempt
}

func (s *scripted) Name() string   { return s.name }
func (s *scripted) Policy() Policy { return s.policy }

func (s *scripted) Generate(_ context.Context, at Attempt) (*Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, at)
	i := len(s.calls) - 1
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	if i < 0 || s.outcomes[i] == nil {
		return &Image{Data: pngBytes, ContentType: "image/png"}, nil
	}
	return nil, s.outcomes[i]
}

func (s *scripted) Calls() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Attempt(nil), s.calls...)
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func (r *sleepRecorder) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func rateLimited() error { return &AttemptError{Reason: RateLimited, Status: 429} }
func serverError() error { return &AttemptError{Reason: ProviderError, Status: 500} }

func newTestAcquirer(t *testing.T, rec *sleepRecorder, providers ...Provider) *Acquirer {
	t.Helper()
	a, err := New(providers, WithSleep(rec.Sleep))
	require.NoError(t, err)
	return a
}

func TestAcquireSucceedsFirstAttemptWithoutSleep(t *testing.T) {
	p := &scripted{name: "primary", outcomes: []error{nil}}
	rec := &sleepRecorder{}
	a := newTestAcquirer(t, rec, p)

	res := a.Acquire(context.Background(), Request{Description: "Minimalist ceramic vase"})

	require.True(t, res.OK())
	assert.Equal(t, "primary", res.Provider)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, rec.Waits())
}

func TestAcquireRateLimitBackoffGrows(t *testing.T) {
	p := &scripted{name: "primary", outcomes: []error{rateLimited(), rateLimited(), nil}}
	rec := &sleepRecorder{}
	a := newTestAcquirer(t, rec, p)

	res := a.Acquire(context.Background(), Request{Description: "Steel water bottle"})

	require.True(t, res.OK())
	waits := rec.Waits()
	require.Len(t, waits, 2)
	assert.GreaterOrEqual(t, waits[1], waits[0])
	assert.Equal(t, DefaultRateLimitBase, waits[0])
	assert.Equal(t, 3, res.Attempts)
}

func TestAcquireLoadingWaitsEstimatedTime(t *testing.T) {
	loading := &AttemptError{Reason: ProviderLoading, Status: 503, RetryAfter: 5 * time.Second}
	p := &scripted{name: "hf", outcomes: []error{loading, nil}}
	rec := &sleepRecorder{}
	a := newTestAcquirer(t, rec, p)

	res := a.Acquire(context.Background(), Request{Description: "Leather notebook"})

	require.True(t, res.OK())
	waits := rec.Waits()
	require.Len(t, waits, 1)
	assert.GreaterOrEqual(t, waits[0], 5*time.Second)
}

func TestAcquireLoadingWithoutEstimateUsesDefault(t *testing.T) {
	p := &scripted{name: "hf", outcomes: []error{&AttemptError{Reason: ProviderLoading}, nil}}
	rec := &sleepRecorder{}
	a := newTestAcquirer(t, rec, p)

	require.True(t, a.Acquire(context.Background(), Request{Description: "Desk lamp"}).OK())
	assert.Equal(t, []time.Duration{DefaultLoadingWait}, rec.Waits())
}

func TestAcquireAllProvidersExhausted(t *testing.T) {
	primary := &scripted{name: "primary", outcomes: []error{serverError()}}
	secondary := &scripted{name: "secondary", outcomes: []error{errors.New("connection refused")}}
	rec := &sleepRecorder{}
	a := newTestAcquirer(t, rec, primary, secondary)

	var res Result
	require.NotPanics(t, func() {
		res = a.Acquire(context.Background(), Request{Description: "Office chair"})
	})

	assert.False(t, res.OK())
	assert.Equal(t, AllProvidersExhausted, res.Reason)
	assert.Equal(t, 2*DefaultMaxAttempts, res.Attempts)
	assert.Len(t, primary.Calls(), DefaultMaxAttempts)
	assert.Len(t, secondary.Calls(), DefaultMaxAttempts)
	// no sleep after the final attempt of each provider
	assert.Len(t, rec.Waits(), 2*(DefaultMaxAttempts-1))
	for _, w := range rec.Waits() {
		assert.Equal(t, DefaultErrorDelay, w)
	}
	var aerr *AttemptError
	require.ErrorAs(t, res.Err, &aerr)
	assert.Equal(t, ProviderError, aerr.Reason)
}

func TestAcquireUsesFreshSeedPerCall(t *testing.T) {
	p := &scripted{name: "always", outcomes: []error{nil}}
	a := newTestAcquirer(t, &sleepRecorder{}, p)

	first := a.Acquire(context.Background(), Request{Description: "Red pen on desk"})
	second := a.Acquire(context.Background(), Request{Description: "Red pen on desk"})

	require.True(t, first.OK())
	require.True(t, second.OK())
	assert.NotEqual(t, first.Seed, second.Seed)
	calls := p.Calls()
	require.Len(t, calls, 2)
	assert.NotEqual(t, calls[0].Seed, calls[1].Seed)
}

func TestAcquireSeedChangesBetweenRetries(t *testing.T) {
	p := &scripted{name: "primary", outcomes: []error{serverError(), nil}}
	var next int64
	a, err := New([]Provider{p}, WithSleep((&sleepRecorder{}).Sleep), WithSeedSource(func() int64 {
		next++
		return next
	}))
	require.NoError(t, err)

	res := a.Acquire(context.Background(), Request{Description: "Glass teapot"})

	require.True(t, res.OK())
	calls := p.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, int64(1), calls[0].Seed)
	assert.Equal(t, int64(2), calls[1].Seed)
	assert.Equal(t, int64(2), res.Seed)
}

func TestAcquirePrimaryRecoversAfterOneRateLimit(t *testing.T) {
	primary := &scripted{name: "primary", outcomes: []error{rateLimited(), nil}}
	secondary := &scripted{name: "secondary", outcomes: []error{nil}}
	rec := &sleepRecorder{}
	a := newTestAcquirer(t, rec, primary, secondary)

	res := a.Acquire(context.Background(), Request{Description: "Red pen on desk"})

	require.True(t, res.OK())
	assert.Equal(t, "primary", res.Provider)
	assert.Len(t, rec.Waits(), 1)
	assert.Empty(t, secondary.Calls())
}

func TestAcquireFallsBackToSecondary(t *testing.T) {
	primary := &scripted{name: "primary", outcomes: []error{serverError()}}
	secondary := &scripted{name: "secondary", outcomes: []error{nil}}
	rec := &sleepRecorder{}
	a := newTestAcquirer(t, rec, primary, secondary)

	res := a.Acquire(context.Background(), Request{Description: "Luxury watch"})

	require.True(t, res.OK())
	assert.Equal(t, "secondary", res.Provider)
	assert.Len(t, primary.Calls(), DefaultMaxAttempts)
	assert.Len(t, secondary.Calls(), 1)
	assert.Equal(t, DefaultMaxAttempts+1, res.Attempts)
}

func TestAcquireTruncatesToProviderLimit(t *testing.T) {
	primary := &scripted{name: "short", policy: Policy{MaxPromptLength: 10, MaxAttempts: 1}, outcomes: []error{serverError()}}
	secondary := &scripted{name: "long", policy: Policy{MaxPromptLength: 100}, outcomes: []error{nil}}
	a := newTestAcquirer(t, &sleepRecorder{}, primary, secondary)

	res := a.Acquire(context.Background(), Request{Description: "  Ceas   de lux elvețian, cadran albastru  "})

	require.True(t, res.OK())
	assert.Equal(t, "Ceas de lu", primary.Calls()[0].Prompt)
	assert.Equal(t, "Ceas de lux elvețian, cadran albastru", secondary.Calls()[0].Prompt)
}

func TestAcquireRejectsNonImagePayload(t *testing.T) {
	p := &badPayload{}
	rec := &sleepRecorder{}
	a := newTestAcquirer(t, rec, p)

	res := a.Acquire(context.Background(), Request{Description: "Sneakers"})

	assert.Equal(t, AllProvidersExhausted, res.Reason)
	var aerr *AttemptError
	require.ErrorAs(t, res.Err, &aerr)
	assert.Equal(t, InvalidContent, aerr.Reason)
}

type badPayload struct{}

func (badPayload) Name() string   { return "html" }
func (badPayload) Policy() Policy { return Policy{MaxAttempts: 2} }
func (badPayload) Generate(context.Context, Attempt) (*Image, error) {
	return &Image{Data: []byte("<html></html>"), ContentType: "text/html"}, nil
}

func TestAcquirePerAttemptTimeout(t *testing.T) {
	p := &slowProvider{}
	rec := &sleepRecorder{}
	a := newTestAcquirer(t, rec, p)

	res := a.Acquire(context.Background(), Request{Description: "Slow"})

	assert.Equal(t, AllProvidersExhausted, res.Reason)
	var aerr *AttemptError
	require.ErrorAs(t, res.Err, &aerr)
	assert.Equal(t, Timeout, aerr.Reason)
}

type slowProvider struct{}

func (slowProvider) Name() string { return "slow" }
func (slowProvider) Policy() Policy {
	return Policy{MaxAttempts: 1, Timeout: 10 * time.Millisecond}
}
func (slowProvider) Generate(ctx context.Context, _ Attempt) (*Image, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAcquireStopsOnCanceledContext(t *testing.T) {
	p := &scripted{name: "primary", outcomes: []error{rateLimited()}}
	secondary := &scripted{name: "secondary", outcomes: []error{nil}}
	ctx, cancel := context.WithCancel(context.Background())
	a, err := New([]Provider{p, secondary}, WithSleep(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))
	require.NoError(t, err)

	res := a.Acquire(ctx, Request{Description: "Backpack"})

	assert.Equal(t, Canceled, res.Reason)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, secondary.Calls())
}

func TestAcquireAppliesDefaultSize(t *testing.T) {
	p := &scripted{name: "primary", outcomes: []error{nil}}
	a, err := New([]Provider{p}, WithSize(800, 600))
	require.NoError(t, err)

	a.Acquire(context.Background(), Request{Description: "Mug"})
	a.Acquire(context.Background(), Request{Description: "Mug", Width: 512, Height: 512})

	calls := p.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 800, calls[0].Width)
	assert.Equal(t, 600, calls[0].Height)
	assert.Equal(t, 512, calls[1].Width)
}

func TestNewRejectsMalformedProviderList(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoProviders)

	_, err = New([]Provider{nil})
	assert.Error(t, err)
}

type countingObserver struct {
	attempts map[Reason]int
	backoffs int
	results  []Reason
}

func (o *countingObserver) ObserveAttempt(_ string, r Reason) {
	if o.attempts == nil {
		o.attempts = map[Reason]int{}
	}
	o.attempts[r]++
}
func (o *countingObserver) ObserveBackoff(string, Reason, time.Duration) { o.backoffs++ }
func (o *countingObserver) ObserveResult(_ string, r Reason, _ time.Duration) {
	o.results = append(o.results, r)
}

func TestAcquireReportsToObserver(t *testing.T) {
	p := &scripted{name: "primary", outcomes: []error{rateLimited(), nil}}
	obs := &countingObserver{}
	a, err := New([]Provider{p}, WithSleep((&sleepRecorder{}).Sleep), WithObserver(obs))
	require.NoError(t, err)

	a.Acquire(context.Background(), Request{Description: "Candle"})

	assert.Equal(t, 1, obs.attempts[RateLimited])
	assert.Equal(t, 1, obs.attempts[ReasonNone])
	assert.Equal(t, 1, obs.backoffs)
	assert.Equal(t, []Reason{ReasonNone}, obs.results)
}

func TestAcquireRejectsBlankDescription(t *testing.T) {
	for _, desc := range []string{"", "  \t\n "} {
		p := &scripted{name: "primary", outcomes: []error{nil}}
		rec := &sleepRecorder{}
		obs := &countingObserver{}
		a, err := New([]Provider{p}, WithSleep(rec.Sleep), WithObserver(obs))
		require.NoError(t, err)

		res := a.Acquire(context.Background(), Request{Description: desc})

		assert.False(t, res.OK())
		assert.Equal(t, InvalidContent, res.Reason)
		assert.ErrorIs(t, res.Err, ErrEmptyDescription)
		assert.Zero(t, res.Attempts)
		assert.Empty(t, p.Calls())
		assert.Empty(t, rec.Waits())
		assert.Equal(t, []Reason{InvalidContent}, obs.results)
	}
}

func TestBackoffSequence(t *testing.T) {
	s := newBackoffState(Backoff{})
	var got []time.Duration
	for i := 0; i < 4; i++ {
		got = append(got, s.next(&AttemptError{Reason: RateLimited}))
	}
	assert.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second, 12 * time.Second}, got)

	s = newBackoffState(Backoff{})
	first := s.next(&AttemptError{Reason: RateLimited, RetryAfter: 10 * time.Second})
	second := s.next(&AttemptError{Reason: RateLimited})
	assert.Equal(t, 10*time.Second, first)
	assert.GreaterOrEqual(t, second, first)

	s = newBackoffState(Backoff{})
	assert.Equal(t, DefaultLoadingMax, s.next(&AttemptError{Reason: ProviderLoading, RetryAfter: time.Hour}))
	assert.Equal(t, DefaultErrorDelay, s.next(&AttemptError{Reason: Timeout}))
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "rate_limited", RateLimited.String())
	assert.Equal(t, "all_providers_exhausted", AllProvidersExhausted.String())
	assert.Equal(t, "reason(42)", Reason(42).String())
}
