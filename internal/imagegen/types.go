package imagegen

import (
	"context"
	"fmt"
	"time"
)

// Request describes one image to obtain for a slide.
type Request struct {
	Description string
	Width       int
	Height      int
}

// Attempt is a normalized Request as sent to a single provider call.
type Attempt struct {
	Prompt string
	Width  int
	Height int
	Seed   int64
	Number int
}

// Image is the raw payload returned by a provider.
type Image struct {
	Data        []byte
	ContentType string
}

// Reason classifies why an attempt or a whole acquisition failed.
type Reason int

const (
	ReasonNone Reason = iota
	RateLimited
	ProviderLoading
	ProviderError
	Timeout
	InvalidContent
	AllProvidersExhausted
	Canceled
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "ok"
	case RateLimited:
		return "rate_limited"
	case ProviderLoading:
		return "provider_loading"
	case ProviderError:
		return "provider_error"
	case Timeout:
		return "timeout"
	case InvalidContent:
		return "invalid_content"
	case AllProvidersExhausted:
		return "all_providers_exhausted"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Result is the outcome of Acquire. OK reports Success; otherwise Reason
// holds the failure kind and Err the last per-attempt error, if any.
type Result struct {
	Data        []byte
	ContentType string
	Provider    string
	Seed        int64
	Attempts    int
	Reason      Reason
	Err         error
}

func (r Result) OK() bool { return r.Reason == ReasonNone && len(r.Data) > 0 }

// AttemptError is returned by providers to classify a failed attempt.
// RetryAfter carries a provider-suggested wait (Retry-After header or
// estimated_time of a loading model).
type AttemptError struct {
	Reason     Reason
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *AttemptError) Error() string {
	msg := e.Reason.String()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AttemptError) Unwrap() error { return e.Err }

// Policy bounds how long and how often a provider is tried.
type Policy struct {
	MaxAttempts     int
	MaxPromptLength int
	Timeout         time.Duration
	Backoff         Backoff
}

const (
	DefaultMaxAttempts     = 3
	DefaultMaxPromptLength = 400
	DefaultTimeout         = 60 * time.Second
)

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.MaxPromptLength <= 0 {
		p.MaxPromptLength = DefaultMaxPromptLength
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	p.Backoff = p.Backoff.withDefaults()
	return p
}

// Provider is one remote image generator. Generate performs exactly one
// request; retries and fallback belong to the Acquirer.
type Provider interface {
	Name() string
	Policy() Policy
	Generate(ctx context.Context, at Attempt) (*Image, error)
}

// Observer receives acquisition events; metrics.PrometheusRecorder is the
// production implementation.
type Observer interface {
	ObserveAttempt(provider string, outcome Reason)
	ObserveBackoff(provider string, reason Reason, wait time.Duration)
	ObserveResult(provider string, reason Reason, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveAttempt(string, Reason)                {}
func (noopObserver) ObserveBackoff(string, Reason, time.Duration) {}
func (noopObserver) ObserveResult(string, Reason, time.Duration)  {}
