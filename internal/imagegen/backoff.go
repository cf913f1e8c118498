package imagegen

import "time"

// Backoff holds the waits applied between attempts on the same provider.
type Backoff struct {
	RateLimitBase  time.Duration
	RateLimitMax   time.Duration
	LoadingDefault time.Duration
	LoadingMax     time.Duration
	ErrorDelay     time.Duration
}

const (
	DefaultRateLimitBase = 3 * time.Second
	DefaultRateLimitMax  = 12 * time.Second
	DefaultLoadingWait   = 10 * time.Second
	DefaultLoadingMax    = 120 * time.Second
	DefaultErrorDelay    = 2 * time.Second
)

func (b Backoff) withDefaults() Backoff {
	if b.RateLimitBase <= 0 {
		b.RateLimitBase = DefaultRateLimitBase
	}
	if b.RateLimitMax <= 0 {
		b.RateLimitMax = DefaultRateLimitMax
	}
	if b.RateLimitMax < b.RateLimitBase {
		b.RateLimitMax = b.RateLimitBase
	}
	if b.LoadingDefault <= 0 {
		b.LoadingDefault = DefaultLoadingWait
	}
	if b.LoadingMax <= 0 {
		b.LoadingMax = DefaultLoadingMax
	}
	if b.ErrorDelay <= 0 {
		b.ErrorDelay = DefaultErrorDelay
	}
	return b
}

// backoffState tracks rate-limit escalation for one provider within one
// acquisition.
type backoffState struct {
	cfg         Backoff
	rateLimited int
	lastRate    time.Duration
}

func newBackoffState(cfg Backoff) *backoffState {
	return &backoffState{cfg: cfg.withDefaults()}
}

// next returns how long to sleep after a failed attempt.
func (s *backoffState) next(err *AttemptError) time.Duration {
	switch err.Reason {
	case RateLimited:
		s.rateLimited++
		wait := s.cfg.RateLimitBase
		for i := 1; i < s.rateLimited && wait < s.cfg.RateLimitMax; i++ {
			wait *= 2
		}
		if err.RetryAfter > wait {
			wait = err.RetryAfter
		}
		if wait > s.cfg.RateLimitMax {
			wait = s.cfg.RateLimitMax
		}
		// consecutive rate-limit waits never shrink
		if wait < s.lastRate {
			wait = s.lastRate
		}
		s.lastRate = wait
		return wait
	case ProviderLoading:
		wait := err.RetryAfter
		if wait <= 0 {
			wait = s.cfg.LoadingDefault
		}
		if wait > s.cfg.LoadingMax {
			wait = s.cfg.LoadingMax
		}
		return wait
	default:
		return s.cfg.ErrorDelay
	}
}
