package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/thywilljoshua/catalogdeck/internal/imagegen"
)

// Summary keeps in-process totals so the CLI can print them after a deck.
type Summary struct {
	mu           sync.Mutex
	attempts     map[string]int
	failures     map[string]int
	backoff      time.Duration
	acquired     map[string]int
	placeholders int
}

type ProviderStats struct {
	Provider string
	Attempts int
	Failures int
	Images   int
}

type Snapshot struct {
	Providers    []ProviderStats
	Backoff      time.Duration
	Placeholders int
}

func NewSummary() *Summary {
	return &Summary{
		attempts: map[string]int{},
		failures: map[string]int{},
		acquired: map[string]int{},
	}
}

func (s *Summary) ObserveAttempt(provider string, outcome imagegen.Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[provider]++
	if outcome != imagegen.ReasonNone {
		s.failures[provider]++
	}
}

func (s *Summary) ObserveBackoff(provider string, reason imagegen.Reason, wait time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backoff += wait
}

func (s *Summary) ObserveResult(provider string, reason imagegen.Reason, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reason == imagegen.ReasonNone {
		s.acquired[provider]++
		return
	}
	s.placeholders++
}

func (s *Summary) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Backoff: s.backoff, Placeholders: s.placeholders}
	for p, n := range s.attempts {
		snap.Providers = append(snap.Providers, ProviderStats{
			Provider: p,
			Attempts: n,
			Failures: s.failures[p],
			Images:   s.acquired[p],
		})
	}
	sort.Slice(snap.Providers, func(i, j int) bool { return snap.Providers[i].Provider < snap.Providers[j].Provider })
	return snap
}

// Since returns what was observed after prev was taken. Providers without
// new attempts are left out.
func (s Snapshot) Since(prev Snapshot) Snapshot {
	before := make(map[string]ProviderStats, len(prev.Providers))
	for _, p := range prev.Providers {
		before[p.Provider] = p
	}
	out := Snapshot{
		Backoff:      s.Backoff - prev.Backoff,
		Placeholders: s.Placeholders - prev.Placeholders,
	}
	for _, p := range s.Providers {
		b := before[p.Provider]
		d := ProviderStats{
			Provider: p.Provider,
			Attempts: p.Attempts - b.Attempts,
			Failures: p.Failures - b.Failures,
			Images:   p.Images - b.Images,
		}
		if d.Attempts > 0 {
			out.Providers = append(out.Providers, d)
		}
	}
	return out
}

// Multi fans observations out to several observers.
type Multi []imagegen.Observer

func (m Multi) ObserveAttempt(provider string, outcome imagegen.Reason) {
	for _, o := range m {
		o.ObserveAttempt(provider, outcome)
	}
}

func (m Multi) ObserveBackoff(provider string, reason imagegen.Reason, wait time.Duration) {
	for _, o := range m {
		o.ObserveBackoff(provider, reason, wait)
	}
}

func (m Multi) ObserveResult(provider string, reason imagegen.Reason, elapsed time.Duration) {
	for _, o := range m {
		o.ObserveResult(provider, reason, elapsed)
	}
}

var (
	_ imagegen.Observer = (*PrometheusRecorder)(nil)
	_ imagegen.Observer = (*Summary)(nil)
	_ imagegen.Observer = Multi(nil)
)
