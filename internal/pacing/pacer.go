// Package pacing spaces out upstream API calls. The crawl deliberately runs
// sequentially with fixed gaps between calls; this package models those gaps
// as a policy object so the sleep-based discipline can be swapped for a
// different limiter without touching crawl logic.
package pacing

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Class identifies which kind of upstream call is being paced.
type Class int

const (
	// ClassProbe covers per-account graph probes (follower and follow
	// feeds checked one account at a time).
	ClassProbe Class = iota
	// ClassSearch covers hashtag and phrase full-text searches.
	ClassSearch
	// ClassCrawl covers whole crawl targets and backfill passes.
	ClassCrawl
)

// String returns the metric label for the class.
func (c Class) String() string {
	switch c {
	case ClassProbe:
		return "probe"
	case ClassSearch:
		return "search"
	case ClassCrawl:
		return "crawl"
	default:
		return "unknown"
	}
}

// Default gaps between calls of each class. These are a self-imposed budget
// to stay under upstream throttling, not a capability limit.
const (
	DefaultProbeGap  = 80 * time.Millisecond
	DefaultSearchGap = 200 * time.Millisecond
	DefaultCrawlGap  = 300 * time.Millisecond
)

// Pacer blocks until the next call of the given class may proceed.
type Pacer interface {
	Wait(ctx context.Context, class Class) error
}

// Config overrides the default per-class gaps. Zero values keep the default.
type Config struct {
	ProbeGap  time.Duration
	SearchGap time.Duration
	CrawlGap  time.Duration
}

// Limiter paces calls with one token-bucket per class. The first call of a
// class passes immediately; subsequent calls wait out the configured gap.
type Limiter struct {
	limiters map[Class]*rate.Limiter
	observe  func(class Class, delay time.Duration)
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithObserver registers a callback invoked with the measured delay whenever
// a Wait actually blocked.
func WithObserver(observe func(class Class, delay time.Duration)) Option {
	return func(l *Limiter) {
		l.observe = observe
	}
}

// New builds a Limiter from cfg.
func New(cfg Config, opts ...Option) *Limiter {
	gap := func(d, fallback time.Duration) time.Duration {
		if d <= 0 {
			return fallback
		}
		return d
	}
	l := &Limiter{
		limiters: map[Class]*rate.Limiter{
			ClassProbe:  rate.NewLimiter(rate.Every(gap(cfg.ProbeGap, DefaultProbeGap)), 1),
			ClassSearch: rate.NewLimiter(rate.Every(gap(cfg.SearchGap, DefaultSearchGap)), 1),
			ClassCrawl:  rate.NewLimiter(rate.Every(gap(cfg.CrawlGap, DefaultCrawlGap)), 1),
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until the class's next token is available.
func (l *Limiter) Wait(ctx context.Context, class Class) error {
	limiter, ok := l.limiters[class]
	if !ok {
		return fmt.Errorf("unknown pacing class %d", class)
	}
	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacing wait: %w", err)
	}
	if l.observe != nil {
		if delay := time.Since(start); delay > time.Millisecond {
			l.observe(class, delay)
		}
	}
	return nil
}

// Noop is a Pacer that never waits. Used in tests.
type Noop struct{}

// Wait returns immediately.
func (Noop) Wait(ctx context.Context, _ Class) error {
	return ctx.Err()
}
