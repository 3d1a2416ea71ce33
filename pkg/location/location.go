// Package location defines the contract between the record extraction core
// and a location-acquisition collaborator, plus the caching policy applied to
// coordinate requests.
//
// Acquiring a fix can be slow on rural hardware, so requests are bounded by a
// timeout and a recent fix may be served instead of a fresh one. The core only
// ever consumes the resulting [geo.Coordinate]; staleness policy lives
// entirely in this package.
package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skawahara/agrivoice/pkg/geo"
)

// Sentinel errors for the location failure taxonomy. Callers receive no
// coordinate on any of these and decide themselves whether to retry.
var (
	// ErrUnsupported — the host has no location capability at all.
	ErrUnsupported = errors.New("location: not supported on this host")

	// ErrPermissionDenied — the operator denied the location permission.
	ErrPermissionDenied = errors.New("location: permission denied")

	// ErrUnavailable — no position could be determined (no fix).
	ErrUnavailable = errors.New("location: position unavailable")

	// ErrTimeout — the request exceeded the configured timeout.
	ErrTimeout = errors.New("location: request timed out")
)

const (
	// DefaultTimeout bounds a single coordinate request.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxAge is the acceptable-staleness window: a cached fix younger
	// than this is served instead of requesting a fresh one.
	DefaultMaxAge = 5 * time.Minute
)

// Provider is the abstraction over a location-acquisition collaborator.
type Provider interface {
	// Current returns the operator's current coordinate. It blocks until a
	// fix is obtained, ctx is done, or the request fails with one of the
	// package sentinel errors.
	Current(ctx context.Context) (geo.Coordinate, error)
}

// Static is a [Provider] pinned to a fixed coordinate, for installations
// where the hardware does not move (a barn terminal, a weighing station).
type Static struct {
	Coordinate geo.Coordinate
}

var _ Provider = Static{}

// Current returns the pinned coordinate after validating it.
func (s Static) Current(context.Context) (geo.Coordinate, error) {
	if err := s.Coordinate.Validate(); err != nil {
		return geo.Coordinate{}, fmt.Errorf("location: static provider: %w", err)
	}
	return s.Coordinate, nil
}

// Cached wraps a [Provider] with the timeout and staleness policy.
// It is safe for concurrent use.
type Cached struct {
	inner   Provider
	timeout time.Duration
	maxAge  time.Duration

	// now is swappable for tests.
	now func() time.Time

	mu     sync.Mutex
	last   geo.Coordinate
	lastAt time.Time
}

// Compile-time assertion that Cached satisfies Provider.
var _ Provider = (*Cached)(nil)

// Option is a functional option for [NewCached].
type Option func(*Cached)

// WithTimeout overrides the per-request timeout. Default: [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *Cached) { c.timeout = d }
}

// WithMaxAge overrides the acceptable-staleness window. Default:
// [DefaultMaxAge]. Zero disables caching entirely.
func WithMaxAge(d time.Duration) Option {
	return func(c *Cached) { c.maxAge = d }
}

// withClock injects a clock for tests.
func withClock(now func() time.Time) Option {
	return func(c *Cached) { c.now = now }
}

// NewCached wraps p with the default timeout and staleness policy.
func NewCached(p Provider, opts ...Option) *Cached {
	c := &Cached{
		inner:   p,
		timeout: DefaultTimeout,
		maxAge:  DefaultMaxAge,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Current returns the cached fix when it is strictly younger than the
// staleness window, otherwise requests a fresh one from the wrapped provider
// with the configured timeout. A timeout is reported as [ErrTimeout].
func (c *Cached) Current(ctx context.Context) (geo.Coordinate, error) {
	c.mu.Lock()
	if !c.lastAt.IsZero() && c.now().Sub(c.lastAt) < c.maxAge {
		coord := c.last
		c.mu.Unlock()
		return coord, nil
	}
	c.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	coord, err := c.inner.Current(reqCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return geo.Coordinate{}, ErrTimeout
		}
		return geo.Coordinate{}, err
	}
	if err := coord.Validate(); err != nil {
		return geo.Coordinate{}, fmt.Errorf("location: provider returned invalid coordinate: %w", err)
	}

	c.mu.Lock()
	c.last = coord
	c.lastAt = c.now()
	c.mu.Unlock()

	return coord, nil
}
