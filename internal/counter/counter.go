// Package counter implements the daily visit counter behind /count. The
// count resets at midnight and once more when requests cross the school
// start hour, so the number shown during the morning decision window only
// reflects morning traffic.
package counter

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Store persists counter state across restarts. Persistence is best effort;
// a store failure never fails the request.
type Store interface {
	Load() (State, bool, error)
	Save(State) error
}

// State is the persisted counter snapshot.
type State struct {
	Value int
	Date  string // YYYY-MM-DD in the school timezone
	Hour  int    // hour of the last increment, -1 before the first
}

// Counter counts requests with two reset rules evaluated in the school
// timezone: a new calendar day zeroes the count, and so does the first
// request at or after the start hour when the previous request came before
// it. Both rules reset before incrementing, so the crossing request counts
// as 1.
type Counter struct {
	mu        sync.Mutex
	state     State
	startHour int
	loc       *time.Location
	clock     clockwork.Clock
	store     Store
	logger    *zap.Logger
}

// Option configures a Counter.
type Option func(*Counter)

// WithClock swaps the time source (tests).
func WithClock(c clockwork.Clock) Option {
	return func(cnt *Counter) { cnt.clock = c }
}

// WithStore attaches persistence. Saved state from an earlier run is
// restored on construction.
func WithStore(s Store, logger *zap.Logger) Option {
	return func(cnt *Counter) {
		cnt.store = s
		if state, ok, err := s.Load(); err != nil {
			logger.Warn("counter state load failed, starting fresh", zap.Error(err))
		} else if ok {
			cnt.state = state
		}
	}
}

// New returns a Counter for the given school start hour and timezone.
func New(startHour int, loc *time.Location, logger *zap.Logger, opts ...Option) *Counter {
	c := &Counter{
		state:     State{Hour: -1},
		startHour: startHour,
		loc:       loc,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Next applies the reset rules, increments, and returns the new count.
func (c *Counter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now().In(c.loc)
	today := now.Format("2006-01-02")
	hour := now.Hour()

	if c.state.Date != today {
		c.state.Value = 0
		c.state.Date = today
	} else if c.state.Hour >= 0 && c.state.Hour < c.startHour && hour >= c.startHour {
		c.state.Value = 0
	}

	c.state.Hour = hour
	c.state.Value++

	if c.store != nil {
		if err := c.store.Save(c.state); err != nil {
			c.logger.Warn("counter state save failed", zap.Error(err))
		}
	}
	return c.state.Value
}

// Value returns the current count without incrementing.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Value
}
