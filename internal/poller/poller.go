// Package poller owns the repeating fetch timer for the operator UI. It is a
// two-state machine: Idle until Start, then Polling until the sheet status
// leaves "RUN", a fetch fails, or Stop is called.
package poller

import (
	"context"
	"strings"
	"sync"
	"time"

	"captcha_relay/internal/state"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is the gap between poll cycles.
const DefaultInterval = 2 * time.Second

// runStatus is the status cell value that keeps polling alive, compared
// case-insensitively after trimming.
const runStatus = "RUN"

// FetchFunc performs one state fetch. Fetches within one controller are
// strictly sequential; the next cycle never starts before the previous fetch
// returned.
type FetchFunc func(ctx context.Context) (*state.State, error)

// TickerFactory supplies the poll timer. Tests inject a hand-driven channel
// here; production uses time.Ticker.
type TickerFactory func(interval time.Duration) (<-chan time.Time, func())

func defaultTicker(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

// Update is the outcome of one poll cycle. Polling reports whether the
// controller is still in the Polling state after evaluating this cycle.
type Update struct {
	State   *state.State
	Err     error
	Polling bool
}

// Controller is the polling state machine. The zero value is not usable; use
// New.
type Controller struct {
	fetch     FetchFunc
	interval  time.Duration
	newTicker TickerFactory
	updates   chan Update

	mu         sync.Mutex
	generation int
	polling    bool
	done       chan struct{}
}

// Option adjusts a Controller at construction.
type Option func(*Controller)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// WithTickerFactory overrides the poll timer source.
func WithTickerFactory(f TickerFactory) Option {
	return func(c *Controller) { c.newTicker = f }
}

func New(fetch FetchFunc, opts ...Option) *Controller {
	c := &Controller{
		fetch:     fetch,
		interval:  DefaultInterval,
		newTicker: defaultTicker,
		updates:   make(chan Update, 16),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Updates delivers one Update per completed poll cycle. The channel is never
// closed; slow consumers lose intermediate updates rather than stalling the
// poll loop.
func (c *Controller) Updates() <-chan Update {
	return c.updates
}

// Polling reports whether the controller is in the Polling state.
func (c *Controller) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polling
}

// Start moves the controller to Polling: any previous loop is stopped first,
// one fetch runs immediately, then one per interval. Calling Start while
// already polling is an idempotent restart.
func (c *Controller) Start() {
	c.mu.Lock()
	c.stopLocked()
	c.generation++
	gen := c.generation
	done := make(chan struct{})
	c.done = done
	c.polling = true
	c.mu.Unlock()

	log.Debug().Int("generation", gen).Msg("Polling started")
	go c.loop(gen, done)
}

// Stop moves the controller to Idle. Safe to call at any time, any number of
// times. An in-flight fetch is not aborted; its result is discarded when it
// arrives.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if !c.polling && c.done == nil {
		return
	}
	c.polling = false
	c.generation++
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	log.Debug().Msg("Polling stopped")
}

func (c *Controller) loop(gen int, done chan struct{}) {
	tick, stopTicker := c.newTicker(c.interval)
	defer stopTicker()

	for {
		st, err := c.fetch(context.Background())
		if !c.apply(gen, st, err) {
			return
		}

		select {
		case <-tick:
		case <-done:
			return
		}
	}
}

// apply evaluates one fetch result under the current generation. A result
// from a superseded generation is discarded entirely, so a late response can
// never resurrect a stopped controller. Returns whether the loop continues.
func (c *Controller) apply(gen int, st *state.State, err error) bool {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		log.Debug().Int("generation", gen).Msg("Discarding stale poll result")
		return false
	}

	keepPolling := err == nil && st != nil && strings.EqualFold(strings.TrimSpace(st.A2), runStatus)
	if !keepPolling {
		c.polling = false
		c.generation++
		c.done = nil
	}
	update := Update{State: st, Err: err, Polling: keepPolling}
	c.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Msg("Poll fetch failed; polling stopped")
	} else if !keepPolling {
		log.Debug().Str("status", st.A2).Msg("Status left RUN; polling stopped")
	}

	c.emit(update)
	return keepPolling
}

func (c *Controller) emit(u Update) {
	select {
	case c.updates <- u:
	default:
		log.Debug().Msg("Dropping poll update; consumer is not keeping up")
	}
}
