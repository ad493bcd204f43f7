// Package poll keeps a scalar summary (the unread notification count) fresh
// on a fixed interval, best effort: failures are swallowed and the last good
// value stays on screen.
package poll

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/R1Sobriquet/esportapp-client/internal/logger"
)

// Fetch issues one read-only summary call.
type Fetch func(ctx context.Context) (int, error)

// After this many consecutive failures the interval stretches, capped at
// maxBackoffFactor times the configured interval. Resets on success.
const (
	backoffAfter     = 3
	maxBackoffFactor = 4
)

type Msg interface{ isPollMsg() }

type tick struct{}

type result struct {
	value int
	err   error
}

type getState struct{ reply chan View }

func (tick) isPollMsg()     {}
func (result) isPollMsg()   {}
func (getState) isPollMsg() {}

type View struct {
	Value         int
	LastFetchedAt time.Time
	Failures      int // consecutive failures since the last success
	InFlight      bool
}

type Monitor struct {
	inbox    chan Msg
	fetch    Fetch
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the loop goroutine.
	value    int
	fetched  time.Time
	inFlight bool
	failures int
	current  time.Duration
	ticker   *time.Ticker
}

// New starts a monitor polling fetch every interval until Stop (or parent
// cancellation).
func New(parent context.Context, fetch Fetch, interval time.Duration) *Monitor {
	ctx, cancel := context.WithCancel(parent)
	m := &Monitor{
		inbox:    make(chan Msg, 16),
		fetch:    fetch,
		interval: interval,
		current:  interval,
		ctx:      ctx,
		cancel:   cancel,
	}
	go m.loop()
	return m
}

// Value returns the last successfully fetched value (zero before the first
// success or after shutdown).
func (m *Monitor) Value() int { return m.state().Value }

func (m *Monitor) state() View {
	reply := make(chan View, 1)
	select {
	case m.inbox <- getState{reply: reply}:
	case <-m.ctx.Done():
		return View{}
	}
	select {
	case v := <-reply:
		return v
	case <-m.ctx.Done():
		return View{}
	}
}

// State exposes the full view for consumers that render freshness.
func (m *Monitor) State() View { return m.state() }

// Stop cancels the timer. An outstanding fetch is left to finish; its result
// lands in a dead inbox.
func (m *Monitor) Stop() { m.cancel() }

func (m *Monitor) loop() {
	m.ticker = time.NewTicker(m.interval)
	defer m.ticker.Stop()

	// First fetch immediately rather than one interval in.
	m.onTick()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.ticker.C:
			m.onTick()
		case msg := <-m.inbox:
			switch v := msg.(type) {
			case result:
				m.onResult(v)
			case getState:
				v.reply <- View{
					Value:         m.value,
					LastFetchedAt: m.fetched,
					Failures:      m.failures,
					InFlight:      m.inFlight,
				}
			}
		}
	}
}

func (m *Monitor) onTick() {
	if m.inFlight {
		// Overlapping polls are skipped, never queued.
		return
	}
	m.inFlight = true
	go func() {
		v, err := m.fetch(m.ctx)
		select {
		case m.inbox <- result{value: v, err: err}:
		case <-m.ctx.Done():
		}
	}()
}

func (m *Monitor) onResult(r result) {
	m.inFlight = false

	if r.err != nil {
		// Best effort: keep the previous value, say nothing to the user.
		m.failures++
		logger.Log.Debug("freshness poll failed",
			zap.Int("consecutive", m.failures), zap.Error(r.err))
		m.adjustInterval()
		return
	}

	m.failures = 0
	m.value = r.value
	m.fetched = time.Now()
	m.adjustInterval()
}

// adjustInterval stretches the ticker under sustained failure and snaps back
// on recovery, the same reset-only-on-change dance the ticker needs.
func (m *Monitor) adjustInterval() {
	next := m.interval
	if m.failures >= backoffAfter {
		factor := time.Duration(m.failures - backoffAfter + 2)
		if factor > maxBackoffFactor {
			factor = maxBackoffFactor
		}
		next = m.interval * factor
	}
	if next != m.current {
		m.current = next
		m.ticker.Reset(next)
	}
}
