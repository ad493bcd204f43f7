// Package query turns fast-changing search input into at most one settled
// remote suggestion fetch, and guarantees the rendered results always belong
// to the most recent query regardless of network completion order.
package query

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/bep/debounce"
	"go.uber.org/zap"

	"github.com/R1Sobriquet/esportapp-client/internal/logger"
	"github.com/R1Sobriquet/esportapp-client/pkg/types"
)

// Fetcher issues the suggestions call for a settled query.
type Fetcher func(ctx context.Context, text string) (types.Suggestions, error)

const (
	DefaultQuiet  = 300 * time.Millisecond
	DefaultMinLen = 2
)

type Msg interface{ isQueryMsg() }

type input struct{ text string }

type settled struct {
	gen  uint64
	text string
}

type response struct {
	seq  uint64
	data types.Suggestions
	err  error
}

type moveSelection struct{ delta int }

type getState struct{ reply chan View }

func (input) isQueryMsg()         {}
func (settled) isQueryMsg()       {}
func (response) isQueryMsg()      {}
func (moveSelection) isQueryMsg() {}
func (getState) isQueryMsg()      {}

// View reflects loop-owned state without data races.
type View struct {
	Query    string
	Results  types.Suggestions
	Selected int // -1 when nothing is rendered
	Err      error
	Issued   uint64 // latest issued sequence number
	Applied  uint64 // sequence number the current results belong to
}

type Channel struct {
	inbox    chan Msg
	fetch    Fetcher
	debounce func(func())
	minLen   int

	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the loop goroutine.
	text     string
	gen      uint64
	issued   uint64
	applied  uint64
	results  types.Suggestions
	selected int
	err      error
}

type Options struct {
	Quiet  time.Duration
	MinLen int
}

func New(parent context.Context, fetch Fetcher, opts Options) *Channel {
	if opts.Quiet <= 0 {
		opts.Quiet = DefaultQuiet
	}
	if opts.MinLen <= 0 {
		opts.MinLen = DefaultMinLen
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Channel{
		inbox:    make(chan Msg, 64),
		fetch:    fetch,
		debounce: debounce.New(opts.Quiet),
		minLen:   opts.MinLen,
		ctx:      ctx,
		cancel:   cancel,
		selected: -1,
	}
	go c.loop()
	return c
}

// Input feeds one keystroke-level change of the search text.
func (c *Channel) Input(text string) { c.send(input{text: text}) }

// Next and Prev move the suggestion selection with wrap-around. Selection is
// purely local and independent of any in-flight fetch.
func (c *Channel) Next() { c.send(moveSelection{delta: 1}) }
func (c *Channel) Prev() { c.send(moveSelection{delta: -1}) }

// State returns a snapshot of the channel. The zero View is returned after
// shutdown.
func (c *Channel) State() View {
	reply := make(chan View, 1)
	if !c.send(getState{reply: reply}) {
		return View{}
	}
	select {
	case v := <-reply:
		return v
	case <-c.ctx.Done():
		return View{}
	}
}

// Stop tears the channel down. Outstanding fetches are not aborted; their
// responses land in a closed-over inbox and are discarded as stale.
func (c *Channel) Stop() { c.cancel() }

func (c *Channel) send(m Msg) bool {
	select {
	case c.inbox <- m:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Channel) loop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case m := <-c.inbox:
			switch msg := m.(type) {
			case input:
				c.onInput(msg.text)
			case settled:
				c.onSettled(msg)
			case response:
				c.onResponse(msg)
			case moveSelection:
				c.onMove(msg.delta)
			case getState:
				msg.reply <- View{
					Query:    c.text,
					Results:  c.results,
					Selected: c.selected,
					Err:      c.err,
					Issued:   c.issued,
					Applied:  c.applied,
				}
			}
		}
	}
}

func (c *Channel) onInput(text string) {
	c.text = text
	c.gen++

	if utf8.RuneCountInString(text) < c.minLen {
		// Below threshold: no network call, and nothing stays rendered. An
		// in-flight fetch belongs to text the user already left behind, so
		// bump the sequence to strand its response as stale.
		c.results = types.Suggestions{}
		c.selected = -1
		c.err = nil
		c.issued++
		c.applied = c.issued
		c.debounce(func() {}) // supersede any armed settle
		return
	}

	gen, txt := c.gen, text
	c.debounce(func() {
		c.send(settled{gen: gen, text: txt})
	})
}

func (c *Channel) onSettled(msg settled) {
	if msg.gen != c.gen {
		return // input changed again before the settle landed
	}

	c.issued++
	seq, txt := c.issued, msg.text
	go func() {
		data, err := c.fetch(c.ctx, txt)
		c.send(response{seq: seq, data: data, err: err})
	}()
}

func (c *Channel) onResponse(msg response) {
	if msg.seq != c.issued {
		// Stale: a newer query was issued while this one was in flight.
		// Discarded silently whether it succeeded or failed.
		return
	}

	c.applied = msg.seq
	if msg.err != nil {
		logger.Log.Debug("suggestion fetch failed",
			zap.Uint64("seq", msg.seq), zap.Error(msg.err))
		c.err = msg.err
		return
	}

	c.err = nil
	c.results = msg.data
	if c.selected >= c.results.Total() {
		c.selected = -1
	}
}

func (c *Channel) onMove(delta int) {
	total := c.results.Total()
	if total == 0 {
		c.selected = -1
		return
	}
	if c.selected < 0 {
		if delta > 0 {
			c.selected = 0
		} else {
			c.selected = total - 1
		}
		return
	}
	c.selected = (c.selected + delta + total) % total
}
