// Package matches owns the match screen: suggested teammates accepted or
// rejected optimistically, reconciled against the server's relationship
// state.
package matches

import (
	"context"

	"go.uber.org/zap"

	"github.com/R1Sobriquet/esportapp-client/internal/api"
	"github.com/R1Sobriquet/esportapp-client/internal/engine"
	"github.com/R1Sobriquet/esportapp-client/internal/logger"
	"github.com/R1Sobriquet/esportapp-client/pkg/types"
)

type NoticeKind string

const (
	NoticeRespondFailed NoticeKind = "respond_failed"
	// NoticeAlreadyResolved means someone (another device, the peer's
	// timeout) settled the match first; the UI words this differently.
	NoticeAlreadyResolved NoticeKind = "already_resolved"
	NoticeLoadFailed      NoticeKind = "load_failed"
)

type Notice struct {
	Kind    NoticeKind
	MatchID string
	Err     error
}

type Msg interface{ isBoardMsg() }

type load struct{}

type loadResult struct {
	matches []types.Match
	err     error
}

type respondReq struct {
	id     string
	accept bool
	reply  chan error
}

type respondResult struct {
	edit *engine.Edit[types.Match]
	auth *types.Match
	err  error
}

type getState struct{ reply chan View }

func (load) isBoardMsg()          {}
func (loadResult) isBoardMsg()    {}
func (respondReq) isBoardMsg()    {}
func (respondResult) isBoardMsg() {}
func (getState) isBoardMsg()      {}

type View struct {
	Matches []types.Match
	Pending int
	Loaded  bool
}

type Board struct {
	inbox   chan Msg
	notices chan Notice
	caller  api.Caller

	ctx    context.Context
	cancel context.CancelFunc

	coll   *engine.Collection[types.Match]
	loaded bool
}

func NewBoard(parent context.Context, caller api.Caller) *Board {
	ctx, cancel := context.WithCancel(parent)
	b := &Board{
		inbox:   make(chan Msg, 64),
		notices: make(chan Notice, 16),
		caller:  caller,
		ctx:     ctx,
		cancel:  cancel,
		coll:    engine.New[types.Match](engine.Prepend),
	}
	go b.loop()
	return b
}

func (b *Board) Notices() <-chan Notice { return b.notices }

func (b *Board) Load() { b.send(load{}) }

// Respond accepts or rejects a match. The status flips locally at once; the
// returned error covers synchronous rejection (a response already pending on
// this match, unknown match id). Remote failure rolls the flip back and
// arrives as a Notice — AlreadyResolved distinctly.
func (b *Board) Respond(id string, accept bool) error {
	reply := make(chan error, 1)
	if !b.send(respondReq{id: id, accept: accept, reply: reply}) {
		return context.Canceled
	}
	select {
	case err := <-reply:
		return err
	case <-b.ctx.Done():
		return context.Canceled
	}
}

func (b *Board) State() View {
	reply := make(chan View, 1)
	if !b.send(getState{reply: reply}) {
		return View{}
	}
	select {
	case v := <-reply:
		return v
	case <-b.ctx.Done():
		return View{}
	}
}

// Accepted lists confirmed teammates, the peers the user may message.
func (b *Board) Accepted() []types.Match {
	var out []types.Match
	for _, m := range b.State().Matches {
		if m.Status == types.MatchAccepted {
			out = append(out, m)
		}
	}
	return out
}

func (b *Board) Stop() { b.cancel() }

func (b *Board) send(m Msg) bool {
	select {
	case b.inbox <- m:
		return true
	case <-b.ctx.Done():
		return false
	}
}

func (b *Board) notify(n Notice) {
	select {
	case b.notices <- n:
	default:
		logger.Log.Warn("notice dropped", zap.String("kind", string(n.Kind)))
	}
}

func (b *Board) loop() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case m := <-b.inbox:
			switch msg := m.(type) {
			case load:
				b.onLoad()
			case loadResult:
				b.onLoadResult(msg)
			case respondReq:
				b.onRespond(msg)
			case respondResult:
				b.onRespondResult(msg)
			case getState:
				msg.reply <- View{Matches: b.coll.Items(), Pending: b.coll.PendingCount(), Loaded: b.loaded}
			}
		}
	}
}

func (b *Board) onLoad() {
	go func() {
		matches, err := b.caller.ListMatches(b.ctx)
		b.send(loadResult{matches: matches, err: err})
	}()
}

func (b *Board) onLoadResult(r loadResult) {
	if r.err != nil {
		b.notify(Notice{Kind: NoticeLoadFailed, Err: r.err})
		return
	}
	b.coll.Reload(r.matches)
	b.loaded = true
}

func (b *Board) onRespond(msg respondReq) {
	current, ok := b.coll.Get(msg.id)
	if !ok {
		msg.reply <- engine.ErrUnknownTarget
		return
	}

	proposed := current
	proposed.Status = types.MatchRejected
	if msg.accept {
		proposed.Status = types.MatchAccepted
	}

	h, err := b.coll.Begin(engine.KindUpdate, proposed)
	if err != nil {
		msg.reply <- err
		return
	}
	msg.reply <- nil

	id, accept := msg.id, msg.accept
	go func() {
		confirmed, err := b.caller.RespondMatch(b.ctx, id, accept)
		if err != nil {
			b.send(respondResult{edit: h, err: err})
			return
		}
		b.send(respondResult{edit: h, auth: &confirmed})
	}()
}

func (b *Board) onRespondResult(r respondResult) {
	if _, err := b.coll.Resolve(r.edit, engine.Outcome[types.Match]{Err: r.err, Authoritative: r.auth}); err != nil {
		logger.Log.Warn("resolve on settled edit", zap.Error(err))
		return
	}
	if r.err == nil {
		return
	}

	kind := NoticeRespondFailed
	if api.IsAlreadyResolved(r.err) {
		kind = NoticeAlreadyResolved
	}
	b.notify(Notice{Kind: kind, MatchID: r.edit.TargetID, Err: r.err})
}
