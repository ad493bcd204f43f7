// Package games owns the signed-in user's game library: newest-first, edited
// optimistically through the mutation engine, reconciled against the remote
// profile.
package games

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
	NoticeAddFailed    NoticeKind = "add_failed"
	NoticeRemoveFailed NoticeKind = "remove_failed"
	NoticeLoadFailed   NoticeKind = "load_failed"
)

type Notice struct {
	Kind   NoticeKind
	GameID string
	Err    error
}

type Msg interface{ isLibraryMsg() }

type load struct{}

type loadResult struct {
	games []types.Game
	err   error
}

type addReq struct {
	game  types.Game
	reply chan error
}

type removeReq struct {
	id    string
	reply chan error
}

type opResult struct {
	edit *engine.Edit[types.Game]
	auth *types.Game
	err  error
}

type getState struct{ reply chan View }

func (load) isLibraryMsg()       {}
func (loadResult) isLibraryMsg() {}
func (addReq) isLibraryMsg()     {}
func (removeReq) isLibraryMsg()  {}
func (opResult) isLibraryMsg()   {}
func (getState) isLibraryMsg()   {}

type View struct {
	Games   []types.Game
	Pending int
	Loaded  bool
}

type Library struct {
	inbox   chan Msg
	notices chan Notice
	caller  api.Caller

	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the loop goroutine.
	coll   *engine.Collection[types.Game]
	loaded bool
}

func NewLibrary(parent context.Context, caller api.Caller) *Library {
	ctx, cancel := context.WithCancel(parent)
	l := &Library{
		inbox:   make(chan Msg, 64),
		notices: make(chan Notice, 16),
		caller:  caller,
		ctx:     ctx,
		cancel:  cancel,
		coll:    engine.New[types.Game](engine.Prepend),
	}
	go l.loop()
	return l
}

func (l *Library) Notices() <-chan Notice { return l.notices }

// Load fetches the library. A refresh never clobbers in-flight edits.
func (l *Library) Load() { l.send(load{}) }

// Add puts the game at the head of the library immediately and confirms it
// remotely. The returned error covers synchronous rejection only
// (ErrConflictInProgress, ErrDuplicateItem); remote failures roll the insert
// back and arrive as a Notice.
func (l *Library) Add(g types.Game) error {
	reply := make(chan error, 1)
	if !l.send(addReq{game: g, reply: reply}) {
		return context.Canceled
	}
	return l.await(reply)
}

// Remove deletes a game immediately and confirms remotely. Removing a game
// whose add is still pending is queued behind it, never interleaved.
func (l *Library) Remove(id string) error {
	reply := make(chan error, 1)
	if !l.send(removeReq{id: id, reply: reply}) {
		return context.Canceled
	}
	return l.await(reply)
}

func (l *Library) State() View {
	reply := make(chan View, 1)
	if !l.send(getState{reply: reply}) {
		return View{}
	}
	select {
	case v := <-reply:
		return v
	case <-l.ctx.Done():
		return View{}
	}
}

func (l *Library) Stop() { l.cancel() }

func (l *Library) send(m Msg) bool {
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

func (l *Library) await(reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-l.ctx.Done():
		return context.Canceled
	}
}

func (l *Library) notify(n Notice) {
	select {
	case l.notices <- n:
	default:
		logger.Log.Warn("notice dropped", zap.String("kind", string(n.Kind)))
	}
}

func (l *Library) loop() {
	for {
		select {
		case <-l.ctx.Done():
			return
		case m := <-l.inbox:
			switch msg := m.(type) {
			case load:
				l.onLoad()
			case loadResult:
				l.onLoadResult(msg)
			case addReq:
				l.onAdd(msg)
			case removeReq:
				l.onRemove(msg)
			case opResult:
				l.onOpResult(msg)
			case getState:
				msg.reply <- View{Games: l.coll.Items(), Pending: l.coll.PendingCount(), Loaded: l.loaded}
			}
		}
	}
}

func (l *Library) onLoad() {
	go func() {
		games, err := l.caller.ListGames(l.ctx)
		l.send(loadResult{games: games, err: err})
	}()
}

func (l *Library) onLoadResult(r loadResult) {
	if r.err != nil {
		l.notify(Notice{Kind: NoticeLoadFailed, Err: r.err})
		return
	}
	l.coll.Reload(r.games)
	l.loaded = true
}

func (l *Library) onAdd(msg addReq) {
	h, err := l.coll.Begin(engine.KindInsert, msg.game)
	if err != nil {
		msg.reply <- err
		return
	}
	msg.reply <- nil

	g := msg.game
	go func() {
		confirmed, err := l.caller.AddGame(l.ctx, g)
		if err != nil {
			l.send(opResult{edit: h, err: err})
			return
		}
		l.send(opResult{edit: h, auth: &confirmed})
	}()
}

func (l *Library) onRemove(msg removeReq) {
	h, err := l.coll.Begin(engine.KindRemove, types.Game{ID: msg.id})
	if err != nil {
		msg.reply <- err
		return
	}
	msg.reply <- nil

	if h.Status == engine.StatusQueued {
		// Runs after the pending add resolves; onOpResult dispatches it.
		return
	}
	l.dispatchRemove(h)
}

func (l *Library) dispatchRemove(h *engine.Edit[types.Game]) {
	id := h.TargetID
	go func() {
		err := l.caller.RemoveGame(l.ctx, id)
		l.send(opResult{edit: h, err: err})
	}()
}

func (l *Library) onOpResult(r opResult) {
	next, err := l.coll.Resolve(r.edit, engine.Outcome[types.Game]{Err: r.err, Authoritative: r.auth})
	if err != nil {
		logger.Log.Warn("resolve on settled edit", zap.Error(err))
		return
	}

	if r.err != nil {
		kind := NoticeAddFailed
		if r.edit.Kind == engine.KindRemove {
			kind = NoticeRemoveFailed
		}
		l.notify(Notice{Kind: kind, GameID: r.edit.TargetID, Err: r.err})
	}

	if next != nil {
		// The queued remove just went pending against the confirmed id.
		l.dispatchRemove(next)
	}
}
