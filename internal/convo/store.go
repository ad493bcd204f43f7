// Package convo maintains one ordered message list per peer, combining
// server-loaded history with optimistic local sends. A single Store actor
// owns every conversation of the signed-in user; all mutation is serialized
// through its inbox.
package convo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/R1Sobriquet/esportapp-client/internal/api"
	"github.com/R1Sobriquet/esportapp-client/internal/engine"
	"github.com/R1Sobriquet/esportapp-client/internal/logger"
	"github.com/R1Sobriquet/esportapp-client/pkg/types"
)

// MaxContentLen is the send limit in runes.
const MaxContentLen = 1000

var (
	ErrEmptyContent = errors.New("message content is empty")
	ErrTooLong      = errors.New("message content exceeds limit")
)

type NoticeKind string

const (
	NoticeSendFailed       NoticeKind = "send_failed"
	NoticeSendForbidden    NoticeKind = "send_forbidden"
	NoticeHistoryForbidden NoticeKind = "history_forbidden"
	NoticeHistoryFailed    NoticeKind = "history_failed"
)

// Notice is a user-visible failure surfaced after a rollback.
type Notice struct {
	Kind   NoticeKind
	PeerID string
	Err    error
}

type Msg interface{ isConvoMsg() }

type selectConv struct {
	peerID   string
	peerName string
}

type sendReq struct {
	peerID  string
	content string
	reply   chan error
}

type sendResult struct {
	peerID      string
	edit        *engine.Edit[types.Message]
	prevPreview types.Preview
	msg         types.Message
	err         error
}

type historyResult struct {
	peerID string
	msgs   []types.Message
	err    error
}

type incoming struct{ msg types.Message }

type listResult struct {
	convs []types.Conversation
	err   error
}

type refreshList struct{}

type getConv struct {
	peerID string
	reply  chan View
}

type listConvs struct{ reply chan []types.Conversation }

func (selectConv) isConvoMsg()    {}
func (sendReq) isConvoMsg()       {}
func (sendResult) isConvoMsg()    {}
func (historyResult) isConvoMsg() {}
func (incoming) isConvoMsg()      {}
func (listResult) isConvoMsg()    {}
func (refreshList) isConvoMsg()   {}
func (getConv) isConvoMsg()       {}
func (listConvs) isConvoMsg()     {}

// View reflects one conversation without data races.
type View struct {
	Conversation types.Conversation
	Messages     []types.Message
	Loaded       bool
	Placeholder  bool
}

// thread is the loop-owned state of one peer conversation.
type thread struct {
	conv        types.Conversation
	coll        *engine.Collection[types.Message]
	loaded      bool
	loading     bool
	placeholder bool
}

type Store struct {
	inbox   chan Msg
	notices chan Notice
	caller  api.Caller
	selfID  string

	ctx    context.Context
	cancel context.CancelFunc

	threads map[string]*thread // owned by the loop
}

// NewStore starts the conversation owner for the given user. Each Store
// owns its own copy of every conversation; two stores over the same account
// do not reconcile (single-owner model).
func NewStore(parent context.Context, caller api.Caller, selfID string) *Store {
	ctx, cancel := context.WithCancel(parent)
	s := &Store{
		inbox:   make(chan Msg, 64),
		notices: make(chan Notice, 16),
		caller:  caller,
		selfID:  selfID,
		ctx:     ctx,
		cancel:  cancel,
		threads: make(map[string]*thread),
	}
	go s.loop()
	return s
}

// Notices delivers user-visible failure notices. Slow consumers lose
// notices rather than blocking the loop.
func (s *Store) Notices() <-chan Notice { return s.notices }

// Select opens the conversation with a peer, creating an empty placeholder
// when none exists so a first message can be composed. History loads in the
// background on first select.
func (s *Store) Select(peerID, peerName string) {
	s.send(selectConv{peerID: peerID, peerName: peerName})
}

// Send appends an optimistic message and issues the remote send. The
// returned error covers synchronous local rejection only (validation);
// remote failures roll back and arrive as a Notice.
func (s *Store) Send(peerID, content string) error {
	reply := make(chan error, 1)
	if !s.send(sendReq{peerID: peerID, content: content, reply: reply}) {
		return context.Canceled
	}
	select {
	case err := <-reply:
		return err
	case <-s.ctx.Done():
		return context.Canceled
	}
}

// ApplyIncoming appends a message pushed by the live feed. Forward-only: it
// never touches pending optimistic edits.
func (s *Store) ApplyIncoming(m types.Message) { s.send(incoming{msg: m}) }

// RefreshList re-fetches the conversation list summaries.
func (s *Store) RefreshList() { s.send(refreshList{}) }

// Conversation returns a snapshot view of one thread.
func (s *Store) Conversation(peerID string) View {
	reply := make(chan View, 1)
	if !s.send(getConv{peerID: peerID, reply: reply}) {
		return View{}
	}
	select {
	case v := <-reply:
		return v
	case <-s.ctx.Done():
		return View{}
	}
}

// Conversations returns the list summaries, most recent activity first.
func (s *Store) Conversations() []types.Conversation {
	reply := make(chan []types.Conversation, 1)
	if !s.send(listConvs{reply: reply}) {
		return nil
	}
	select {
	case v := <-reply:
		return v
	case <-s.ctx.Done():
		return nil
	}
}

func (s *Store) Stop() { s.cancel() }

func (s *Store) send(m Msg) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Store) notify(n Notice) {
	select {
	case s.notices <- n:
	default:
		logger.Log.Warn("notice dropped", zap.String("kind", string(n.Kind)))
	}
}

func (s *Store) loop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case m := <-s.inbox:
			switch msg := m.(type) {
			case selectConv:
				s.onSelect(msg)
			case sendReq:
				s.onSend(msg)
			case sendResult:
				s.onSendResult(msg)
			case historyResult:
				s.onHistory(msg)
			case incoming:
				s.onIncoming(msg.msg)
			case refreshList:
				s.onRefreshList()
			case listResult:
				s.onListResult(msg)
			case getConv:
				msg.reply <- s.viewOf(msg.peerID)
			case listConvs:
				msg.reply <- s.summaries()
			}
		}
	}
}

// ensure returns the thread for a peer, creating a placeholder when absent.
// The placeholder is local only; the server materializes the conversation on
// the first successful send.
func (s *Store) ensure(peerID, peerName string) *thread {
	if th, ok := s.threads[peerID]; ok {
		if peerName != "" && th.conv.PeerName == "" {
			th.conv.PeerName = peerName
		}
		return th
	}
	th := &thread{
		conv:        types.Conversation{PeerID: peerID, PeerName: peerName},
		coll:        engine.New[types.Message](engine.Append),
		placeholder: true,
	}
	s.threads[peerID] = th
	return th
}

func (s *Store) onSelect(msg selectConv) {
	th := s.ensure(msg.peerID, msg.peerName)
	if th.loaded || th.loading {
		return
	}
	th.loading = true
	peerID := msg.peerID
	go func() {
		msgs, err := s.caller.ListMessages(s.ctx, peerID)
		s.send(historyResult{peerID: peerID, msgs: msgs, err: err})
	}()
}

func (s *Store) onSend(msg sendReq) {
	content := strings.TrimSpace(msg.content)
	if content == "" {
		msg.reply <- ErrEmptyContent
		return
	}
	if utf8.RuneCountInString(content) > MaxContentLen {
		msg.reply <- ErrTooLong
		return
	}

	th := s.ensure(msg.peerID, "")

	optimistic := types.Message{
		ID:        "tmp-" + uuid.NewString(),
		PeerID:    msg.peerID,
		Sender:    s.selfID,
		Content:   content,
		CreatedAt: time.Now(),
		Pending:   true,
	}

	h, err := th.coll.Begin(engine.KindInsert, optimistic)
	if err != nil {
		msg.reply <- err
		return
	}

	prev := th.conv.Preview
	th.conv.Preview = types.Preview{LastContent: content, LastAt: optimistic.CreatedAt}
	msg.reply <- nil

	peerID := msg.peerID
	go func() {
		m, err := s.caller.SendMessage(s.ctx, peerID, content)
		s.send(sendResult{peerID: peerID, edit: h, prevPreview: prev, msg: m, err: err})
	}()
}

func (s *Store) onSendResult(r sendResult) {
	th, ok := s.threads[r.peerID]
	if !ok {
		return
	}

	if r.err != nil {
		// pending → removed: the optimistic tail message disappears and the
		// preview returns to what it showed before.
		if _, err := th.coll.Resolve(r.edit, engine.Outcome[types.Message]{Err: r.err}); err != nil {
			logger.Log.Warn("send rollback on resolved edit", zap.Error(err))
			return
		}
		// A later message may still be on the tail; the prior preview only
		// applies when the rolled-back send was the last activity.
		if th.coll.Len() > 0 {
			s.refreshPreview(th)
		} else {
			th.conv.Preview = r.prevPreview
		}

		kind := NoticeSendFailed
		if api.IsForbidden(r.err) {
			kind = NoticeSendForbidden
		}
		s.notify(Notice{Kind: kind, PeerID: r.peerID, Err: r.err})
		return
	}

	// pending → confirmed: authoritative id and timestamp replace the
	// optimistic message in place; no duplicate, no reordering.
	auth := r.msg
	auth.Pending = false
	if _, err := th.coll.Resolve(r.edit, engine.Outcome[types.Message]{Authoritative: &auth}); err != nil {
		logger.Log.Warn("send confirm on resolved edit", zap.Error(err))
		return
	}
	th.placeholder = false
	// Recomputed from the tail so an out-of-order confirmation never moves
	// the preview backwards past a newer pending send.
	s.refreshPreview(th)
}

func (s *Store) onHistory(r historyResult) {
	th, ok := s.threads[r.peerID]
	if !ok {
		return
	}
	th.loading = false

	if r.err != nil {
		// No accepted match with this user reads differently than a plain
		// failure.
		if api.IsForbidden(r.err) {
			s.notify(Notice{Kind: NoticeHistoryForbidden, PeerID: r.peerID, Err: r.err})
		} else {
			s.notify(Notice{Kind: NoticeHistoryFailed, PeerID: r.peerID, Err: r.err})
		}
		return
	}

	msgs := append([]types.Message(nil), r.msgs...)
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	// Reload keeps pending optimistic sends at the tail.
	th.coll.Reload(msgs)
	th.loaded = true
	if len(msgs) > 0 {
		th.placeholder = false
	}
	s.refreshPreview(th)
}

func (s *Store) onIncoming(m types.Message) {
	th := s.ensure(m.PeerID, "")
	if _, ok := th.coll.Get(m.ID); ok {
		return // duplicate push
	}
	if th.coll.HasPending(m.ID) {
		return
	}
	h, err := th.coll.Begin(engine.KindInsert, m)
	if err != nil {
		return
	}
	// Feed appends are already authoritative; confirm on the spot.
	_, _ = th.coll.Resolve(h, engine.Outcome[types.Message]{})
	th.placeholder = false
	s.refreshPreview(th)
}

func (s *Store) onRefreshList() {
	go func() {
		convs, err := s.caller.ListConversations(s.ctx)
		s.send(listResult{convs: convs, err: err})
	}()
}

func (s *Store) onListResult(r listResult) {
	if r.err != nil {
		// List refresh is freshness-only; like the poller, it fails silently.
		logger.Log.Debug("conversation list refresh failed", zap.Error(r.err))
		return
	}
	for _, conv := range r.convs {
		th := s.ensure(conv.PeerID, conv.PeerName)
		th.conv.Unread = conv.Unread
		th.placeholder = false
		// Local pending sends outrank the server summary.
		if th.coll.PendingCount() == 0 {
			th.conv.Preview = conv.Preview
		}
	}
}

func (s *Store) refreshPreview(th *thread) {
	items := th.coll.Items()
	if len(items) == 0 {
		th.conv.Preview = types.Preview{}
		return
	}
	last := items[len(items)-1]
	th.conv.Preview = types.Preview{LastContent: last.Content, LastAt: last.CreatedAt}
}

func (s *Store) viewOf(peerID string) View {
	th, ok := s.threads[peerID]
	if !ok {
		return View{Conversation: types.Conversation{PeerID: peerID}, Placeholder: true}
	}
	return View{
		Conversation: th.conv,
		Messages:     th.coll.Items(),
		Loaded:       th.loaded,
		Placeholder:  th.placeholder,
	}
}

func (s *Store) summaries() []types.Conversation {
	out := make([]types.Conversation, 0, len(s.threads))
	for _, th := range s.threads {
		out = append(out, th.conv)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Preview.LastAt.After(out[j].Preview.LastAt)
	})
	return out
}
