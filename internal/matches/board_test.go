package matches

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R1Sobriquet/esportapp-client/internal/api"
	"github.com/R1Sobriquet/esportapp-client/internal/engine"
	"github.com/R1Sobriquet/esportapp-client/pkg/types"
)

type fakeAPI struct {
	api.Caller

	mu         sync.Mutex
	matches    []types.Match
	respondErr error
	gate       chan struct{}
}

func (f *fakeAPI) ListMatches(ctx context.Context) ([]types.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matches, nil
}

func (f *fakeAPI) RespondMatch(ctx context.Context, id string, accept bool) (types.Match, error) {
	f.mu.Lock()
	gate, err := f.gate, f.respondErr
	var current types.Match
	for _, m := range f.matches {
		if m.ID == id {
			current = m
		}
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return types.Match{}, ctx.Err()
		}
	}
	if err != nil {
		return types.Match{}, err
	}
	current.Status = types.MatchRejected
	if accept {
		current.Status = types.MatchAccepted
	}
	return current, nil
}

func pendingMatches() []types.Match {
	return []types.Match{
		{ID: "m2", PeerID: "p2", PeerName: "Rhea", Status: types.MatchPending, Score: 87},
		{ID: "m1", PeerID: "p1", PeerName: "Kira", Status: types.MatchPending, Score: 92},
	}
}

func waitState(t *testing.T, b *Board, cond func(View) bool) View {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		v := b.State()
		if cond(v) {
			return v
		}
		select {
		case <-deadline:
			t.Fatalf("condition not reached, last state: %+v", v)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func loadedBoard(t *testing.T, f *fakeAPI) *Board {
	t.Helper()
	b := NewBoard(context.Background(), f)
	b.Load()
	waitState(t, b, func(v View) bool { return v.Loaded })
	return b
}

func TestAcceptFlipsImmediatelyAndConfirms(t *testing.T) {
	f := &fakeAPI{matches: pendingMatches()}
	b := loadedBoard(t, f)
	defer b.Stop()

	require.NoError(t, b.Respond("m1", true))

	// Optimistic flip, position unchanged.
	v := b.State()
	require.Equal(t, "m1", v.Matches[1].ID)
	assert.Equal(t, types.MatchAccepted, v.Matches[1].Status)

	v = waitState(t, b, func(v View) bool { return v.Pending == 0 })
	assert.Equal(t, types.MatchAccepted, v.Matches[1].Status)
	assert.Len(t, b.Accepted(), 1)
}

func TestRejectFailureRollsBack(t *testing.T) {
	f := &fakeAPI{
		matches:    pendingMatches(),
		respondErr: &api.RemoteError{Kind: api.KindServer, Status: 500},
	}
	b := loadedBoard(t, f)
	defer b.Stop()

	require.NoError(t, b.Respond("m2", false))

	select {
	case n := <-b.Notices():
		assert.Equal(t, NoticeRespondFailed, n.Kind)
		assert.Equal(t, "m2", n.MatchID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notice")
	}

	v := waitState(t, b, func(v View) bool { return v.Pending == 0 })
	assert.Equal(t, types.MatchPending, v.Matches[0].Status, "rollback must restore the pending status")
}

func TestAlreadyResolvedSurfacedDistinctly(t *testing.T) {
	f := &fakeAPI{
		matches:    pendingMatches(),
		respondErr: &api.RemoteError{Kind: api.KindAlreadyResolved, Status: 410},
	}
	b := loadedBoard(t, f)
	defer b.Stop()

	require.NoError(t, b.Respond("m1", true))

	select {
	case n := <-b.Notices():
		assert.Equal(t, NoticeAlreadyResolved, n.Kind)
		assert.True(t, api.IsAlreadyResolved(n.Err))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notice")
	}
}

func TestDoubleRespondRejectedWhileFirstPending(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeAPI{matches: pendingMatches(), gate: gate}
	b := loadedBoard(t, f)
	defer b.Stop()

	require.NoError(t, b.Respond("m1", true))
	assert.ErrorIs(t, b.Respond("m1", false), engine.ErrConflictInProgress)
	assert.ErrorIs(t, b.Respond("missing", true), engine.ErrUnknownTarget)

	close(gate)
	waitState(t, b, func(v View) bool { return v.Pending == 0 })
}
