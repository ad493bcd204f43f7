package games

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

	mu          sync.Mutex
	library     []types.Game
	addErr      error
	removeErr   error
	addGate     chan struct{}
	removedIDs  []string
	confirmedID string
}

func (f *fakeAPI) ListGames(ctx context.Context) ([]types.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.library, nil
}

func (f *fakeAPI) AddGame(ctx context.Context, g types.Game) (types.Game, error) {
	f.mu.Lock()
	gate, err, id := f.addGate, f.addErr, f.confirmedID
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return types.Game{}, ctx.Err()
		}
	}
	if err != nil {
		return types.Game{}, err
	}
	confirmed := g
	if id != "" {
		confirmed.ID = id
	}
	return confirmed, nil
}

func (f *fakeAPI) RemoveGame(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removedIDs = append(f.removedIDs, id)
	return nil
}

func (f *fakeAPI) removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removedIDs...)
}

func threeGames() []types.Game {
	return []types.Game{
		{ID: "3", Slug: "valorant", Name: "Valorant"},
		{ID: "2", Slug: "lol", Name: "League of Legends"},
		{ID: "1", Slug: "rl", Name: "Rocket League"},
	}
}

func waitState(t *testing.T, l *Library, cond func(View) bool) View {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		v := l.State()
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

func gameIDs(games []types.Game) []string {
	out := make([]string, 0, len(games))
	for _, g := range games {
		out = append(out, g.ID)
	}
	return out
}

func TestAddConfirmsWithServerID(t *testing.T) {
	// Three games in the profile, a fourth added optimistically, confirmed
	// with server id 42.
	f := &fakeAPI{library: threeGames(), confirmedID: "42"}
	l := NewLibrary(context.Background(), f)
	defer l.Stop()

	l.Load()
	waitState(t, l, func(v View) bool { return v.Loaded })

	require.NoError(t, l.Add(types.Game{ID: "tmp-ow", Slug: "overwatch", Name: "Overwatch"}))
	v := l.State()
	assert.Equal(t, []string{"tmp-ow", "3", "2", "1"}, gameIDs(v.Games), "optimistic add goes to the head")

	v = waitState(t, l, func(v View) bool { return v.Pending == 0 })
	assert.Equal(t, []string{"42", "3", "2", "1"}, gameIDs(v.Games))
	assert.Len(t, v.Games, 4)
}

func TestAddRejectedRollsBack(t *testing.T) {
	f := &fakeAPI{
		library: threeGames(),
		addErr:  &api.RemoteError{Kind: api.KindValidation, Status: 422, Message: "unknown game"},
	}
	l := NewLibrary(context.Background(), f)
	defer l.Stop()

	l.Load()
	before := waitState(t, l, func(v View) bool { return v.Loaded })

	require.NoError(t, l.Add(types.Game{ID: "tmp-x", Slug: "nope"}))

	select {
	case n := <-l.Notices():
		assert.Equal(t, NoticeAddFailed, n.Kind)
		assert.Equal(t, "tmp-x", n.GameID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notice")
	}

	v := waitState(t, l, func(v View) bool { return v.Pending == 0 })
	assert.Equal(t, before.Games, v.Games, "library must match its pre-add state exactly")
}

func TestSecondEditOnSameGameRejected(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeAPI{library: threeGames(), addGate: gate}
	l := NewLibrary(context.Background(), f)
	defer l.Stop()

	l.Load()
	waitState(t, l, func(v View) bool { return v.Loaded })

	require.NoError(t, l.Add(types.Game{ID: "tmp-a", Slug: "a"}))
	err := l.Add(types.Game{ID: "tmp-a", Slug: "a"})
	assert.ErrorIs(t, err, engine.ErrConflictInProgress)

	close(gate)
	waitState(t, l, func(v View) bool { return v.Pending == 0 })
}

func TestRemoveQueuedBehindPendingAdd(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeAPI{library: threeGames(), addGate: gate, confirmedID: "42"}
	l := NewLibrary(context.Background(), f)
	defer l.Stop()

	l.Load()
	waitState(t, l, func(v View) bool { return v.Loaded })

	require.NoError(t, l.Add(types.Game{ID: "tmp-ow", Slug: "overwatch"}))
	// Removing while the add is in flight queues; nothing is issued yet.
	require.NoError(t, l.Remove("tmp-ow"))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.removed())
	assert.Equal(t, 4, len(l.State().Games), "queued remove must not touch the list")

	// Add confirms with the server id, then the remove runs against it.
	close(gate)
	v := waitState(t, l, func(v View) bool { return v.Pending == 0 && len(v.Games) == 3 })
	assert.Equal(t, []string{"3", "2", "1"}, gameIDs(v.Games))
	assert.Equal(t, []string{"42"}, f.removed(), "remove must target the confirmed id")
}

func TestReloadPreservesPendingAdd(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeAPI{library: threeGames(), addGate: gate}
	l := NewLibrary(context.Background(), f)
	defer l.Stop()

	l.Load()
	waitState(t, l, func(v View) bool { return v.Loaded })

	require.NoError(t, l.Add(types.Game{ID: "tmp-a", Slug: "a"}))

	// A second load lands while the add is pending.
	f.mu.Lock()
	f.library = append([]types.Game{{ID: "4", Slug: "cs2"}}, threeGames()...)
	f.mu.Unlock()
	l.Load()

	v := waitState(t, l, func(v View) bool { return len(v.Games) == 5 })
	assert.Equal(t, []string{"tmp-a", "4", "3", "2", "1"}, gameIDs(v.Games))
	assert.Equal(t, 1, v.Pending)

	close(gate)
	waitState(t, l, func(v View) bool { return v.Pending == 0 })
}
