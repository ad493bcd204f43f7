package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// Randomized probe of the two core guarantees: a failed edit always restores
// the exact pre-edit collection, and a target with a pending edit never
// accepts a second one.
func TestRandomizedRollbackAndSerialization(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	c := New[entry](Prepend)
	base := []entry{}
	for i := 0; i < 5; i++ {
		base = append(base, entry{ID: fmt.Sprintf("g%d", i), Val: fmt.Sprintf("v%d", i)})
	}
	c.Reload(base)

	nextID := 100
	for step := 0; step < 500; step++ {
		before := c.Items()

		var (
			h   *Edit[entry]
			err error
		)
		switch rng.Intn(3) {
		case 0:
			nextID++
			h, err = c.Begin(KindInsert, entry{ID: fmt.Sprintf("g%d", nextID), Val: "new"})
		case 1:
			if len(before) == 0 {
				continue
			}
			h, err = c.Begin(KindRemove, before[rng.Intn(len(before))])
		case 2:
			if len(before) == 0 {
				continue
			}
			target := before[rng.Intn(len(before))]
			target.Val = fmt.Sprintf("patched-%d", step)
			h, err = c.Begin(KindUpdate, target)
		}
		require.NoError(t, err)

		// While pending, every second edit on the same target is rejected
		// without mutating state.
		during := c.Items()
		for _, kind := range []Kind{KindInsert, KindUpdate} {
			_, conflictErr := c.Begin(kind, entry{ID: h.TargetID})
			require.Error(t, conflictErr)
			require.True(t,
				errors.Is(conflictErr, ErrConflictInProgress) || errors.Is(conflictErr, ErrDuplicateItem),
				"unexpected error: %v", conflictErr)
			require.Equal(t, during, c.Items())
		}

		if rng.Intn(2) == 0 {
			_, err = c.Resolve(h, Outcome[entry]{})
			require.NoError(t, err)
		} else {
			_, err = c.Resolve(h, Outcome[entry]{Err: errors.New("remote failure")})
			require.NoError(t, err)
			require.Equal(t, before, c.Items(), "rollback at step %d not exact", step)
		}
		require.Equal(t, 0, c.PendingCount())
	}
}
