// Package engine implements the optimistic mutation core shared by the
// game-library, match and conversation synchronizers: apply a local edit
// immediately, track the pending remote confirmation, merge authoritative
// data on success, roll back exactly on failure.
package engine

import (
	"errors"
	"slices"
)

var (
	ErrConflictInProgress = errors.New("edit already pending for target")
	ErrUnknownTarget      = errors.New("no item with target id")
	ErrDuplicateItem      = errors.New("item id already in collection")
	ErrAlreadyResolved    = errors.New("edit already resolved")
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindRemove Kind = "remove"
	KindUpdate Kind = "update"
)

type Status string

const (
	// StatusQueued is a remove waiting for a pending insert on the same
	// target; it has not touched the collection yet.
	StatusQueued    Status = "queued"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusReverted  Status = "reverted"
)

// Item is anything with a stable id unique within its collection.
type Item interface {
	Key() string
}

// Placement decides where confirmed-order inserts land.
type Placement int

const (
	Prepend Placement = iota // newest-first lists (game library, matches)
	Append                   // tail-ordered lists (conversation messages)
)

// Edit is one in-flight local mutation. The pointer doubles as the resolve
// handle.
type Edit[T Item] struct {
	Kind     Kind
	TargetID string
	Proposed T
	Status   Status

	prior      T
	priorIndex int
}

// Outcome carries the result of the one remote call attached to an edit.
// Err nil means success; Authoritative, when set, replaces the optimistic
// item in place (e.g. a server-assigned id).
type Outcome[T Item] struct {
	Err           error
	Authoritative *T
}

// Collection is an in-memory collection under optimistic edit. It is not
// goroutine safe: per the single-owner model, exactly one loop owns it.
type Collection[T Item] struct {
	items     []T
	placement Placement

	pending map[string]*Edit[T]
	order   []string // pending target ids in Begin order
	queued  map[string]*Edit[T]
}

func New[T Item](placement Placement) *Collection[T] {
	return &Collection[T]{
		placement: placement,
		pending:   make(map[string]*Edit[T]),
		queued:    make(map[string]*Edit[T]),
	}
}

// Items returns a copy of the current visual order.
func (c *Collection[T]) Items() []T {
	return slices.Clone(c.items)
}

func (c *Collection[T]) Len() int { return len(c.items) }

// Get returns the item with the given id, if present.
func (c *Collection[T]) Get(id string) (T, bool) {
	if i := c.index(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// PendingCount reports how many edits await remote resolution.
func (c *Collection[T]) PendingCount() int { return len(c.pending) }

// HasPending reports whether the target id has an unresolved edit.
func (c *Collection[T]) HasPending(id string) bool {
	_, ok := c.pending[id]
	return ok
}

// Begin applies one local edit and records it as pending.
//
// A second edit on a target that already has one pending fails with
// ErrConflictInProgress, with a single exception: a remove requested while
// an insert on the same target is pending is queued (StatusQueued, not yet
// applied) and activates when the insert resolves — see Resolve.
func (c *Collection[T]) Begin(kind Kind, item T) (*Edit[T], error) {
	id := item.Key()

	if prev, ok := c.pending[id]; ok {
		if kind == KindRemove && prev.Kind == KindInsert {
			if _, dup := c.queued[id]; dup {
				return nil, ErrConflictInProgress
			}
			e := &Edit[T]{Kind: KindRemove, TargetID: id, Proposed: item, Status: StatusQueued}
			c.queued[id] = e
			return e, nil
		}
		return nil, ErrConflictInProgress
	}

	e := &Edit[T]{Kind: kind, TargetID: id, Proposed: item, Status: StatusPending}

	switch kind {
	case KindInsert:
		if c.index(id) >= 0 {
			return nil, ErrDuplicateItem
		}
		c.insert(item)

	case KindRemove:
		i := c.index(id)
		if i < 0 {
			return nil, ErrUnknownTarget
		}
		e.prior = c.items[i]
		e.priorIndex = i
		c.items = slices.Delete(c.items, i, i+1)

	case KindUpdate:
		i := c.index(id)
		if i < 0 {
			return nil, ErrUnknownTarget
		}
		e.prior = c.items[i]
		e.priorIndex = i
		c.items[i] = item
	}

	c.pending[id] = e
	c.order = append(c.order, id)
	return e, nil
}

// Resolve finishes an edit with the outcome of its remote call.
//
// On success the optimistic item is replaced in place by the authoritative
// one when provided, and the edit is confirmed. On failure the collection is
// restored exactly to its pre-Begin shape and the edit is reverted; the
// caller surfaces the outcome error to the user.
//
// The returned edit, when non-nil, is a queued remove that just activated:
// it has been applied locally and awaits its own remote call and Resolve.
// A queued remove whose insert rolled back is dropped silently — the item
// it targeted no longer exists.
func (c *Collection[T]) Resolve(e *Edit[T], out Outcome[T]) (*Edit[T], error) {
	if e == nil || e.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}
	if c.pending[e.TargetID] != e {
		return nil, ErrUnknownTarget
	}

	delete(c.pending, e.TargetID)
	c.dropOrder(e.TargetID)

	if out.Err == nil {
		e.Status = StatusConfirmed
		confirmedKey := e.TargetID
		if out.Authoritative != nil {
			auth := *out.Authoritative
			confirmedKey = auth.Key()
			if i := c.index(e.TargetID); i >= 0 {
				if confirmedKey != e.TargetID && c.index(confirmedKey) >= 0 {
					// The authoritative copy already landed through a reload;
					// drop the optimistic one rather than duplicate its id.
					c.items = slices.Delete(c.items, i, i+1)
				} else {
					c.items[i] = auth
				}
			}
		}
		return c.activateQueued(e, confirmedKey), nil
	}

	// Rollback path.
	e.Status = StatusReverted
	switch e.Kind {
	case KindInsert:
		if i := c.index(e.TargetID); i >= 0 {
			c.items = slices.Delete(c.items, i, i+1)
		}
		// A queued remove can no longer apply to anything.
		if q, ok := c.queued[e.TargetID]; ok {
			q.Status = StatusReverted
			delete(c.queued, e.TargetID)
		}
	case KindRemove:
		i := min(e.priorIndex, len(c.items))
		c.items = slices.Insert(c.items, i, e.prior)
	case KindUpdate:
		if i := c.index(e.TargetID); i >= 0 {
			c.items[i] = e.prior
		}
	}
	return nil, nil
}

// Reload replaces the collection contents with a fresh authoritative base
// while re-applying every still-pending edit in Begin order, so a background
// refresh never clobbers in-flight local edits.
func (c *Collection[T]) Reload(base []T) {
	c.items = slices.Clone(base)
	for _, id := range c.order {
		e := c.pending[id]
		switch e.Kind {
		case KindInsert:
			if c.index(id) < 0 {
				c.insert(e.Proposed)
			}
		case KindRemove:
			if i := c.index(id); i >= 0 {
				e.prior = c.items[i]
				e.priorIndex = i
				c.items = slices.Delete(c.items, i, i+1)
			}
		case KindUpdate:
			if i := c.index(id); i >= 0 {
				e.prior = c.items[i]
				e.priorIndex = i
				c.items[i] = e.Proposed
			}
		}
	}
}

// activateQueued applies the queued remove waiting on a just-confirmed
// insert, if any. confirmedKey is the item's key after any authoritative
// merge, so the remove still finds an item whose server id replaced the
// client-temporary one.
func (c *Collection[T]) activateQueued(e *Edit[T], confirmedKey string) *Edit[T] {
	q, ok := c.queued[e.TargetID]
	if !ok || e.Kind != KindInsert {
		return nil
	}
	delete(c.queued, e.TargetID)

	q.TargetID = confirmedKey
	i := c.index(q.TargetID)
	if i < 0 {
		q.Status = StatusReverted
		return nil
	}
	q.prior = c.items[i]
	q.priorIndex = i
	c.items = slices.Delete(c.items, i, i+1)
	q.Status = StatusPending
	c.pending[q.TargetID] = q
	c.order = append(c.order, q.TargetID)
	return q
}

func (c *Collection[T]) insert(item T) {
	if c.placement == Prepend {
		c.items = slices.Insert(c.items, 0, item)
		return
	}
	c.items = append(c.items, item)
}

func (c *Collection[T]) index(id string) int {
	return slices.IndexFunc(c.items, func(it T) bool { return it.Key() == id })
}

func (c *Collection[T]) dropOrder(id string) {
	if i := slices.Index(c.order, id); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}
