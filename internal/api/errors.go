package api

import (
	"errors"
	"fmt"
)

// RemoteKind classifies how a completed remote call failed. The consumers
// pick user-facing copy off the kind; rollback treatment is identical for
// every kind.
type RemoteKind string

const (
	KindForbidden       RemoteKind = "forbidden"
	KindNotFound        RemoteKind = "not_found"
	KindAlreadyResolved RemoteKind = "already_resolved"
	KindConflict        RemoteKind = "conflict"
	KindValidation      RemoteKind = "validation"
	KindServer          RemoteKind = "server"
)

// ErrNetwork marks calls that never completed. Wrapped with transport detail.
var ErrNetwork = errors.New("network failure")

// RemoteError is a call the server completed and rejected.
type RemoteError struct {
	Kind    RemoteKind
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote rejected: %s (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("remote rejected: %s (status %d): %s", e.Kind, e.Status, e.Message)
}

// KindOf extracts the remote kind from an error chain, or "" for network
// failures and local errors.
func KindOf(err error) RemoteKind {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

func IsForbidden(err error) bool       { return KindOf(err) == KindForbidden }
func IsNotFound(err error) bool        { return KindOf(err) == KindNotFound }
func IsAlreadyResolved(err error) bool { return KindOf(err) == KindAlreadyResolved }
