package common

import "errors"

var (
	// ErrUnauthorized is returned when a caller invokes an owner-gated
	// operation without holding ownership.
	ErrUnauthorized = errors.New("caller is not the owner")
	// ErrNotPendingOwner is returned when an ownership acceptance comes from
	// an address that was never proposed.
	ErrNotPendingOwner = errors.New("caller is not the pending owner")
)

// Authority implements the two-step ownership handshake used by the
// admin-gated modules. The current owner proposes a successor, and the
// successor must accept before any rights move.
type Authority struct {
	owner   [20]byte
	pending [20]byte
	hasPend bool
}

// NewAuthority creates an authority held by the supplied owner.
func NewAuthority(owner [20]byte) *Authority {
	return &Authority{owner: owner}
}

// Owner returns the current owner.
func (a *Authority) Owner() [20]byte {
	if a == nil {
		return [20]byte{}
	}
	return a.owner
}

// Require rejects callers other than the current owner.
func (a *Authority) Require(caller [20]byte) error {
	if a == nil || caller != a.owner {
		return ErrUnauthorized
	}
	return nil
}

// TransferOwnership proposes a new owner. Only the current owner may propose.
func (a *Authority) TransferOwnership(caller, proposed [20]byte) error {
	if err := a.Require(caller); err != nil {
		return err
	}
	a.pending = proposed
	a.hasPend = true
	return nil
}

// AcceptOwnership completes the handshake. Only the proposed owner may accept.
func (a *Authority) AcceptOwnership(caller [20]byte) error {
	if a == nil || !a.hasPend || caller != a.pending {
		return ErrNotPendingOwner
	}
	a.owner = a.pending
	a.pending = [20]byte{}
	a.hasPend = false
	return nil
}
