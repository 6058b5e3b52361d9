// Package session describes which authenticated account owns the current
// tab's connection. The identity is passed explicitly to every component
// that acts on behalf of a user, so two tabs logged into different accounts
// can never bleed state into each other.
package session

import (
	"errors"

	"github.com/marketchat/internal/model"
)

var ErrIdentityMismatch = errors.New("session: operation belongs to a different account")

// Identity is an immutable value object resolved at login time.
type Identity struct {
	UserID string
	Role   model.UserRole
	Token  string // bearer credential, already resolved for this account
}

// Valid reports whether the identity can authenticate requests.
func (id Identity) Valid() bool {
	return id.UserID != "" && id.Token != ""
}

// Guard returns ErrIdentityMismatch when userID belongs to another account.
// Components call this before applying state transitions (auto-login, token
// reuse) that arrive tagged with a user id.
func (id Identity) Guard(userID string) error {
	if userID != id.UserID {
		return ErrIdentityMismatch
	}
	return nil
}
