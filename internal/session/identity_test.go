package session

import (
	"errors"
	"testing"

	"github.com/marketchat/internal/model"
)

func TestIdentityValid(t *testing.T) {
	cases := []struct {
		name string
		id   Identity
		want bool
	}{
		{"complete", Identity{UserID: "u1", Role: model.RoleWorker, Token: "t"}, true},
		{"no token", Identity{UserID: "u1"}, false},
		{"no user", Identity{Token: "t"}, false},
		{"zero", Identity{}, false},
	}
	for _, tc := range cases {
		if got := tc.id.Valid(); got != tc.want {
			t.Errorf("%s: Valid() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIdentityGuard(t *testing.T) {
	id := Identity{UserID: "u1", Role: model.RoleCustomer, Token: "t"}
	if err := id.Guard("u1"); err != nil {
		t.Errorf("Guard(own id) = %v", err)
	}
	// Состояние чужого аккаунта (другая вкладка) не должно применяться.
	if err := id.Guard("u2"); !errors.Is(err, ErrIdentityMismatch) {
		t.Errorf("Guard(other id) = %v, want ErrIdentityMismatch", err)
	}
}
