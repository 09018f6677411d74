package app

import (
	"time"

	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// Event types published after a successful reconciliation.
const (
	EventUserCreated   = "user.created"
	EventAccountLinked = "account.linked"
)

var (
	_ ports.Event = UserCreated{}
	_ ports.Event = AccountLinked{}
)

// UserCreated is published when sign-in creates a new user.
type UserCreated struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventType implements ports.Event.
func (UserCreated) EventType() string { return EventUserCreated }

// Payload implements ports.Event.
func (e UserCreated) Payload() any { return e }

// AccountLinked is published when sign-in links a new provider account.
type AccountLinked struct {
	AccountID         string    `json:"accountId"`
	UserID            string    `json:"userId"`
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"providerAccountId"`
	CreatedAt         time.Time `json:"createdAt"`
}

// EventType implements ports.Event.
func (AccountLinked) EventType() string { return EventAccountLinked }

// Payload implements ports.Event.
func (e AccountLinked) Payload() any { return e }

func userCreated(u *domain.User) UserCreated {
	return UserCreated{UserID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}

func accountLinked(a *domain.Account) AccountLinked {
	return AccountLinked{
		AccountID:         a.ID,
		UserID:            a.UserID,
		Provider:          a.Provider,
		ProviderAccountID: a.ProviderAccountID,
		CreatedAt:         a.CreatedAt,
	}
}
