package dto

import (
	"time"

	"github.com/jsamuelsen/devflow-identity/internal/domain"
)

// User is the wire shape of a domain.User.
type User struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Account is the wire shape of a domain.Account.
type Account struct {
	ID                string    `json:"_id"`
	UserID            string    `json:"userId"`
	Name              string    `json:"name"`
	Image             string    `json:"image,omitempty"`
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"providerAccountId"`
	CreatedAt         time.Time `json:"createdAt"`
}

// FromUser converts a domain user.
func FromUser(u *domain.User) User {
	return User{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		Image:     u.Image,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// FromUsers converts a list of domain users. The result is never nil so
// empty lists encode as [].
func FromUsers(users []domain.User) []User {
	out := make([]User, len(users))
	for i := range users {
		out[i] = FromUser(&users[i])
	}

	return out
}

// FromAccount converts a domain account.
func FromAccount(a *domain.Account) Account {
	return Account{
		ID:                a.ID,
		UserID:            a.UserID,
		Name:              a.Name,
		Image:             a.Image,
		Provider:          a.Provider,
		ProviderAccountID: a.ProviderAccountID,
		CreatedAt:         a.CreatedAt,
	}
}

// FromAccounts converts a list of domain accounts.
func FromAccounts(accounts []domain.Account) []Account {
	out := make([]Account, len(accounts))
	for i := range accounts {
		out[i] = FromAccount(&accounts[i])
	}

	return out
}
