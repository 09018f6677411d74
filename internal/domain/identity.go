package domain

import "time"

// User is a local account. Email is the identity key; Username is the
// URL-safe display key.
type User struct {
	ID        string
	Name      string
	Username  string
	Email     string
	Image     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Account links one external provider credential to exactly one User.
// Name and Image are cached at link time and never refreshed.
type Account struct {
	ID                string
	UserID            string
	Name              string
	Image             string
	Provider          string
	ProviderAccountID string
	CreatedAt         time.Time
}

// ProviderIdentity is the (provider, provider account id) tuple identifying
// an external credential.
type ProviderIdentity struct {
	Provider          string
	ProviderAccountID string
}

// Profile is the user data supplied by a provider at sign-in.
type Profile struct {
	Name     string `json:"name"     validate:"notempty,max=100"`
	Username string `json:"username" validate:"notempty,min=3,max=50"`
	Email    string `json:"email"    validate:"required,email"`
	Image    string `json:"image"    validate:"omitempty,url"`
}

// OAuthSignIn is the payload of a sign-in with an external provider.
type OAuthSignIn struct {
	Provider          string  `json:"provider"          validate:"notempty,max=64"`
	ProviderAccountID string  `json:"providerAccountId" validate:"notempty,max=255"`
	User              Profile `json:"user"`
}

// Identity returns the provider identity of the sign-in.
func (s *OAuthSignIn) Identity() ProviderIdentity {
	return ProviderIdentity{Provider: s.Provider, ProviderAccountID: s.ProviderAccountID}
}

// Validate checks the payload shape and returns a *ValidationError listing
// every offending field.
func (s *OAuthSignIn) Validate() error {
	return validateStruct(s)
}

// NewUser is the payload for creating a user outside the sign-in path.
type NewUser struct {
	Name     string `json:"name"     validate:"notempty,max=100"`
	Username string `json:"username" validate:"notempty,min=3,max=50"`
	Email    string `json:"email"    validate:"required,email"`
	Image    string `json:"image"    validate:"omitempty,url"`
}

// Validate checks the payload shape.
func (u *NewUser) Validate() error {
	return validateStruct(u)
}

// ProfileChanges is a partial update of a user's provider-supplied profile.
// Nil fields are left untouched.
type ProfileChanges struct {
	Name  *string
	Image *string
}

// Empty reports whether the update changes nothing.
func (c ProfileChanges) Empty() bool {
	return c.Name == nil && c.Image == nil
}

// DiffProfile returns the fields of incoming that differ from the stored user.
func DiffProfile(stored *User, incoming Profile) ProfileChanges {
	var changes ProfileChanges

	if stored.Name != incoming.Name {
		name := incoming.Name
		changes.Name = &name
	}

	if stored.Image != incoming.Image {
		image := incoming.Image
		changes.Image = &image
	}

	return changes
}

// Apply writes the changes onto u.
func (c ProfileChanges) Apply(u *User) {
	if c.Name != nil {
		u.Name = *c.Name
	}

	if c.Image != nil {
		u.Image = *c.Image
	}
}

// EmailLookup is the payload of a user lookup by email.
type EmailLookup struct {
	Email string `json:"email" validate:"required,email"`
}

// Validate checks the payload shape.
func (l *EmailLookup) Validate() error {
	return validateStruct(l)
}

// ProviderAccountLookup is the payload of an account lookup by provider
// account id.
type ProviderAccountLookup struct {
	ProviderAccountID string `json:"providerAccountId" validate:"notempty"`
}

// Validate checks the payload shape.
func (l *ProviderAccountLookup) Validate() error {
	return validateStruct(l)
}
