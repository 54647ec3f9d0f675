// Package domain contains core domain types for the agent console.
package domain

// Account is a console operator known to the local store.
// Accounts are created on first successful login and never updated or deleted.
type Account struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// Public returns the subset of the account that is safe to return to clients.
func (a *Account) Public() PublicUser {
	return PublicUser{ID: a.ID, Username: a.Username}
}

// PublicUser is the client-facing view of an Account.
type PublicUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}
