package auth

import "time"

type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// UserView is the public projection of a User.
type UserView struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

func (u User) View() UserView {
	return UserView{ID: u.ID, Email: u.Email}
}

type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// TokenClaims is the decoded content of a bearer token. JTI is empty and
// ExpiresAt is zero when the token does not carry them.
type TokenClaims struct {
	Subject   string
	JTI       string
	ExpiresAt time.Time
}

type RevokedTokenRecord struct {
	JTI       string
	ExpiresAt time.Time
	CreatedAt time.Time
}
