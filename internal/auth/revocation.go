package auth

import (
	"context"
	"time"
)

// RevocationStore is the denylist of logged-out token identifiers.
// Implementations must treat Revoke as insert-if-absent and ignore an empty
// jti. IsRevoked only considers records whose expiry is still ahead.
type RevocationStore interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	PruneExpired(ctx context.Context, before time.Time, batchSize int) (int64, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id int64) (User, error)
}
