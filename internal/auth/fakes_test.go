package auth

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"freelatracker/internal/observability"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type memoryUsers struct {
	mu      sync.Mutex
	nextID  int64
	byEmail map[string]User
	err     error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byEmail: make(map[string]User)}
}

func (m *memoryUsers) CreateUser(_ context.Context, email, passwordHash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return User{}, m.err
	}
	if _, ok := m.byEmail[email]; ok {
		return User{}, ErrAlreadyExists
	}

	m.nextID++
	user := User{ID: m.nextID, Email: email, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	m.byEmail[email] = user
	return user, nil
}

func (m *memoryUsers) GetUserByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return User{}, m.err
	}
	user, ok := m.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *memoryUsers) GetUserByID(_ context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return User{}, m.err
	}
	for _, user := range m.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *memoryUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byEmail)
}

func (m *memoryUsers) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

type memoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	err     error
}

func newMemoryRevocations() *memoryRevocations {
	return &memoryRevocations{revoked: make(map[string]time.Time)}
}

func (m *memoryRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}
	expiresAt, ok := m.revoked[jti]
	return ok && expiresAt.After(time.Now()), nil
}

func (m *memoryRevocations) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	if jti == "" {
		return nil
	}
	if _, ok := m.revoked[jti]; !ok {
		m.revoked[jti] = expiresAt
	}
	return nil
}

func (m *memoryRevocations) PruneExpired(_ context.Context, before time.Time, _ int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for jti, expiresAt := range m.revoked {
		if expiresAt.Before(before) {
			delete(m.revoked, jti)
			n++
		}
	}
	return n, nil
}

func (m *memoryRevocations) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

type testEnv struct {
	users       *memoryUsers
	revocations *memoryRevocations
	tokens      *TokenCodec
	throttle    *LoginThrottle
	service     *Service
}

func newTestEnv() *testEnv {
	env := &testEnv{
		users:       newMemoryUsers(),
		revocations: newMemoryRevocations(),
		tokens:      NewTokenCodec(testSecret, time.Hour),
		throttle:    NewLoginThrottle(DefaultLoginMaxAttempts, DefaultLoginWindow, 0),
	}
	env.service = NewService(
		env.users,
		env.revocations,
		NewPasswordHasher(bcrypt.MinCost, 4),
		env.tokens,
		env.throttle,
		observability.Discard(),
		time.Hour,
	)
	return env
}

func signClaims(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func jwtSubject(userID int64) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: strconv.FormatInt(userID, 10)}
}
