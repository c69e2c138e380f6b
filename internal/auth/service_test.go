package auth

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongPassword = "Str0ng!Pass123@"

func TestServiceRegisterLoginResolve(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	user, err := env.service.Register(ctx, " Ana@Example.com ", strongPassword)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.NotEqual(t, strongPassword, user.PasswordHash)

	token, err := env.service.Login(ctx, "ana@example.com", strongPassword, "client")
	require.NoError(t, err)
	assert.Equal(t, "bearer", token.TokenType)

	claims, err := env.tokens.Decode(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(user.ID, 10), claims.Subject)
	assert.NotEmpty(t, claims.JTI)

	resolved, err := env.service.ResolveIdentity(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)
}

func TestServiceRegisterRejectsWeakPasswordBeforeCreating(t *testing.T) {
	env := newTestEnv()

	_, err := env.service.Register(context.Background(), "weak@example.com", "onlyletters")
	require.ErrorIs(t, err, ErrWeakPassword)
	assert.Equal(t, 0, env.users.count())
}

func TestServiceRegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	_, err := env.service.Register(ctx, "dup@example.com", strongPassword)
	require.NoError(t, err)

	_, err = env.service.Register(ctx, "DUP@example.com", strongPassword)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, 1, env.users.count())
}

func TestServiceRegisterInvalidEmail(t *testing.T) {
	_, err := newTestEnv().service.Register(context.Background(), "nope", strongPassword)
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestServiceLoginDoesNotRevealAccountExistence(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	_, err := env.service.Register(ctx, "known@example.com", strongPassword)
	require.NoError(t, err)

	_, wrongPassword := env.service.Login(ctx, "known@example.com", "Wr0ng!Pass", "a")
	_, unknownEmail := env.service.Login(ctx, "ghost@example.com", strongPassword, "b")

	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestServiceLoginRateLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	_, err := env.service.Register(ctx, "ana@example.com", strongPassword)
	require.NoError(t, err)

	for i := 0; i < DefaultLoginMaxAttempts; i++ {
		_, err := env.service.Login(ctx, "ana@example.com", "Wr0ng!Pass", "attacker")
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i+1)
	}

	// The eleventh attempt is refused even with the right password.
	_, err = env.service.Login(ctx, "ana@example.com", strongPassword, "attacker")
	var limited ErrRateLimited
	require.ErrorAs(t, err, &limited)
	assert.Greater(t, limited.RetryAfter, time.Duration(0))

	// Other clients are unaffected.
	_, err = env.service.Login(ctx, "ana@example.com", strongPassword, "someone-else")
	require.NoError(t, err)
}

func TestServiceLoginSuccessResetsFailures(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	_, err := env.service.Register(ctx, "ana@example.com", strongPassword)
	require.NoError(t, err)

	for i := 0; i < DefaultLoginMaxAttempts-1; i++ {
		_, _ = env.service.Login(ctx, "ana@example.com", "Wr0ng!Pass", "c")
	}
	_, err = env.service.Login(ctx, "ana@example.com", strongPassword, "c")
	require.NoError(t, err)

	for i := 0; i < DefaultLoginMaxAttempts-1; i++ {
		_, err = env.service.Login(ctx, "ana@example.com", "Wr0ng!Pass", "c")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
}

func TestServiceLoginStorageFault(t *testing.T) {
	env := newTestEnv()
	boom := errors.New("connection refused")
	env.users.fail(boom)

	_, err := env.service.Login(context.Background(), "ana@example.com", strongPassword, "c")
	require.ErrorIs(t, err, boom)
	assert.False(t, env.throttle.IsLimited("c"))
}

func TestServiceLogoutRevokesToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	_, err := env.service.Register(ctx, "ana@example.com", strongPassword)
	require.NoError(t, err)
	token, err := env.service.Login(ctx, "ana@example.com", strongPassword, "c")
	require.NoError(t, err)

	require.NoError(t, env.service.Logout(ctx, token.AccessToken))

	_, err = env.service.ResolveIdentity(ctx, token.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	err = env.service.Logout(ctx, token.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// A fresh login yields a new, usable token.
	again, err := env.service.Login(ctx, "ana@example.com", strongPassword, "c")
	require.NoError(t, err)
	_, err = env.service.ResolveIdentity(ctx, again.AccessToken)
	assert.NoError(t, err)
}

func TestServiceTokensWithoutIdentifierOrExpiry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	user, err := env.service.Register(ctx, "ana@example.com", strongPassword)
	require.NoError(t, err)

	bare := signClaims(t, jwt.RegisteredClaims{Subject: strconv.FormatInt(user.ID, 10)})

	_, err = env.service.ResolveIdentity(ctx, bare)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	err = env.service.Logout(ctx, bare)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestServiceResolveIdentityRejects(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	expiredCodec := NewTokenCodec(testSecret, time.Minute)
	expiredCodec.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := expiredCodec.Issue("1", "", 0)
	require.NoError(t, err)

	ghost, _, err := env.tokens.Issue("999", "", 0)
	require.NoError(t, err)

	nonNumeric, _, err := env.tokens.Issue("ana", "", 0)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":     "garbage",
		"expired":     expired,
		"ghost user":  ghost,
		"non numeric": nonNumeric,
	} {
		_, err := env.service.ResolveIdentity(ctx, token)
		assert.ErrorIs(t, err, ErrUnauthenticated, name)
	}
}

func TestServiceResolveIdentityStorageFault(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	user, err := env.service.Register(ctx, "ana@example.com", strongPassword)
	require.NoError(t, err)
	token, _, err := env.tokens.Issue(strconv.FormatInt(user.ID, 10), "", 0)
	require.NoError(t, err)

	boom := errors.New("revocation store down")
	env.revocations.fail(boom)

	_, err = env.service.ResolveIdentity(ctx, token)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}
