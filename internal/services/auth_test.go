package services

import (
	"context"
	"testing"
	"time"

	"chathub-backend/internal/apperr"
	"chathub-backend/internal/jwt"
	"chathub-backend/internal/models"

	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.auth.Register(ctx, RegisterInput{Email: "Alice@Example.com", Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", res.User.Email)
	require.Equal(t, models.StatusOnline, res.User.Status)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)

	claims, err := env.issuer.VerifyAccess(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, claims.UserID)

	stored, err := env.store.FindRefreshToken(ctx, jwt.HashToken(res.RefreshToken))
	require.NoError(t, err)
	require.Equal(t, res.User.ID, stored.UserID)

	tests := []struct {
		name    string
		input   RegisterInput
		kind    apperr.Kind
		message string
	}{
		{"duplicate email", RegisterInput{"alice@example.com", "alice2", "secret1"}, apperr.Conflict, "Email already in use"},
		{"duplicate username", RegisterInput{"other@example.com", "alice", "secret1"}, apperr.Conflict, "Username already taken"},
		{"short password", RegisterInput{"bob@example.com", "bob", "12345"}, apperr.Validation, "Password must be at least 6 characters"},
		{"bad email", RegisterInput{"bob", "bob", "secret1"}, apperr.Validation, "Invalid email address"},
		{"missing username", RegisterInput{"bob@example.com", "", "secret1"}, apperr.Validation, "username is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Register(ctx, tt.input)
			require.Error(t, err)
			require.Equal(t, tt.kind, apperr.KindOf(err))
			require.Equal(t, tt.message, apperr.MessageOf(err))
		})
	}
}

func TestLoginAndLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg, err := env.auth.Register(ctx, RegisterInput{Email: "alice@example.com", Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	require.NoError(t, env.auth.Logout(ctx, reg.User.ID, reg.RefreshToken))

	_, err = env.auth.Refresh(ctx, reg.RefreshToken)
	require.Equal(t, "Invalid refresh token", apperr.MessageOf(err))

	me, err := env.auth.Me(ctx, reg.User.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusOffline, me.Status)

	_, err = env.auth.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong-password"})
	require.Equal(t, apperr.Authentication, apperr.KindOf(err))
	require.Equal(t, "Invalid credentials", apperr.MessageOf(err))

	_, err = env.auth.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secret1"})
	require.Equal(t, "Invalid credentials", apperr.MessageOf(err))

	res, err := env.auth.Login(ctx, LoginInput{Email: "alice", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, models.StatusOnline, res.User.Status)

	access, err := env.auth.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	claims, err := env.issuer.VerifyAccess(access)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)

	_, err = env.auth.Refresh(ctx, res.AccessToken)
	require.Equal(t, "Invalid or expired refresh token", apperr.MessageOf(err))
}

func TestLogoutKeepsOtherUsersTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice, err := env.auth.Register(ctx, RegisterInput{Email: "alice@example.com", Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	bob, err := env.auth.Register(ctx, RegisterInput{Email: "bob@example.com", Username: "bob", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(ctx, bob.User.ID, alice.RefreshToken))

	_, err = env.auth.Refresh(ctx, alice.RefreshToken)
	require.NoError(t, err)
}

func TestExpiredRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.auth.Register(ctx, RegisterInput{Email: "alice@example.com", Username: "alice", Password: "secret1"})
	require.NoError(t, err)

	env.auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = env.auth.Refresh(ctx, res.RefreshToken)
	require.Equal(t, "Refresh token expired", apperr.MessageOf(err))

	_, err = env.auth.Refresh(ctx, res.RefreshToken)
	require.Equal(t, "Invalid refresh token", apperr.MessageOf(err))
}

func TestPurgeExpiredTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.auth.Register(ctx, RegisterInput{Email: "alice@example.com", Username: "alice", Password: "secret1"})
	require.NoError(t, err)

	env.auth.PurgeExpiredTokens(ctx)
	_, err = env.store.FindRefreshToken(ctx, jwt.HashToken(res.RefreshToken))
	require.NoError(t, err)

	env.auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	env.auth.PurgeExpiredTokens(ctx)
	_, err = env.store.FindRefreshToken(ctx, jwt.HashToken(res.RefreshToken))
	require.Error(t, err)
}

func TestMeUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.auth.Me(context.Background(), 12345)
	require.Equal(t, apperr.NotFound, apperr.KindOf(err))
	require.Equal(t, "User not found", apperr.MessageOf(err))
}
