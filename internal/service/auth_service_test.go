package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/candidate-registry/internal/auth"
	"github.com/spec-kit/candidate-registry/internal/config"
	"github.com/spec-kit/candidate-registry/internal/domain"
	"github.com/spec-kit/candidate-registry/internal/repository"
	apperrors "github.com/spec-kit/candidate-registry/pkg/util/errorutil"
)

type recordingRevoker struct {
	ids  map[string]time.Duration
	fail error
}

func (r *recordingRevoker) RevokeToken(_ context.Context, tokenID string, ttl time.Duration) error {
	if r.fail != nil {
		return r.fail
	}
	r.ids[tokenID] = ttl
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *repository.MemoryProfileRepository, *recordingRevoker) {
	t.Helper()
	cfg := config.Config{Auth: config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 30,
		BcryptCost:            bcrypt.MinCost,
	}}
	profiles := repository.NewMemoryProfileRepository()
	revoker := &recordingRevoker{ids: map[string]time.Duration{}}
	svc := NewAuthService(cfg, AuthDependencies{ProfileRepo: profiles, Revoker: revoker, Logger: zap.NewNop()})
	return svc, profiles, revoker
}

func createProfile(t *testing.T, profiles *repository.MemoryProfileRepository, email, password string, role domain.Role) {
	t.Helper()
	hash, err := auth.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, profiles.Create(context.Background(), &domain.Profile{Email: email, PasswordHash: hash, Role: role}))
}

func TestLoginAdmin(t *testing.T) {
	svc, profiles, _ := newAuthFixture(t)
	createProfile(t, profiles, "admin@example.com", "rahasia", domain.RoleAdmin)
	createProfile(t, profiles, "user@example.com", "rahasia", domain.RoleNone)
	ctx := context.Background()

	result, err := svc.LoginAdmin(ctx, "Admin@Example.com", "rahasia")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), result.ExpiresAt, 5*time.Second)

	_, err = svc.LoginAdmin(ctx, "admin@example.com", "wrong")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, err = svc.LoginAdmin(ctx, "nobody@example.com", "rahasia")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, err = svc.LoginAdmin(ctx, "user@example.com", "rahasia")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	assert.Equal(t, "access denied", apperrors.ToDomainError(err).Message)

	_, err = svc.LoginAdmin(ctx, "", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestLogoutRevokesTokenForRemainingLifetime(t *testing.T) {
	svc, profiles, revoker := newAuthFixture(t)
	createProfile(t, profiles, "admin@example.com", "rahasia", domain.RoleAdmin)

	tm := auth.NewTokenManager("test-secret", 30*time.Minute)
	profile, err := profiles.GetByEmail(context.Background(), "admin@example.com")
	require.NoError(t, err)
	_, claims, err := tm.GenerateToken(profile)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), claims))
	require.Contains(t, revoker.ids, claims.ID)
	assert.InDelta(t, (30 * time.Minute).Seconds(), revoker.ids[claims.ID].Seconds(), 5)

	revoker.fail = errors.New("redis down")
	assert.Error(t, svc.Logout(context.Background(), claims))
	assert.Error(t, svc.Logout(context.Background(), nil))
}

func TestBootstrapAdminIsIdempotent(t *testing.T) {
	svc, profiles, _ := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.BootstrapAdmin(ctx, "root@example.com", "changeme"))
	require.NoError(t, svc.BootstrapAdmin(ctx, "root@example.com", "other"))
	require.NoError(t, svc.BootstrapAdmin(ctx, "", ""))

	profile, err := profiles.GetByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, profile.Role)

	_, err = svc.LoginAdmin(ctx, "root@example.com", "changeme")
	assert.NoError(t, err)
}
