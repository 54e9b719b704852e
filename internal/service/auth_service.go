package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/candidate-registry/internal/auth"
	"github.com/spec-kit/candidate-registry/internal/config"
	"github.com/spec-kit/candidate-registry/internal/domain"
	"github.com/spec-kit/candidate-registry/internal/repository"
	apperrors "github.com/spec-kit/candidate-registry/pkg/util/errorutil"
)

// TokenRevoker remembers logged-out token ids until they expire.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
}

// LoginResult is returned after a successful admin login.
type LoginResult struct {
	Profile   *domain.Profile
	Token     string
	ExpiresAt time.Time
}

// AuthService coordinates admin login flows.
type AuthService struct {
	profiles   repository.ProfileRepository
	tokenMgr   *auth.TokenManager
	revoker    TokenRevoker
	bcryptCost int
	logger     *zap.Logger
	now        func() time.Time
}

// AuthDependencies encapsulates requirements for auth service.
type AuthDependencies struct {
	ProfileRepo  repository.ProfileRepository
	TokenManager *auth.TokenManager
	Revoker      TokenRevoker
	Logger       *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	tokenMgr := deps.TokenManager
	if tokenMgr == nil {
		tokenMgr = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		profiles:   deps.ProfileRepo,
		tokenMgr:   tokenMgr,
		revoker:    deps.Revoker,
		bcryptCost: cfg.Auth.BcryptCost,
		logger:     logger,
		now:        time.Now,
	}
}

// LoginAdmin checks credentials and then the admin role. A valid account
// without the admin role is refused with "access denied".
func (s *AuthService) LoginAdmin(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("email and password are required", nil)
	}

	profile, err := s.profiles.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.NewPersistenceFailure(err)
	}
	if err := auth.ComparePassword(profile.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if profile.Role != domain.RoleAdmin {
		s.logger.Warn("non-admin login refused", zap.String("profile_id", profile.ID))
		return nil, apperrors.NewForbidden("access denied")
	}

	token, claims, err := s.tokenMgr.GenerateToken(profile)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResult{Profile: profile, Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Logout revokes the token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil {
		return apperrors.NewUnauthorized("missing token")
	}
	if s.revoker == nil {
		s.logger.Warn("token revocation unavailable; logout is client-side only")
		return nil
	}
	if err := s.revoker.RevokeToken(ctx, claims.ID, claims.Remaining(s.now())); err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

// BootstrapAdmin creates the configured admin account when it does not exist.
func (s *AuthService) BootstrapAdmin(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil
	}
	if _, err := s.profiles.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !repository.IsNotFound(err) {
		return err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	profile := &domain.Profile{Email: email, PasswordHash: hash, Role: domain.RoleAdmin}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil
		}
		return err
	}
	s.logger.Info("bootstrap admin created", zap.String("email", profile.Email))
	return nil
}
