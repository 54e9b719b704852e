package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/candidate-registry/internal/domain"
	"github.com/spec-kit/candidate-registry/internal/repository"
	apperrors "github.com/spec-kit/candidate-registry/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// RevocationChecker reports whether a token id has been logged out.
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Principal represents the authenticated caller.
type Principal struct {
	Profile *domain.Profile
	Claims  *Claims
}

// Actor returns the identity passed to mutating operations.
func (p *Principal) Actor() domain.Actor {
	if p == nil || p.Profile == nil {
		return domain.Actor{}
	}
	return domain.Actor{ID: p.Profile.ID, Email: p.Profile.Email}
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens   *TokenManager
	profiles repository.ProfileRepository
	revoked  RevocationChecker
	logger   *zap.Logger
}

// NewAuthMiddleware constructs middleware. A nil revoked skips logout checks.
func NewAuthMiddleware(tokens *TokenManager, profiles repository.ProfileRepository, revoked RevocationChecker, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, profiles: profiles, revoked: revoked, logger: logger}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := BearerToken(c)
	if err != nil {
		return err
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	if m.revoked != nil {
		revoked, err := m.revoked.IsTokenRevoked(c.UserContext(), claims.ID)
		switch {
		case err != nil:
			// Tokens are short lived; a Redis outage should not lock admins out.
			m.logger.Warn("token revocation check failed", zap.Error(err))
		case revoked:
			return apperrors.NewUnauthorized("token has been revoked")
		}
	}

	profile, err := m.profiles.GetByID(c.UserContext(), claims.Subject)
	if err != nil {
		if repository.IsNotFound(err) {
			return apperrors.NewUnauthorized("profile not found")
		}
		return apperrors.MapError(err)
	}

	c.Locals(principalKey, &Principal{Profile: profile, Claims: claims})
	return c.Next()
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return "", apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
