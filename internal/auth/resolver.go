package auth

import (
	"context"

	"github.com/spec-kit/candidate-registry/internal/domain"
	"github.com/spec-kit/candidate-registry/internal/repository"
	apperrors "github.com/spec-kit/candidate-registry/pkg/util/errorutil"
)

// ProfileRoleResolver resolves an actor's role from the profiles store.
type ProfileRoleResolver struct {
	profiles repository.ProfileRepository
}

// NewProfileRoleResolver builds a resolver backed by profiles.
func NewProfileRoleResolver(profiles repository.ProfileRepository) *ProfileRoleResolver {
	return &ProfileRoleResolver{profiles: profiles}
}

// ResolveRole returns RoleAdmin only for profiles stored with the admin role.
// Unknown actors are reported as unauthorized rather than RoleNone.
func (r *ProfileRoleResolver) ResolveRole(ctx context.Context, actor domain.Actor) (domain.Role, error) {
	if actor.ID == "" {
		return domain.RoleNone, apperrors.NewUnauthorized("identity could not be verified")
	}
	profile, err := r.profiles.GetByID(ctx, actor.ID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.RoleNone, apperrors.NewUnauthorized("identity could not be verified")
		}
		return domain.RoleNone, apperrors.NewPersistenceFailure(err)
	}
	if profile.Role == domain.RoleAdmin {
		return domain.RoleAdmin, nil
	}
	return domain.RoleNone, nil
}
