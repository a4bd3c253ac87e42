package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/kanbo-io/kanbo/internal/models"
	"github.com/kanbo-io/kanbo/internal/repository"
)

// Authorizer answers permission-slug checks against a project. A viewer
// holds a permission when their membership role grants it, or when the
// project grants it to any authenticated user (public) or to everyone
// (anon). Anonymous viewers (uuid.Nil) only ever get the anon set.
type Authorizer struct {
	memberships repository.MembershipRepository
	roles       repository.RoleRepository
}

func NewAuthorizer(memberships repository.MembershipRepository, roles repository.RoleRepository) *Authorizer {
	return &Authorizer{memberships: memberships, roles: roles}
}

func (a *Authorizer) CanView(ctx context.Context, viewer uuid.UUID, project *models.Project, permission string) (bool, error) {
	if viewer != uuid.Nil {
		m, err := a.memberships.GetForUser(ctx, project.ID, viewer)
		if err != nil {
			return false, err
		}
		if m != nil {
			role, err := a.roles.GetByID(ctx, m.RoleID)
			if err != nil {
				return false, err
			}
			if role != nil && contains(role.Permissions, permission) {
				return true, nil
			}
		}
		if contains(project.PublicPermissions, permission) {
			return true, nil
		}
	}
	return contains(project.AnonPermissions, permission), nil
}

func contains(perms []string, p string) bool {
	for _, x := range perms {
		if x == p {
			return true
		}
	}
	return false
}
