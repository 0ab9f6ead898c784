package rpc

import (
	"church-portal-be/internal/identity"
	"church-portal-be/internal/pkg/apperror"
)

type authKind int

const (
	authNone authKind = iota
	authAny
	authRoles
)

// AuthRequirement is the authorization class an action declares.
type AuthRequirement struct {
	kind  authKind
	roles []string
}

var (
	// AuthNone allows connections without an attached identity.
	AuthNone = AuthRequirement{kind: authNone}
	// AuthAny requires some attached identity.
	AuthAny = AuthRequirement{kind: authAny}
)

// AuthRoles requires an identity holding one of roles.
func AuthRoles(roles ...string) AuthRequirement {
	return AuthRequirement{kind: authRoles, roles: roles}
}

func (a AuthRequirement) check(id *identity.Identity) error {
	if a.kind == authNone {
		return nil
	}
	if id == nil {
		return apperror.Unauthenticated("Authentication required")
	}
	if a.kind == authRoles && !id.HasRole(a.roles...) {
		return apperror.Forbidden("Insufficient role")
	}
	return nil
}
