// Package identity describes who is on the other end of a realtime connection.
package identity

import (
	"context"
	"fmt"
)

type SubjectKind string

const (
	SubjectUser          SubjectKind = "user"
	SubjectServiceClient SubjectKind = "service-client"
)

const (
	RoleSuperAdmin  = "super_admin"
	RoleAdmin       = "admin"
	RoleChurchAdmin = "church_admin"
	RoleTreasurer   = "treasurer"
	RoleMember      = "member"
)

// Identity is attached to a connection after a successful credential check and cleared
// when the connection closes.
type Identity struct {
	SubjectKind  SubjectKind `json:"subjectKind"`
	SubjectID    string      `json:"subjectId"`
	Role         string      `json:"role,omitempty"`
	Audience     string      `json:"audience,omitempty"`
	TenantID     string      `json:"tenantId,omitempty"`
	MembershipID string      `json:"membershipId,omitempty"`
	Source       string      `json:"source"`
}

// Verifier turns a bearer credential into an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

func (i *Identity) IsUser() bool {
	return i != nil && i.SubjectKind == SubjectUser
}

func (i *Identity) HasRole(roles ...string) bool {
	if i == nil {
		return false
	}
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// CanAccessTenant is true for members of the tenant and for super admins.
func (i *Identity) CanAccessTenant(tenantID string) bool {
	if i == nil || tenantID == "" {
		return false
	}
	if i.Role == RoleSuperAdmin {
		return true
	}
	return i.TenantID == tenantID
}

const (
	groupUser       = "user"
	groupMembership = "membership"
	groupTenant     = "tenant"
)

func UserGroup(userID string) string {
	return fmt.Sprintf("%s:%s", groupUser, userID)
}

func TenantGroup(tenantID string) string {
	return fmt.Sprintf("%s:%s", groupTenant, tenantID)
}

// Groups returns the broadcast groups a user connection joins automatically.
// Service clients join nothing.
func Groups(i *Identity) []string {
	if !i.IsUser() || i.SubjectID == "" {
		return nil
	}
	groups := []string{UserGroup(i.SubjectID)}
	if i.MembershipID != "" {
		groups = append(groups, fmt.Sprintf("%s:%s", groupMembership, i.MembershipID))
	}
	if i.TenantID != "" {
		groups = append(groups, TenantGroup(i.TenantID))
	}
	return groups
}
