// Package authz holds the role policy. Every service operation consults Check
// instead of comparing roles inline.
package authz

import (
	"github.com/gofrs/uuid/v5"

	"github.com/jtaw5649/barforge-registry/internal/errs"
	"github.com/jtaw5649/barforge-registry/internal/model"
)

// Action is a guarded operation.
type Action int

const (
	ActSubmit Action = iota
	ActPublish
	ActReview
	ActEditProfile
	ActModerate
	ActSetRole
	ActVerifyUser
	ActCurate
	ActDeleteAnyReview
	ActManageAnyModule
)

var policy = map[model.Role]map[Action]bool{
	model.RoleUser: {
		ActSubmit: true, ActPublish: true, ActReview: true, ActEditProfile: true,
	},
	model.RoleModerator: {
		ActSubmit: true, ActPublish: true, ActReview: true, ActEditProfile: true,
		ActModerate: true,
	},
	model.RoleAdmin: {
		ActSubmit: true, ActPublish: true, ActReview: true, ActEditProfile: true,
		ActModerate: true, ActSetRole: true, ActVerifyUser: true, ActCurate: true,
		ActDeleteAnyReview: true, ActManageAnyModule: true,
	},
}

// Allowed reports whether role may perform act.
func Allowed(role model.Role, act Action) bool {
	return policy[role][act]
}

// Check returns ErrUnauthenticated for a nil user and ErrForbidden when the role lacks act.
func Check(u *model.User, act Action) error {
	if u == nil {
		return errs.ErrUnauthenticated
	}
	if !Allowed(u.Role, act) {
		return errs.ErrForbidden
	}
	return nil
}

// CheckOwner passes when u owns the resource or holds the override action.
func CheckOwner(u *model.User, owner uuid.UUID, override Action) error {
	if u == nil {
		return errs.ErrUnauthenticated
	}
	if u.ID == owner || Allowed(u.Role, override) {
		return nil
	}
	return errs.ErrForbidden
}
