// Package policy decides which moderation actions an actor may take on a
// target account.
package policy

import "github.com/campusrent/campusrent/internal/model"

// Action is a moderation action on a user account.
type Action string

// Moderation actions.
const (
	ChangeRole Action = "change_role"
	Ban        Action = "ban"
	Unban      Action = "unban"
	Verify     Action = "verify"
	Deactivate Action = "deactivate"
	Activate   Action = "activate"
	Delete     Action = "delete"
)

// Actions lists every moderation action.
var Actions = []Action{ChangeRole, Ban, Unban, Verify, Deactivate, Activate, Delete}

type rule struct {
	actor  string
	target string
	action Action
}

// table holds every allowed (actor role, target role, action) triple.
// Anything missing is denied.
var table = map[rule]bool{}

func allow(actor string, targets []string, actions ...Action) {
	for _, target := range targets {
		for _, a := range actions {
			table[rule{actor, target, a}] = true
		}
	}
}

func init() {
	everyone := []string{model.RoleUser, model.RoleAdmin, model.RoleManager}

	// Admins moderate ordinary users but never touch roles.
	allow(model.RoleAdmin, []string{model.RoleUser},
		Ban, Unban, Verify, Deactivate, Activate, Delete)

	// Managers may do anything to anyone.
	allow(model.RoleManager, everyone, Actions...)
}

// Allowed reports whether an actor may perform action on target. Acting on
// one's own account is always denied.
func Allowed(actorID int64, actorRole string, targetID int64, targetRole string, action Action) bool {
	if actorID == targetID {
		return false
	}
	return table[rule{actorRole, targetRole, action}]
}

// CanModerate reports whether role may use the moderation surface at all.
func CanModerate(role string) bool {
	return model.IsPrivileged(role)
}
