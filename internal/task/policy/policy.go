// Package policy holds the role-based access rules for tasks and profiles.
// Every function is pure: no I/O, no side effects. The same rules gate what
// the session shows and which mutations it will attempt.
package policy

import (
	"taskdesk/internal/task/models"
	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
)

// Actor is the authenticated profile on whose behalf an operation runs.
type Actor struct {
	ID   id.ProfileID
	Role id.Role
}

// ActorOf builds the actor for a loaded profile.
func ActorOf(p models.Profile) Actor {
	return Actor{ID: p.ID, Role: p.Role}
}

func (a Actor) IsAdmin() bool { return a.Role.IsAdmin() }

// CanViewAll reports whether the role sees every task regardless of assignee.
func CanViewAll(role id.Role) bool {
	return role.IsAdmin()
}

// CanView reports whether the actor may see the task. Staff only see tasks
// assigned to them; unassigned tasks are invisible to staff.
func CanView(actor Actor, task models.Task) bool {
	return CanViewAll(actor.Role) || task.IsAssignedTo(actor.ID)
}

// CanEdit reports whether the actor may edit the task or change its status.
func CanEdit(actor Actor, task models.Task) bool {
	return actor.IsAdmin() || task.IsAssignedTo(actor.ID)
}

// CanDelete reports whether the role may delete tasks.
func CanDelete(role id.Role) bool {
	return role.IsAdmin()
}

// CanReassign reports whether the role may pick an arbitrary assignee.
func CanReassign(role id.Role) bool {
	return role.IsAdmin()
}

// CanManageTeam reports whether the role may list profiles and change roles.
func CanManageTeam(role id.Role) bool {
	return role.IsAdmin()
}

// CanChangeOwnRole refuses an admin demoting themselves, which could leave
// the organization with no one able to reach admin-only surfaces.
func CanChangeOwnRole(actorID, targetID id.ProfileID, newRole id.Role) error {
	if actorID == targetID && !newRole.IsAdmin() {
		return dErrors.New(dErrors.CodeSelfDemotion, "you cannot remove your own admin role")
	}
	return nil
}

// CanChangeRole checks a role change of target to newRole requested by actor.
//
// Errors:
//   - CodeSelfDemotion when the actor tries to demote themselves
//   - CodeForbidden when the actor cannot manage the team
func CanChangeRole(actor Actor, target id.ProfileID, newRole id.Role) error {
	if err := CanChangeOwnRole(actor.ID, target, newRole); err != nil {
		return err
	}
	if !CanManageTeam(actor.Role) {
		return dErrors.New(dErrors.CodeForbidden, "only admins can change roles")
	}
	return nil
}

// Permissions is the per-task set of controls the presentation layer may offer.
type Permissions struct {
	Edit         bool `json:"edit"`
	ChangeStatus bool `json:"change_status"`
	Delete       bool `json:"delete"`
	Reassign     bool `json:"reassign"`
}

// For computes the control flags for a task.
func For(actor Actor, task models.Task) Permissions {
	edit := CanEdit(actor, task)
	return Permissions{
		Edit:         edit,
		ChangeStatus: edit,
		Delete:       CanDelete(actor.Role),
		Reassign:     edit && CanReassign(actor.Role),
	}
}

// AssigneeForCreate decides who a new task is assigned to. It defaults to
// the actor. Admins may pick anyone or explicitly nobody. Staff tasks are
// always assigned to the staff member; naming someone else is refused.
func AssigneeForCreate(actor Actor, requested *id.ProfileID, unassigned bool) (*id.ProfileID, error) {
	self := actor.ID
	return resolveAssignee(actor, requested, unassigned, &self)
}

// AssigneeForUpdate decides who an edited task is assigned to. Without a new
// choice the current assignee stays, including none.
func AssigneeForUpdate(actor Actor, requested *id.ProfileID, unassigned bool, current *id.ProfileID) (*id.ProfileID, error) {
	return resolveAssignee(actor, requested, unassigned, current)
}

func resolveAssignee(actor Actor, requested *id.ProfileID, unassigned bool, fallback *id.ProfileID) (*id.ProfileID, error) {
	if CanReassign(actor.Role) {
		switch {
		case unassigned:
			return nil, nil
		case requested != nil:
			r := *requested
			return &r, nil
		case fallback != nil:
			f := *fallback
			return &f, nil
		default:
			return nil, nil
		}
	}

	if unassigned || (requested != nil && *requested != actor.ID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "staff cannot reassign tasks")
	}
	self := actor.ID
	return &self, nil
}
