//
//  Copyright © Manetu Inc. All rights reserved.
//

package model

import (
	"context"
)

// Role is a legacy role name.
type Role string

// Roles
const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleReader Role = "reader"
)

// Pseudo users carry roles granted to anyone and to any logged-in user.
const (
	PseudoUserVisitor  = "visitor"
	PseudoUserLoggedIn = "logged_in"
)

// Action is a legacy role-model action.
type Action string

// Actions
const (
	ActionEdit             Action = "edit"
	ActionChangeState      Action = "change-state"
	ActionRead             Action = "read"
	ActionPurge            Action = "purge"
	ActionEditPermissions  Action = "edit-permissions"
	ActionCreatePackage    Action = "create-package"
	ActionCreateGroup      Action = "create-group"
	ActionCreateAuthzGroup Action = "create-authorization-group"
	ActionSiteRead         Action = "read-site"
	ActionUserRead         Action = "read-user"
	ActionUserCreate       Action = "create-user"
	ActionUploadFile       Action = "file-upload"
)

// RoleAssignment binds a role on an object to a user or authorization group.
type RoleAssignment struct {
	SubjectID  string `yaml:"subject_id" json:"subject_id"`
	ObjectKind Kind   `yaml:"object_kind" json:"object_kind"`
	ObjectID   string `yaml:"object_id" json:"object_id"`
	Role       Role   `yaml:"role" json:"role"`
}

// RoleAction is a row of the role-action table.
type RoleAction struct {
	Role   Role   `yaml:"role" json:"role"`
	Action Action `yaml:"action" json:"action"`
}

// DefaultRoleActions seeds the role-action table of a new site.
var DefaultRoleActions = []RoleAction{
	{RoleEditor, ActionEdit},
	{RoleEditor, ActionCreatePackage},
	{RoleEditor, ActionCreateGroup},
	{RoleEditor, ActionCreateAuthzGroup},
	{RoleEditor, ActionUserCreate},
	{RoleEditor, ActionUserRead},
	{RoleEditor, ActionSiteRead},
	{RoleEditor, ActionRead},
	{RoleEditor, ActionUploadFile},
	{RoleReader, ActionUserCreate},
	{RoleReader, ActionUserRead},
	{RoleReader, ActionSiteRead},
	{RoleReader, ActionRead},
}

// Effect of a rule step.
type Effect int

// Effects
const (
	Grant Effect = iota
	Deny
)

// Condition is a fact about one held role, the object and the action.
type Condition int

// Conditions
const (
	// HeldRoleIsAdmin is true when the held role is admin.
	HeldRoleIsAdmin Condition = iota
	// ObjectDeleted is true when the object is in the deleted state.
	ObjectDeleted
	// HeldRoleGrantsAction is true when the role-action table pairs the held
	// role with the action.
	HeldRoleGrantsAction
)

// RuleStep is one step of a precedence-ordered rule.
type RuleStep struct {
	Effect    Effect
	Condition Condition
}

// RuleTable is an ordered list of steps evaluated per held role: the first
// step whose condition holds decides, and a role matching no step is denied.
// An object is permitted when at least one held role is granted.
type RuleTable []RuleStep

// RoleRule is the legacy precedence: admin wins, deleted objects are locked,
// otherwise the role-action table decides.
var RoleRule = RuleTable{
	{Grant, HeldRoleIsAdmin},
	{Deny, ObjectDeleted},
	{Grant, HeldRoleGrantsAction},
}

// Evaluate applies the table to one held role. holds answers each condition
// lazily so that lookups run only when a step is reached.
func (t RuleTable) Evaluate(holds func(Condition) (bool, error)) (bool, error) {
	for _, step := range t {
		ok, err := holds(step.Condition)
		if err != nil {
			return false, err
		}
		if ok {
			return step.Effect == Grant, nil
		}
	}
	return false, nil
}

// Fold compiles the table into a single boolean expression over per-step
// condition fragments, for stores that filter with a query language.
// or, and, not and falsy are the combinators of the target language.
func (t RuleTable) Fold(fragment func(Condition) string, or, and func(a, b string) string, not func(string) string, falsy string) string {
	expr := falsy
	for i := len(t) - 1; i >= 0; i-- {
		c := fragment(t[i].Condition)
		if t[i].Effect == Grant {
			expr = or(c, expr)
		} else {
			expr = and(not(c), expr)
		}
	}
	return expr
}

// RoleQuery selects the objects of Kind on which one of SubjectIDs holds a
// role that RoleRule grants Action. Unrestricted selects every object.
type RoleQuery struct {
	Kind         Kind
	Action       Action
	SubjectIDs   []string
	Unrestricted bool
}

// IsSysadmin reports whether userID holds admin on the System object.
func IsSysadmin(ctx context.Context, s RoleStore, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	assignments, err := s.RoleAssignments(ctx, System{}, []string{userID})
	if err != nil {
		return false, err
	}
	for _, a := range assignments {
		if a.Role == RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

// Permits applies RoleRule to each held role on obj and reports whether any
// of them grants action.
func Permits(ctx context.Context, s RoleStore, roles []Role, obj Entity, action Action) (bool, error) {
	for _, role := range roles {
		ok, err := RoleRule.Evaluate(func(c Condition) (bool, error) {
			switch c {
			case HeldRoleIsAdmin:
				return role == RoleAdmin, nil
			case ObjectDeleted:
				return StateOf(obj) == StateDeleted, nil
			case HeldRoleGrantsAction:
				return s.HasRoleAction(ctx, role, action)
			}
			return false, nil
		})
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
