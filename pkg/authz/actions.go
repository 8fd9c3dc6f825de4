//
//  Copyright © Manetu Inc. All rights reserved.
//

package authz

import (
	"sort"
)

// Action names a logical portal operation.
type Action string

// Actions
const (
	PackageCreate             Action = "package_create"
	PackageUpdate             Action = "package_update"
	PackagePatch              Action = "package_patch"
	PackageDelete             Action = "package_delete"
	PackageShow               Action = "package_show"
	PackageCollaboratorList   Action = "package_collaborator_list"
	PackageCollaboratorCreate Action = "package_collaborator_create"
	PackageCollaboratorDelete Action = "package_collaborator_delete"

	ResourceCreate Action = "resource_create"
	ResourceUpdate Action = "resource_update"
	ResourceDelete Action = "resource_delete"
	ResourceShow   Action = "resource_show"

	RelatedCreate Action = "related_create"
	RelatedUpdate Action = "related_update"
	RelatedDelete Action = "related_delete"

	GroupCreate        Action = "group_create"
	GroupUpdate        Action = "group_update"
	GroupDelete        Action = "group_delete"
	GroupShow          Action = "group_show"
	OrganizationCreate Action = "organization_create"
	OrganizationUpdate Action = "organization_update"
	OrganizationDelete Action = "organization_delete"
	OrganizationShow   Action = "organization_show"

	MemberCreate             Action = "member_create"
	MemberDelete             Action = "member_delete"
	GroupMemberCreate        Action = "group_member_create"
	GroupMemberDelete        Action = "group_member_delete"
	OrganizationMemberCreate Action = "organization_member_create"
	OrganizationMemberDelete Action = "organization_member_delete"

	UserCreate Action = "user_create"
	UserUpdate Action = "user_update"
	UserDelete Action = "user_delete"
	UserShow   Action = "user_show"
	UserList   Action = "user_list"

	RevisionChangeState Action = "revision_change_state"
	RevisionPurge       Action = "revision_purge"

	Sysadmin Action = "sysadmin"
)

type actionInfo struct {
	allowAnonymous bool
}

var actions = map[Action]actionInfo{
	PackageCreate:             {allowAnonymous: true},
	PackageUpdate:             {},
	PackagePatch:              {},
	PackageDelete:             {},
	PackageShow:               {allowAnonymous: true},
	PackageCollaboratorList:   {},
	PackageCollaboratorCreate: {},
	PackageCollaboratorDelete: {},
	ResourceCreate:            {},
	ResourceUpdate:            {},
	ResourceDelete:            {},
	ResourceShow:              {allowAnonymous: true},
	RelatedCreate:             {},
	RelatedUpdate:             {},
	RelatedDelete:             {},
	GroupCreate:               {},
	GroupUpdate:               {},
	GroupDelete:               {},
	GroupShow:                 {allowAnonymous: true},
	OrganizationCreate:        {},
	OrganizationUpdate:        {},
	OrganizationDelete:        {},
	OrganizationShow:          {allowAnonymous: true},
	MemberCreate:              {},
	MemberDelete:              {},
	GroupMemberCreate:         {},
	GroupMemberDelete:         {},
	OrganizationMemberCreate:  {},
	OrganizationMemberDelete:  {},
	UserCreate:                {allowAnonymous: true},
	UserUpdate:                {allowAnonymous: true},
	UserDelete:                {},
	UserShow:                  {allowAnonymous: true},
	UserList:                  {allowAnonymous: true},
	RevisionChangeState:       {},
	RevisionPurge:             {},
	Sysadmin:                  {},
}

// Known reports whether a is a defined action.
func (a Action) Known() bool {
	_, ok := actions[a]
	return ok
}

// AllowAnonymous reports whether a may be evaluated without an acting user.
// Predicates of such actions handle the anonymous case themselves.
func (a Action) AllowAnonymous() bool {
	return actions[a].allowAnonymous
}

// Actions lists every defined action in name order.
func Actions() []Action {
	result := make([]Action, 0, len(actions))
	for a := range actions {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
