//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package standard holds the predicates of the default profile, where
// permissions flow from organization and group capacities, dataset
// collaborators and the permission settings.
//
// Sysadmins never reach these predicates; the registry grants them first.
package standard

import (
	"context"

	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/authz/registry"
)

var logger = logging.GetLogger("portalauthz.rules.standard")

// Profile is the name of the default profile.
const Profile = "default"

// Table returns the predicate of every action.
func Table() registry.Table {
	return registry.Table{
		authz.PackageCreate:             PackageCreate,
		authz.PackageUpdate:             PackageUpdate,
		authz.PackagePatch:              PackageUpdate,
		authz.PackageDelete:             PackageDelete,
		authz.PackageShow:               PackageShow,
		authz.PackageCollaboratorList:   PackageCollaboratorList,
		authz.PackageCollaboratorCreate: PackageCollaboratorCreate,
		authz.PackageCollaboratorDelete: PackageCollaboratorDelete,

		authz.ResourceCreate: ResourceCreate,
		authz.ResourceUpdate: ResourceUpdate,
		authz.ResourceDelete: ResourceDelete,
		authz.ResourceShow:   ResourceShow,

		authz.RelatedCreate: RelatedCreate,
		authz.RelatedUpdate: RelatedUpdate,
		authz.RelatedDelete: RelatedDelete,

		authz.GroupCreate:        GroupCreate,
		authz.GroupUpdate:        GroupUpdate,
		authz.GroupDelete:        GroupDelete,
		authz.GroupShow:          GroupShow,
		authz.OrganizationCreate: OrganizationCreate,
		authz.OrganizationUpdate: OrganizationUpdate,
		authz.OrganizationDelete: OrganizationDelete,
		authz.OrganizationShow:   OrganizationShow,

		authz.MemberCreate:             MemberCreate,
		authz.MemberDelete:             MemberCreate,
		authz.GroupMemberCreate:        GroupMemberCreate,
		authz.GroupMemberDelete:        GroupMemberDelete,
		authz.OrganizationMemberCreate: OrganizationMemberCreate,
		authz.OrganizationMemberDelete: OrganizationMemberDelete,

		authz.UserCreate: UserCreate,
		authz.UserUpdate: UserUpdate,
		authz.UserDelete: sysadminOnly("Only sysadmins can delete users"),
		authz.UserShow:   UserShow,
		authz.UserList:   UserShow,

		authz.RevisionChangeState: sysadminOnly("Only sysadmins can change the state of a revision"),
		authz.RevisionPurge:       sysadminOnly("Only sysadmins can purge revisions"),

		authz.Sysadmin: sysadminOnly("Only sysadmins are authorized"),
	}
}

// Display returns the name used for the acting user in denial messages.
func Display(c *authz.Context) string {
	switch {
	case c.AuthUserObj != nil:
		return c.AuthUserObj.Name
	case c.User != "":
		return c.User
	}
	return "visitor"
}

func sysadminOnly(msg string) authz.Predicate {
	return func(_ context.Context, c *authz.Context, _ authz.DataDict) (authz.Result, error) {
		logger.Debugf(Display(c), "sysadminOnly", "denied: %s", msg)
		return authz.Deny(msg), nil
	}
}
