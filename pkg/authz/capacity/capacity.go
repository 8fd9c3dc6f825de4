//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package capacity answers whether a user's group, organization or
// collaborator capacity carries a permission.
//
// Permissions per capacity:
//
//	admin   admin, membership (admin implies every permission)
//	editor  read, delete_dataset, create_dataset, update_dataset, manage_group
//	member  read, manage_group
//
// Sysadmin status is not considered here; callers apply it first.
package capacity

import (
	"context"
	"slices"

	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/authz/resolve"
	"github.com/manetu/portalauthz/pkg/common"
	"github.com/manetu/portalauthz/pkg/core/config"
	"github.com/manetu/portalauthz/pkg/core/model"
)

var logger = logging.GetLogger("portalauthz.capacity")

// Permission names.
const (
	Admin         = "admin"
	Membership    = "membership"
	Read          = "read"
	DeleteDataset = "delete_dataset"
	CreateDataset = "create_dataset"
	UpdateDataset = "update_dataset"
	ManageGroup   = "manage_group"
	Update        = "update"
	Delete        = "delete"
	DeleteMember  = "delete_member"
)

var rolePermissions = map[model.Capacity][]string{
	model.CapacityAdmin:  {Admin, Membership},
	model.CapacityEditor: {Read, DeleteDataset, CreateDataset, UpdateDataset, ManageGroup},
	model.CapacityMember: {Read, ManageGroup},
}

// Capacities lists the capacities, strongest first.
var Capacities = []model.Capacity{model.CapacityAdmin, model.CapacityEditor, model.CapacityMember}

// Permissions returns the permissions of capacity c.
func Permissions(c model.Capacity) []string {
	return slices.Clone(rolePermissions[c])
}

// Grants reports whether capacity c carries permission.
func Grants(c model.Capacity, permission string) bool {
	perms := rolePermissions[c]
	return slices.Contains(perms, Admin) || slices.Contains(perms, permission)
}

// RolesWithPermission lists the capacities carrying permission.
func RolesWithPermission(permission string) []model.Capacity {
	var result []model.Capacity
	for _, c := range Capacities {
		if Grants(c, permission) {
			result = append(result, c)
		}
	}
	return result
}

// actingID resolves a user name to its id; unknown or anonymous users
// resolve to "".
func actingID(ctx context.Context, c *authz.Context, user string) (string, error) {
	if user == "" {
		return "", nil
	}
	if c.AuthUserObj != nil && (user == c.AuthUserObj.Name || user == c.AuthUserObj.ID) {
		return c.AuthUserObj.ID, nil
	}
	e, err := resolve.ByRef(ctx, c, model.KindUser, user)
	if err != nil {
		if common.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return e.EntityID(), nil
}

func hasPermissionForGroups(ctx context.Context, c *authz.Context, userID, permission string, groupIDs []string, only model.Capacity) (bool, error) {
	for _, gid := range groupIDs {
		members, err := c.Model.Members(ctx, gid, userID)
		if err != nil {
			return false, err
		}
		for _, m := range members {
			if only != "" && m.Capacity != only {
				continue
			}
			if Grants(m.Capacity, permission) {
				return true, nil
			}
		}
	}
	return false, nil
}

func lookupGroup(ctx context.Context, c *authz.Context, groupID string) (*model.Group, error) {
	e, err := resolve.ByRef(ctx, c, model.KindGroup, groupID)
	if err != nil {
		if common.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return e.(*model.Group), nil
}

// HasPermissionForGroupOrOrg reports whether user holds permission in
// groupID through a direct membership, or through a membership on an
// ancestor group in a capacity listed by roles_that_cascade_to_sub_groups.
// An empty, unknown or anonymous group or user yields false.
func HasPermissionForGroupOrOrg(ctx context.Context, c *authz.Context, groupID, user, permission string) (bool, error) {
	if groupID == "" {
		return false, nil
	}
	group, err := lookupGroup(ctx, c, groupID)
	if err != nil || group == nil {
		return false, err
	}
	userID, err := actingID(ctx, c, user)
	if err != nil || userID == "" {
		return false, err
	}

	ok, err := hasPermissionForGroups(ctx, c, userID, permission, []string{group.ID}, "")
	if err != nil || ok {
		return ok, err
	}

	cascading := c.Permissions().Roles(config.RolesThatCascadeToSubGroups)
	if len(cascading) == 0 {
		return false, nil
	}

	parents, err := c.Model.ParentGroups(ctx, group.ID)
	if err != nil {
		return false, err
	}
	var parentIDs []string
	for _, p := range parents {
		if p.IsOrganization == group.IsOrganization {
			parentIDs = append(parentIDs, p.ID)
		}
	}
	if len(parentIDs) == 0 {
		return false, nil
	}

	for _, capacity := range cascading {
		ok, err := hasPermissionForGroups(ctx, c, userID, permission, parentIDs, model.Capacity(capacity))
		if err != nil {
			return false, err
		}
		if ok {
			logger.Debugf(user, permission, "granted on %s through a parent group as %s", group.ID, capacity)
			return true, nil
		}
	}
	return false, nil
}

// HasPermissionForSomeOrg reports whether user holds permission in at least
// one active organization.
func HasPermissionForSomeOrg(ctx context.Context, c *authz.Context, user, permission string) (bool, error) {
	userID, err := actingID(ctx, c, user)
	if err != nil || userID == "" {
		return false, err
	}
	orgs, err := c.Model.UserGroups(ctx, userID, model.GroupTypeOrg, RolesWithPermission(permission)...)
	if err != nil {
		return false, err
	}
	return len(orgs) > 0, nil
}

// UsersRoleForGroupOrOrg returns the strongest capacity user holds directly
// in groupID, or "".
func UsersRoleForGroupOrOrg(ctx context.Context, c *authz.Context, groupID, user string) (model.Capacity, error) {
	group, err := lookupGroup(ctx, c, groupID)
	if err != nil || group == nil {
		return "", err
	}
	userID, err := actingID(ctx, c, user)
	if err != nil || userID == "" {
		return "", err
	}
	members, err := c.Model.Members(ctx, group.ID, userID)
	if err != nil {
		return "", err
	}
	var best model.Capacity
	for _, m := range members {
		if m.Capacity.Rank() > best.Rank() {
			best = m.Capacity
		}
	}
	return best, nil
}

// IsCollaboratorOnDataset reports whether userID is a collaborator on
// packageID in one of capacities, or in any capacity when none are given.
// Collaborators count only when allow_dataset_collaborators is set, and
// admin collaborators only when allow_admin_collaborators is also set.
func IsCollaboratorOnDataset(ctx context.Context, c *authz.Context, userID, packageID string, capacities ...model.Capacity) (bool, error) {
	perms := c.Permissions()
	if userID == "" || packageID == "" || !perms.Bool(config.AllowDatasetCollaborators) {
		return false, nil
	}
	rows, err := c.Model.Collaborators(ctx, packageID, userID)
	if err != nil {
		return false, err
	}
	allowAdmin := perms.Bool(config.AllowAdminCollaborators)
	for _, row := range rows {
		if row.Capacity == model.CapacityAdmin && !allowAdmin {
			continue
		}
		if len(capacities) == 0 || slices.Contains(capacities, row.Capacity) {
			return true, nil
		}
	}
	return false, nil
}

var collaboratorCapacities = map[string][]model.Capacity{
	Read:          {model.CapacityAdmin, model.CapacityEditor, model.CapacityMember},
	UpdateDataset: {model.CapacityAdmin, model.CapacityEditor},
	DeleteDataset: {model.CapacityAdmin, model.CapacityEditor},
}

// CollaboratorPermits reports whether user's collaborator rows on pkg carry
// permission. Only dataset-scoped permissions (read, update_dataset,
// delete_dataset) can be granted this way.
func CollaboratorPermits(ctx context.Context, c *authz.Context, pkg *model.Package, user, permission string) (bool, error) {
	capacities, ok := collaboratorCapacities[permission]
	if !ok || pkg == nil {
		return false, nil
	}
	userID, err := actingID(ctx, c, user)
	if err != nil || userID == "" {
		return false, err
	}
	return IsCollaboratorOnDataset(ctx, c, userID, pkg.ID, capacities...)
}
