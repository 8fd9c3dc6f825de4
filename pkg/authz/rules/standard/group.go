//
//  Copyright © Manetu Inc. All rights reserved.
//

package standard

import (
	"context"

	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/authz/capacity"
	"github.com/manetu/portalauthz/pkg/authz/resolve"
	"github.com/manetu/portalauthz/pkg/core/config"
	"github.com/manetu/portalauthz/pkg/core/model"
)

// noun names a group kind in messages
func noun(kind model.Kind) string {
	if kind == model.KindOrganization {
		return "organization"
	}
	return "group"
}

func target(ctx context.Context, c *authz.Context, data authz.DataDict, kind model.Kind) (*model.Group, error) {
	if kind == model.KindOrganization {
		return resolve.Organization(ctx, c, data)
	}
	return resolve.Group(ctx, c, data)
}

func permitted(ctx context.Context, c *authz.Context, groupID, permission string) (bool, error) {
	return capacity.HasPermissionForGroupOrOrg(ctx, c, groupID, c.UserID(), permission)
}

func groupCreate(setting string, kind model.Kind) authz.Predicate {
	return func(_ context.Context, c *authz.Context, _ authz.DataDict) (authz.Result, error) {
		if c.LoggedIn() && c.Permissions().Bool(setting) {
			return authz.Allow(), nil
		}
		return authz.Denyf("User %s not authorized to create %ss", Display(c), noun(kind)), nil
	}
}

func groupUpdate(kind model.Kind) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		group, err := target(ctx, c, data, kind)
		if err != nil {
			return authz.Result{}, err
		}
		ok, err := permitted(ctx, c, group.ID, capacity.Update)
		if err != nil {
			return authz.Result{}, err
		}
		if !ok {
			return authz.Denyf("User %s not authorized to edit %s %s", Display(c), noun(kind), group.ID), nil
		}
		return authz.Allow(), nil
	}
}

func groupDelete(setting string, kind model.Kind) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		group, err := target(ctx, c, data, kind)
		if err != nil {
			return authz.Result{}, err
		}
		if !c.Permissions().Bool(setting) {
			return authz.Denyf("User %s not authorized to delete %ss", Display(c), noun(kind)), nil
		}
		ok, err := permitted(ctx, c, group.ID, capacity.Delete)
		if err != nil {
			return authz.Result{}, err
		}
		if !ok {
			return authz.Denyf("User %s not authorized to delete %s %s", Display(c), noun(kind), group.ID), nil
		}
		return authz.Allow(), nil
	}
}

func groupShow(kind model.Kind) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		group, err := target(ctx, c, data, kind)
		if err != nil {
			return authz.Result{}, err
		}
		if model.IsActive(group) {
			return authz.Allow(), nil
		}
		ok, err := permitted(ctx, c, group.ID, capacity.Read)
		if err != nil {
			return authz.Result{}, err
		}
		if !ok {
			return authz.Denyf("User %s not authorized to read %s %s", Display(c), noun(kind), group.ID), nil
		}
		return authz.Allow(), nil
	}
}

// Group and organization lifecycle. Creation needs the matching
// user_create_* setting and a known user, update needs the update
// permission, deletion needs the user_delete_* setting and the delete
// permission. Active groups are visible to everyone.
var (
	GroupCreate        = groupCreate(config.UserCreateGroups, model.KindGroup)
	GroupUpdate        = groupUpdate(model.KindGroup)
	GroupDelete        = groupDelete(config.UserDeleteGroups, model.KindGroup)
	GroupShow          = groupShow(model.KindGroup)
	OrganizationCreate = groupCreate(config.UserCreateOrganizations, model.KindOrganization)
	OrganizationUpdate = groupUpdate(model.KindOrganization)
	OrganizationDelete = groupDelete(config.UserDeleteOrganizations, model.KindOrganization)
	OrganizationShow   = groupShow(model.KindOrganization)
)

// MemberCreate guards adding an object to a group and removing it again. It
// requires update on the group, except that manage_group suffices for
// datasets in groups that are not organizations.
func MemberCreate(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	group, err := resolve.Group(ctx, c, data)
	if err != nil {
		return authz.Result{}, err
	}

	permission := capacity.Update
	if !group.IsOrganization && data.Get(authz.KeyObjectType) == string(model.KindPackage) {
		permission = capacity.ManageGroup
	}

	ok, err := permitted(ctx, c, group.ID, permission)
	if err != nil {
		return authz.Result{}, err
	}
	if !ok {
		return authz.Denyf("User %s not authorized to edit group %s", Display(c), group.ID), nil
	}
	return authz.Allow(), nil
}

func memberCreate(kind model.Kind) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		group, err := target(ctx, c, data, kind)
		if err != nil {
			return authz.Result{}, err
		}
		ok, err := permitted(ctx, c, group.ID, capacity.Membership)
		if err != nil {
			return authz.Result{}, err
		}
		if !ok {
			return authz.Denyf("User %s not authorized to add members", Display(c)), nil
		}
		return authz.Allow(), nil
	}
}

func memberDelete(kind model.Kind) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		group, err := target(ctx, c, data, kind)
		if err != nil {
			return authz.Result{}, err
		}
		ok, err := permitted(ctx, c, group.ID, capacity.DeleteMember)
		if err != nil {
			return authz.Result{}, err
		}
		if !ok {
			return authz.Denyf("User %s not authorized to delete %s %s members", Display(c), noun(kind), group.ID), nil
		}
		return authz.Allow(), nil
	}
}

// User membership of groups and organizations.
var (
	GroupMemberCreate        = memberCreate(model.KindGroup)
	GroupMemberDelete        = memberDelete(model.KindGroup)
	OrganizationMemberCreate = memberCreate(model.KindOrganization)
	OrganizationMemberDelete = memberDelete(model.KindOrganization)
)
