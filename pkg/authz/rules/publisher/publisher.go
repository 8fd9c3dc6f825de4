//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package publisher holds the predicates of the publisher profile, where a
// user may act on a dataset or group when they share a publisher
// (organization) with it. It is layered over the default profile.
package publisher

import (
	"context"

	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/authz/registry"
	"github.com/manetu/portalauthz/pkg/authz/resolve"
	"github.com/manetu/portalauthz/pkg/authz/rules/standard"
	"github.com/manetu/portalauthz/pkg/core/model"
)

// Profile is the name of the publisher profile.
const Profile = "publisher"

// Table returns the publisher predicates.
func Table() registry.Table {
	return registry.Table{
		authz.PackageCreate:  PackageCreate,
		authz.PackageUpdate:  packageChange("edit"),
		authz.PackagePatch:   packageChange("edit"),
		authz.PackageDelete:  packageChange("delete"),
		authz.PackageShow:    PackageShow,
		authz.GroupCreate:    GroupCreate,
		authz.GroupUpdate:    groupChange("edit"),
		authz.GroupDelete:    groupChange("delete"),
		authz.ResourceCreate: ResourceCreate,
	}
}

// GroupsIntersect reports whether a and b share at least one id. Two empty
// sets do not intersect.
func GroupsIntersect(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if set[id] {
			return true
		}
	}
	return false
}

// AllowWithoutTargetGroup grants requests that name no target group and
// hands the others to next. It is the only place the publisher profile is
// lenient about missing groups; GroupsIntersect itself is strict.
func AllowWithoutTargetGroup(next authz.Predicate) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		if _, given := data.String(authz.KeyID); !given && c.Group == nil {
			return authz.Allow(), nil
		}
		return next(ctx, c, data)
	}
}

func ids(groups []*model.Group) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.ID)
	}
	return out
}

func userGroups(ctx context.Context, c *authz.Context, capacities ...model.Capacity) ([]string, error) {
	if !c.LoggedIn() {
		return nil, nil
	}
	groups, err := c.Model.UserGroups(ctx, c.UserID(), model.GroupTypeOrg, capacities...)
	if err != nil {
		return nil, err
	}
	return ids(groups), nil
}

// packageGroups lists the publishers of pkg, its owner organization
// included.
func packageGroups(ctx context.Context, c *authz.Context, pkg *model.Package) ([]string, error) {
	groups, err := c.Model.PackageGroups(ctx, pkg.ID, model.GroupTypeOrg)
	if err != nil {
		return nil, err
	}
	result := ids(groups)
	if pkg.OwnerOrg != "" {
		result = append(result, pkg.OwnerOrg)
	}
	return result, nil
}

func sharesPublisher(ctx context.Context, c *authz.Context, pkg *model.Package) (bool, error) {
	mine, err := userGroups(ctx, c)
	if err != nil {
		return false, err
	}
	theirs, err := packageGroups(ctx, c, pkg)
	if err != nil {
		return false, err
	}
	return GroupsIntersect(mine, theirs), nil
}

// PackageCreate requires a user belonging to at least one publisher.
func PackageCreate(ctx context.Context, c *authz.Context, _ authz.DataDict) (authz.Result, error) {
	mine, err := userGroups(ctx, c)
	if err != nil {
		return authz.Result{}, err
	}
	if len(mine) == 0 {
		return authz.Denyf("User %s not authorized to create packages", standard.Display(c)), nil
	}
	return authz.Allow(), nil
}

func packageChange(verb string) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		pkg, err := resolve.Package(ctx, c, data)
		if err != nil {
			return authz.Result{}, err
		}
		ok, err := sharesPublisher(ctx, c, pkg)
		if err != nil {
			return authz.Result{}, err
		}
		if !ok {
			return authz.Denyf("User %s not authorized to %s packages in these groups", standard.Display(c), verb), nil
		}
		return authz.Allow(), nil
	}
}

// PackageShow opens active public packages; the rest need a shared
// publisher.
func PackageShow(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	pkg, err := resolve.Package(ctx, c, data)
	if err != nil {
		return authz.Result{}, err
	}
	if model.IsActive(pkg) && !pkg.Private {
		return authz.Allow(), nil
	}
	ok, err := sharesPublisher(ctx, c, pkg)
	if err != nil {
		return authz.Result{}, err
	}
	if !ok {
		return authz.Denyf("User %s not authorized to read package %s", standard.Display(c), pkg.ID), nil
	}
	return authz.Allow(), nil
}

// GroupCreate requires a user. Creating a group inside a parent, named by
// id, requires membership of that parent; naming none is allowed.
func GroupCreate(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	if !c.LoggedIn() {
		return authz.Deny("User is not authorized to create groups"), nil
	}
	return AllowWithoutTargetGroup(withinParent)(ctx, c, data)
}

func withinParent(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	parent, err := resolve.Group(ctx, c, data)
	if err != nil {
		return authz.Result{}, err
	}
	mine, err := userGroups(ctx, c)
	if err != nil {
		return authz.Result{}, err
	}
	if !GroupsIntersect(mine, []string{parent.ID}) {
		return authz.Denyf("User %s not authorized to create groups", standard.Display(c)), nil
	}
	return authz.Allow(), nil
}

// groupChange is reserved to admins of the group itself.
func groupChange(verb string) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		group, err := resolve.Group(ctx, c, data)
		if err != nil {
			return authz.Result{}, err
		}
		admins, err := userGroups(ctx, c, model.CapacityAdmin)
		if err != nil {
			return authz.Result{}, err
		}
		if !GroupsIntersect(admins, []string{group.ID}) {
			return authz.Denyf("User %s not authorized to %s this group", standard.Display(c), verb), nil
		}
		return authz.Allow(), nil
	}
}

// ResourceCreate has no publisher rule and is denied to everyone but
// sysadmins.
func ResourceCreate(context.Context, *authz.Context, authz.DataDict) (authz.Result, error) {
	return authz.Deny("Not implemented yet in the publisher profile"), nil
}
