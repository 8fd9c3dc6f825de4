//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package roles maps actions onto the legacy role authorizer. It is layered
// over the default profile; actions it does not define keep their default
// predicate.
package roles

import (
	"context"

	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/authz/legacy"
	"github.com/manetu/portalauthz/pkg/authz/registry"
	"github.com/manetu/portalauthz/pkg/authz/resolve"
	"github.com/manetu/portalauthz/pkg/authz/rules/standard"
	"github.com/manetu/portalauthz/pkg/core/model"
)

// Profile is the name of the legacy profile.
const Profile = "legacy"

type rules struct {
	opts []legacy.Option
}

func (r *rules) authorizer(c *authz.Context) *legacy.Authorizer {
	return legacy.New(c.Model, r.opts...)
}

// username is the name the authorizer knows the caller by. Anonymous callers
// are usually identified by their remote address.
func username(c *authz.Context) string {
	if c.User == "" && c.AuthUserObj != nil {
		return c.AuthUserObj.Name
	}
	return c.User
}

// Table returns the legacy predicates. opts configure the authorizer built
// for each request, typically its blacklister and extensions.
func Table(opts ...legacy.Option) registry.Table {
	r := &rules{opts: opts}
	return registry.Table{
		authz.PackageCreate: r.onSystem(model.ActionCreatePackage, "create packages", true),
		authz.PackageUpdate: r.packageUpdate,
		authz.PackagePatch:  r.packageUpdate,
		authz.PackageDelete: r.onPackage(model.ActionChangeState, "delete package"),
		authz.PackageShow:   r.onPackage(model.ActionRead, "read package"),
		authz.ResourceShow:  r.resourceShow,

		authz.GroupCreate: r.onSystem(model.ActionCreateGroup, "create groups", false),
		authz.GroupUpdate: r.onGroup(model.ActionEdit, "edit group"),
		authz.GroupDelete: r.onGroup(model.ActionChangeState, "delete group"),

		authz.RevisionChangeState: r.onRevision(model.ActionChangeState, "change state of revision"),
		authz.RevisionPurge:       r.onRevision(model.ActionPurge, "purge revision"),

		authz.UserCreate: r.onSystem(model.ActionUserCreate, "create users", false),
		authz.UserList:   r.onSystem(model.ActionUserRead, "list users", false),
		authz.UserShow:   r.onSystem(model.ActionUserRead, "read users", false),
		authz.UserUpdate: standard.UserUpdate,
	}
}

func (r *rules) decide(ctx context.Context, c *authz.Context, action model.Action, obj model.Entity, format string, args ...interface{}) (authz.Result, error) {
	ok, err := r.authorizer(c).IsAuthorized(ctx, username(c), action, obj)
	if err != nil {
		return authz.Result{}, err
	}
	if !ok {
		return authz.Denyf(format, args...), nil
	}
	return authz.Allow(), nil
}

// onSystem checks a site-wide action. withGroups also requires edit on
// every group referenced by the request.
func (r *rules) onSystem(action model.Action, what string, withGroups bool) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		res, err := r.decide(ctx, c, action, model.System{}, "User %s not authorized to %s", standard.Display(c), what)
		if err != nil || !res.Success || !withGroups {
			return res, err
		}
		return r.checkGroupAuth(ctx, c, data, c.Package)
	}
}

func (r *rules) onPackage(action model.Action, what string) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		pkg, err := resolve.Package(ctx, c, data)
		if err != nil {
			return authz.Result{}, err
		}
		return r.decide(ctx, c, action, pkg, "User %s not authorized to %s %s", standard.Display(c), what, pkg.ID)
	}
}

func (r *rules) packageUpdate(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	pkg, err := resolve.Package(ctx, c, data)
	if err != nil {
		return authz.Result{}, err
	}
	res, err := r.decide(ctx, c, model.ActionEdit, pkg, "User %s not authorized to edit package %s", standard.Display(c), pkg.ID)
	if err != nil || !res.Success {
		return res, err
	}
	return r.checkGroupAuth(ctx, c, data, pkg)
}

func (r *rules) resourceShow(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	res, err := resolve.Resource(ctx, c, data)
	if err != nil {
		return authz.Result{}, err
	}
	e, err := resolve.ByRef(ctx, c, model.KindPackage, res.PackageID)
	if err != nil {
		return authz.Result{}, err
	}
	return r.decide(ctx, c, model.ActionRead, e, "User %s not authorized to read resource %s", standard.Display(c), res.ID)
}

func (r *rules) onGroup(action model.Action, what string) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		group, err := resolve.Group(ctx, c, data)
		if err != nil {
			return authz.Result{}, err
		}
		return r.decide(ctx, c, action, group, "User %s not authorized to %s %s", standard.Display(c), what, group.ID)
	}
}

func (r *rules) onRevision(action model.Action, what string) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		rev, err := resolve.Revision(ctx, c, data)
		if err != nil {
			return authz.Result{}, err
		}
		return r.decide(ctx, c, action, rev, "User %s not authorized to %s %s", standard.Display(c), what, rev.ID)
	}
}

// checkGroupAuth requires edit on every referenced group that pkg is not
// already in.
func (r *rules) checkGroupAuth(ctx context.Context, c *authz.Context, data authz.DataDict, pkg *model.Package) (authz.Result, error) {
	refs := data.GroupRefs()
	if len(refs) == 0 {
		return authz.Allow(), nil
	}

	attached := make(map[string]bool)
	if pkg != nil {
		groups, err := c.Model.PackageGroups(ctx, pkg.ID, model.AnyGroup)
		if err != nil {
			return authz.Result{}, err
		}
		for _, g := range groups {
			attached[g.ID] = true
		}
	}

	a := r.authorizer(c)
	for _, ref := range refs {
		e, err := resolve.ByRef(ctx, c, model.KindGroup, ref)
		if err != nil {
			return authz.Result{}, err
		}
		if attached[e.EntityID()] {
			continue
		}
		ok, err := a.IsAuthorized(ctx, username(c), model.ActionEdit, e)
		if err != nil {
			return authz.Result{}, err
		}
		if !ok {
			return authz.Denyf("User %s not authorized to edit these groups", standard.Display(c)), nil
		}
	}
	return authz.Allow(), nil
}
