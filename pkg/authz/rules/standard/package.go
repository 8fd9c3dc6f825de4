//
//  Copyright © Manetu Inc. All rights reserved.
//

package standard

import (
	"context"
	"strings"

	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/authz/capacity"
	"github.com/manetu/portalauthz/pkg/authz/resolve"
	"github.com/manetu/portalauthz/pkg/common"
	"github.com/manetu/portalauthz/pkg/core/config"
	"github.com/manetu/portalauthz/pkg/core/model"
)

// PackageCreate allows anonymous creation only with anon_create_dataset.
// Logged-in users need one of the unowned allowances or create_dataset in
// some organization. Groups in data require manage_group, and an owner_org
// requires create_dataset on it.
func PackageCreate(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	perms := c.Permissions()
	user := Display(c)

	var ok bool
	if !c.LoggedIn() {
		ok = perms.Bool(config.AnonCreateDataset)
	} else {
		ok = perms.Bool(config.CreateDatasetIfNotInOrganization) || perms.Bool(config.CreateUnownedDataset)
		if !ok {
			var err error
			if ok, err = capacity.HasPermissionForSomeOrg(ctx, c, c.UserID(), capacity.CreateDataset); err != nil {
				return authz.Result{}, err
			}
		}
	}
	if !ok {
		return authz.Denyf("User %s not authorized to create packages", user), nil
	}

	ok, err := CheckGroupAuth(ctx, c, data, c.Package)
	if err != nil {
		return authz.Result{}, err
	}
	if !ok {
		return authz.Denyf("User %s not authorized to edit these groups", user), nil
	}

	if org, given := data.String(authz.KeyOwnerOrg); given {
		ok, err := capacity.HasPermissionForGroupOrOrg(ctx, c, org, c.UserID(), capacity.CreateDataset)
		if err != nil {
			return authz.Result{}, err
		}
		if !ok {
			return authz.Denyf("User %s not authorized to add dataset to this organization", user), nil
		}
	}
	return authz.Allow(), nil
}

// CheckGroupAuth reports whether the acting user may manage every group
// referenced by data, skipping groups pkg already belongs to. An unknown
// group is NOT_FOUND.
func CheckGroupAuth(ctx context.Context, c *authz.Context, data authz.DataDict, pkg *model.Package) (bool, error) {
	refs := data.GroupRefs()
	if len(refs) == 0 {
		return true, nil
	}

	pending := make(map[string]bool, len(refs))
	var ids []string
	for _, ref := range refs {
		e, err := resolve.ByRef(ctx, c, model.KindGroup, ref)
		if err != nil {
			return false, err
		}
		if !pending[e.EntityID()] {
			pending[e.EntityID()] = true
			ids = append(ids, e.EntityID())
		}
	}

	if pkg != nil {
		attached, err := c.Model.PackageGroups(ctx, pkg.ID, model.AnyGroup)
		if err != nil {
			return false, err
		}
		for _, g := range attached {
			delete(pending, g.ID)
		}
	}

	for _, id := range ids {
		if !pending[id] {
			continue
		}
		ok, err := capacity.HasPermissionForGroupOrOrg(ctx, c, id, c.UserID(), capacity.ManageGroup)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// ownerPermits checks permission on the owner organization of pkg. Unowned
// packages fall back to create_dataset_if_not_in_organization for logged-in
// users.
func ownerPermits(ctx context.Context, c *authz.Context, pkg *model.Package, permission string) (bool, error) {
	if pkg.OwnerOrg == "" {
		return c.LoggedIn() && c.Permissions().Bool(config.CreateDatasetIfNotInOrganization), nil
	}
	return capacity.HasPermissionForGroupOrOrg(ctx, c, pkg.OwnerOrg, c.UserID(), permission)
}

// PackageUpdate requires update_dataset on the owner organization, or an
// editor or admin collaborator row on the package.
func PackageUpdate(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	pkg, err := resolve.Package(ctx, c, data)
	if err != nil {
		return authz.Result{}, err
	}
	return AuthorizePackageUpdate(ctx, c, pkg, data)
}

// AuthorizePackageUpdate applies PackageUpdate to an already resolved
// package.
func AuthorizePackageUpdate(ctx context.Context, c *authz.Context, pkg *model.Package, data authz.DataDict) (authz.Result, error) {
	user := Display(c)

	ok, err := ownerPermits(ctx, c, pkg, capacity.UpdateDataset)
	if err != nil {
		return authz.Result{}, err
	}
	if !ok {
		ok, err = capacity.CollaboratorPermits(ctx, c, pkg, c.UserID(), capacity.UpdateDataset)
		if err != nil {
			return authz.Result{}, err
		}
		if !ok {
			return authz.Denyf("User %s not authorized to edit package %s", user, pkg.ID), nil
		}
		if org, given := data.String(authz.KeyOwnerOrg); given && org != pkg.OwnerOrg &&
			!c.Permissions().Bool(config.AllowCollaboratorsToChangeOwnerOrg) {
			return authz.Denyf("User %s not authorized to change the organization of package %s", user, pkg.ID), nil
		}
		return authz.Allow(), nil
	}

	ok, err = CheckGroupAuth(ctx, c, data, pkg)
	if err != nil {
		return authz.Result{}, err
	}
	if !ok {
		return authz.Denyf("User %s not authorized to edit these groups", user), nil
	}
	return authz.Allow(), nil
}

// PackageDelete requires delete_dataset on the owner organization, or an
// editor or admin collaborator row on the package.
func PackageDelete(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	pkg, err := resolve.Package(ctx, c, data)
	if err != nil {
		return authz.Result{}, err
	}

	ok, err := ownerPermits(ctx, c, pkg, capacity.DeleteDataset)
	if err != nil {
		return authz.Result{}, err
	}
	if !ok {
		if ok, err = capacity.CollaboratorPermits(ctx, c, pkg, c.UserID(), capacity.DeleteDataset); err != nil {
			return authz.Result{}, err
		}
	}
	if !ok {
		return authz.Denyf("User %s not authorized to delete package %s", Display(c), pkg.ID), nil
	}
	return authz.Allow(), nil
}

// PackageShow opens active public and active unowned packages to everyone.
// Drafts need update rights; anything else needs read on the owner
// organization or a collaborator row.
func PackageShow(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	pkg, err := resolve.Package(ctx, c, data)
	if err != nil {
		return authz.Result{}, err
	}
	return AuthorizePackageShow(ctx, c, pkg)
}

// AuthorizePackageShow applies PackageShow to an already resolved package.
func AuthorizePackageShow(ctx context.Context, c *authz.Context, pkg *model.Package) (authz.Result, error) {
	var ok bool
	switch {
	case strings.HasPrefix(string(pkg.State), string(model.StateDraft)):
		res, err := AuthorizePackageUpdate(ctx, c, pkg, nil)
		if err != nil {
			return authz.Result{}, err
		}
		ok = res.Success
	case model.IsActive(pkg) && (pkg.OwnerOrg == "" || !pkg.Private):
		return authz.Allow(), nil
	default:
		var err error
		if pkg.OwnerOrg != "" {
			if ok, err = capacity.HasPermissionForGroupOrOrg(ctx, c, pkg.OwnerOrg, c.UserID(), capacity.Read); err != nil {
				return authz.Result{}, err
			}
		}
		if !ok {
			if ok, err = capacity.CollaboratorPermits(ctx, c, pkg, c.UserID(), capacity.Read); err != nil {
				return authz.Result{}, err
			}
		}
	}

	if !ok {
		return authz.Denyf("User %s not authorized to read package %s", Display(c), pkg.ID), nil
	}
	return authz.Allow(), nil
}

// canManageCollaborators holds for admins of the owner organization and for
// admin collaborators.
func canManageCollaborators(ctx context.Context, c *authz.Context, pkg *model.Package) (bool, error) {
	if pkg.OwnerOrg != "" {
		ok, err := capacity.HasPermissionForGroupOrOrg(ctx, c, pkg.OwnerOrg, c.UserID(), capacity.Membership)
		if err != nil || ok {
			return ok, err
		}
	}
	return capacity.IsCollaboratorOnDataset(ctx, c, c.UserID(), pkg.ID, model.CapacityAdmin)
}

func collaborators(verb string) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		pkg, err := resolve.Package(ctx, c, data)
		if err != nil {
			return authz.Result{}, err
		}
		ok, err := canManageCollaborators(ctx, c, pkg)
		if err != nil {
			return authz.Result{}, err
		}
		if !ok {
			return authz.Denyf("User %s not authorized to %s", Display(c), verb), nil
		}
		return authz.Allow(), nil
	}
}

// Collaborator management is reserved to organization admins and admin
// collaborators.
var (
	PackageCollaboratorList   = collaborators("list collaborators from this dataset")
	PackageCollaboratorCreate = collaborators("add collaborators to this dataset")
	PackageCollaboratorDelete = collaborators("remove collaborators from this dataset")
)

func resourcePackage(ctx context.Context, c *authz.Context, res *model.Resource) (*model.Package, error) {
	e, err := resolve.ByRef(ctx, c, model.KindPackage, res.PackageID)
	if err != nil {
		return nil, err
	}
	return e.(*model.Package), nil
}

// ResourceShow defers to PackageShow on the owning package.
func ResourceShow(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	res, err := resolve.Resource(ctx, c, data)
	if err != nil {
		return authz.Result{}, err
	}
	pkg, err := resourcePackage(ctx, c, res)
	if err != nil {
		return authz.Result{}, err
	}

	shown, err := AuthorizePackageShow(ctx, c, pkg)
	if err != nil || !shown.Success {
		return authz.Denyf("User %s not authorized to read resource %s", Display(c), res.ID), err
	}
	return authz.Allow(), nil
}

// ResourceCreate requires update rights on the package named by package_id,
// or on the package of the resource named by id.
func ResourceCreate(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	pkgID, given := data.String(authz.KeyPackageID)
	if !given && (c.Resource != nil || data.Has(authz.KeyID)) {
		res, err := resolve.Resource(ctx, c, data)
		if err != nil {
			return authz.Result{}, err
		}
		pkgID = res.PackageID
	}
	if pkgID == "" {
		return authz.Result{}, common.NewError(common.NotFound, "No dataset id provided, cannot check auth.")
	}

	e, err := resolve.ByRef(ctx, c, model.KindPackage, pkgID)
	if err != nil {
		return authz.Result{}, err
	}

	updated, err := AuthorizePackageUpdate(ctx, c, e.(*model.Package), nil)
	if err != nil || !updated.Success {
		return authz.Denyf("User %s not authorized to create resources on dataset %s", Display(c), pkgID), err
	}
	return authz.Allow(), nil
}

func resourceChange(verb string) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		res, err := resolve.Resource(ctx, c, data)
		if err != nil {
			return authz.Result{}, err
		}
		pkg, err := resourcePackage(ctx, c, res)
		if err != nil {
			return authz.Result{}, err
		}

		updated, err := AuthorizePackageUpdate(ctx, c, pkg, nil)
		if err != nil || !updated.Success {
			return authz.Denyf("User %s not authorized to %s resource %s", Display(c), verb, res.ID), err
		}
		return authz.Allow(), nil
	}
}

// Changing a resource requires update rights on its package.
var (
	ResourceUpdate = resourceChange("edit")
	ResourceDelete = resourceChange("delete")
)
