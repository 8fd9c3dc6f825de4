//
//  Copyright © Manetu Inc. All rights reserved.
//

package standard

import (
	"context"

	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/authz/resolve"
	"github.com/manetu/portalauthz/pkg/core/config"
	"github.com/manetu/portalauthz/pkg/core/model"
)

// UserCreate reads create_user_via_api for action API calls and
// create_user_via_web otherwise.
func UserCreate(_ context.Context, c *authz.Context, _ authz.DataDict) (authz.Result, error) {
	perms := c.Permissions()
	if c.IsAPI() {
		if !perms.Bool(config.CreateUserViaAPI) {
			return authz.Denyf("User %s not authorized to create users via the API", Display(c)), nil
		}
		return authz.Allow(), nil
	}
	if !perms.Bool(config.CreateUserViaWeb) {
		return authz.Deny("Not authorized to create users"), nil
	}
	return authz.Allow(), nil
}

// UserShow also serves user_list. User details are public unless
// public_user_details is off, in which case only logged-in users see them.
func UserShow(_ context.Context, c *authz.Context, _ authz.DataDict) (authz.Result, error) {
	if c.Permissions().Bool(config.PublicUserDetails) || c.LoggedIn() {
		return authz.Allow(), nil
	}
	return authz.Deny("Not authorized to see user details"), nil
}

// UserUpdate lets a user edit their own account, and anyone presenting the
// target's pending reset key.
func UserUpdate(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	target, err := resolve.User(ctx, c, data)
	if err != nil {
		return authz.Result{}, err
	}

	if key, given := data.String(authz.KeyResetKey); given && target.ResetKey != "" && key == target.ResetKey {
		return authz.Allow(), nil
	}
	if !c.LoggedIn() {
		return authz.Deny("Have to be logged in to edit user"), nil
	}
	if c.UserID() == target.ID {
		return authz.Allow(), nil
	}
	return authz.Denyf("User %s not authorized to edit user %s", Display(c), target.ID), nil
}

func owns(c *authz.Context, r *model.Related) bool {
	return c.LoggedIn() && c.UserID() == r.OwnerID
}

// RelatedCreate lets any logged-in user add a related item. Featured items
// are reserved to sysadmins.
func RelatedCreate(_ context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	if !c.LoggedIn() {
		return authz.Deny("You must be logged in to add a related item"), nil
	}
	if data.Flag(authz.KeyFeatured) {
		return authz.Deny("You must be a sysadmin to create a featured related item"), nil
	}
	return authz.Allow(), nil
}

// RelatedUpdate is reserved to the owner of the item.
func RelatedUpdate(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	related, err := resolve.Related(ctx, c, data)
	if err != nil {
		return authz.Result{}, err
	}
	if !owns(c, related) {
		return authz.Deny("Only the owner can update a related item"), nil
	}
	if data.Flag(authz.KeyFeatured) {
		return authz.Deny("You must be a sysadmin to change a related item's featured field."), nil
	}
	return authz.Allow(), nil
}

// RelatedDelete allows the owner, and anyone who may update the dataset the
// item belongs to.
func RelatedDelete(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	related, err := resolve.Related(ctx, c, data)
	if err != nil {
		return authz.Result{}, err
	}

	if related.DatasetID != "" {
		e, err := resolve.ByRef(ctx, c, model.KindPackage, related.DatasetID)
		if err != nil {
			return authz.Result{}, err
		}
		res, err := AuthorizePackageUpdate(ctx, c, e.(*model.Package), nil)
		if err != nil {
			return authz.Result{}, err
		}
		if res.Success {
			return authz.Allow(), nil
		}
	}

	if !owns(c, related) {
		return authz.Deny("Only the owner can delete a related item"), nil
	}
	return authz.Allow(), nil
}
