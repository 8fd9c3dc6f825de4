//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package resolve finds the object an action targets. Objects supplied on
// the Context win, then the per-request cache, then the store. An object that
// cannot be found is a NOT_FOUND error, never a denial.
package resolve

import (
	"context"

	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/common"
	"github.com/manetu/portalauthz/pkg/core/model"
)

var notFoundMessages = map[model.Kind]string{
	model.KindPackage:      "No package found for this resource, cannot check auth.",
	model.KindResource:     "No resource found, cannot check auth.",
	model.KindGroup:        "No group found, cannot check auth.",
	model.KindOrganization: "No organization found, cannot check auth.",
	model.KindRelated:      "No related item found, cannot check auth.",
	model.KindUser:         "No user found, cannot check auth.",
	model.KindRevision:     "No revision found, cannot check auth.",
}

func notFound(kind model.Kind) error {
	msg, ok := notFoundMessages[kind]
	if !ok {
		msg = "No " + string(kind) + " found, cannot check auth."
	}
	return common.NewError(common.NotFound, msg)
}

func override(c *authz.Context, kind model.Kind) model.Entity {
	switch kind {
	case model.KindPackage:
		if c.Package != nil {
			return c.Package
		}
	case model.KindResource:
		if c.Resource != nil {
			return c.Resource
		}
	case model.KindGroup, model.KindOrganization:
		if c.Group != nil {
			return c.Group
		}
	case model.KindUser:
		if c.UserObj != nil {
			return c.UserObj
		}
	case model.KindRelated:
		if c.Related != nil {
			return c.Related
		}
	}
	return nil
}

// Object resolves the entity of kind identified by data["id"].
func Object(ctx context.Context, c *authz.Context, data authz.DataDict, kind model.Kind) (model.Entity, error) {
	if e := override(c, kind); e != nil {
		return e, nil
	}
	id, ok := data.String(authz.KeyID)
	if !ok {
		return nil, notFound(kind)
	}
	return ByRef(ctx, c, kind, id)
}

// ByRef resolves the entity of kind by id or name, ignoring Context
// overrides.
func ByRef(ctx context.Context, c *authz.Context, kind model.Kind, ref string) (model.Entity, error) {
	if ref == "" {
		return nil, notFound(kind)
	}
	if e, ok := c.Lookup(kind, ref); ok {
		return e, nil
	}
	e, err := model.Get(ctx, c.Model, kind, ref)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, notFound(kind)
	}
	c.Remember(kind, ref, e)
	return e, nil
}

// Package resolves the target package.
func Package(ctx context.Context, c *authz.Context, data authz.DataDict) (*model.Package, error) {
	e, err := Object(ctx, c, data, model.KindPackage)
	if err != nil {
		return nil, err
	}
	return e.(*model.Package), nil
}

// Resource resolves the target resource.
func Resource(ctx context.Context, c *authz.Context, data authz.DataDict) (*model.Resource, error) {
	e, err := Object(ctx, c, data, model.KindResource)
	if err != nil {
		return nil, err
	}
	return e.(*model.Resource), nil
}

// Group resolves the target group or organization.
func Group(ctx context.Context, c *authz.Context, data authz.DataDict) (*model.Group, error) {
	e, err := Object(ctx, c, data, model.KindGroup)
	if err != nil {
		return nil, err
	}
	return e.(*model.Group), nil
}

// Organization resolves the target organization. The lookup shares the
// group table; only the not-found message differs.
func Organization(ctx context.Context, c *authz.Context, data authz.DataDict) (*model.Group, error) {
	e, err := Object(ctx, c, data, model.KindOrganization)
	if err != nil {
		return nil, err
	}
	return e.(*model.Group), nil
}

// Related resolves the target related item.
func Related(ctx context.Context, c *authz.Context, data authz.DataDict) (*model.Related, error) {
	e, err := Object(ctx, c, data, model.KindRelated)
	if err != nil {
		return nil, err
	}
	return e.(*model.Related), nil
}

// User resolves the target user (not the acting user).
func User(ctx context.Context, c *authz.Context, data authz.DataDict) (*model.User, error) {
	e, err := Object(ctx, c, data, model.KindUser)
	if err != nil {
		return nil, err
	}
	return e.(*model.User), nil
}

// Revision resolves the target revision.
func Revision(ctx context.Context, c *authz.Context, data authz.DataDict) (*model.Revision, error) {
	e, err := Object(ctx, c, data, model.KindRevision)
	if err != nil {
		return nil, err
	}
	return e.(*model.Revision), nil
}

// ActingUser resolves c.AuthUserObj from c.User when it is unset. An
// anonymous or unknown user leaves it nil.
func ActingUser(ctx context.Context, c *authz.Context) (*model.User, error) {
	if c.AuthUserObj != nil || c.User == "" {
		return c.AuthUserObj, nil
	}
	if e, ok := c.Lookup(model.KindUser, c.User); ok {
		c.AuthUserObj = e.(*model.User)
		return c.AuthUserObj, nil
	}
	u, err := c.Model.GetUser(ctx, c.User)
	if err != nil {
		return nil, err
	}
	if u != nil {
		c.Remember(model.KindUser, c.User, u)
		c.AuthUserObj = u
	}
	return u, nil
}
