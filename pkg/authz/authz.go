//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package authz defines the request-scoped types shared by every
// authorization predicate: the evaluation [Context], the action parameters
// ([DataDict]), the decision ([Result]) and the [Predicate] signature.
//
// A Context is built fresh for every CheckAccess call and must not be shared
// between goroutines. Entities resolved while evaluating a request are
// cached on the Context keyed by kind and reference, so repeated lookups of
// the same object during one decision hit the store once.
package authz

import (
	"context"
	"fmt"

	"github.com/manetu/portalauthz/pkg/core/config"
	"github.com/manetu/portalauthz/pkg/core/model"
)

// Result is the outcome of a predicate. Msg is always set when Success is
// false.
type Result struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg,omitempty"`
}

// Allow is the successful Result.
func Allow() Result {
	return Result{Success: true}
}

// Deny returns a failed Result carrying msg.
func Deny(msg string) Result {
	if msg == "" {
		msg = "not authorized"
	}
	return Result{Msg: msg}
}

// Denyf returns a failed Result with a formatted message.
func Denyf(format string, args ...interface{}) Result {
	return Deny(fmt.Sprintf(format, args...))
}

// Predicate decides one action. Predicates return errors only for missing
// objects (NOT_FOUND) and infrastructure failures; a denial is a Result.
type Predicate func(ctx context.Context, c *Context, data DataDict) (Result, error)

type cacheKey struct {
	kind model.Kind
	ref  string
}

// Context carries the request-scoped inputs of a decision.
type Context struct {
	// User is the name of the acting user; empty for anonymous requests.
	User string
	// Model is the entity store.
	Model model.Store
	// Config is the permission snapshot.
	Config *config.Permissions
	// IgnoreAuth skips authorization entirely. Reserved for trusted callers.
	IgnoreAuth bool
	// AuthUserObj is the resolved acting user. It is filled from User when
	// left nil.
	AuthUserObj *model.User
	// APIVersion is non-zero for calls arriving through the action API.
	APIVersion int

	// Objects already loaded by the caller take precedence over the store.
	Package  *model.Package
	Resource *model.Resource
	Group    *model.Group
	UserObj  *model.User
	Related  *model.Related

	cache    map[cacheKey]model.Entity
	sysadmin *bool
}

// Lookup returns the cached entity for (kind, ref).
func (c *Context) Lookup(kind model.Kind, ref string) (model.Entity, bool) {
	e, ok := c.cache[cacheKey{kind, ref}]
	return e, ok
}

// Remember caches e under (kind, ref).
func (c *Context) Remember(kind model.Kind, ref string, e model.Entity) {
	if c.cache == nil {
		c.cache = make(map[cacheKey]model.Entity)
	}
	c.cache[cacheKey{kind, ref}] = e
}

// LoggedIn reports whether an acting user has been resolved.
func (c *Context) LoggedIn() bool {
	return c.AuthUserObj != nil
}

// UserID returns the id of the acting user, or "" when anonymous.
func (c *Context) UserID() string {
	if c.AuthUserObj == nil {
		return ""
	}
	return c.AuthUserObj.ID
}

// IsAPI reports whether the request arrived through the action API.
func (c *Context) IsAPI() bool {
	return c.APIVersion != 0
}

// Permissions returns the snapshot, falling back to the defaults.
func (c *Context) Permissions() *config.Permissions {
	if c.Config == nil {
		c.Config = config.DefaultPermissions()
	}
	return c.Config
}

// IsSysadmin reports whether the acting user holds the site-wide admin
// role. The answer is computed once per Context.
func (c *Context) IsSysadmin(ctx context.Context) (bool, error) {
	if c.sysadmin != nil {
		return *c.sysadmin, nil
	}
	if c.AuthUserObj == nil {
		return false, nil
	}
	ok, err := model.IsSysadmin(ctx, c.Model, c.AuthUserObj.ID)
	if err != nil {
		return false, err
	}
	c.sysadmin = &ok
	return ok, nil
}
