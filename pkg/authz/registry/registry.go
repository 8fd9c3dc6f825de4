//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package registry assembles the predicate of every action for one profile.
//
// A profile is an ordered list of [Table] values; a later table replaces the
// predicates of an earlier one action by action. Extension chains are then
// wrapped around the result, the first registered extension outermost. Every
// predicate finally goes through two shared wrappers: the site-wide
// sysadmin override and the anonymous-access gate.
//
// A registry is immutable once built and safe for concurrent use.
package registry

import (
	"context"
	"fmt"

	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/common"
)

var logger = logging.GetLogger("portalauthz.registry")

const agent = "registry"

// Table maps actions to their base predicates.
type Table map[authz.Action]authz.Predicate

// Chain wraps the next predicate of an action. It may call next or decide on
// its own.
type Chain func(next authz.Predicate) authz.Predicate

// Extension contributes chains to a registry.
type Extension interface {
	Name() string
	Chains() map[authz.Action]Chain
}

// Registry resolves an action to its assembled predicate.
type Registry struct {
	profile    string
	predicates map[authz.Action]authz.Predicate
}

func validate(action authz.Action, source string) error {
	if !action.Known() {
		return common.NewErrorf(common.UnknownAction, "%s: unknown action %q", source, action)
	}
	return nil
}

// New builds the registry of profile from tables and exts. Unknown actions,
// in any table or extension, are rejected. Known actions that no table
// defines are denied.
func New(profile string, tables []Table, exts ...Extension) (*Registry, error) {
	base := make(map[authz.Action]authz.Predicate)
	for i, t := range tables {
		for action, p := range t {
			if err := validate(action, fmt.Sprintf("profile %s table %d", profile, i)); err != nil {
				return nil, err
			}
			if p == nil {
				return nil, common.NewErrorf(common.InvalidParam, "profile %s: nil predicate for %s", profile, action)
			}
			base[action] = p
		}
	}

	for _, ext := range exts {
		for action := range ext.Chains() {
			if err := validate(action, "extension "+ext.Name()); err != nil {
				return nil, err
			}
		}
	}

	r := &Registry{profile: profile, predicates: make(map[authz.Action]authz.Predicate)}
	for _, action := range authz.Actions() {
		p, ok := base[action]
		if !ok {
			p = unsupported(profile, action)
		}

		// innermost first, so the first extension ends up outermost
		for i := len(exts) - 1; i >= 0; i-- {
			if chain, ok := exts[i].Chains()[action]; ok && chain != nil {
				logger.Debugf(agent, "New", "%s: chaining %s from %s", profile, action, exts[i].Name())
				p = chain(p)
			}
		}

		r.predicates[action] = sysadmin(anonymousGate(action, p))
	}

	logger.SysDebugf("registry %s: %d actions, %d extensions", profile, len(base), len(exts))
	return r, nil
}

// Profile returns the profile name.
func (r *Registry) Profile() string {
	return r.profile
}

// Lookup returns the predicate of action.
func (r *Registry) Lookup(action authz.Action) (authz.Predicate, bool) {
	p, ok := r.predicates[action]
	return p, ok
}

func unsupported(profile string, action authz.Action) authz.Predicate {
	return func(context.Context, *authz.Context, authz.DataDict) (authz.Result, error) {
		return authz.Denyf("%s is not supported by the %s profile", action, profile), nil
	}
}

// sysadmin grants every action to a site-wide administrator.
func sysadmin(next authz.Predicate) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		ok, err := c.IsSysadmin(ctx)
		if err != nil {
			return authz.Result{}, err
		}
		if ok {
			return authz.Allow(), nil
		}
		return next(ctx, c, data)
	}
}

func anonymousGate(action authz.Action, next authz.Predicate) authz.Predicate {
	if action.AllowAnonymous() {
		return next
	}
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		if !c.LoggedIn() {
			return authz.Denyf("%s requires an authenticated user", action), nil
		}
		return next(ctx, c, data)
	}
}

// StaticExtension is an [Extension] with a fixed chain map.
type StaticExtension struct {
	ID    string
	Wraps map[authz.Action]Chain
}

// Name returns ID.
func (e StaticExtension) Name() string { return e.ID }

// Chains returns Wraps.
func (e StaticExtension) Chains() map[authz.Action]Chain { return e.Wraps }
