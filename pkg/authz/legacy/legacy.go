//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package legacy implements the role-based authorizer of the older portal
// permission model: roles assigned to users, authorization groups and the
// pseudo users "visitor" and "logged_in" on individual objects, plus a
// role-action table saying which role may perform which action.
//
// The precedence applied to a loaded object by [Authorizer.IsAuthorized] and
// the filter produced by [Authorizer.AuthorizedQuery] both come from
// [model.RoleRule].
package legacy

import (
	"context"

	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/core/model"
)

var logger = logging.GetLogger("portalauthz.legacy")

// Extension may grant an action before the built-in rules are consulted.
// Returning false defers to the next extension and then to the rules.
type Extension interface {
	IsAuthorized(ctx context.Context, username string, action model.Action, obj model.Entity) (bool, error)
}

// ExtensionFunc adapts a function to [Extension].
type ExtensionFunc func(ctx context.Context, username string, action model.Action, obj model.Entity) (bool, error)

// IsAuthorized calls f.
func (f ExtensionFunc) IsAuthorized(ctx context.Context, username string, action model.Action, obj model.Entity) (bool, error) {
	return f(ctx, username, action, obj)
}

// Blacklister identifies users barred from every non-read action.
type Blacklister interface {
	IsBlacklisted(username string) bool
}

// ListBlacklister bars a fixed set of names, usually remote addresses.
type ListBlacklister map[string]bool

// NewBlacklister builds a ListBlacklister from entries.
func NewBlacklister(entries ...string) ListBlacklister {
	b := make(ListBlacklister, len(entries))
	for _, e := range entries {
		b[e] = true
	}
	return b
}

// IsBlacklisted reports whether username is listed.
func (b ListBlacklister) IsBlacklisted(username string) bool {
	return b[username]
}

// Option configures an [Authorizer].
type Option func(a *Authorizer)

// WithExtensions appends extensions, consulted in order.
func WithExtensions(exts ...Extension) Option {
	return func(a *Authorizer) {
		a.extensions = append(a.extensions, exts...)
	}
}

// WithBlacklister replaces the blacklister. The default bars nobody.
func WithBlacklister(b Blacklister) Option {
	return func(a *Authorizer) {
		a.blacklister = b
	}
}

// Authorizer evaluates the role model against a store.
type Authorizer struct {
	store       model.Store
	extensions  []Extension
	blacklister Blacklister
}

// New creates an Authorizer reading roles from store.
func New(store model.Store, opts ...Option) *Authorizer {
	a := &Authorizer{store: store, blacklister: ListBlacklister{}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IsAuthorized decides whether username may perform action on obj:
//
//  1. any extension granting the action wins;
//  2. sysadmins, and requests without an object, are granted;
//  3. blacklisted users are denied every action but read;
//  4. users holding no role on obj are denied;
//  5. otherwise [model.RoleRule] decides over the held roles.
func (a *Authorizer) IsAuthorized(ctx context.Context, username string, action model.Action, obj model.Entity) (bool, error) {
	for _, ext := range a.extensions {
		ok, err := ext.IsAuthorized(ctx, username, action, obj)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	sysadmin, err := a.IsSysadmin(ctx, username)
	if err != nil {
		return false, err
	}
	if sysadmin || obj == nil {
		return true, nil
	}

	if action != model.ActionRead && a.blacklister.IsBlacklisted(username) {
		logger.Infof(username, string(action), "denied: blacklisted")
		return false, nil
	}

	roles, err := a.GetRoles(ctx, username, obj)
	if err != nil {
		return false, err
	}
	if len(roles) == 0 {
		return false, nil
	}

	ok, err := model.Permits(ctx, a.store, roles, obj, action)
	if err != nil {
		return false, err
	}
	logger.Debugf(username, string(action), "roles %v on %s/%s: %t", roles, obj.EntityKind(), obj.EntityID(), ok)
	return ok, nil
}

func (a *Authorizer) user(ctx context.Context, username string) (*model.User, error) {
	if username == "" {
		return nil, nil
	}
	return a.store.GetUser(ctx, username)
}

// IsSysadmin reports whether username holds admin on the System object.
func (a *Authorizer) IsSysadmin(ctx context.Context, username string) (bool, error) {
	u, err := a.user(ctx, username)
	if err != nil || u == nil {
		return false, err
	}
	return model.IsSysadmin(ctx, a.store, u.ID)
}

// subjects lists the role holders acting for username: the visitor pseudo
// user always, and for a known user their authorization groups, the user
// and the logged_in pseudo user.
func (a *Authorizer) subjects(ctx context.Context, username string) ([]string, error) {
	subjects := []string{model.PseudoUserVisitor}

	u, err := a.user(ctx, username)
	if err != nil || u == nil {
		return subjects, err
	}

	groups, err := a.store.AuthorizationGroups(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	subjects = append(subjects, groups...)
	return append(subjects, u.ID, model.PseudoUserLoggedIn), nil
}

// GetRoles returns the distinct roles held on obj by the subjects acting for
// username.
func (a *Authorizer) GetRoles(ctx context.Context, username string, obj model.Entity) ([]model.Role, error) {
	subjects, err := a.subjects(ctx, username)
	if err != nil {
		return nil, err
	}
	assignments, err := a.store.RoleAssignments(ctx, obj, subjects)
	if err != nil {
		return nil, err
	}

	seen := make(map[model.Role]bool)
	var roles []model.Role
	for _, as := range assignments {
		if !seen[as.Role] {
			seen[as.Role] = true
			roles = append(roles, as.Role)
		}
	}
	return roles, nil
}

// GetAdmins returns the subjects holding admin directly on obj.
func (a *Authorizer) GetAdmins(ctx context.Context, obj model.Entity) ([]string, error) {
	assignments, err := a.store.RoleAssignments(ctx, obj, nil)
	if err != nil {
		return nil, err
	}
	var admins []string
	for _, as := range assignments {
		if as.Role == model.RoleAdmin {
			admins = append(admins, as.SubjectID)
		}
	}
	return admins, nil
}

// AuthorizedQuery builds the filter selecting every object of kind on which
// username may perform action.
func (a *Authorizer) AuthorizedQuery(ctx context.Context, username string, kind model.Kind, action model.Action) (model.RoleQuery, error) {
	q := model.RoleQuery{Kind: kind, Action: action}

	sysadmin, err := a.IsSysadmin(ctx, username)
	if err != nil {
		return q, err
	}
	if sysadmin {
		q.Unrestricted = true
		return q, nil
	}

	q.SubjectIDs, err = a.subjects(ctx, username)
	return q, err
}

// AuthorizedObjectIDs runs AuthorizedQuery against the store.
func (a *Authorizer) AuthorizedObjectIDs(ctx context.Context, username string, kind model.Kind, action model.Action) ([]string, error) {
	q, err := a.AuthorizedQuery(ctx, username, kind, action)
	if err != nil {
		return nil, err
	}
	return a.store.AuthorizedObjectIDs(ctx, q)
}
