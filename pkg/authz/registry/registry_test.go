//
//  Copyright © Manetu Inc. All rights reserved.
//

package registry_test

import (
	"context"
	"testing"

	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/authz/registry"
	"github.com/manetu/portalauthz/pkg/common"
	"github.com/manetu/portalauthz/pkg/core/model"
	"github.com/manetu/portalauthz/pkg/core/model/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin = &model.User{ID: "u-admin", Name: "admin"}
	plain = &model.User{ID: "u-plain", Name: "plain"}
)

func store() *memory.Store {
	return memory.New(&memory.Fixture{
		Users: []model.User{*admin, *plain},
		RoleAssignments: []model.RoleAssignment{
			{SubjectID: admin.ID, ObjectKind: model.KindSystem, ObjectID: model.SystemID, Role: model.RoleAdmin},
		},
	})
}

func deny(context.Context, *authz.Context, authz.DataDict) (authz.Result, error) {
	return authz.Deny("base denied"), nil
}

func allow(context.Context, *authz.Context, authz.DataDict) (authz.Result, error) {
	return authz.Allow(), nil
}

func denyAll() registry.Table {
	t := registry.Table{}
	for _, a := range authz.Actions() {
		t[a] = deny
	}
	return t
}

func eval(t *testing.T, r *registry.Registry, action authz.Action, user *model.User) authz.Result {
	t.Helper()
	p, ok := r.Lookup(action)
	require.True(t, ok, action)
	res, err := p(context.Background(), &authz.Context{Model: store(), AuthUserObj: user}, authz.DataDict{})
	require.NoError(t, err)
	return res
}

func TestSysadminOverridesEveryAction(t *testing.T) {
	r, err := registry.New("test", []registry.Table{denyAll()})
	require.NoError(t, err)

	for _, action := range authz.Actions() {
		assert.True(t, eval(t, r, action, admin).Success, action)
		assert.False(t, eval(t, r, action, plain).Success, action)
	}
}

func TestRejectsUnknownActions(t *testing.T) {
	_, err := registry.New("test", []registry.Table{{"package_frobnicate": allow}})
	require.Error(t, err)
	assert.Equal(t, common.UnknownAction, common.Code(err))

	ext := registry.StaticExtension{ID: "bad", Wraps: map[authz.Action]registry.Chain{
		"nope": func(next authz.Predicate) authz.Predicate { return next },
	}}
	_, err = registry.New("test", nil, ext)
	require.Error(t, err)
	assert.Equal(t, common.UnknownAction, common.Code(err))
}

func TestRejectsNilPredicate(t *testing.T) {
	_, err := registry.New("test", []registry.Table{{authz.PackageShow: nil}})
	assert.Error(t, err)
}

func TestLaterTablesOverride(t *testing.T) {
	r, err := registry.New("test", []registry.Table{denyAll(), {authz.PackageUpdate: allow}})
	require.NoError(t, err)

	assert.True(t, eval(t, r, authz.PackageUpdate, plain).Success)
	assert.False(t, eval(t, r, authz.PackageDelete, plain).Success)
	assert.Equal(t, "test", r.Profile())
}

func TestUndefinedActionsAreDenied(t *testing.T) {
	r, err := registry.New("empty", nil)
	require.NoError(t, err)

	res := eval(t, r, authz.ResourceCreate, plain)
	assert.False(t, res.Success)
	assert.Equal(t, "resource_create is not supported by the empty profile", res.Msg)

	_, ok := r.Lookup("missing")
	assert.False(t, ok)
}

func TestAnonymousGate(t *testing.T) {
	r, err := registry.New("test", []registry.Table{{authz.PackageUpdate: allow, authz.PackageShow: allow}})
	require.NoError(t, err)

	res := eval(t, r, authz.PackageUpdate, nil)
	assert.False(t, res.Success)
	assert.Equal(t, "package_update requires an authenticated user", res.Msg)

	assert.True(t, eval(t, r, authz.PackageShow, nil).Success, "package_show allows anonymous access")
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) registry.Chain {
		return func(next authz.Predicate) authz.Predicate {
			return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
				order = append(order, name)
				return next(ctx, c, data)
			}
		}
	}
	first := registry.StaticExtension{ID: "first", Wraps: map[authz.Action]registry.Chain{authz.PackageShow: tag("first")}}
	second := registry.StaticExtension{ID: "second", Wraps: map[authz.Action]registry.Chain{authz.PackageShow: tag("second")}}

	r, err := registry.New("test", []registry.Table{{authz.PackageShow: allow}}, first, second)
	require.NoError(t, err)

	assert.True(t, eval(t, r, authz.PackageShow, plain).Success)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestChainShortCircuits(t *testing.T) {
	override := registry.StaticExtension{ID: "open", Wraps: map[authz.Action]registry.Chain{
		authz.PackageDelete: func(authz.Predicate) authz.Predicate { return allow },
	}}

	r, err := registry.New("test", []registry.Table{denyAll()}, override)
	require.NoError(t, err)

	assert.True(t, eval(t, r, authz.PackageDelete, plain).Success)
	assert.False(t, eval(t, r, authz.PackageDelete, nil).Success, "the anonymous gate still applies")
}
