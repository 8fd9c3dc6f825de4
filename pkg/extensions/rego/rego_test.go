//
//  Copyright © Manetu Inc. All rights reserved.
//

package rego

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/authz/registry"
	"github.com/manetu/portalauthz/pkg/common"
	"github.com/manetu/portalauthz/pkg/core/model"
	"github.com/manetu/portalauthz/pkg/core/model/memory"
	"github.com/manetu/portalauthz/pkg/core/opa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const query = "data.portal.authz.decision"

const policy = `
package portal.authz

default decision := "defer"

decision := {"effect": "deny", "msg": "Datasets are frozen"} if {
	input.action == "package_update"
	input.data.id == "frozen"
}

decision := "allow" if {
	input.action == "package_show"
	input.user.name in input.auxdata["auditors.yaml"].names
}
`

var alice = &model.User{ID: "u-alice", Name: "alice"}

func base(context.Context, *authz.Context, authz.DataDict) (authz.Result, error) {
	return authz.Deny("base"), nil
}

func newExtension(t *testing.T, opts ...Option) *Extension {
	t.Helper()
	e, err := New(opa.NewCompiler(), opa.Modules{"policy.rego": policy}, query, opts...)
	require.NoError(t, err)
	return e
}

func eval(t *testing.T, e *Extension, action authz.Action, user *model.User, data authz.DataDict) (authz.Result, error) {
	t.Helper()
	chain, ok := e.Chains()[action]
	require.True(t, ok, action)
	return chain(base)(context.Background(), &authz.Context{AuthUserObj: user}, data)
}

func TestDeny(t *testing.T) {
	e := newExtension(t)
	res, err := eval(t, e, authz.PackageUpdate, alice, authz.DataDict{"id": "frozen"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Datasets are frozen", res.Msg)
}

func TestDeferReachesNext(t *testing.T) {
	e := newExtension(t)
	res, err := eval(t, e, authz.PackageUpdate, alice, authz.DataDict{"id": "d1"})
	require.NoError(t, err)
	assert.Equal(t, "base", res.Msg)
}

func TestAllowWithAuxData(t *testing.T) {
	aux := map[string]interface{}{
		"auditors.yaml": map[string]interface{}{"names": []interface{}{"alice"}},
	}
	e := newExtension(t, WithAuxData(aux))

	res, err := eval(t, e, authz.PackageShow, alice, authz.DataDict{"id": "d2"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = eval(t, e, authz.PackageShow, nil, authz.DataDict{"id": "d2"})
	require.NoError(t, err)
	assert.Equal(t, "base", res.Msg, "anonymous users are not auditors")
}

func TestDataDictUntouched(t *testing.T) {
	e := newExtension(t, WithAuxData(map[string]interface{}{"k": "v"}))
	data := authz.DataDict{"id": "d1", "groups": []interface{}{"g1"}}
	_, err := eval(t, e, authz.PackageUpdate, alice, data)
	require.NoError(t, err)
	assert.Equal(t, authz.DataDict{"id": "d1", "groups": []interface{}{"g1"}}, data)
}

func TestWithActions(t *testing.T) {
	e := newExtension(t, WithActions(authz.PackageUpdate))
	chains := e.Chains()
	assert.Len(t, chains, 1)
	assert.Contains(t, chains, authz.PackageUpdate)
}

func TestUndefinedDecisionFails(t *testing.T) {
	e, err := New(opa.NewCompiler(), opa.Modules{"p.rego": "package portal.authz\n\ndecision := \"allow\" if false\n"}, query)
	require.NoError(t, err)

	_, err = eval(t, e, authz.PackageShow, alice, authz.DataDict{})
	assert.Equal(t, common.EvaluationError, common.Code(err))
}

func TestUnknownEffect(t *testing.T) {
	e, err := New(opa.NewCompiler(), opa.Modules{"p.rego": "package portal.authz\n\ndecision := \"maybe\"\n"}, query)
	require.NoError(t, err)

	_, err = eval(t, e, authz.PackageShow, alice, authz.DataDict{})
	assert.ErrorContains(t, err, "unknown effect")
}

func TestCompileError(t *testing.T) {
	_, err := New(opa.NewCompiler(), opa.Modules{"p.rego": "package portal.authz\n\ndecision := "}, query)
	assert.Error(t, err)

	_, err = New(opa.NewCompiler(), nil, query)
	assert.Equal(t, common.InvalidParam, common.Code(err))
}

func TestLoadModules(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "policy.rego"), []byte(policy), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy_test.rego"), []byte("package x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o600))

	modules, err := LoadModules(dir)
	require.NoError(t, err)
	assert.Len(t, modules, 1)
	assert.Contains(t, modules, filepath.Join(dir, "nested", "policy.rego"))

	e, err := NewFromPath(opa.NewCompiler(), dir, query)
	require.NoError(t, err)
	assert.Equal(t, Name, e.Name())

	_, err = LoadModules(filepath.Join(dir, "absent"))
	assert.Error(t, err)
}

func TestRegistryChain(t *testing.T) {
	store := memory.New(&memory.Fixture{
		Users: []model.User{*alice, {ID: "u-root", Name: "root"}},
		RoleAssignments: []model.RoleAssignment{
			{SubjectID: "u-root", ObjectKind: model.KindSystem, ObjectID: model.SystemID, Role: model.RoleAdmin},
		},
	})
	allow := func(context.Context, *authz.Context, authz.DataDict) (authz.Result, error) {
		return authz.Allow(), nil
	}

	r, err := registry.New("test", []registry.Table{{authz.PackageUpdate: allow}}, newExtension(t))
	require.NoError(t, err)
	p, _ := r.Lookup(authz.PackageUpdate)

	res, err := p(context.Background(), &authz.Context{Model: store, AuthUserObj: alice}, authz.DataDict{"id": "frozen"})
	require.NoError(t, err)
	assert.False(t, res.Success)

	root, err := store.GetUser(context.Background(), "root")
	require.NoError(t, err)
	res, err = p(context.Background(), &authz.Context{Model: store, AuthUserObj: root}, authz.DataDict{"id": "frozen"})
	require.NoError(t, err)
	assert.True(t, res.Success, "sysadmins bypass site policy")
}
