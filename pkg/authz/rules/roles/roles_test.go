//
//  Copyright © Manetu Inc. All rights reserved.
//

package roles_test

import (
	"context"
	"testing"

	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/authz/legacy"
	"github.com/manetu/portalauthz/pkg/authz/registry"
	"github.com/manetu/portalauthz/pkg/authz/resolve"
	"github.com/manetu/portalauthz/pkg/authz/rules/roles"
	"github.com/manetu/portalauthz/pkg/authz/rules/standard"
	"github.com/manetu/portalauthz/pkg/common"
	"github.com/manetu/portalauthz/pkg/core/model"
	"github.com/manetu/portalauthz/pkg/core/model/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const badIP = "198.51.100.4"

func fixture() *memory.Fixture {
	return &memory.Fixture{
		Users: []model.User{
			{ID: "u-testadmin", Name: "testadmin"},
			{ID: "u-blah", Name: "blah"},
			{ID: "u-ed", Name: "ed"},
		},
		Packages: []model.Package{
			{ID: "p-open", Name: "open", State: model.StateActive},
			{ID: "p-closed", Name: "closed", State: model.StateActive},
			{ID: "p-gone", Name: "gone", State: model.StateDeleted},
		},
		Groups: []model.Group{
			{ID: "g-edited", Name: "edited", State: model.StateActive},
			{ID: "g-locked", Name: "locked", State: model.StateActive},
		},
		Resources: []model.Resource{{ID: "r-open", PackageID: "p-open"}},
		Revisions: []model.Revision{{ID: "rev-1", State: model.StateActive}},
		RoleAssignments: []model.RoleAssignment{
			{SubjectID: "u-testadmin", ObjectKind: model.KindSystem, ObjectID: model.SystemID, Role: model.RoleAdmin},
			{SubjectID: model.PseudoUserVisitor, ObjectKind: model.KindSystem, ObjectID: model.SystemID, Role: model.RoleEditor},
			{SubjectID: model.PseudoUserVisitor, ObjectKind: model.KindPackage, ObjectID: "p-open", Role: model.RoleReader},
			{SubjectID: "u-ed", ObjectKind: model.KindPackage, ObjectID: "p-open", Role: model.RoleEditor},
			{SubjectID: "u-ed", ObjectKind: model.KindPackage, ObjectID: "p-gone", Role: model.RoleEditor},
			{SubjectID: "u-ed", ObjectKind: model.KindGroup, ObjectID: "g-edited", Role: model.RoleEditor},
		},
	}
}

func newRegistry(t *testing.T, opts ...legacy.Option) *registry.Registry {
	t.Helper()
	r, err := registry.New(roles.Profile, []registry.Table{standard.Table(), roles.Table(opts...)})
	require.NoError(t, err)
	return r
}

func run(t *testing.T, r *registry.Registry, action authz.Action, user string, data authz.DataDict) (authz.Result, error) {
	t.Helper()
	c := &authz.Context{User: user, Model: memory.New(fixture())}
	_, err := resolve.ActingUser(context.Background(), c)
	require.NoError(t, err)

	p, ok := r.Lookup(action)
	require.True(t, ok)
	return p(context.Background(), c, data)
}

func allowed(t *testing.T, r *registry.Registry, action authz.Action, user string, data authz.DataDict) bool {
	t.Helper()
	res, err := run(t, r, action, user, data)
	require.NoError(t, err)
	return res.Success
}

func id(v string) authz.DataDict {
	return authz.DataDict{authz.KeyID: v}
}

func TestRevisionPurge(t *testing.T) {
	r := newRegistry(t)
	assert.True(t, allowed(t, r, authz.RevisionPurge, "testadmin", id("rev-1")))
	assert.False(t, allowed(t, r, authz.RevisionPurge, "blah", id("rev-1")))
	assert.False(t, allowed(t, r, authz.RevisionChangeState, "ed", id("rev-1")))
}

func TestPackageRoles(t *testing.T) {
	r := newRegistry(t)

	assert.True(t, allowed(t, r, authz.PackageShow, "", id("open")), "visitors read open")
	assert.False(t, allowed(t, r, authz.PackageShow, "", id("closed")))
	assert.True(t, allowed(t, r, authz.ResourceShow, "blah", id("r-open")))

	assert.True(t, allowed(t, r, authz.PackageUpdate, "ed", id("open")))
	assert.False(t, allowed(t, r, authz.PackageUpdate, "blah", id("open")), "readers cannot edit")
	assert.False(t, allowed(t, r, authz.PackageDelete, "ed", id("open")), "editors lack change-state")

	res, err := run(t, r, authz.PackageUpdate, "ed", id("gone"))
	require.NoError(t, err)
	assert.False(t, res.Success, "deleted packages are locked")
	assert.Equal(t, "User ed not authorized to edit package p-gone", res.Msg)
}

func TestPackageGroupAuth(t *testing.T) {
	r := newRegistry(t)

	assert.True(t, allowed(t, r, authz.PackageUpdate, "ed", id("open").With(authz.KeyGroups, []string{"edited"})))

	res, err := run(t, r, authz.PackageUpdate, "ed", id("open").With(authz.KeyGroups, []string{"edited", "locked"}))
	require.NoError(t, err)
	assert.Equal(t, "User ed not authorized to edit these groups", res.Msg)

	_, err = run(t, r, authz.PackageCreate, "ed", authz.DataDict{authz.KeyGroups: []string{"missing"}})
	assert.True(t, common.IsNotFound(err))
}

func TestSystemActions(t *testing.T) {
	r := newRegistry(t)

	assert.True(t, allowed(t, r, authz.PackageCreate, "", authz.DataDict{}), "visitors hold editor on the system")
	assert.True(t, allowed(t, r, authz.GroupCreate, "blah", authz.DataDict{}))
	assert.True(t, allowed(t, r, authz.UserCreate, "", authz.DataDict{}))
	assert.True(t, allowed(t, r, authz.UserList, "", authz.DataDict{}))
}

func TestBlacklistedAddress(t *testing.T) {
	r := newRegistry(t, legacy.WithBlacklister(legacy.NewBlacklister(badIP)))

	res, err := run(t, r, authz.PackageCreate, badIP, authz.DataDict{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "User "+badIP+" not authorized to create packages", res.Msg)

	assert.True(t, allowed(t, r, authz.PackageShow, badIP, id("open")), "reads are not blacklisted")
	assert.True(t, allowed(t, r, authz.PackageCreate, "203.0.113.99", authz.DataDict{}))
}

func TestGroupRoles(t *testing.T) {
	r := newRegistry(t)
	assert.True(t, allowed(t, r, authz.GroupUpdate, "ed", id("edited")))
	assert.False(t, allowed(t, r, authz.GroupUpdate, "ed", id("locked")))
	assert.False(t, allowed(t, r, authz.GroupDelete, "ed", id("edited")))

	_, err := run(t, r, authz.GroupUpdate, "ed", id("missing"))
	assert.True(t, common.IsNotFound(err))
}

func TestExtensionGrants(t *testing.T) {
	ext := legacy.ExtensionFunc(func(_ context.Context, username string, action model.Action, _ model.Entity) (bool, error) {
		return username == "blah" && action == model.ActionChangeState, nil
	})
	r := newRegistry(t, legacy.WithExtensions(ext))

	assert.True(t, allowed(t, r, authz.PackageDelete, "blah", id("closed")))
	assert.False(t, allowed(t, r, authz.PackageDelete, "ed", id("closed")))
}

func TestDefaultsRemainForUnmappedActions(t *testing.T) {
	r := newRegistry(t)
	res, err := run(t, r, authz.UserUpdate, "blah", id("blah"))
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.True(t, allowed(t, r, authz.RelatedCreate, "blah", authz.DataDict{}), "related_create keeps its default predicate")
}
