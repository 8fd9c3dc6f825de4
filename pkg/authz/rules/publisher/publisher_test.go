//
//  Copyright © Manetu Inc. All rights reserved.
//

package publisher_test

import (
	"context"
	"testing"

	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/authz/registry"
	"github.com/manetu/portalauthz/pkg/authz/resolve"
	"github.com/manetu/portalauthz/pkg/authz/rules/publisher"
	"github.com/manetu/portalauthz/pkg/authz/rules/standard"
	"github.com/manetu/portalauthz/pkg/common"
	"github.com/manetu/portalauthz/pkg/core/model"
	"github.com/manetu/portalauthz/pkg/core/model/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture() *memory.Fixture {
	return &memory.Fixture{
		Users: []model.User{
			{ID: "u-testadmin", Name: "testadmin", State: model.StateActive},
			{ID: "u-pat", Name: "pat", State: model.StateActive},
			{ID: "u-quinn", Name: "quinn", State: model.StateActive},
			{ID: "u-nobody", Name: "nobody", State: model.StateActive},
		},
		Groups: []model.Group{
			{ID: "g-pub1", Name: "pub1", Type: model.GroupTypeOrg, IsOrganization: true, State: model.StateActive},
			{ID: "g-pub2", Name: "pub2", Type: model.GroupTypeOrg, IsOrganization: true, State: model.StateActive},
			{ID: "g-plain", Name: "plain", Type: model.GroupTypeGroup, State: model.StateActive},
		},
		Packages: []model.Package{
			{ID: "p-one", Name: "one", OwnerOrg: "g-pub1", State: model.StateActive},
			{ID: "p-two", Name: "two", OwnerOrg: "g-pub2", Private: true, State: model.StateActive},
			{ID: "p-loose", Name: "loose", Private: true, State: model.StateActive},
			{ID: "p-linked", Name: "linked", Private: true, State: model.StateActive},
		},
		Members: []model.Member{
			{GroupID: "g-pub1", UserID: "u-pat", Capacity: model.CapacityAdmin, State: model.StateActive},
			{GroupID: "g-pub2", UserID: "u-quinn", Capacity: model.CapacityEditor, State: model.StateActive},
			{GroupID: "g-plain", UserID: "u-nobody", Capacity: model.CapacityAdmin, State: model.StateActive},
		},
		PackageGroups: []memory.PackageGroup{
			{PackageID: "p-linked", GroupID: "g-pub2"},
			{PackageID: "p-loose", GroupID: "g-plain"},
		},
		RoleAssignments: []model.RoleAssignment{
			{SubjectID: "u-testadmin", ObjectKind: model.KindSystem, ObjectID: model.SystemID, Role: model.RoleAdmin},
		},
	}
}

func run(t *testing.T, action authz.Action, user string, data authz.DataDict) (authz.Result, error) {
	t.Helper()
	r, err := registry.New(publisher.Profile, []registry.Table{standard.Table(), publisher.Table()})
	require.NoError(t, err)

	c := &authz.Context{User: user, Model: memory.New(fixture())}
	_, err = resolve.ActingUser(context.Background(), c)
	require.NoError(t, err)

	p, ok := r.Lookup(action)
	require.True(t, ok)
	return p(context.Background(), c, data)
}

func allowed(t *testing.T, action authz.Action, user string, data authz.DataDict) bool {
	t.Helper()
	res, err := run(t, action, user, data)
	require.NoError(t, err)
	return res.Success
}

func id(v string) authz.DataDict {
	return authz.DataDict{authz.KeyID: v}
}

func TestGroupsIntersect(t *testing.T) {
	assert.True(t, publisher.GroupsIntersect([]string{"a", "b"}, []string{"c", "b"}))
	assert.False(t, publisher.GroupsIntersect([]string{"a"}, []string{"b"}))
	assert.False(t, publisher.GroupsIntersect(nil, nil), "empty sets never intersect")
	assert.False(t, publisher.GroupsIntersect([]string{"a"}, nil))
}

func TestPackageCreate(t *testing.T) {
	assert.True(t, allowed(t, authz.PackageCreate, "pat", authz.DataDict{}))
	assert.False(t, allowed(t, authz.PackageCreate, "nobody", authz.DataDict{}), "plain groups are not publishers")
	assert.False(t, allowed(t, authz.PackageCreate, "", authz.DataDict{}))
	assert.True(t, allowed(t, authz.PackageCreate, "testadmin", authz.DataDict{}))
}

func TestPackageChange(t *testing.T) {
	assert.True(t, allowed(t, authz.PackageUpdate, "pat", id("one")))
	assert.False(t, allowed(t, authz.PackageUpdate, "quinn", id("one")))
	assert.True(t, allowed(t, authz.PackageUpdate, "quinn", id("linked")), "publisher listing counts")
	assert.True(t, allowed(t, authz.PackagePatch, "quinn", id("two")))

	res, err := run(t, authz.PackageDelete, "pat", id("two"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "User pat not authorized to delete packages in these groups", res.Msg)
}

func TestNoGroupsOnEitherSide(t *testing.T) {
	// nobody belongs to no publisher and loose is listed by none.
	assert.False(t, allowed(t, authz.PackageUpdate, "nobody", id("loose")))
	assert.False(t, allowed(t, authz.PackageShow, "nobody", id("loose")))
	assert.False(t, allowed(t, authz.PackageDelete, "", id("loose")))
}

func TestPackageShow(t *testing.T) {
	assert.True(t, allowed(t, authz.PackageShow, "", id("one")), "active public datasets are open")
	assert.False(t, allowed(t, authz.PackageShow, "pat", id("two")))
	assert.True(t, allowed(t, authz.PackageShow, "quinn", id("two")))
	assert.True(t, allowed(t, authz.PackageShow, "testadmin", id("loose")))
}

func TestGroupCreate(t *testing.T) {
	assert.True(t, allowed(t, authz.GroupCreate, "nobody", authz.DataDict{}), "no parent named")
	assert.False(t, allowed(t, authz.GroupCreate, "", authz.DataDict{}))

	assert.True(t, allowed(t, authz.GroupCreate, "pat", id("pub1")))
	res, err := run(t, authz.GroupCreate, "quinn", id("pub1"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "User quinn not authorized to create groups", res.Msg)

	_, err = run(t, authz.GroupCreate, "pat", id("missing"))
	assert.True(t, common.IsNotFound(err))
}

func TestGroupChange(t *testing.T) {
	assert.True(t, allowed(t, authz.GroupUpdate, "pat", id("pub1")))
	assert.False(t, allowed(t, authz.GroupUpdate, "quinn", id("pub2")), "editors are not admins")
	assert.True(t, allowed(t, authz.GroupDelete, "pat", id("pub1")))

	res, err := run(t, authz.GroupDelete, "quinn", id("pub2"))
	require.NoError(t, err)
	assert.Equal(t, "User quinn not authorized to delete this group", res.Msg)
}

func TestResourceCreate(t *testing.T) {
	assert.False(t, allowed(t, authz.ResourceCreate, "pat", authz.DataDict{authz.KeyPackageID: "one"}))
	assert.True(t, allowed(t, authz.ResourceCreate, "testadmin", authz.DataDict{}))
}

func TestNotFound(t *testing.T) {
	for _, action := range []authz.Action{authz.PackageUpdate, authz.PackageShow, authz.GroupUpdate} {
		_, err := run(t, action, "pat", id("missing"))
		assert.True(t, common.IsNotFound(err), action)
	}
}

func TestDefaultsRemain(t *testing.T) {
	// user_show is not redefined by the publisher table.
	assert.True(t, allowed(t, authz.UserShow, "pat", id("quinn")))
}
