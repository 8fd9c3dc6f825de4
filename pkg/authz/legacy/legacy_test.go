//
//  Copyright © Manetu Inc. All rights reserved.
//

package legacy_test

import (
	"context"
	"slices"
	"testing"

	"github.com/manetu/portalauthz/pkg/authz/legacy"
	"github.com/manetu/portalauthz/pkg/core/model"
	"github.com/manetu/portalauthz/pkg/core/model/memory"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blacklistedIP = "203.0.113.7"

func fixture() *memory.Fixture {
	return &memory.Fixture{
		Users: []model.User{
			{ID: "u-testadmin", Name: "testadmin"},
			{ID: "u-blah", Name: "blah"},
			{ID: "u-editor", Name: "ed"},
			{ID: "u-grouped", Name: "grouped"},
		},
		Packages: []model.Package{
			{ID: "p-open", Name: "open", State: model.StateActive},
			{ID: "p-gone", Name: "gone", State: model.StateDeleted},
			{ID: "p-members", Name: "members", State: model.StateActive},
			{ID: "p-owned", Name: "owned", State: model.StateDeleted},
		},
		Revisions: []model.Revision{{ID: "rev-1", State: model.StateActive}},
		RoleAssignments: []model.RoleAssignment{
			{SubjectID: "u-testadmin", ObjectKind: model.KindSystem, ObjectID: model.SystemID, Role: model.RoleAdmin},
			{SubjectID: model.PseudoUserVisitor, ObjectKind: model.KindPackage, ObjectID: "p-open", Role: model.RoleEditor},
			{SubjectID: model.PseudoUserLoggedIn, ObjectKind: model.KindPackage, ObjectID: "p-members", Role: model.RoleReader},
			{SubjectID: "u-editor", ObjectKind: model.KindPackage, ObjectID: "p-gone", Role: model.RoleEditor},
			{SubjectID: "ag-owners", ObjectKind: model.KindPackage, ObjectID: "p-owned", Role: model.RoleAdmin},
		},
		AuthorizationGroups: []memory.AuthzGroupMember{{GroupID: "ag-owners", UserID: "u-grouped"}},
	}
}

func newAuthorizer(opts ...legacy.Option) (*legacy.Authorizer, *memory.Store) {
	s := memory.New(fixture())
	return legacy.New(s, opts...), s
}

func pkg(t *testing.T, s *memory.Store, id string) *model.Package {
	t.Helper()
	p, err := s.GetPackage(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func TestSysadminPurgesRevisions(t *testing.T) {
	ctx := context.Background()
	a, s := newAuthorizer()
	rev, err := s.GetRevision(ctx, "rev-1")
	require.NoError(t, err)

	ok, err := a.IsAuthorized(ctx, "testadmin", model.ActionPurge, rev)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.IsAuthorized(ctx, "blah", model.ActionPurge, rev)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsSysadmin(t *testing.T) {
	ctx := context.Background()
	a, _ := newAuthorizer()

	for user, expected := range map[string]bool{"testadmin": true, "u-testadmin": true, "blah": false, "": false, "nobody": false} {
		ok, err := a.IsSysadmin(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, expected, ok, user)
	}
}

func TestNilObjectIsGranted(t *testing.T) {
	a, _ := newAuthorizer()
	ok, err := a.IsAuthorized(context.Background(), "blah", model.ActionCreatePackage, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeletedObjectLockout(t *testing.T) {
	ctx := context.Background()
	a, s := newAuthorizer()
	gone := pkg(t, s, "p-gone")

	ok, err := s.HasRoleAction(ctx, model.RoleEditor, model.ActionEdit)
	require.NoError(t, err)
	require.True(t, ok, "the grant exists")

	for _, action := range []model.Action{model.ActionEdit, model.ActionRead} {
		ok, err := a.IsAuthorized(ctx, "ed", action, gone)
		require.NoError(t, err)
		assert.False(t, ok, action)
	}

	ok, err = a.IsAuthorized(ctx, "grouped", model.ActionChangeState, pkg(t, s, "p-owned"))
	require.NoError(t, err)
	assert.True(t, ok, "admin through an authorization group ignores the deleted state")
}

func TestBlacklist(t *testing.T) {
	ctx := context.Background()
	a, s := newAuthorizer(legacy.WithBlacklister(legacy.NewBlacklister(blacklistedIP)))
	open := pkg(t, s, "p-open")

	for _, action := range []model.Action{model.ActionEdit, model.ActionChangeState, model.ActionUploadFile} {
		ok, err := a.IsAuthorized(ctx, blacklistedIP, action, open)
		require.NoError(t, err)
		assert.False(t, ok, "%s denied despite the visitor editor grant", action)
	}

	ok, err := a.IsAuthorized(ctx, blacklistedIP, model.ActionRead, open)
	require.NoError(t, err)
	assert.True(t, ok, "read is not blacklisted")

	ok, err = a.IsAuthorized(ctx, "198.51.100.1", model.ActionEdit, open)
	require.NoError(t, err)
	assert.True(t, ok, "unlisted visitors keep their grants")
}

func TestGetRoles(t *testing.T) {
	ctx := context.Background()
	a, s := newAuthorizer()

	roles, err := a.GetRoles(ctx, "", pkg(t, s, "p-members"))
	require.NoError(t, err)
	assert.Empty(t, roles, "anonymous users are only visitors")

	roles, err = a.GetRoles(ctx, "blah", pkg(t, s, "p-members"))
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleReader}, roles)

	roles, err = a.GetRoles(ctx, "blah", pkg(t, s, "p-open"))
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleEditor}, roles, "visitor roles apply to everyone")

	roles, err = a.GetRoles(ctx, "grouped", pkg(t, s, "p-owned"))
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleAdmin}, roles)
}

func TestNoRolesDenied(t *testing.T) {
	ctx := context.Background()
	a, s := newAuthorizer()

	ok, err := a.IsAuthorized(ctx, "", model.ActionRead, pkg(t, s, "p-members"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.IsAuthorized(ctx, "blah", model.ActionRead, pkg(t, s, "p-members"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.IsAuthorized(ctx, "blah", model.ActionEdit, pkg(t, s, "p-members"))
	require.NoError(t, err)
	assert.False(t, ok, "reader cannot edit")
}

func TestGetAdmins(t *testing.T) {
	ctx := context.Background()
	a, s := newAuthorizer()

	admins, err := a.GetAdmins(ctx, pkg(t, s, "p-owned"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ag-owners"}, admins)

	admins, err = a.GetAdmins(ctx, pkg(t, s, "p-open"))
	require.NoError(t, err)
	assert.Empty(t, admins)
}

func TestExtensions(t *testing.T) {
	ctx := context.Background()
	var calls []string

	deny := legacy.ExtensionFunc(func(_ context.Context, username string, _ model.Action, _ model.Entity) (bool, error) {
		calls = append(calls, "deny")
		return false, nil
	})
	grant := legacy.ExtensionFunc(func(_ context.Context, username string, _ model.Action, _ model.Entity) (bool, error) {
		calls = append(calls, "grant")
		return username == "blah", nil
	})

	a, s := newAuthorizer(legacy.WithExtensions(deny, grant))
	gone := pkg(t, s, "p-gone")

	ok, err := a.IsAuthorized(ctx, "blah", model.ActionPurge, gone)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"deny", "grant"}, calls)

	broken := legacy.ExtensionFunc(func(context.Context, string, model.Action, model.Entity) (bool, error) {
		return false, errors.New("extension failed")
	})
	a, _ = newAuthorizer(legacy.WithExtensions(broken))
	_, err = a.IsAuthorized(ctx, "testadmin", model.ActionRead, gone)
	assert.EqualError(t, err, "extension failed", "extension errors are not swallowed")
}

func TestAuthorizedQueryMatchesIsAuthorized(t *testing.T) {
	ctx := context.Background()
	a, s := newAuthorizer()

	users := []string{"", "blah", "ed", "grouped", "testadmin"}
	actions := []model.Action{model.ActionRead, model.ActionEdit, model.ActionChangeState, model.ActionPurge}
	packages := []string{"p-open", "p-gone", "p-members", "p-owned"}

	for _, user := range users {
		for _, action := range actions {
			ids, err := a.AuthorizedObjectIDs(ctx, user, model.KindPackage, action)
			require.NoError(t, err)

			for _, id := range packages {
				ok, err := a.IsAuthorized(ctx, user, action, pkg(t, s, id))
				require.NoError(t, err)
				assert.Equal(t, ok, slices.Contains(ids, id), "user %q action %s package %s", user, action, id)
			}
		}
	}
}

func TestAuthorizedQuery(t *testing.T) {
	ctx := context.Background()
	a, _ := newAuthorizer()

	q, err := a.AuthorizedQuery(ctx, "testadmin", model.KindPackage, model.ActionEdit)
	require.NoError(t, err)
	assert.True(t, q.Unrestricted)

	q, err = a.AuthorizedQuery(ctx, "grouped", model.KindPackage, model.ActionEdit)
	require.NoError(t, err)
	assert.False(t, q.Unrestricted)
	assert.Equal(t, []string{model.PseudoUserVisitor, "ag-owners", "u-grouped", model.PseudoUserLoggedIn}, q.SubjectIDs)

	q, err = a.AuthorizedQuery(ctx, "", model.KindPackage, model.ActionRead)
	require.NoError(t, err)
	assert.Equal(t, []string{model.PseudoUserVisitor}, q.SubjectIDs)
}
