//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package sqlstore implements [model.Store] over a Postgres database laid out
// as in [Schema]. Open the database with the lib/pq driver:
//
//	db, err := sql.Open("postgres", dsn)
//	store := sqlstore.New(db)
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/core/model"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("portalauthz.model.sqlstore")

const agent = "sqlstore"

// Store reads portal state from SQL.
type Store struct {
	db *sql.DB
}

var _ model.Store = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}

// noRows maps sql.ErrNoRows to an absent entity.
func noRows(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return errors.Wrapf(err, "failed to get %s", what)
}

// GetUser resolves a user by id or name.
func (s *Store) GetUser(ctx context.Context, ref string) (*model.User, error) {
	var (
		u        model.User
		resetKey sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, state, reset_key
		FROM "user"
		WHERE id = $1 OR name = $1
		ORDER BY (id = $1) DESC
		LIMIT 1
	`, ref).Scan(&u.ID, &u.Name, &u.State, &resetKey)
	if err != nil {
		return nil, noRows(err, "user")
	}
	u.ResetKey = resetKey.String
	return &u, nil
}

// GetPackage resolves a package by id or name.
func (s *Store) GetPackage(ctx context.Context, ref string) (*model.Package, error) {
	var (
		p        model.Package
		ownerOrg sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_org, private, state
		FROM package
		WHERE id = $1 OR name = $1
		ORDER BY (id = $1) DESC
		LIMIT 1
	`, ref).Scan(&p.ID, &p.Name, &ownerOrg, &p.Private, &p.State)
	if err != nil {
		return nil, noRows(err, "package")
	}
	p.OwnerOrg = ownerOrg.String
	return &p, nil
}

const groupColumns = `g.id, g.name, g.type, g.is_organization, g.state`

func scanGroup(sc interface{ Scan(...any) error }) (*model.Group, error) {
	var g model.Group
	if err := sc.Scan(&g.ID, &g.Name, &g.Type, &g.IsOrganization, &g.State); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGroup resolves a group or organization by id or name.
func (s *Store) GetGroup(ctx context.Context, ref string) (*model.Group, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+groupColumns+`
		FROM "group" g
		WHERE g.id = $1 OR g.name = $1
		ORDER BY (g.id = $1) DESC
		LIMIT 1
	`, ref)
	g, err := scanGroup(row)
	if err != nil {
		return nil, noRows(err, "group")
	}
	return g, nil
}

// GetResource resolves a resource by id.
func (s *Store) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	var r model.Resource
	err := s.db.QueryRowContext(ctx, `
		SELECT id, package_id, state FROM resource WHERE id = $1
	`, id).Scan(&r.ID, &r.PackageID, &r.State)
	if err != nil {
		return nil, noRows(err, "resource")
	}
	return &r, nil
}

// GetRelated resolves a related item by id.
func (s *Store) GetRelated(ctx context.Context, id string) (*model.Related, error) {
	var (
		r         model.Related
		datasetID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, dataset_id FROM related WHERE id = $1
	`, id).Scan(&r.ID, &r.OwnerID, &datasetID)
	if err != nil {
		return nil, noRows(err, "related")
	}
	r.DatasetID = datasetID.String
	return &r, nil
}

// GetRevision resolves a revision by id.
func (s *Store) GetRevision(ctx context.Context, id string) (*model.Revision, error) {
	var r model.Revision
	err := s.db.QueryRowContext(ctx, `
		SELECT id, state FROM revision WHERE id = $1
	`, id).Scan(&r.ID, &r.State)
	if err != nil {
		return nil, noRows(err, "revision")
	}
	return &r, nil
}

// Members returns the active memberships of userID in groupID.
func (s *Store) Members(ctx context.Context, groupID, userID string) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, table_id, capacity, state
		FROM member
		WHERE group_id = $1 AND table_id = $2 AND table_name = 'user' AND state = 'active'
	`, groupID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list members")
	}
	defer func() { _ = rows.Close() }()

	var result []model.Member
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Capacity, &m.State); err != nil {
			return nil, errors.Wrap(err, "failed to scan member")
		}
		result = append(result, m)
	}
	return result, errors.Wrap(rows.Err(), "failed to list members")
}

func groupTypeClause(t model.GroupType) string {
	switch t {
	case model.GroupTypeOrg:
		return " AND g.is_organization"
	case model.GroupTypeGroup:
		return " AND NOT g.is_organization"
	}
	return ""
}

func (s *Store) queryGroups(ctx context.Context, what, query string, args ...any) ([]*model.Group, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", what)
	}
	defer func() { _ = rows.Close() }()

	var result []*model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan group")
		}
		result = append(result, g)
	}
	return result, errors.Wrapf(rows.Err(), "failed to list %s", what)
}

// UserGroups returns the groups of type t in which userID holds one of
// capacities.
func (s *Store) UserGroups(ctx context.Context, userID string, t model.GroupType, capacities ...model.Capacity) ([]*model.Group, error) {
	query := `
		SELECT DISTINCT ` + groupColumns + `
		FROM "group" g
		JOIN member m ON m.group_id = g.id AND m.table_name = 'user' AND m.state = 'active'
		WHERE m.table_id = $1 AND g.state = 'active'` + groupTypeClause(t)
	args := []any{userID}
	if len(capacities) > 0 {
		caps := make([]string, len(capacities))
		for i, c := range capacities {
			caps[i] = string(c)
		}
		query += ` AND m.capacity = ANY($2)`
		args = append(args, pq.Array(caps))
	}
	query += ` ORDER BY g.id`

	return s.queryGroups(ctx, "user groups", query, args...)
}

// PackageGroups returns the groups of type t listing packageID.
func (s *Store) PackageGroups(ctx context.Context, packageID string, t model.GroupType) ([]*model.Group, error) {
	return s.queryGroups(ctx, "package groups", `
		SELECT `+groupColumns+`
		FROM "group" g
		JOIN member m ON m.group_id = g.id AND m.table_name = 'package' AND m.state = 'active'
		WHERE m.table_id = $1 AND g.state = 'active'`+groupTypeClause(t)+`
		ORDER BY g.id
	`, packageID)
}

// maxGroupDepth bounds the parent walk on cyclic data.
const maxGroupDepth = 32

// ParentGroups returns the ancestors of groupID, nearest first.
func (s *Store) ParentGroups(ctx context.Context, groupID string) ([]*model.Group, error) {
	return s.queryGroups(ctx, "parent groups", `
		WITH RECURSIVE parents(id, depth) AS (
			SELECT m.group_id, 1
			FROM member m
			WHERE m.table_id = $1 AND m.table_name = 'group' AND m.state = 'active'
			UNION
			SELECT m.group_id, p.depth + 1
			FROM member m
			JOIN parents p ON m.table_id = p.id
			WHERE m.table_name = 'group' AND m.state = 'active' AND p.depth < $2
		)
		SELECT `+groupColumns+`
		FROM parents p
		JOIN "group" g ON g.id = p.id
		WHERE g.id <> $1
		ORDER BY p.depth
	`, groupID, maxGroupDepth)
}

// Collaborators returns the collaborator rows of userID on packageID.
func (s *Store) Collaborators(ctx context.Context, packageID, userID string) ([]model.Collaborator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package_id, user_id, capacity
		FROM package_member
		WHERE package_id = $1 AND user_id = $2
	`, packageID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list collaborators")
	}
	defer func() { _ = rows.Close() }()

	var result []model.Collaborator
	for rows.Next() {
		var c model.Collaborator
		if err := rows.Scan(&c.PackageID, &c.UserID, &c.Capacity); err != nil {
			return nil, errors.Wrap(err, "failed to scan collaborator")
		}
		result = append(result, c)
	}
	return result, errors.Wrap(rows.Err(), "failed to list collaborators")
}

// RoleAssignments returns the assignments on obj held by subjectIDs, or by
// anyone when subjectIDs is nil.
func (s *Store) RoleAssignments(ctx context.Context, obj model.Entity, subjectIDs []string) ([]model.RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, object_kind, object_id, role
		FROM user_object_role
		WHERE object_kind = $1 AND object_id = $2 AND ($3::text[] IS NULL OR subject_id = ANY($3))
	`, string(obj.EntityKind()), obj.EntityID(), pq.Array(subjectIDs))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list role assignments")
	}
	defer func() { _ = rows.Close() }()

	var result []model.RoleAssignment
	for rows.Next() {
		var a model.RoleAssignment
		if err := rows.Scan(&a.SubjectID, &a.ObjectKind, &a.ObjectID, &a.Role); err != nil {
			return nil, errors.Wrap(err, "failed to scan role assignment")
		}
		result = append(result, a)
	}
	return result, errors.Wrap(rows.Err(), "failed to list role assignments")
}

// HasRoleAction reports whether role grants action.
func (s *Store) HasRoleAction(ctx context.Context, role model.Role, action model.Action) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM role_action WHERE role = $1 AND action = $2)
	`, string(role), string(action)).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check role action")
	}
	return exists, nil
}

// AuthorizationGroups returns the authorization groups of userID.
func (s *Store) AuthorizationGroups(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT authorization_group_id FROM authorization_group_user WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list authorization groups")
	}
	defer func() { _ = rows.Close() }()

	return scanIDs(rows, "authorization groups")
}

func scanIDs(rows *sql.Rows, what string) ([]string, error) {
	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrapf(err, "failed to scan %s", what)
		}
		result = append(result, id)
	}
	return result, errors.Wrapf(rows.Err(), "failed to list %s", what)
}

type objectTable struct {
	name     string
	filter   string
	stateful bool
}

var objectTables = map[model.Kind]objectTable{
	model.KindUser:         {name: `"user"`, stateful: true},
	model.KindPackage:      {name: "package", stateful: true},
	model.KindGroup:        {name: `"group"`, filter: "NOT o.is_organization", stateful: true},
	model.KindOrganization: {name: `"group"`, filter: "o.is_organization", stateful: true},
	model.KindResource:     {name: "resource", stateful: true},
	model.KindRelated:      {name: "related"},
	model.KindRevision:     {name: "revision", stateful: true},
}

// roleFilter compiles [model.RoleRule] into the predicate applied to each
// user_object_role row uor of object o. $2 carries the action.
func roleFilter(t objectTable) string {
	return model.RoleRule.Fold(
		func(c model.Condition) string {
			switch c {
			case model.HeldRoleIsAdmin:
				return fmt.Sprintf("uor.role = '%s'", model.RoleAdmin)
			case model.ObjectDeleted:
				if !t.stateful {
					return "FALSE"
				}
				return fmt.Sprintf("o.state = '%s'", model.StateDeleted)
			case model.HeldRoleGrantsAction:
				return "EXISTS (SELECT 1 FROM role_action ra WHERE ra.role = uor.role AND ra.action = $2)"
			}
			return "FALSE"
		},
		func(a, b string) string { return "(" + a + " OR " + b + ")" },
		func(a, b string) string { return "(" + a + " AND " + b + ")" },
		func(a string) string { return "NOT " + a },
		"FALSE",
	)
}

// AuthorizedObjectIDs runs q as a single query.
func (s *Store) AuthorizedObjectIDs(ctx context.Context, q model.RoleQuery) ([]string, error) {
	t, ok := objectTables[q.Kind]
	if !ok {
		return nil, errors.Errorf("unsupported object kind %q", q.Kind)
	}

	var (
		where []string
		args  []any
	)
	if t.filter != "" {
		where = append(where, t.filter)
	}
	if !q.Unrestricted {
		where = append(where, `EXISTS (
			SELECT 1 FROM user_object_role uor
			WHERE uor.object_kind = $1 AND uor.object_id = o.id AND uor.subject_id = ANY($3)
			AND `+roleFilter(t)+`)`)
		args = append(args, string(q.Kind), string(q.Action), pq.Array(q.SubjectIDs))
	}

	query := "SELECT o.id FROM " + t.name + " o"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY o.id"

	logger.Tracef(agent, "AuthorizedObjectIDs", "query: %s", query)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query authorized objects")
	}
	defer func() { _ = rows.Close() }()

	return scanIDs(rows, "authorized objects")
}
