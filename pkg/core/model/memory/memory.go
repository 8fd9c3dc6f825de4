//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package memory implements [model.Store] over an in-memory fixture. It
// backs tests, the CLI check command and single-node deployments that load
// their portal state from YAML.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/core/model"
)

var logger = logging.GetLogger("portalauthz.model.memory")

const agent = "memory"

type index struct {
	users     map[string]*model.User
	packages  map[string]*model.Package
	groups    map[string]*model.Group
	resources map[string]*model.Resource
	related   map[string]*model.Related
	revisions map[string]*model.Revision
	roles     map[model.RoleAction]bool
}

// Store is a [model.Store] backed by a [Fixture]. It is safe for concurrent
// use; [Store.Update] swaps state atomically with respect to readers.
type Store struct {
	mu      sync.RWMutex
	fixture Fixture
	idx     index
}

var _ model.Store = (*Store)(nil)

// New builds a store over a copy of f.
func New(f *Fixture) *Store {
	s := &Store{}
	if f != nil {
		s.fixture = *f
	}
	s.reindex()
	return s
}

// Update applies fn to the fixture under the write lock and rebuilds the
// indexes.
func (s *Store) Update(fn func(f *Fixture)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.fixture)
	s.reindex()
}

func (s *Store) reindex() {
	f := &s.fixture
	idx := index{
		users:     make(map[string]*model.User),
		packages:  make(map[string]*model.Package),
		groups:    make(map[string]*model.Group),
		resources: make(map[string]*model.Resource),
		related:   make(map[string]*model.Related),
		revisions: make(map[string]*model.Revision),
		roles:     make(map[model.RoleAction]bool),
	}

	for i := range f.Users {
		u := f.Users[i]
		idx.users[u.ID] = &u
	}
	for i := range f.Packages {
		p := f.Packages[i]
		idx.packages[p.ID] = &p
	}
	for i := range f.Groups {
		g := f.Groups[i]
		idx.groups[g.ID] = &g
	}
	for i := range f.Resources {
		r := f.Resources[i]
		idx.resources[r.ID] = &r
	}
	for i := range f.Related {
		r := f.Related[i]
		idx.related[r.ID] = &r
	}
	for i := range f.Revisions {
		r := f.Revisions[i]
		idx.revisions[r.ID] = &r
	}

	roleActions := f.RoleActions
	if roleActions == nil {
		roleActions = model.DefaultRoleActions
	}
	for _, ra := range roleActions {
		idx.roles[ra] = true
	}

	s.idx = idx
}

// byRef finds an entity by id, then by name. Returned values are copies.
func byRef[T any](m map[string]*T, ref string, name func(*T) string) *T {
	if v, ok := m[ref]; ok {
		c := *v
		return &c
	}
	for _, v := range m {
		if name(v) == ref {
			c := *v
			return &c
		}
	}
	return nil
}

func byID[T any](m map[string]*T, id string) *T {
	if v, ok := m[id]; ok {
		c := *v
		return &c
	}
	return nil
}

// GetUser resolves a user by id or name.
func (s *Store) GetUser(_ context.Context, ref string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return byRef(s.idx.users, ref, func(u *model.User) string { return u.Name }), nil
}

// GetPackage resolves a package by id or name.
func (s *Store) GetPackage(_ context.Context, ref string) (*model.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return byRef(s.idx.packages, ref, func(p *model.Package) string { return p.Name }), nil
}

// GetGroup resolves a group or organization by id or name.
func (s *Store) GetGroup(_ context.Context, ref string) (*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return byRef(s.idx.groups, ref, func(g *model.Group) string { return g.Name }), nil
}

// GetResource resolves a resource by id.
func (s *Store) GetResource(_ context.Context, id string) (*model.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return byID(s.idx.resources, id), nil
}

// GetRelated resolves a related item by id.
func (s *Store) GetRelated(_ context.Context, id string) (*model.Related, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return byID(s.idx.related, id), nil
}

// GetRevision resolves a revision by id.
func (s *Store) GetRevision(_ context.Context, id string) (*model.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return byID(s.idx.revisions, id), nil
}

func active(st model.State) bool {
	return st == "" || st == model.StateActive
}

// Members returns the active memberships of userID in groupID.
func (s *Store) Members(_ context.Context, groupID, userID string) ([]model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Member
	for _, m := range s.fixture.Members {
		if m.GroupID == groupID && m.UserID == userID && active(m.State) {
			result = append(result, m)
		}
	}
	return result, nil
}

// UserGroups returns the groups of type t in which userID holds one of
// capacities.
func (s *Store) UserGroups(_ context.Context, userID string, t model.GroupType, capacities ...model.Capacity) ([]*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var result []*model.Group
	for _, m := range s.fixture.Members {
		if m.UserID != userID || !active(m.State) || seen[m.GroupID] {
			continue
		}
		if len(capacities) > 0 && !slices.Contains(capacities, m.Capacity) {
			continue
		}
		g := byID(s.idx.groups, m.GroupID)
		if g == nil || !active(g.State) || !t.Matches(g) {
			continue
		}
		seen[m.GroupID] = true
		result = append(result, g)
	}
	return sortGroups(result), nil
}

// PackageGroups returns the groups of type t listing packageID.
func (s *Store) PackageGroups(_ context.Context, packageID string, t model.GroupType) ([]*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Group
	for _, pg := range s.fixture.PackageGroups {
		if pg.PackageID != packageID {
			continue
		}
		g := byID(s.idx.groups, pg.GroupID)
		if g == nil || !active(g.State) || !t.Matches(g) {
			continue
		}
		result = append(result, g)
	}
	return sortGroups(result), nil
}

// ParentGroups walks the parent chain of groupID. A cycle in the fixture
// ends the walk.
func (s *Store) ParentGroups(_ context.Context, groupID string) ([]*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parents := make(map[string]string, len(s.fixture.GroupParents))
	for _, gp := range s.fixture.GroupParents {
		parents[gp.GroupID] = gp.ParentID
	}

	var result []*model.Group
	visited := map[string]bool{groupID: true}
	for cur := parents[groupID]; cur != "" && !visited[cur]; cur = parents[cur] {
		visited[cur] = true
		if g := byID(s.idx.groups, cur); g != nil {
			result = append(result, g)
		}
	}
	return result, nil
}

// Collaborators returns the collaborator rows of userID on packageID.
func (s *Store) Collaborators(_ context.Context, packageID, userID string) ([]model.Collaborator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Collaborator
	for _, c := range s.fixture.Collaborators {
		if c.PackageID == packageID && c.UserID == userID {
			result = append(result, c)
		}
	}
	return result, nil
}

// RoleAssignments returns the assignments on obj held by subjectIDs, or by
// anyone when subjectIDs is nil.
func (s *Store) RoleAssignments(_ context.Context, obj model.Entity, subjectIDs []string) ([]model.RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assignments(obj.EntityKind(), obj.EntityID(), subjectIDs), nil
}

func (s *Store) assignments(kind model.Kind, id string, subjectIDs []string) []model.RoleAssignment {
	var result []model.RoleAssignment
	for _, a := range s.fixture.RoleAssignments {
		if a.ObjectKind == kind && a.ObjectID == id && (subjectIDs == nil || slices.Contains(subjectIDs, a.SubjectID)) {
			result = append(result, a)
		}
	}
	return result
}

// HasRoleAction reports whether role grants action.
func (s *Store) HasRoleAction(_ context.Context, role model.Role, action model.Action) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.roles[model.RoleAction{Role: role, Action: action}], nil
}

// AuthorizationGroups returns the authorization groups of userID.
func (s *Store) AuthorizationGroups(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []string
	for _, m := range s.fixture.AuthorizationGroups {
		if m.UserID == userID {
			result = append(result, m.GroupID)
		}
	}
	return result, nil
}

// AuthorizedObjectIDs evaluates q against every object of q.Kind with
// [model.Permits], the same rule the legacy authorizer applies to a loaded
// object.
func (s *Store) AuthorizedObjectIDs(ctx context.Context, q model.RoleQuery) ([]string, error) {
	s.mu.RLock()
	objects := s.objects(q.Kind)
	held := make(map[string][]model.Role, len(objects))
	if !q.Unrestricted {
		for _, o := range objects {
			for _, a := range s.assignments(q.Kind, o.EntityID(), q.SubjectIDs) {
				held[o.EntityID()] = append(held[o.EntityID()], a.Role)
			}
		}
	}
	s.mu.RUnlock()

	var result []string
	for _, o := range objects {
		if q.Unrestricted {
			result = append(result, o.EntityID())
			continue
		}
		ok, err := model.Permits(ctx, s, held[o.EntityID()], o, q.Action)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, o.EntityID())
		}
	}

	logger.Debugf(agent, "AuthorizedObjectIDs", "%s/%s for %v: %d objects", q.Kind, q.Action, q.SubjectIDs, len(result))
	return result, nil
}

func (s *Store) objects(kind model.Kind) []model.Entity {
	var result []model.Entity
	switch kind {
	case model.KindPackage:
		for _, v := range s.idx.packages {
			result = append(result, v)
		}
	case model.KindGroup, model.KindOrganization:
		for _, v := range s.idx.groups {
			if v.EntityKind() == kind {
				result = append(result, v)
			}
		}
	case model.KindResource:
		for _, v := range s.idx.resources {
			result = append(result, v)
		}
	case model.KindRelated:
		for _, v := range s.idx.related {
			result = append(result, v)
		}
	case model.KindRevision:
		for _, v := range s.idx.revisions {
			result = append(result, v)
		}
	case model.KindUser:
		for _, v := range s.idx.users {
			result = append(result, v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntityID() < result[j].EntityID() })
	return result
}

func sortGroups(groups []*model.Group) []*model.Group {
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups
}
