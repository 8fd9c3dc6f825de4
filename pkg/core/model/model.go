//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package model defines the portal entities consulted during authorization
// and the [Store] interface the engine reads them through.
//
// The engine never writes to a store. Two implementations ship with the
// module: an in-memory store loaded from YAML fixtures ([memory]) and a
// Postgres-backed store ([sqlstore]).
//
// # Entities
//
//   - [User], [Package], [Group], [Resource], [Related], [Revision]: targets
//     of an action, resolved by id or name
//   - [Member]: a user's capacity in a group or organization
//   - [Collaborator]: a user's capacity on a single dataset
//   - [RoleAssignment], [RoleAction]: the legacy role model
//
// [memory]: github.com/manetu/portalauthz/pkg/core/model/memory
// [sqlstore]: github.com/manetu/portalauthz/pkg/core/model/sqlstore
package model

// Kind identifies an entity type.
type Kind string

// Entity kinds
const (
	KindUser         Kind = "user"
	KindPackage      Kind = "package"
	KindResource     Kind = "resource"
	KindGroup        Kind = "group"
	KindOrganization Kind = "organization"
	KindRelated      Kind = "related"
	KindRevision     Kind = "revision"
	KindSystem       Kind = "system"
)

// State is the lifecycle state of an entity.
type State string

// Entity states
const (
	StateActive  State = "active"
	StateDeleted State = "deleted"
	StateDraft   State = "draft"
	StatePending State = "pending"
)

// Capacity is a graded membership level.
type Capacity string

// Capacities, weakest first.
const (
	CapacityMember Capacity = "member"
	CapacityEditor Capacity = "editor"
	CapacityAdmin  Capacity = "admin"
)

// Rank orders capacities; unknown capacities rank zero.
func (c Capacity) Rank() int {
	switch c {
	case CapacityMember:
		return 1
	case CapacityEditor:
		return 2
	case CapacityAdmin:
		return 3
	}
	return 0
}

// GroupType distinguishes plain groups from organizations.
type GroupType string

// Group types. AnyGroup matches both.
const (
	AnyGroup       GroupType = ""
	GroupTypeGroup GroupType = "group"
	GroupTypeOrg   GroupType = "organization"
)

// Matches reports whether g is of type t.
func (t GroupType) Matches(g *Group) bool {
	switch t {
	case AnyGroup:
		return true
	case GroupTypeOrg:
		return g.IsOrganization
	default:
		return !g.IsOrganization
	}
}

// Entity is anything an action may target.
type Entity interface {
	EntityKind() Kind
	EntityID() string
}

// Stateful entities expose their lifecycle state.
type Stateful interface {
	EntityState() State
}

// StateOf returns the state of e, or active for stateless entities.
func StateOf(e Entity) State {
	if s, ok := e.(Stateful); ok && s.EntityState() != "" {
		return s.EntityState()
	}
	return StateActive
}

// User is a portal account.
type User struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	State    State  `yaml:"state" json:"state"`
	ResetKey string `yaml:"reset_key,omitempty" json:"reset_key,omitempty"`
}

// Package is a dataset.
type Package struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	OwnerOrg string `yaml:"owner_org,omitempty" json:"owner_org,omitempty"`
	Private  bool   `yaml:"private" json:"private"`
	State    State  `yaml:"state" json:"state"`
}

// Group is a group or, when IsOrganization is set, an organization.
type Group struct {
	ID             string    `yaml:"id" json:"id"`
	Name           string    `yaml:"name" json:"name"`
	Type           GroupType `yaml:"type" json:"type"`
	IsOrganization bool      `yaml:"is_organization" json:"is_organization"`
	State          State     `yaml:"state" json:"state"`
}

// Resource is a file or link attached to a package.
type Resource struct {
	ID        string `yaml:"id" json:"id"`
	PackageID string `yaml:"package_id" json:"package_id"`
	State     State  `yaml:"state" json:"state"`
}

// Related is a showcase item owned by a user and optionally tied to a dataset.
type Related struct {
	ID        string `yaml:"id" json:"id"`
	OwnerID   string `yaml:"owner_id" json:"owner_id"`
	DatasetID string `yaml:"dataset_id,omitempty" json:"dataset_id,omitempty"`
}

// Revision is a change set in the legacy revisioning model.
type Revision struct {
	ID    string `yaml:"id" json:"id"`
	State State  `yaml:"state" json:"state"`
}

// System is the pseudo object that carries site-wide roles.
type System struct{}

// SystemID is the object id of [System] in role assignments.
const SystemID = "system"

// Member is a user's membership in a group or organization.
type Member struct {
	GroupID  string   `yaml:"group_id" json:"group_id"`
	UserID   string   `yaml:"user_id" json:"user_id"`
	Capacity Capacity `yaml:"capacity" json:"capacity"`
	State    State    `yaml:"state" json:"state"`
}

// Collaborator grants a user a capacity on one dataset.
type Collaborator struct {
	PackageID string   `yaml:"package_id" json:"package_id"`
	UserID    string   `yaml:"user_id" json:"user_id"`
	Capacity  Capacity `yaml:"capacity" json:"capacity"`
}

func (u *User) EntityKind() Kind { return KindUser }
func (u *User) EntityID() string { return u.ID }
func (u *User) EntityState() State { return u.State }
func (p *Package) EntityKind() Kind { return KindPackage }
func (p *Package) EntityID() string { return p.ID }
func (p *Package) EntityState() State { return p.State }
func (r *Resource) EntityKind() Kind { return KindResource }
func (r *Resource) EntityID() string { return r.ID }
func (r *Resource) EntityState() State { return r.State }
func (r *Related) EntityKind() Kind { return KindRelated }
func (r *Related) EntityID() string { return r.ID }
func (r *Revision) EntityKind() Kind { return KindRevision }
func (r *Revision) EntityID() string { return r.ID }
func (r *Revision) EntityState() State { return r.State }
func (System) EntityKind() Kind { return KindSystem }
func (System) EntityID() string { return SystemID }

// EntityKind reports KindOrganization for organizations.
func (g *Group) EntityKind() Kind {
	if g.IsOrganization {
		return KindOrganization
	}
	return KindGroup
}

func (g *Group) EntityID() string { return g.ID }
func (g *Group) EntityState() State { return g.State }

// IsActive reports whether the entity is in the active state.
func IsActive(e Entity) bool {
	return StateOf(e) == StateActive
}
