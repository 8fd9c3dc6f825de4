//
//  Copyright © Manetu Inc. All rights reserved.
//

package model

import (
	"context"
)

// EntityStore resolves single entities. Getters accepting a ref look the
// entity up by id first and by name second. An absent entity is reported as
// (nil, nil); errors are reserved for infrastructure failures.
type EntityStore interface {
	GetUser(ctx context.Context, ref string) (*User, error)
	GetPackage(ctx context.Context, ref string) (*Package, error)
	GetGroup(ctx context.Context, ref string) (*Group, error)
	GetResource(ctx context.Context, id string) (*Resource, error)
	GetRelated(ctx context.Context, id string) (*Related, error)
	GetRevision(ctx context.Context, id string) (*Revision, error)
}

// MembershipStore answers capacity questions about users, groups and
// datasets. Only active memberships are returned.
type MembershipStore interface {
	// Members returns the memberships userID holds in groupID.
	Members(ctx context.Context, groupID, userID string) ([]Member, error)

	// UserGroups returns the groups of type t in which userID is a member
	// with one of capacities, or with any capacity when none are given.
	UserGroups(ctx context.Context, userID string, t GroupType, capacities ...Capacity) ([]*Group, error)

	// PackageGroups returns the groups of type t that list packageID.
	PackageGroups(ctx context.Context, packageID string, t GroupType) ([]*Group, error)

	// ParentGroups returns the ancestors of groupID, nearest first.
	ParentGroups(ctx context.Context, groupID string) ([]*Group, error)

	// Collaborators returns the collaborator rows of userID on packageID.
	Collaborators(ctx context.Context, packageID, userID string) ([]Collaborator, error)
}

// RoleStore backs the legacy role model.
type RoleStore interface {
	// RoleAssignments returns the assignments on obj held by any of
	// subjectIDs. A nil subjectIDs matches every subject.
	RoleAssignments(ctx context.Context, obj Entity, subjectIDs []string) ([]RoleAssignment, error)

	// HasRoleAction reports whether role grants action.
	HasRoleAction(ctx context.Context, role Role, action Action) (bool, error)

	// AuthorizationGroups returns the ids of the authorization groups userID
	// belongs to.
	AuthorizationGroups(ctx context.Context, userID string) ([]string, error)

	// AuthorizedObjectIDs returns the ids of the objects q permits.
	AuthorizedObjectIDs(ctx context.Context, q RoleQuery) ([]string, error)
}

// Store is the model collaborator consumed by the engine.
type Store interface {
	EntityStore
	MembershipStore
	RoleStore
}

// Get dispatches to the EntityStore getter for kind. A nil entity is
// returned as a nil interface.
func Get(ctx context.Context, s EntityStore, kind Kind, ref string) (Entity, error) {
	var (
		e   Entity
		err error
	)

	switch kind {
	case KindUser:
		var v *User
		if v, err = s.GetUser(ctx, ref); v != nil {
			e = v
		}
	case KindPackage:
		var v *Package
		if v, err = s.GetPackage(ctx, ref); v != nil {
			e = v
		}
	case KindGroup, KindOrganization:
		var v *Group
		if v, err = s.GetGroup(ctx, ref); v != nil {
			e = v
		}
	case KindResource:
		var v *Resource
		if v, err = s.GetResource(ctx, ref); v != nil {
			e = v
		}
	case KindRelated:
		var v *Related
		if v, err = s.GetRelated(ctx, ref); v != nil {
			e = v
		}
	case KindRevision:
		var v *Revision
		if v, err = s.GetRevision(ctx, ref); v != nil {
			e = v
		}
	case KindSystem:
		e = System{}
	}

	if err != nil {
		return nil, err
	}
	return e, nil
}
