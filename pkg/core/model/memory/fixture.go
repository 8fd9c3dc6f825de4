//
//  Copyright © Manetu Inc. All rights reserved.
//

package memory

import (
	"io"
	"os"
	"path/filepath"

	"github.com/manetu/portalauthz/pkg/core/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PackageGroup lists a package in a group.
type PackageGroup struct {
	PackageID string `yaml:"package_id"`
	GroupID   string `yaml:"group_id"`
}

// GroupParent makes ParentID the parent of GroupID.
type GroupParent struct {
	GroupID  string `yaml:"group_id"`
	ParentID string `yaml:"parent_id"`
}

// AuthzGroupMember places a user in a legacy authorization group.
type AuthzGroupMember struct {
	GroupID string `yaml:"group_id"`
	UserID  string `yaml:"user_id"`
}

// Fixture is the YAML document a [Store] is loaded from.
//
//	users:
//	  - {id: u1, name: alice, state: active}
//	groups:
//	  - {id: o1, name: org1, is_organization: true, state: active}
//	members:
//	  - {group_id: o1, user_id: u1, capacity: editor, state: active}
//
// When role_actions is omitted the store is seeded with
// [model.DefaultRoleActions].
type Fixture struct {
	Users               []model.User           `yaml:"users"`
	Packages            []model.Package        `yaml:"packages"`
	Groups              []model.Group          `yaml:"groups"`
	Resources           []model.Resource       `yaml:"resources"`
	Related             []model.Related        `yaml:"related"`
	Revisions           []model.Revision       `yaml:"revisions"`
	Members             []model.Member         `yaml:"members"`
	Collaborators       []model.Collaborator   `yaml:"collaborators"`
	PackageGroups       []PackageGroup         `yaml:"package_groups"`
	GroupParents        []GroupParent          `yaml:"group_parents"`
	RoleAssignments     []model.RoleAssignment `yaml:"role_assignments"`
	RoleActions         []model.RoleAction     `yaml:"role_actions"`
	AuthorizationGroups []AuthzGroupMember     `yaml:"authorization_groups"`
}

// Load decodes a fixture document.
func Load(r io.Reader) (*Store, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decoding fixture")
	}
	return New(&f), nil
}

// LoadFile reads a fixture from path.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrapf(err, "opening fixture %s", path)
	}
	defer func() { _ = f.Close() }()

	return Load(f)
}
