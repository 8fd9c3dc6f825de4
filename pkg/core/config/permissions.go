//
//  Copyright © Manetu Inc. All rights reserved.
//

package config

import (
	"fmt"
	"strings"

	"github.com/manetu/portalauthz/pkg/common"
	"github.com/spf13/cast"
)

const (
	authPrefix       = "auth."
	legacyAuthPrefix = "ckan.auth."
)

// Permission setting names.
const (
	AnonCreateDataset                  = "anon_create_dataset"
	CreateDatasetIfNotInOrganization   = "create_dataset_if_not_in_organization"
	CreateUnownedDataset               = "create_unowned_dataset"
	UserCreateGroups                   = "user_create_groups"
	UserCreateOrganizations            = "user_create_organizations"
	UserDeleteGroups                   = "user_delete_groups"
	UserDeleteOrganizations            = "user_delete_organizations"
	CreateUserViaAPI                   = "create_user_via_api"
	CreateUserViaWeb                   = "create_user_via_web"
	RolesThatCascadeToSubGroups        = "roles_that_cascade_to_sub_groups"
	PublicActivityStreamDetail         = "public_activity_stream_detail"
	AllowDatasetCollaborators          = "allow_dataset_collaborators"
	AllowAdminCollaborators            = "allow_admin_collaborators"
	AllowCollaboratorsToChangeOwnerOrg = "allow_collaborators_to_change_owner_org"
	PublicUserDetails                  = "public_user_details"
)

type permissionDefault struct {
	name  string
	value interface{}
}

// permissionDefaults is ordered so that listings are stable.
var permissionDefaults = []permissionDefault{
	{AnonCreateDataset, false},
	{CreateDatasetIfNotInOrganization, true},
	{CreateUnownedDataset, true},
	{UserCreateGroups, true},
	{UserCreateOrganizations, true},
	{UserDeleteGroups, true},
	{UserDeleteOrganizations, true},
	{CreateUserViaAPI, false},
	{CreateUserViaWeb, true},
	{RolesThatCascadeToSubGroups, "admin"},
	{PublicActivityStreamDetail, false},
	{AllowDatasetCollaborators, false},
	{AllowAdminCollaborators, false},
	{AllowCollaboratorsToChangeOwnerOrg, false},
	{PublicUserDetails, true},
}

// Permissions is an immutable snapshot of the permission settings. A single
// snapshot is shared by every request evaluated by an engine.
type Permissions struct {
	values map[string]interface{}
}

func normalize(name string) string {
	name = strings.TrimPrefix(name, legacyAuthPrefix)
	return strings.TrimPrefix(name, authPrefix)
}

// NewPermissions builds a snapshot from the documented defaults with the
// given overrides applied. Override values are coerced to the type of the
// default. An unknown override name is an error.
func NewPermissions(overrides map[string]interface{}) (*Permissions, error) {
	p := &Permissions{values: make(map[string]interface{}, len(permissionDefaults))}
	for _, d := range permissionDefaults {
		p.values[d.name] = d.value
	}

	for k, v := range overrides {
		name := normalize(k)
		def, ok := p.values[name]
		if !ok {
			return nil, common.NewErrorf(common.UnknownPermission, "unknown permission setting %q", k)
		}
		coerced, err := coerce(def, v)
		if err != nil {
			return nil, common.NewErrorf(common.InvalidParam, "permission %s: %v", name, err)
		}
		p.values[name] = coerced
	}

	return p, nil
}

// DefaultPermissions returns a snapshot holding only the documented defaults.
func DefaultPermissions() *Permissions {
	p, _ := NewPermissions(nil)
	return p
}

// LoadPermissions captures the auth.* settings of [VConfig] into a snapshot.
func LoadPermissions() (*Permissions, error) {
	Init()
	overrides := make(map[string]interface{}, len(permissionDefaults))
	for _, d := range permissionDefaults {
		overrides[d.name] = VConfig.Get(authPrefix + d.name)
	}
	return NewPermissions(overrides)
}

func coerce(def, v interface{}) (interface{}, error) {
	switch def.(type) {
	case bool:
		return cast.ToBoolE(v)
	case string:
		if list, ok := v.([]interface{}); ok {
			return strings.Join(cast.ToStringSlice(list), " "), nil
		}
		return cast.ToStringE(v)
	default:
		return nil, fmt.Errorf("unsupported default type %T", def)
	}
}

// CheckConfigPermission returns the value of the named setting. The name may
// carry the "auth." or "ckan.auth." prefix. An unknown name yields an
// UNKNOWN_PERMISSION error.
func (p *Permissions) CheckConfigPermission(name string) (interface{}, error) {
	v, ok := p.values[normalize(name)]
	if !ok {
		return nil, common.NewErrorf(common.UnknownPermission, "unknown permission setting %q", name)
	}
	return v, nil
}

// Bool returns a boolean setting. Asking for an unknown or non-boolean
// setting is a programmer error and panics.
func (p *Permissions) Bool(name string) bool {
	v, err := p.CheckConfigPermission(name)
	if err != nil {
		panic(err)
	}
	b, ok := v.(bool)
	if !ok {
		panic(fmt.Sprintf("permission %s is not a boolean", name))
	}
	return b
}

// Roles splits a space-separated list setting such as
// roles_that_cascade_to_sub_groups.
func (p *Permissions) Roles(name string) []string {
	v, err := p.CheckConfigPermission(name)
	if err != nil {
		panic(err)
	}
	return strings.Fields(cast.ToString(v))
}

// Names lists the known setting names in documentation order.
func Names() []string {
	names := make([]string, 0, len(permissionDefaults))
	for _, d := range permissionDefaults {
		names = append(names, d.name)
	}
	return names
}

// Blacklisted returns the configured blacklist entries.
func Blacklisted() []string {
	Init()
	return strings.Fields(VConfig.GetString(Blacklist))
}
