//
//  Copyright © Manetu Inc. All rights reserved.
//

package authz

import (
	"github.com/spf13/cast"
)

// DataDict holds the parameters of the action being authorized. The engine
// only reads it.
type DataDict map[string]interface{}

// Well-known DataDict keys.
const (
	KeyID         = "id"
	KeyOwnerOrg   = "owner_org"
	KeyGroups     = "groups"
	KeyCapacity   = "capacity"
	KeyObjectType = "object_type"
	KeyObject     = "object"
	KeyResetKey   = "reset_key"
	KeyPackageID  = "package_id"
	KeyUserID     = "user_id"
	KeyType       = "type"
	KeyDatasetID  = "dataset_id"
	KeyFeatured   = "featured"
)

// String returns the value at key as a string and whether it was present
// and non-empty.
func (d DataDict) String(key string) (string, bool) {
	v, ok := d[key]
	if !ok || v == nil {
		return "", false
	}
	s := cast.ToString(v)
	return s, s != ""
}

// Get returns the string at key, or "".
func (d DataDict) Get(key string) string {
	s, _ := d.String(key)
	return s
}

// Flag returns the value at key as a bool; absent or unparsable values are
// false.
func (d DataDict) Flag(key string) bool {
	return cast.ToBool(d[key])
}

// Has reports whether key is present, even with an empty value.
func (d DataDict) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// GroupRefs extracts group references from the groups parameter, which is a
// list of names, ids or {"id": ...}/{"name": ...} objects. An id is
// preferred over a name when both are given.
func (d DataDict) GroupRefs() []string {
	var items []interface{}
	switch v := d[KeyGroups].(type) {
	case []interface{}:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case []map[string]interface{}:
		for _, m := range v {
			items = append(items, m)
		}
	}

	var refs []string
	for _, item := range items {
		var ref string
		switch v := item.(type) {
		case string:
			ref = v
		case map[string]interface{}:
			ref = groupRef(v)
		case DataDict:
			ref = groupRef(v)
		}
		if ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

func groupRef(m map[string]interface{}) string {
	if id := cast.ToString(m[KeyID]); id != "" {
		return id
	}
	return cast.ToString(m["name"])
}

// With returns a copy of d with key set to v.
func (d DataDict) With(key string, v interface{}) DataDict {
	out := make(DataDict, len(d)+1)
	for k, val := range d {
		out[k] = val
	}
	out[key] = v
	return out
}
