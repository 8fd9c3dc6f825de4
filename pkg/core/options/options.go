//
//  Copyright © Manetu Inc. All rights reserved.
//
// shared between pkg/core and internal/core, and thus must be in a separate package to avoid circular dependencies

// Package options holds the functional options of [core.NewEngine] and of
// individual checks.
package options

import (
	"github.com/manetu/portalauthz/pkg/authz/legacy"
	"github.com/manetu/portalauthz/pkg/authz/registry"
	"github.com/manetu/portalauthz/pkg/core/accesslog"
	"github.com/manetu/portalauthz/pkg/core/backend"
	"github.com/manetu/portalauthz/pkg/core/config"
	"github.com/manetu/portalauthz/pkg/core/metrics"
	"github.com/manetu/portalauthz/pkg/core/model"
	"github.com/manetu/portalauthz/pkg/core/opa"
)

// EngineOptions collects the settings of an engine. Zero values fall back to
// configuration.
type EngineOptions struct {
	AccessLogFactory accesslog.Factory
	BackendFactory   backend.Factory
	// Store, when set, is used as is and BackendFactory is ignored.
	Store           model.Store
	Permissions     *config.Permissions
	Profile         string
	Extensions      []registry.Extension
	LegacyOptions   []legacy.Option
	Metrics         *metrics.Recorder
	CompilerOptions []opa.CompilerOptionFunc
}

// EngineOptionsFunc modifies EngineOptions.
type EngineOptionsFunc func(*EngineOptions)

// WithAccessLog sets the audit destination. The default is stdout.
func WithAccessLog(factory accesslog.Factory) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.AccessLogFactory = factory
	}
}

// WithBackend sets the factory the store is opened from.
func WithBackend(factory backend.Factory) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.BackendFactory = factory
	}
}

// WithStore uses an already open store.
func WithStore(s model.Store) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.Store = s
	}
}

// WithPermissions replaces the permission snapshot otherwise read from the
// auth.* configuration keys.
func WithPermissions(p *config.Permissions) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.Permissions = p
	}
}

// WithProfile selects the rule set, overriding auth.profile.
func WithProfile(profile string) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.Profile = profile
	}
}

// WithExtensions appends chained extensions. The first registered extension
// runs first.
func WithExtensions(exts ...registry.Extension) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.Extensions = append(o.Extensions, exts...)
	}
}

// WithLegacyExtensions registers extensions consulted first by the role
// authorizer of the legacy profile.
func WithLegacyExtensions(exts ...legacy.Extension) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.LegacyOptions = append(o.LegacyOptions, legacy.WithExtensions(exts...))
	}
}

// WithBlacklister replaces the blacklist of the legacy profile, otherwise
// read from auth.blacklist.
func WithBlacklister(b legacy.Blacklister) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.LegacyOptions = append(o.LegacyOptions, legacy.WithBlacklister(b))
	}
}

// WithMetrics counts decisions in rec.
func WithMetrics(rec *metrics.Recorder) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.Metrics = rec
	}
}

// WithCompilerOptions configures the Rego compiler of the rego extension.
func WithCompilerOptions(opts ...opa.CompilerOptionFunc) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.CompilerOptions = opts
	}
}

// AuthzOptions modifies one check.
type AuthzOptions struct {
	Probe bool
}

// AuthzOptionsFunc modifies AuthzOptions.
type AuthzOptionsFunc func(*AuthzOptions)

// SetProbeMode evaluates without writing an access record. Use it to ask
// whether a user could act, for example to show or hide an edit button,
// without leaving an audit trail of an attempt that never happened.
//
// Metrics are still counted.
func SetProbeMode(probe bool) AuthzOptionsFunc {
	return func(o *AuthzOptions) {
		o.Probe = probe
	}
}
