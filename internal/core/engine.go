//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"context"
	"io"
	"time"

	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/authz/legacy"
	"github.com/manetu/portalauthz/pkg/authz/registry"
	"github.com/manetu/portalauthz/pkg/authz/resolve"
	"github.com/manetu/portalauthz/pkg/authz/rules/publisher"
	"github.com/manetu/portalauthz/pkg/authz/rules/roles"
	"github.com/manetu/portalauthz/pkg/authz/rules/standard"
	"github.com/manetu/portalauthz/pkg/common"
	"github.com/manetu/portalauthz/pkg/core/accesslog"
	"github.com/manetu/portalauthz/pkg/core/auxdata"
	"github.com/manetu/portalauthz/pkg/core/config"
	"github.com/manetu/portalauthz/pkg/core/metrics"
	"github.com/manetu/portalauthz/pkg/core/model"
	"github.com/manetu/portalauthz/pkg/core/opa"
	"github.com/manetu/portalauthz/pkg/core/options"
	"github.com/manetu/portalauthz/pkg/extensions/rego"
)

var logger = logging.GetLogger("portalauthz")

const agent = "engine"

// Profiles lists the selectable rule sets.
var Profiles = []string{standard.Profile, roles.Profile, publisher.Profile}

// Engine dispatches actions to the predicates of one profile.
type Engine struct {
	profile  string
	registry *registry.Registry
	store    model.Store
	perms    *config.Permissions
	audit    accesslog.Stream
	metrics  *metrics.Recorder
}

// ProfileTables returns the tables of profile. The legacy and publisher
// profiles override the default one action by action; actions they leave
// alone keep their default predicate.
func ProfileTables(profile string, legacyOpts ...legacy.Option) ([]registry.Table, error) {
	switch profile {
	case standard.Profile:
		return []registry.Table{standard.Table()}, nil
	case roles.Profile:
		return []registry.Table{standard.Table(), roles.Table(legacyOpts...)}, nil
	case publisher.Profile:
		return []registry.Table{standard.Table(), publisher.Table()}, nil
	}
	return nil, common.NewErrorf(common.InvalidParam, "unknown profile %q", profile)
}

func getUnsafeBuiltins() opa.Builtins {
	return opa.ParseBuiltins(config.VConfig.GetString(config.UnsafeBuiltIns))
}

// regoExtension builds the rego extension when extensions.rego.path is set.
func regoExtension(engineOptions *options.EngineOptions) (registry.Extension, error) {
	path := config.VConfig.GetString(config.RegoPath)
	if path == "" {
		return nil, nil
	}

	aux, err := auxdata.LoadAuxData(config.VConfig.GetString(config.RegoAuxData))
	if err != nil {
		return nil, err
	}

	compilerOptions := append([]opa.CompilerOptionFunc{}, engineOptions.CompilerOptions...)
	compilerOptions = append(compilerOptions, opa.WithUnsafeBuiltins(getUnsafeBuiltins()))
	compiler := opa.NewCompiler(compilerOptions...)

	return rego.NewFromPath(compiler, path, config.VConfig.GetString(config.RegoQuery), rego.WithAuxData(aux))
}

// NewEngine builds an engine from engineOptions. Unset options fall back to
// configuration.
func NewEngine(ctx context.Context, engineOptions *options.EngineOptions) (*Engine, error) {
	profile := engineOptions.Profile
	if profile == "" {
		profile = config.VConfig.GetString(config.Profile)
	}

	perms := engineOptions.Permissions
	if perms == nil {
		var err error
		if perms, err = config.LoadPermissions(); err != nil {
			return nil, err
		}
	}

	legacyOpts := append([]legacy.Option{
		legacy.WithBlacklister(legacy.NewBlacklister(config.Blacklisted()...)),
	}, engineOptions.LegacyOptions...)

	tables, err := ProfileTables(profile, legacyOpts...)
	if err != nil {
		return nil, err
	}

	exts := append([]registry.Extension{}, engineOptions.Extensions...)
	ext, err := regoExtension(engineOptions)
	if err != nil {
		return nil, err
	}
	if ext != nil {
		exts = append(exts, ext)
	}

	reg, err := registry.New(profile, tables, exts...)
	if err != nil {
		return nil, err
	}

	store := engineOptions.Store
	if store == nil {
		if store, err = engineOptions.BackendFactory.NewStore(ctx); err != nil {
			return nil, err
		}
	}

	al, err := engineOptions.AccessLogFactory.NewStream()
	if err != nil {
		return nil, err
	}

	logger.SysInfof("engine ready: profile %s, %d extension(s)", profile, len(exts))
	return &Engine{
		profile:  profile,
		registry: reg,
		store:    store,
		perms:    perms,
		audit:    al,
		metrics:  engineOptions.Metrics,
	}, nil
}

// Profile returns the active profile.
func (e *Engine) Profile() string {
	return e.profile
}

// Store returns the model store.
func (e *Engine) Store() model.Store {
	return e.store
}

// Permissions returns the permission snapshot.
func (e *Engine) Permissions() *config.Permissions {
	return e.perms
}

// NewContext returns a request context for user bound to the engine's store
// and permissions.
func (e *Engine) NewContext(user string) *authz.Context {
	return &authz.Context{User: user, Model: e.store, Config: e.perms}
}

func (e *Engine) bind(c *authz.Context) {
	if c.Model == nil {
		c.Model = e.store
	}
	if c.Config == nil {
		c.Config = e.perms
	}
}

func (e *Engine) evaluate(ctx context.Context, action authz.Action, c *authz.Context, data authz.DataDict) (authz.Result, error) {
	if c.IgnoreAuth {
		return authz.Allow(), nil
	}

	p, ok := e.registry.Lookup(action)
	if !ok {
		return authz.Result{}, common.NewErrorf(common.UnknownAction, "unknown action %q", action)
	}

	e.bind(c)
	u, err := resolve.ActingUser(ctx, c)
	if err != nil {
		return authz.Result{}, err
	}
	if u != nil && u.State == model.StateDeleted {
		return authz.Denyf("User %s is deleted", u.Name), nil
	}

	return p(ctx, c, data)
}

// IsAuthorized evaluates action and reports the decision. Errors are
// reserved for missing objects, unknown actions and store failures.
func (e *Engine) IsAuthorized(ctx context.Context, action authz.Action, c *authz.Context, data authz.DataDict, aos *options.AuthzOptions) (authz.Result, error) {
	logger.Debug(agent, "IsAuthorized", "Enter")
	defer logger.Debug(agent, "IsAuthorized", "Exit")

	start := time.Now()
	record := accesslog.NewRecord(e.profile, string(action), c.User)
	record.Object = data.Get(authz.KeyID)

	res, err := e.evaluate(ctx, action, c, data)

	// -------------------------- NOTE: all returns audited -----------------
	record.Duration = time.Since(start)
	outcome := metrics.Grant
	switch {
	case err != nil:
		record.Decision = accesslog.Error
		record.Reason = err.Error()
		outcome = metrics.Error
	case res.Success:
		record.Decision = accesslog.Grant
		if c.IgnoreAuth {
			record.Reason = "authorization ignored"
		}
	default:
		record.Decision = accesslog.Deny
		record.Reason = res.Msg
		outcome = metrics.Deny
	}
	if err == nil && !c.IgnoreAuth {
		record.Sysadmin, _ = c.IsSysadmin(ctx)
	}

	e.metrics.Observe(e.profile, string(action), outcome, record.Duration)
	e.auditDecision(aos, record)

	return res, err
}

func (e *Engine) auditDecision(aos *options.AuthzOptions, record *accesslog.Record) {
	if logger.IsDebugEnabled() {
		logger.Debugf(agent, "auditDecision", "options: %+v, access record:", aos)
		common.PrettyPrint(logger.Out(), record)
	}

	if e.audit != nil && !aos.Probe {
		if err := e.audit.Send(record); err != nil {
			logger.Errorf(agent, "auditDecision", "unable to send message for accesslog %+v", err)
		}
	}
}

// Close closes the access log stream and, when it holds resources, the
// store.
func (e *Engine) Close() {
	if e.audit != nil {
		e.audit.Close()
	}
	if c, ok := e.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warnf(agent, "Close", "closing store: %+v", err)
		}
	}
}
