//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package core provides the entry point of the portal authorization engine:
// the dispatch facade the action layer calls before executing an action.
//
// Every check names an [authz.Action], carries a request-scoped
// [authz.Context] and the action's [authz.DataDict]. The engine selects the
// predicate registered for the action under the active profile, runs it
// behind the sysadmin override and any extension chains, and reports the
// outcome.
//
// # Quick Start
//
// Create an engine with default options (stdout access log, empty store):
//
//	engine, err := core.NewEngine()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
// Guard an action:
//
//	c := engine.NewContext("alice")
//	err := engine.CheckAccess(ctx, authz.PackageUpdate, c, authz.DataDict{"id": "d1"})
//	switch {
//	case common.IsNotAuthorized(err):
//	    // 403
//	case common.IsNotFound(err):
//	    // 404
//	}
//
// # Configuration
//
//	engine, err := core.NewEngine(
//	    options.WithBackend(postgres.NewFactory(dsn)),
//	    options.WithProfile("legacy"),
//	    options.WithMetrics(metrics.NewRecorder()),
//	)
//
// # Probe Mode
//
// To ask whether a user could act without leaving an audit record, for
// example to decide whether to render an edit button:
//
//	res, err := engine.IsAuthorized(ctx, authz.PackageUpdate, c, data, options.SetProbeMode(true))
//
// See the [options] package for all available configuration options.
package core

import (
	"context"
	"os"

	"github.com/manetu/portalauthz/internal/core"
	"github.com/manetu/portalauthz/internal/core/backend/mock"
	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/common"
	"github.com/manetu/portalauthz/pkg/core/accesslog"
	"github.com/manetu/portalauthz/pkg/core/backend/local"
	"github.com/manetu/portalauthz/pkg/core/config"
	"github.com/manetu/portalauthz/pkg/core/model"
	"github.com/manetu/portalauthz/pkg/core/options"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("portalauthz")
var agent = "engine"

// Engine is the authorization facade consumed by the action layer.
//
// Implementations are safe for concurrent use. The [authz.Context] passed
// to a check is not; build one per request.
type Engine interface {
	// CheckAccess returns nil when action is permitted. A denial is an
	// [common.AuthError] with code NOT_AUTHORIZED carrying the predicate's
	// message. A missing object is NOT_FOUND and an unknown action is
	// UNKNOWN_ACTION.
	CheckAccess(ctx context.Context, action authz.Action, c *authz.Context, data authz.DataDict, authzOptions ...options.AuthzOptionsFunc) error

	// IsAuthorized is the non-raising form of CheckAccess: a denial is a
	// Result, not an error.
	IsAuthorized(ctx context.Context, action authz.Action, c *authz.Context, data authz.DataDict, authzOptions ...options.AuthzOptionsFunc) (authz.Result, error)

	// NewContext returns a request context for user bound to the engine's
	// store and permission snapshot. Pass "" for an anonymous request.
	NewContext(user string) *authz.Context

	// Profile returns the name of the active rule set.
	Profile() string

	// Store returns the model store the engine reads.
	Store() model.Store

	// Close releases the access log stream and the store.
	Close()
}

// EngineImpl is the default implementation of [Engine].
//
// Use [NewEngine] to create a properly initialized instance.
type EngineImpl struct {
	instance *core.Engine
}

// NewEngine creates an [Engine].
//
// NewEngine loads configuration from environment variables and config files
// first; see the [config] package. By default the engine writes its access
// log to stdout and reads an empty store, so every check needing an entity
// fails with NOT_FOUND until a backend is configured.
func NewEngine(engineOptions ...options.EngineOptionsFunc) (Engine, error) {
	err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "error loading config")
	}

	opts := &options.EngineOptions{
		AccessLogFactory: stdoutFactory(),
		BackendFactory:   mock.NewFactory(),
	}
	for _, o := range engineOptions {
		o(opts)
	}

	instance, err := core.NewEngine(context.Background(), opts)
	if err != nil {
		return nil, err
	}

	return &EngineImpl{instance: instance}, nil
}

func stdoutFactory() accesslog.Factory {
	if config.VConfig.GetBool(config.PrettyAccessLog) {
		return accesslog.NewIoWriterFactoryWithOptions(os.Stdout, accesslog.AccessLogOptions{PrettyPrint: true})
	}
	return accesslog.NewStdoutFactory()
}

// NewLocalEngine creates an [Engine] over the YAML fixture at path.
//
// Other defaults are inherited from [NewEngine].
func NewLocalEngine(path string, engineOptions ...options.EngineOptionsFunc) (Engine, error) {
	engineOptions = append([]options.EngineOptionsFunc{options.WithBackend(local.NewFactory(path))}, engineOptions...)
	return NewEngine(engineOptions...)
}

func authzOptions(fns []options.AuthzOptionsFunc) *options.AuthzOptions {
	opts := &options.AuthzOptions{Probe: false}
	for _, o := range fns {
		o(opts)
	}
	return opts
}

// IsAuthorized evaluates action and returns the decision.
//
// The decision, or the error that prevented one, is written to the access
// log unless probe mode is set.
func (e *EngineImpl) IsAuthorized(ctx context.Context, action authz.Action, c *authz.Context, data authz.DataDict, fns ...options.AuthzOptionsFunc) (authz.Result, error) {
	if c == nil {
		return authz.Result{}, common.NewError(common.InvalidParam, "missing context")
	}
	res, err := e.instance.IsAuthorized(ctx, action, c, data, authzOptions(fns))
	logger.Debugf(agent, "IsAuthorized", "%s for %q: %+v", action, c.User, res)
	return res, err
}

// CheckAccess evaluates action and converts a denial into an error.
func (e *EngineImpl) CheckAccess(ctx context.Context, action authz.Action, c *authz.Context, data authz.DataDict, fns ...options.AuthzOptionsFunc) error {
	res, err := e.IsAuthorized(ctx, action, c, data, fns...)
	if err != nil {
		return err
	}
	if !res.Success {
		return common.NewError(common.NotAuthorized, res.Msg)
	}
	return nil
}

// NewContext returns a request context for user.
func (e *EngineImpl) NewContext(user string) *authz.Context {
	return e.instance.NewContext(user)
}

// Profile returns the active profile.
func (e *EngineImpl) Profile() string {
	return e.instance.Profile()
}

// Store returns the model store.
func (e *EngineImpl) Store() model.Store {
	return e.instance.Store()
}

// Close releases the engine's resources.
func (e *EngineImpl) Close() {
	e.instance.Close()
}
