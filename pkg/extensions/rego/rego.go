//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package rego chains site-specific Rego policy in front of the built-in
// predicates.
//
// The decision query is evaluated once per action with the input
//
//	{
//	  "action":  "package_update",
//	  "user":    {"id": "...", "name": "..."},   // null when anonymous
//	  "data":    {...},                            // the DataDict
//	  "auxdata": {...}                             // optional site facts
//	}
//
// and must produce either a string or an object {"effect": ..., "msg": ...}
// with an effect of "allow", "deny" or "defer". Deferring hands the action
// to the next predicate of the chain. An undefined decision is an
// evaluation error, so policies normally declare
//
//	default decision := "defer"
//
// Sysadmins are granted before the chain is entered and never reach the
// policy.
package rego

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/authz/registry"
	"github.com/manetu/portalauthz/pkg/common"
	"github.com/manetu/portalauthz/pkg/core/auxdata"
	"github.com/manetu/portalauthz/pkg/core/opa"
	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

var logger = logging.GetLogger("portalauthz.extensions.rego")

const agent = "rego"

// Name identifies the extension in logs.
const Name = "rego"

// Effects a policy may return.
const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
	EffectDefer = "defer"
)

// Extension evaluates one compiled policy for every action.
type Extension struct {
	ast     *opa.Ast
	query   string
	auxdata map[string]interface{}
	actions map[authz.Action]bool
}

var _ registry.Extension = (*Extension)(nil)

// Option configures an [Extension].
type Option func(e *Extension)

// WithAuxData hands data to the policy as input.auxdata.
func WithAuxData(data map[string]interface{}) Option {
	return func(e *Extension) {
		e.auxdata = data
	}
}

// WithActions restricts the chain to the given actions. By default every
// action is chained.
func WithActions(actions ...authz.Action) Option {
	return func(e *Extension) {
		e.actions = make(map[authz.Action]bool, len(actions))
		for _, a := range actions {
			e.actions[a] = true
		}
	}
}

// New compiles modules with compiler.
func New(compiler *opa.Compiler, modules opa.Modules, query string, opts ...Option) (*Extension, error) {
	if len(modules) == 0 {
		return nil, common.NewError(common.InvalidParam, "rego extension: no modules")
	}

	ast, err := compiler.Compile(Name, modules)
	if err != nil {
		return nil, errors.Wrap(err, "rego extension")
	}

	e := &Extension{ast: ast, query: query}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// LoadModules reads path, a single .rego file or a directory searched
// recursively for .rego files. Test files (*_test.rego) are skipped.
func LoadModules(path string) (opa.Modules, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "rego extension: %s", path)
	}

	var files []string
	if info.IsDir() {
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(p, ".rego") && !strings.HasSuffix(p, "_test.rego") {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "rego extension: walking %s", path)
		}
	} else {
		files = []string{path}
	}
	sort.Strings(files)

	modules := make(opa.Modules, len(files))
	for _, f := range files {
		src, err := os.ReadFile(filepath.Clean(f))
		if err != nil {
			return nil, errors.Wrapf(err, "rego extension: reading %s", f)
		}
		modules[f] = string(src)
	}
	return modules, nil
}

// NewFromPath loads the modules under path and compiles them.
func NewFromPath(compiler *opa.Compiler, path, query string, opts ...Option) (*Extension, error) {
	modules, err := LoadModules(path)
	if err != nil {
		return nil, err
	}
	logger.SysDebugf("rego extension: %d module(s) from %s", len(modules), path)
	return New(compiler, modules, query, opts...)
}

// Name implements [registry.Extension].
func (e *Extension) Name() string {
	return Name
}

// Chains implements [registry.Extension].
func (e *Extension) Chains() map[authz.Action]registry.Chain {
	chains := make(map[authz.Action]registry.Chain)
	for _, a := range authz.Actions() {
		if e.actions != nil && !e.actions[a] {
			continue
		}
		action := a
		chains[action] = func(next authz.Predicate) authz.Predicate {
			return e.predicate(action, next)
		}
	}
	return chains
}

func (e *Extension) input(action authz.Action, c *authz.Context, data authz.DataDict) map[string]interface{} {
	var user interface{}
	if u := c.AuthUserObj; u != nil {
		user = map[string]interface{}{"id": u.ID, "name": u.Name}
	}

	in := map[string]interface{}{
		"action": string(action),
		"user":   user,
		"data":   deepcopy.Copy(map[string]interface{}(data)),
	}
	return auxdata.MergeAuxData(in, e.auxdata)
}

func (e *Extension) predicate(action authz.Action, next authz.Predicate) authz.Predicate {
	return func(ctx context.Context, c *authz.Context, data authz.DataDict) (authz.Result, error) {
		result, perr := e.ast.Evaluate(ctx, e.query, e.input(action, c, data))
		if perr != nil {
			return authz.Result{}, perr
		}
		if len(result.Expressions) == 0 {
			return authz.Result{}, common.NewErrorf(common.EvaluationError, "rego extension: empty result for %s", action)
		}

		effect, msg, err := parseDecision(result.Expressions[0].Value)
		if err != nil {
			return authz.Result{}, err
		}

		logger.Debugf(c.User, string(action), "rego effect: %s", effect)
		switch effect {
		case EffectAllow:
			return authz.Allow(), nil
		case EffectDeny:
			if msg == "" {
				msg = "Denied by site policy"
			}
			return authz.Deny(msg), nil
		default:
			return next(ctx, c, data)
		}
	}
}

func parseDecision(v interface{}) (string, string, error) {
	var effect, msg string
	switch d := v.(type) {
	case string:
		effect = d
	case map[string]interface{}:
		effect = cast.ToString(d["effect"])
		msg = cast.ToString(d["msg"])
	default:
		return "", "", common.NewErrorf(common.EvaluationError, "rego extension: unexpected decision %T", v)
	}

	switch effect {
	case EffectAllow, EffectDeny, EffectDefer:
		return effect, msg, nil
	}
	return "", "", common.NewErrorf(common.EvaluationError, "rego extension: unknown effect %q", effect)
}
