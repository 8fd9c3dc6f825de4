//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package opa compiles Rego modules and evaluates decision queries against
// them. It backs the rego extension and the lint command.
package opa

import (
	"context"
	"fmt"
	"strings"

	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/common"
	"github.com/mohae/deepcopy"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

var logger = logging.GetLogger("portalauthz.opa")

const agent = "opa"

// Builtins is a set of built-in function names.
type Builtins map[string]struct{}

// ParseBuiltins splits a comma-separated list such as "http.send,net.lookup_ip_addr".
func ParseBuiltins(list string) Builtins {
	b := Builtins{}
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			b[name] = struct{}{}
		}
	}
	return b
}

// Modules maps a module file name to its source.
type Modules map[string]string

// CompilerOptions configures a [Compiler].
type CompilerOptions struct {
	regoVersion  ast.RegoVersion
	capabilities *ast.Capabilities
	trace        bool
}

// CompilerOptionFunc modifies CompilerOptions.
type CompilerOptionFunc func(*CompilerOptions)

// WithRegoVersion selects the Rego dialect modules are parsed with.
func WithRegoVersion(v ast.RegoVersion) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		o.regoVersion = v
	}
}

// WithCapabilities replaces the capability set. Apply it before
// [WithUnsafeBuiltins].
func WithCapabilities(c *ast.Capabilities) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		o.capabilities = c
	}
}

// WithDefaultCapabilities restores the capabilities of the linked OPA version.
func WithDefaultCapabilities() CompilerOptionFunc {
	return WithCapabilities(ast.CapabilitiesForThisVersion())
}

// WithUnsafeBuiltins removes the named built-ins from the capability set.
func WithUnsafeBuiltins(unsafe Builtins) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		kept := make([]*ast.Builtin, 0, len(o.capabilities.Builtins))
		for _, b := range o.capabilities.Builtins {
			if _, drop := unsafe[b.Name]; !drop {
				kept = append(kept, b)
			}
		}
		o.capabilities.Builtins = kept
	}
}

// WithDefaultTracing sets whether evaluations trace unless overridden by
// [WithTrace]. It defaults to the trace level of the opa logger.
func WithDefaultTracing(trace bool) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		o.trace = trace
	}
}

// Compiler turns Rego source into an [Ast].
type Compiler struct {
	options *CompilerOptions
}

// NewCompiler returns a Rego v1 compiler with the default capabilities.
func NewCompiler(options ...CompilerOptionFunc) *Compiler {
	opts := &CompilerOptions{
		regoVersion:  ast.RegoV1,
		capabilities: ast.CapabilitiesForThisVersion(),
		trace:        logger.IsTraceEnabled(),
	}
	for _, o := range options {
		o(opts)
	}
	return &Compiler{options: opts}
}

// Clone copies c, capabilities included, and applies options to the copy.
func (c *Compiler) Clone(options ...CompilerOptionFunc) *Compiler {
	opts := &CompilerOptions{
		regoVersion:  c.options.regoVersion,
		capabilities: deepcopy.Copy(c.options.capabilities).(*ast.Capabilities),
		trace:        c.options.trace,
	}
	for _, o := range options {
		o(opts)
	}
	return &Compiler{options: opts}
}

// Ast holds a compiled set of modules, ready for repeated evaluation.
type Ast struct {
	name     string
	compiler *ast.Compiler
	trace    bool
}

// Compile parses and compiles modules as one unit.
func (c *Compiler) Compile(name string, modules Modules) (*Ast, error) {
	parsed := make(map[string]*ast.Module, len(modules))
	for file, src := range modules {
		m, err := ast.ParseModuleWithOpts(file, src, ast.ParserOptions{RegoVersion: c.options.regoVersion})
		if err != nil {
			return nil, err
		}
		parsed[file] = m
	}

	compiler := ast.NewCompiler().WithCapabilities(c.options.capabilities)
	compiler.Compile(parsed)
	if compiler.Failed() {
		return nil, compiler.Errors
	}

	return &Ast{name: name, compiler: compiler, trace: c.options.trace}, nil
}

// Name returns the name given at compile time.
func (p *Ast) Name() string {
	return p.name
}

// EvalOptions configures one evaluation.
type EvalOptions struct {
	trace bool
}

// EvalOptionFunc modifies EvalOptions.
type EvalOptionFunc func(*EvalOptions)

// WithTrace turns tracing on or off for one evaluation.
func WithTrace(trace bool) EvalOptionFunc {
	return func(o *EvalOptions) {
		o.trace = trace
	}
}

// Evaluate runs query against the compiled modules and returns the first
// result. A query without results is an EvaluationError.
func (p *Ast) Evaluate(ctx context.Context, query string, input interface{}, options ...EvalOptionFunc) (rego.Result, *common.AuthError) {
	logger.Debug(agent, "Evaluate", "Enter")
	defer logger.Debug(agent, "Evaluate", "Exit")

	opts := &EvalOptions{trace: p.trace}
	for _, o := range options {
		o(opts)
	}

	r := rego.New(
		rego.Query(query),
		rego.Compiler(p.compiler),
		rego.Input(input),
		rego.Trace(opts.trace),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		logger.Debugf(agent, "Evaluate", "eval %s: %+v", p.name, err)
		return rego.Result{}, common.NewError(common.EvaluationError, err.Error())
	}
	if len(results) == 0 {
		logger.Debugf(agent, "Evaluate", "no results: %s, input: %+v", p.name, input)
		return rego.Result{}, common.NewErrorf(common.EvaluationError, "no opa results: %s", p.name)
	}

	if opts.trace {
		buf := new(strings.Builder)
		rego.PrintTraceWithLocation(buf, r)
		logger.Trace(agent, "Evaluate", "rego trace:")
		_, _ = fmt.Fprintln(logger.Out(), buf.String())
		common.PrettyPrint(logger.Out(), results)
	}

	return results[0], nil
}
