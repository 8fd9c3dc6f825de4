//
//  Copyright © Manetu Inc. All rights reserved.
//

package lint

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/manetu/portalauthz/cmd/mpa/common"
	"github.com/manetu/portalauthz/pkg/core/config"
	"github.com/manetu/portalauthz/pkg/core/model/memory"
	"github.com/manetu/portalauthz/pkg/core/opa"
	"github.com/manetu/portalauthz/pkg/extensions/rego"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Result represents the outcome of a lint operation on a file.
type Result struct {
	File    string
	Valid   bool
	Error   error
	Message string
	Type    string // "fixture" or "rego"
}

// Execute runs the lint command with the provided context and CLI command.
func Execute(ctx context.Context, cmd *cli.Command) error {
	files := cmd.StringSlice("file")
	if len(files) == 0 {
		return fmt.Errorf("no files specified, use --file/-f to specify fixtures or Rego policies to lint")
	}

	regoVersion := common.GetRegoVersionFromOPAFlags(cmd.Bool("no-opa-flags"), cmd.String("opa-flags"))
	query := cmd.String("query")
	if query == "" {
		if err := config.Load(); err != nil {
			return err
		}
		query = config.VConfig.GetString(config.RegoQuery)
	}

	w := cmd.Root().Writer
	if w == nil {
		w = os.Stdout
	}

	errorCount := lintFiles(ctx, w, files, regoVersion, query, cmd.Bool("regal"))

	_, _ = fmt.Fprintln(w, "---")
	if errorCount > 0 {
		_, _ = fmt.Fprintf(w, "Linting completed: %d error(s)\n", errorCount)
		return fmt.Errorf("linting failed: %d error(s)", errorCount)
	}

	_, _ = fmt.Fprintf(w, "All checks passed: %d path(s) validated successfully\n", len(files))
	return nil
}

func isRegoPath(path string) bool {
	if strings.ToLower(filepath.Ext(path)) == ".rego" {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// lintFiles validates fixtures one by one and compiles all Rego paths
// together as a single site policy. It returns the number of errors.
func lintFiles(ctx context.Context, w io.Writer, files []string, regoVersion ast.RegoVersion, query string, withRegal bool) int {
	errorCount := 0
	var regoPaths []string

	for _, file := range files {
		if isRegoPath(file) {
			regoPaths = append(regoPaths, file)
			continue
		}

		ext := strings.ToLower(filepath.Ext(file))
		if ext != ".yml" && ext != ".yaml" {
			_, _ = fmt.Fprintf(w, "⚠ %s: Unsupported file type (only .yml, .yaml, .rego or directories supported)\n\n", file)
			continue
		}

		result := lintFixture(file)
		if !result.Valid {
			errorCount++
			_, _ = fmt.Fprintf(w, "✗ %s (fixture)\n", file)
			if result.Error != nil {
				_, _ = fmt.Fprintf(w, "  Error: %s\n\n", formatYAMLError(result.Error))
			} else {
				_, _ = fmt.Fprintf(w, "  Error: %s\n\n", result.Message)
			}
		} else {
			_, _ = fmt.Fprintf(w, "✓ %s: Valid fixture\n", file)
		}
	}

	if len(regoPaths) == 0 {
		return errorCount
	}

	modules := make(opa.Modules)
	for _, p := range regoPaths {
		m, err := rego.LoadModules(p)
		if err != nil {
			_, _ = fmt.Fprintf(w, "✗ %s (Rego)\n  Error: %v\n\n", p, err)
			errorCount++
			continue
		}
		for name, src := range m {
			modules[name] = src
		}
	}
	if len(modules) == 0 {
		return errorCount
	}

	result := lintRego(modules, regoVersion, query)
	if !result.Valid {
		errorCount++
		_, _ = fmt.Fprintf(w, "✗ %s (Rego)\n  Error: %s\n\n", result.File, result.Message)
		return errorCount
	}
	for _, name := range sortedNames(modules) {
		_, _ = fmt.Fprintf(w, "✓ %s: Valid Rego\n", name)
	}

	if withRegal {
		errorCount += runRegalLint(ctx, w, modules)
	}

	return errorCount
}

func sortedNames(modules opa.Modules) []string {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lintFixture loads path the way the local backend does.
func lintFixture(path string) Result {
	result := Result{
		File:  path,
		Valid: true,
		Type:  "fixture",
	}

	if _, err := memory.LoadFile(path); err != nil {
		result.Valid = false
		result.Error = err
	}
	return result
}

// lintRego compiles modules as the engine would and checks that query
// names a rule they define.
func lintRego(modules opa.Modules, regoVersion ast.RegoVersion, query string) Result {
	names := sortedNames(modules)
	result := Result{
		File:  strings.Join(names, ", "),
		Valid: true,
		Type:  "rego",
	}

	compiler := opa.NewCompiler(opa.WithRegoVersion(regoVersion), opa.WithDefaultCapabilities())
	if _, err := rego.New(compiler, modules, query); err != nil {
		result.Valid = false
		result.Error = err
		result.Message = err.Error()
		return result
	}

	if !definesQuery(modules, regoVersion, query) {
		result.Valid = false
		result.Message = fmt.Sprintf("no rule defines %s", query)
	}
	return result
}

// definesQuery reports whether some module declares the rule named by a
// query of the form data.<package>.<rule>.
func definesQuery(modules opa.Modules, regoVersion ast.RegoVersion, query string) bool {
	idx := strings.LastIndex(query, ".")
	if idx < 0 {
		return false
	}
	pkg, rule := query[:idx], query[idx+1:]

	for name, src := range modules {
		m, err := ast.ParseModuleWithOpts(name, src, ast.ParserOptions{RegoVersion: regoVersion})
		if err != nil || m.Package.Path.String() != pkg {
			continue
		}
		for _, r := range m.Rules {
			if r.Head.Name.String() == rule || (len(r.Head.Reference) > 0 && r.Head.Reference[0].String() == rule) {
				return true
			}
		}
	}
	return false
}

func formatYAMLError(err error) string {
	if yamlErr, ok := err.(*yaml.TypeError); ok {
		if len(yamlErr.Errors) > 0 {
			return strings.Join(yamlErr.Errors, "\n  ")
		}
	}
	return err.Error()
}
