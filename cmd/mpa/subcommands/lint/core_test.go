//
//  Copyright © Manetu Inc. All rights reserved.
//

package lint

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	coretest "github.com/manetu/portalauthz/internal/core/test"
	"github.com/manetu/portalauthz/pkg/core/opa"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

const query = "data.portal.authz.decision"

const sitePolicy = `package portal.authz

default decision := "defer"

decision := {"effect": "deny", "msg": "Datasets are frozen"} if {
	input.action == "package_update"
	input.data.id == "frozen"
}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func buildLintCommand(out *bytes.Buffer) *cli.Command {
	return &cli.Command{
		Name:   "mpa",
		Writer: out,
		Commands: []*cli.Command{
			{
				Name: "lint",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "file", Aliases: []string{"f"}},
					&cli.StringFlag{Name: "query"},
					&cli.BoolFlag{Name: "regal"},
					&cli.StringFlag{Name: "opa-flags"},
					&cli.BoolFlag{Name: "no-opa-flags"},
				},
				Action: Execute,
			},
		},
	}
}

func TestLintFixture(t *testing.T) {
	result := lintFixture(filepath.Join(coretest.GetTestdataPath(), coretest.TestFixture))
	assert.True(t, result.Valid, "%v", result.Error)

	result = lintFixture(writeFile(t, "bad.yaml", "users:\n  - {id: u1, nickname: x}\n"))
	assert.False(t, result.Valid, "unknown fields are rejected")
	assert.Error(t, result.Error)

	result = lintFixture("/nonexistent/portal.yaml")
	assert.False(t, result.Valid)
}

func TestLintRego(t *testing.T) {
	result := lintRego(opa.Modules{"site.rego": sitePolicy}, ast.RegoV1, query)
	assert.True(t, result.Valid, result.Message)

	result = lintRego(opa.Modules{"site.rego": "package portal.authz\n\ndecision := "}, ast.RegoV1, query)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Message)

	result = lintRego(opa.Modules{"site.rego": sitePolicy}, ast.RegoV1, "data.portal.authz.verdict")
	assert.False(t, result.Valid)
	assert.Contains(t, result.Message, "no rule defines data.portal.authz.verdict")

	result = lintRego(opa.Modules{"other.rego": "package other\n\ndecision := \"allow\"\n"}, ast.RegoV1, query)
	assert.False(t, result.Valid, "the rule must live in the queried package")
}

func TestLintFiles(t *testing.T) {
	var out bytes.Buffer
	fixture := filepath.Join(coretest.GetTestdataPath(), coretest.TestFixture)
	policy := writeFile(t, "site.rego", sitePolicy)

	errs := lintFiles(context.Background(), &out, []string{fixture, policy}, ast.RegoV1, query, false)
	assert.Equal(t, 0, errs, out.String())
	assert.Contains(t, out.String(), "Valid fixture")
	assert.Contains(t, out.String(), "Valid Rego")

	out.Reset()
	errs = lintFiles(context.Background(), &out, []string{writeFile(t, "notes.txt", "hello")}, ast.RegoV1, query, false)
	assert.Equal(t, 0, errs)
	assert.Contains(t, out.String(), "Unsupported file type")
}

func TestLintDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site.rego"), []byte(sitePolicy), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site_test.rego"), []byte("not rego at all"), 0o600))

	var out bytes.Buffer
	errs := lintFiles(context.Background(), &out, []string{dir}, ast.RegoV1, query, false)
	assert.Equal(t, 0, errs, out.String())
}

func TestRegal(t *testing.T) {
	var out bytes.Buffer
	violations := runRegalLint(context.Background(), &out, opa.Modules{"p.rego": "package p\n\nx = 1\n"})
	assert.Greater(t, violations, 0)
	assert.Contains(t, out.String(), "Regal:")
}

func TestExecute(t *testing.T) {
	var out bytes.Buffer
	cmd := buildLintCommand(&out)
	policy := writeFile(t, "site.rego", sitePolicy)

	err := cmd.Run(context.Background(), []string{"mpa", "lint", "-f", policy, "--query", query})
	require.NoError(t, err, out.String())
	assert.Contains(t, out.String(), "All checks passed")

	out.Reset()
	cmd = buildLintCommand(&out)
	bad := writeFile(t, "bad.rego", "package portal.authz\n\ndecision := ")
	err = cmd.Run(context.Background(), []string{"mpa", "lint", "-f", bad, "--query", query})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "linting failed")
}

func TestExecute_NoFiles(t *testing.T) {
	var out bytes.Buffer
	err := buildLintCommand(&out).Run(context.Background(), []string{"mpa", "lint"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files specified")
}
