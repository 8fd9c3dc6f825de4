//
//  Copyright © Manetu Inc. All rights reserved.
//

package common

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	coretest "github.com/manetu/portalauthz/internal/core/test"
	"github.com/manetu/portalauthz/pkg/authz"
	"github.com/manetu/portalauthz/pkg/core/config"
	"github.com/manetu/portalauthz/pkg/core/metrics"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestMain(m *testing.M) {
	if err := coretest.SetupTestConfig(); err != nil {
		panic(err)
	}
	config.ResetConfig()
	os.Exit(m.Run())
}

func TestGetRegoVersionFromOPAFlags(t *testing.T) {
	t.Setenv(OPAFlagsEnv, "")

	assert.Equal(t, ast.RegoV1, GetRegoVersionFromOPAFlags(false, ""))
	assert.Equal(t, ast.RegoV0, GetRegoVersionFromOPAFlags(false, "--v0-compatible"))
	assert.Equal(t, ast.RegoV1, GetRegoVersionFromOPAFlags(false, "--V1-COMPATIBLE"))
	assert.Equal(t, ast.RegoV1, GetRegoVersionFromOPAFlags(true, "--v0-compatible"))
	assert.Equal(t, ast.RegoV1, GetRegoVersionFromOPAFlags(false, "--strict"))

	t.Setenv(OPAFlagsEnv, "--v0-compatible")
	assert.Equal(t, ast.RegoV0, GetRegoVersionFromOPAFlags(false, ""))
	assert.Equal(t, ast.RegoV1, GetRegoVersionFromOPAFlags(true, ""))
}

// run invokes action under a command carrying EngineFlags.
func run(t *testing.T, args []string, action cli.ActionFunc) error {
	t.Helper()
	cmd := &cli.Command{
		Name:  "mpa",
		Flags: []cli.Flag{&cli.BoolFlag{Name: "trace"}},
		Commands: []*cli.Command{
			{
				Name:   "probe",
				Flags:  EngineFlags(),
				Action: action,
			},
		},
	}
	return cmd.Run(context.Background(), append([]string{"mpa", "probe"}, args...))
}

func TestBackend(t *testing.T) {
	err := run(t, nil, func(_ context.Context, cmd *cli.Command) error {
		_, err := Backend(cmd)
		return err
	})
	assert.ErrorContains(t, err, "one of --fixture or --dsn")

	err = run(t, []string{"--fixture", "x.yaml", "--dsn", "postgres://localhost/portal"}, func(_ context.Context, cmd *cli.Command) error {
		_, err := Backend(cmd)
		return err
	})
	assert.ErrorContains(t, err, "mutually exclusive")
}

func TestNewCliEngine(t *testing.T) {
	fixture := filepath.Join(coretest.GetTestdataPath(), coretest.TestFixture)
	rec := metrics.NewRecorder()

	err := run(t, []string{"--fixture", fixture, "--profile", "publisher"}, func(ctx context.Context, cmd *cli.Command) error {
		engine, err := NewCliEngine(cmd, io.Discard, rec)
		if err != nil {
			return err
		}
		defer engine.Close()

		assert.Equal(t, "publisher", engine.Profile())
		res, err := engine.IsAuthorized(ctx, authz.PackageUpdate, engine.NewContext("alice"), authz.DataDict{"id": "d1"})
		require.NoError(t, err)
		assert.True(t, res.Success)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Decisions().WithLabelValues("package_update", "publisher", metrics.Grant)))
}
