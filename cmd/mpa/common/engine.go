//
//  Copyright © Manetu Inc. All rights reserved.
//

package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/manetu/portalauthz/pkg/core"
	"github.com/manetu/portalauthz/pkg/core/accesslog"
	"github.com/manetu/portalauthz/pkg/core/backend"
	"github.com/manetu/portalauthz/pkg/core/backend/local"
	"github.com/manetu/portalauthz/pkg/core/backend/postgres"
	"github.com/manetu/portalauthz/pkg/core/config"
	"github.com/manetu/portalauthz/pkg/core/metrics"
	"github.com/manetu/portalauthz/pkg/core/opa"
	"github.com/manetu/portalauthz/pkg/core/options"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/urfave/cli/v3"
)

// OPAFlagsEnv overrides the default OPA flags when --opa-flags is absent.
const OPAFlagsEnv = "MPA_CLI_OPA_FLAGS"

// GetRegoVersionFromOPAFlags determines the Rego version from OPA flags.
// It checks CLI flags and environment variables to determine whether to
// parse extension policies as Rego v0 or v1.
func GetRegoVersionFromOPAFlags(noOPAFlags bool, opaFlagsStr string) ast.RegoVersion {
	if noOPAFlags {
		return ast.RegoV1
	}

	opaFlags := opaFlagsStr
	if opaFlags == "" {
		opaFlags = os.Getenv(OPAFlagsEnv)
		if opaFlags == "" {
			return ast.RegoV1
		}
	}

	opaFlags = strings.ToLower(strings.TrimSpace(opaFlags))
	if strings.Contains(opaFlags, "--v0-compatible") {
		return ast.RegoV0
	}
	if strings.Contains(opaFlags, "--v1-compatible") {
		return ast.RegoV1
	}

	log.Printf("WARNING: Unrecognized OPA flags '%s', defaulting to v1", opaFlags)
	return ast.RegoV1
}

// Backend selects the model store named by the --fixture or --dsn flags.
func Backend(cmd *cli.Command) (backend.Factory, error) {
	fixture := cmd.String("fixture")
	dsn := cmd.String("dsn")

	switch {
	case fixture != "" && dsn != "":
		return nil, fmt.Errorf("--fixture and --dsn are mutually exclusive")
	case fixture != "":
		return local.NewFactory(fixture), nil
	case dsn != "":
		return postgres.NewFactory(dsn, postgres.WithMigrate(cmd.Bool("migrate"))), nil
	}
	return nil, fmt.Errorf("one of --fixture or --dsn must be specified")
}

// NewCliEngine creates an engine configured from CLI command flags, writing
// its access log to stdout. A non-nil rec counts every decision.
func NewCliEngine(cmd *cli.Command, stdout io.Writer, rec *metrics.Recorder) (core.Engine, error) {
	traceEnabled := cmd.Root().Bool("trace")

	if err := config.Load(); err != nil {
		return nil, err
	}
	if p := cmd.String("rego"); p != "" {
		config.VConfig.Set(config.RegoPath, p)
	}
	if p := cmd.String("auxdata"); p != "" {
		config.VConfig.Set(config.RegoAuxData, p)
	}

	be, err := Backend(cmd)
	if err != nil {
		return nil, err
	}

	regoVersion := GetRegoVersionFromOPAFlags(cmd.Bool("no-opa-flags"), cmd.String("opa-flags"))

	opts := []options.EngineOptionsFunc{
		options.WithAccessLog(accesslog.NewIoWriterFactory(stdout)),
		options.WithBackend(be),
		options.WithCompilerOptions(
			opa.WithRegoVersion(regoVersion),
			opa.WithDefaultTracing(traceEnabled)),
	}
	if profile := cmd.String("profile"); profile != "" {
		opts = append(opts, options.WithProfile(profile))
	}
	if rec != nil {
		opts = append(opts, options.WithMetrics(rec))
	}

	return core.NewEngine(opts...)
}

// EngineFlags are accepted by every command that builds an engine.
func EngineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "fixture",
			Aliases: []string{"f"},
			Usage:   "Load the portal model from the YAML fixture `FILE`",
		},
		&cli.StringFlag{
			Name:    "dsn",
			Usage:   "Read the portal model from the PostgreSQL database at `DSN`",
			Sources: cli.EnvVars("MPA_DSN"),
		},
		&cli.BoolFlag{
			Name:  "migrate",
			Usage: "Create the authorization tables when connecting with --dsn",
		},
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "The rule set to apply: 'default', 'legacy' or 'publisher' (default: auth.profile)",
		},
		&cli.StringFlag{
			Name:  "rego",
			Usage: "Chain the site policy in `PATH` (a .rego file or directory) in front of every action",
		},
		&cli.StringFlag{
			Name:  "auxdata",
			Usage: "Expose the files in `DIR` to the site policy as input.auxdata",
		},
		&cli.StringFlag{
			Name:  "opa-flags",
			Usage: "Flags selecting the Rego dialect of --rego, e.g. --v0-compatible. Can also be set via MPA_CLI_OPA_FLAGS environment variable.",
		},
		&cli.BoolFlag{
			Name:  "no-opa-flags",
			Usage: "Disable all OPA flags (overrides --opa-flags and MPA_CLI_OPA_FLAGS).",
		},
	}
}
