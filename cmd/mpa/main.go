//
//  Copyright © Manetu Inc. All rights reserved.
//

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/manetu/portalauthz/cmd/mpa/common"
	"github.com/manetu/portalauthz/cmd/mpa/subcommands/lint"
	"github.com/manetu/portalauthz/cmd/mpa/subcommands/serve"
	"github.com/manetu/portalauthz/cmd/mpa/subcommands/test"
	"github.com/manetu/portalauthz/cmd/mpa/version"
	"github.com/manetu/portalauthz/internal/logging"
	"github.com/urfave/cli/v3"
)

var logger = logging.GetLogger("mpa")

func main() {
	cmd := &cli.Command{
		Name:    "mpa",
		Usage:   "A CLI application for working with the portal authorization engine",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "trace",
				Aliases: []string{"t"},
				Usage:   "Enable OPA trace logging output to stderr for commands that evaluate REGO",
				Value:   logger.IsTraceEnabled(),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "test",
				Usage: "Evaluates authorization checks against a portal model, simplifying rule and site-policy verification",
				Commands: []*cli.Command{
					{
						Name:  "decision",
						Usage: "Evaluates a single check and prints the outcome",
						Flags: append([]cli.Flag{
							&cli.StringFlag{
								Name:    "input",
								Aliases: []string{"i"},
								Usage:   "Load the check (action, user, data) from 'FILE', or use '-' for stdin",
							},
							&cli.StringFlag{
								Name:    "action",
								Aliases: []string{"a"},
								Usage:   "The action to check, e.g. package_update",
							},
							&cli.StringFlag{
								Name:    "user",
								Aliases: []string{"u"},
								Usage:   "The acting user's name or id. Omit for an anonymous request.",
							},
							&cli.StringFlag{
								Name:    "data",
								Aliases: []string{"d"},
								Usage:   "The action's data as a JSON object, e.g. '{\"id\": \"d1\"}'",
							},
						}, common.EngineFlags()...),
						Action: test.ExecuteDecision,
					},
					{
						Name:  "decisions",
						Usage: "Runs a suite of checks from a YAML file and reports PASS/FAIL for each",
						Flags: append([]cli.Flag{
							&cli.StringFlag{
								Name:     "input",
								Aliases:  []string{"i"},
								Usage:    "Load the test suite from `FILE`",
								Required: true,
							},
							&cli.StringSliceFlag{
								Name:  "test",
								Usage: "Only run tests whose name matches the glob `PATTERN`.  Can be specified multiple times.",
							},
						}, common.EngineFlags()...),
						Action: test.ExecuteDecisions,
					},
				},
			},
			{
				Name:  "serve",
				Usage: "Creates a decision-point service",
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "port",
						Usage: "The TCP port to serve on.",
						Value: 9000,
					},
					&cli.StringFlag{
						Name:  "protocol",
						Usage: "The protocol to serve.  Must be one of 'generic' or 'envoy'",
						Value: "generic",
						Action: func(ctx context.Context, command *cli.Command, s string) error {
							if s != "generic" && s != "envoy" {
								return fmt.Errorf("unsupported protocol: %s", s)
							}
							return nil
						},
					},
					&cli.BoolFlag{
						Name:  "metrics",
						Usage: "Count decisions and serve them on GET /metrics (generic protocol only)",
					},
				}, common.EngineFlags()...),
				Action: serve.Execute,
			},
			{
				Name:  "lint",
				Usage: "Validate portal fixtures and compile and lint site-policy Rego",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Fixture (.yml, .yaml), Rego file (.rego) or directory of Rego files to lint. Can be specified multiple times.",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "query",
						Usage: "The decision query the site policy must define (default: extensions.rego.query)",
					},
					&cli.BoolFlag{
						Name:  "regal",
						Usage: "Also lint Rego with Regal",
					},
					&cli.StringFlag{
						Name:  "opa-flags",
						Usage: "Flags selecting the Rego dialect, e.g. --v0-compatible. Can also be set via MPA_CLI_OPA_FLAGS environment variable.",
					},
					&cli.BoolFlag{
						Name:  "no-opa-flags",
						Usage: "Disable all OPA flags (overrides --opa-flags and MPA_CLI_OPA_FLAGS).",
					},
				},
				Action: lint.Execute,
			},
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(_ context.Context, cmd *cli.Command) error {
					_, err := fmt.Fprintln(cmd.Root().Writer, version.GetVersion())
					return err
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
