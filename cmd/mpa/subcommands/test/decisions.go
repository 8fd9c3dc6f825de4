//
//  Copyright © Manetu Inc. All rights reserved.
//

package test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/manetu/portalauthz/cmd/mpa/common"
	"github.com/manetu/portalauthz/pkg/core"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// TestCase represents a single decision test case
type TestCase struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Request     Request    `yaml:",inline"`
	Result      TestResult `yaml:"result"`
}

// TestResult represents the expected result of a test. Code, when set,
// names the expected error code of a check that yields no decision, such
// as NOT_FOUND.
type TestResult struct {
	Allow bool   `yaml:"allow"`
	Code  string `yaml:"code"`
}

// TestSuite represents a collection of test cases
type TestSuite struct {
	Tests []TestCase `yaml:"tests"`
}

// ExecuteDecisions runs a suite of decision tests from a YAML file
func ExecuteDecisions(ctx context.Context, cmd *cli.Command) error {
	inputPath := cmd.String("input")
	testSuite, err := loadTestSuite(inputPath)
	if err != nil {
		return fmt.Errorf("failed to load test suite: %w", err)
	}

	if len(testSuite.Tests) == 0 {
		return fmt.Errorf("no tests found in test suite")
	}

	testsToRun := filterTests(testSuite.Tests, cmd.StringSlice("test"))
	if len(testsToRun) == 0 {
		return fmt.Errorf("no tests match the specified patterns")
	}

	engine, err := common.NewCliEngine(cmd, accessLogWriter(cmd), nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}

	_, failed := runSuite(ctx, engine, testsToRun, out)
	if failed > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

// runSuite evaluates every test and prints a PASS/FAIL line for each.
func runSuite(ctx context.Context, engine core.Engine, tests []TestCase, w io.Writer) (int, int) {
	passed := 0
	failed := 0

	for _, tc := range tests {
		outcome, err := decide(ctx, engine, tc.Request)
		switch {
		case err != nil:
			_, _ = fmt.Fprintf(w, "%s: ERROR (%v)\n", tc.Name, err)
			failed++
		case tc.Result.Code != "" && outcome.Code != tc.Result.Code:
			_, _ = fmt.Fprintf(w, "%s: FAIL (expected code=%s, got code=%s)\n", tc.Name, tc.Result.Code, outcome.Code)
			failed++
		case outcome.Success != tc.Result.Allow:
			_, _ = fmt.Fprintf(w, "%s: FAIL (expected allow=%t, got allow=%t: %s)\n", tc.Name, tc.Result.Allow, outcome.Success, outcome.Msg)
			failed++
		default:
			_, _ = fmt.Fprintf(w, "%s: PASS\n", tc.Name)
			passed++
		}
	}

	total := passed + failed
	_, _ = fmt.Fprintf(w, "\n%d/%d tests passed\n", passed, total)

	return passed, failed
}

// loadTestSuite reads and parses a test suite from a YAML file
func loadTestSuite(path string) (*TestSuite, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- CLI tool intentionally reads user-provided paths
	if err != nil {
		return nil, fmt.Errorf("failed to read test file: %w", err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse test file: %w", err)
	}

	return &suite, nil
}

// filterTests returns tests that match the specified patterns.
// If no patterns are specified, all tests are returned.
// Patterns support glob matching (e.g., "editor-*" matches "editor-updates").
func filterTests(tests []TestCase, patterns []string) []TestCase {
	if len(patterns) == 0 {
		return tests
	}

	var filtered []TestCase
	for _, tc := range tests {
		for _, pattern := range patterns {
			matched, err := filepath.Match(pattern, tc.Name)
			if err != nil {
				// Invalid pattern - treat as literal match
				if pattern == tc.Name {
					filtered = append(filtered, tc)
					break
				}
			} else if matched {
				filtered = append(filtered, tc)
				break
			}
		}
	}

	return filtered
}
