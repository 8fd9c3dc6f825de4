//
//  Copyright © Manetu Inc. All rights reserved.
//

package lint

import (
	"context"
	"fmt"
	"io"

	"github.com/manetu/portalauthz/pkg/core/opa"
	"github.com/open-policy-agent/regal/pkg/linter"
	"github.com/open-policy-agent/regal/pkg/report"
	"github.com/open-policy-agent/regal/pkg/rules"
)

// runRegalLint uses the Regal Go library to lint the provided Rego modules.
// Returns the number of violations found.
func runRegalLint(ctx context.Context, w io.Writer, modules opa.Modules) int {
	input, err := rules.InputFromMap(modules, nil)
	if err != nil {
		_, _ = fmt.Fprintf(w, "✗ Failed to parse Rego for Regal linting: %v\n", err)
		return 1
	}

	regalLinter := linter.NewLinter().WithInputModules(&input)

	regalReport, err := regalLinter.Lint(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(w, "✗ Regal linting failed: %v\n", err)
		return 1
	}

	for _, violation := range regalReport.Violations {
		printRegalViolation(w, violation)
	}

	return len(regalReport.Violations)
}

// printRegalViolation formats and prints a single Regal violation.
func printRegalViolation(w io.Writer, violation report.Violation) {
	_, _ = fmt.Fprintf(w, "✗ Regal: %s at %s:%d:%d\n", violation.Title, violation.Location.File, violation.Location.Row, violation.Location.Column)
	_, _ = fmt.Fprintf(w, "  Category: %s | Level: %s\n", violation.Category, violation.Level)
	if violation.Description != "" {
		_, _ = fmt.Fprintf(w, "  Description: %s\n", violation.Description)
	}
	_, _ = fmt.Fprintln(w)
}
