//
//  Copyright © Manetu Inc. All rights reserved.
//

package test

import (
	"fmt"
	"io"
	"os"
)

func readInput(path string) ([]byte, error) {
	var f *os.File
	if path == "-" || path == "" {
		f = os.Stdin
	} else {
		var err error
		f, err = os.Open(path) // #nosec G304 -- CLI tool intentionally reads user-provided paths
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}
