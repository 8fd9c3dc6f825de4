//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package local provides a backend serving portal state from a YAML fixture
// file, for development, tests and the check command.
//
//	engine, err := core.NewEngine(
//	    options.WithBackend(local.NewFactory("./portal.yaml")),
//	)
package local

import (
	"context"

	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/core/backend"
	"github.com/manetu/portalauthz/pkg/core/model"
	"github.com/manetu/portalauthz/pkg/core/model/memory"
)

var logger = logging.GetLogger("portalauthz.backend.local")

const agent = "backend.local"

// Factory loads one fixture file.
type Factory struct {
	path string
}

// NewFactory returns a factory for the fixture at path.
func NewFactory(path string) backend.Factory {
	return &Factory{path: path}
}

// NewStore reads the fixture. The file is read once; later edits are not
// picked up.
func (f *Factory) NewStore(context.Context) (model.Store, error) {
	logger.Debugf(agent, "NewStore", "loading fixture %s", f.path)
	return memory.LoadFile(f.path)
}
