//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package mock provides the backend an engine falls back to when none is
// configured: an in-memory store holding only the default role actions.
package mock

import (
	"context"

	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/core/backend"
	"github.com/manetu/portalauthz/pkg/core/model"
	"github.com/manetu/portalauthz/pkg/core/model/memory"
)

var logger = logging.GetLogger("portalauthz.backend.mock")

// Factory creates empty stores, optionally seeded from a fixture.
type Factory struct {
	fixture *memory.Fixture
}

// NewFactory returns a factory of empty stores.
func NewFactory() backend.Factory {
	return &Factory{}
}

// NewFactoryWithFixture returns a factory of stores built from f.
func NewFactoryWithFixture(f *memory.Fixture) backend.Factory {
	return &Factory{fixture: f}
}

// NewStore builds the store.
func (f *Factory) NewStore(context.Context) (model.Store, error) {
	if f.fixture == nil {
		logger.Warn("mock", "NewStore", "no backend configured; using an empty store")
	}
	return memory.New(f.fixture), nil
}
