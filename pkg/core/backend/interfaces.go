//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package backend defines how an engine obtains its [model.Store].
//
// Two factories ship with the module: [local] loads a YAML fixture into the
// in-memory store and [postgres] opens the SQL store. Without a factory the
// engine runs on an empty in-memory store, which denies everything that
// needs an entity.
package backend

import (
	"context"

	"github.com/manetu/portalauthz/pkg/core/model"
)

// Factory opens the store of an engine. It is called once, after
// configuration is loaded. Stores holding resources also implement
// io.Closer; the engine closes them on Close.
type Factory interface {
	NewStore(ctx context.Context) (model.Store, error)
}

