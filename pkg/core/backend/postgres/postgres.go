//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package postgres provides a backend reading portal state from Postgres
// through the lib/pq driver.
package postgres

import (
	"context"
	"database/sql"

	"github.com/manetu/portalauthz/internal/logging"
	"github.com/manetu/portalauthz/pkg/core/backend"
	"github.com/manetu/portalauthz/pkg/core/model"
	"github.com/manetu/portalauthz/pkg/core/model/sqlstore"
	"github.com/pkg/errors"

	_ "github.com/lib/pq" // registers the postgres driver
)

var logger = logging.GetLogger("portalauthz.backend.postgres")

const agent = "backend.postgres"

// DriverName is the database/sql driver used unless overridden.
const DriverName = "postgres"

// Factory opens a connection pool per store.
type Factory struct {
	driver  string
	dsn     string
	migrate bool
}

// Option modifies a Factory.
type Option func(*Factory)

// WithMigrate applies [sqlstore.Schema] after connecting.
func WithMigrate(migrate bool) Option {
	return func(f *Factory) {
		f.migrate = migrate
	}
}

// WithDriver selects another registered database/sql driver.
func WithDriver(name string) Option {
	return func(f *Factory) {
		f.driver = name
	}
}

// NewFactory returns a factory connecting to dsn, for example
// "postgres://portal@localhost/portal?sslmode=disable".
func NewFactory(dsn string, opts ...Option) backend.Factory {
	f := &Factory{driver: DriverName, dsn: dsn}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Store is a [sqlstore.Store] that owns its pool.
type Store struct {
	*sqlstore.Store
	db *sql.DB
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewStore connects, verifies the connection and optionally migrates.
func (f *Factory) NewStore(ctx context.Context) (model.Store, error) {
	db, err := sql.Open(f.driver, f.dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to reach database")
	}

	s := sqlstore.New(db)
	if f.migrate {
		logger.Info(agent, "NewStore", "applying schema")
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Store{Store: s, db: db}, nil
}
