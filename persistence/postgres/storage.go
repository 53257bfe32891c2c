package postgres

import (
	"database/sql"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/flowops/cadenza/persistence"
	"github.com/flowops/cadenza/persistence/postgres/migrations"
)

type Config struct {
	DSN string
}

// NewStorage opens the database, applies pending migrations and returns the
// postgres backend.
func NewStorage(conf Config) (*persistence.Storage, error) {
	if err := runMigrations(conf.DSN); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	db, err := sql.Open("postgres", conf.DSN)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if err := db.Ping(); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return &persistence.Storage{
		Metadata:  &pgMetadataStorage{db: db},
		Rules:     &pgRuleStorage{db: db},
		Instances: &pgInstanceStorage{db: db},
		Tasks:     &pgTaskStorage{db: db},
		Logs:      &pgLogStorage{db: db},
	}, nil
}

func runMigrations(dsn string) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
