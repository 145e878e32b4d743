// Package migrate applies the embedded SQL migrations with golang-migrate.
package migrate

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"starterkit/api/internal/database"
)

var ErrNoChange = migrate.ErrNoChange

const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Run migrates the database at dsn one way to the end. Being already at the
// target is not an error.
func Run(dsn string, direction string) error {
	if dsn == "" {
		return errors.New("postgres dsn is empty; set STARTER_POSTGRES_DSN")
	}
	if direction != DirectionUp && direction != DirectionDown {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	source, err := iofs.New(database.MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case DirectionUp:
		err = m.Up()
	case DirectionDown:
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	return nil
}
