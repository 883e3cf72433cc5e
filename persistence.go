package authflow

import (
	"context"
	"database/sql"
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func init() {
	persistence.RegisterModel((*User)(nil))
}

// OpenSQLite opens the local mirror database. The default DSN is an in-memory
// database, which suits development and tests.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("authflow: opening database: %w", err)
	}

	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// OpenSQLiteFromConfig opens the database named by the environment config.
func OpenSQLiteFromConfig(cfg *EnvConfig) (*bun.DB, error) {
	if cfg == nil || cfg.DBPath == "" {
		return nil, fmt.Errorf("authflow: database path is required")
	}
	return OpenSQLite(cfg.DBPath)
}

// CreateSchema creates the tables the module owns. Deployments with managed
// migrations can skip this.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("authflow: creating schema: %w", err)
	}

	return nil
}
