package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// OpenDatabase opens a database/sql connection and pairs it with the bun
// dialect the persistence client expects for that driver. Supported drivers
// are "postgres" and "sqlite3".
func OpenDatabase(driver string, dsn string) (*sql.DB, schema.Dialect, error) {
	driver = strings.TrimSpace(strings.ToLower(driver))
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil, fmt.Errorf("sqlstore: dsn is required")
	}

	var dialect schema.Dialect
	switch driver {
	case "postgres", "pg":
		driver = "postgres"
		dialect = pgdialect.New()
	case "sqlite3", "sqlite":
		driver = "sqlite3"
		dialect = sqlitedialect.New()
	default:
		return nil, nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// shared-cache in-memory databases need a single connection to keep
		// the schema visible across sessions.
		if strings.Contains(dsn, "mode=memory") {
			db.SetMaxOpenConns(1)
		}
	}
	return db, dialect, nil
}
