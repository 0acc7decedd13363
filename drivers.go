package sqlforge

import (
	"fmt"

	"github.com/satishbabariya/sqlforge/dialect"
	"github.com/satishbabariya/sqlforge/dialect/mysql"
	"github.com/satishbabariya/sqlforge/dialect/postgres"
	"github.com/satishbabariya/sqlforge/dialect/sqlite"
)

// DialectFor maps a driver or provider name to its dialect and the database/sql driver name
// registered for it.
func DialectFor(driver string, arrayParams bool) (dialect.Dialect, string, error) {
	switch driver {
	case "postgres", "postgresql", "pq":
		return postgres.New(), postgres.Name, nil
	case "mysql", "mariadb":
		return mysql.New(), mysql.Name, nil
	case "sqlite", "sqlite3", "file":
		d, err := sqlite.New(sqlite.Options{ArrayParams: arrayParams})
		if err != nil {
			return nil, "", err
		}
		return d, sqlite.Name, nil
	default:
		return nil, "", fmt.Errorf("unsupported driver: %s", driver)
	}
}
