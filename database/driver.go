package database

import (
	"fmt"
	"strings"
)

type SqlDriverType int

const (
	SqlDriverTypeSqlite SqlDriverType = iota + 1
	SqlDriverTypeMysql
	SqlDriverTypePostgresql
)

// ParseDriverType maps the driver name of a profile to its type.
func ParseDriverType(name string) (SqlDriverType, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SqlDriverTypeSqlite, nil
	case "mysql":
		return SqlDriverTypeMysql, nil
	case "postgres", "postgresql", "pq":
		return SqlDriverTypePostgresql, nil
	}
	return 0, fmt.Errorf("database: unknown driver %q", name)
}

func (driver SqlDriverType) String() string {
	switch driver {
	case SqlDriverTypeSqlite:
		return "sqlite"
	case SqlDriverTypeMysql:
		return "mysql"
	case SqlDriverTypePostgresql:
		return "postgres"
	}
	return "unknown"
}

// SqlDriverName is the name the driver registers with database/sql.
func (driver SqlDriverType) SqlDriverName() string {
	switch driver {
	case SqlDriverTypeSqlite:
		return "sqlite3"
	case SqlDriverTypeMysql:
		return "mysql"
	case SqlDriverTypePostgresql:
		return "postgres"
	}
	return ""
}

// DriverType returns the driver type of databaseID in env.
func (cfg Config) DriverType(env string, databaseID int) (SqlDriverType, error) {
	profile, err := cfg.Profile(env, databaseID)
	if err != nil {
		return 0, err
	}
	return ParseDriverType(profile.Driver)
}
