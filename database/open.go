package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// DataSourceName returns the explicit DSN of the profile or builds one in the
// format of the driver.
func (profile Profile) DataSourceName(driverType SqlDriverType) string {
	if profile.DSN != "" {
		return profile.DSN
	}

	switch driverType {
	case SqlDriverTypePostgresql:
		var parts []string
		add := func(key, value string) {
			if value != "" {
				parts = append(parts, key+"="+quoteKeywordValue(value))
			}
		}
		add("host", profile.HostName)
		if profile.Port > 0 {
			add("port", strconv.Itoa(profile.Port))
		}
		add("dbname", profile.DatabaseName)
		add("user", profile.UserName)
		add("password", profile.Password)
		if profile.ConnectOptions != "" {
			parts = append(parts, strings.Fields(strings.ReplaceAll(profile.ConnectOptions, ";", " "))...)
		}
		return strings.Join(parts, " ")

	case SqlDriverTypeMysql:
		var b strings.Builder
		if profile.UserName != "" {
			b.WriteString(profile.UserName)
			if profile.Password != "" {
				b.WriteString(":" + profile.Password)
			}
			b.WriteString("@")
		}
		host := profile.HostName
		if profile.Port > 0 {
			host += ":" + strconv.Itoa(profile.Port)
		}
		b.WriteString("tcp(" + host + ")/" + profile.DatabaseName)
		if profile.ConnectOptions != "" {
			b.WriteString("?" + strings.ReplaceAll(profile.ConnectOptions, ";", "&"))
		}
		return b.String()

	case SqlDriverTypeSqlite:
		if profile.ConnectOptions != "" {
			return "file:" + profile.DatabaseName + "?" + strings.ReplaceAll(profile.ConnectOptions, ";", "&")
		}
		return profile.DatabaseName
	}

	return ""
}

// quoteKeywordValue quotes a libpq keyword/value connection string value
// when it contains a space, quote or backslash.
func quoteKeywordValue(value string) string {
	if !strings.ContainsAny(value, ` '\`) {
		return value
	}
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `'`, `\'`)
	return "'" + value + "'"
}

// OpenDatabase opens and pings the database of databaseID in env. The driver
// must be registered with database/sql by the caller.
func OpenDatabase(ctx context.Context, cfg Config, env string, databaseID int) (*sql.DB, error) {
	profile, err := cfg.Profile(env, databaseID)
	if err != nil {
		return nil, err
	}

	driverType, err := ParseDriverType(profile.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverType.SqlDriverName(), profile.DataSourceName(driverType))
	if err != nil {
		return nil, fmt.Errorf("database: open %s[%d]: %w", env, databaseID, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: ping %s[%d]: %w", env, databaseID, err)
	}

	return db, nil
}

// SQLOpener opens pool connections as dedicated database/sql connections.
// One *sql.DB is kept per database id with its own idle pooling disabled,
// so closing a handle closes the backend connection.
type SQLOpener struct {
	Config      Config
	Environment string
	Logger      *slog.Logger

	mu  sync.Mutex
	dbs map[int]*sql.DB
}

func NewSQLOpener(cfg Config, env string, logger *slog.Logger) *SQLOpener {
	if logger == nil {
		logger = slog.Default()
	}

	return &SQLOpener{
		Config:      cfg,
		Environment: env,
		Logger:      logger,
		dbs:         make(map[int]*sql.DB),
	}
}

func (opener *SQLOpener) Open(ctx context.Context, databaseID int) (Handle, error) {
	db, err := opener.database(ctx, databaseID)
	if err != nil {
		return nil, err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	profile, _ := opener.Config.Profile(opener.Environment, databaseID)
	for _, statement := range profile.PostOpenStatements {
		if _, err := conn.ExecContext(ctx, statement); err != nil {
			conn.Close()
			return nil, fmt.Errorf("database: post open statement %q: %w", statement, err)
		}
		opener.Logger.DebugContext(ctx, "post open statement", "database_id", databaseID, "statement", statement)
	}

	return SQLHandle{Conn: conn}, nil
}

func (opener *SQLOpener) database(ctx context.Context, databaseID int) (*sql.DB, error) {
	opener.mu.Lock()
	defer opener.mu.Unlock()

	if db, found := opener.dbs[databaseID]; found {
		return db, nil
	}

	db, err := OpenDatabase(ctx, opener.Config, opener.Environment, databaseID)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(0)

	opener.dbs[databaseID] = db
	return db, nil
}

// Close closes every database opened so far.
func (opener *SQLOpener) Close() error {
	opener.mu.Lock()
	defer opener.mu.Unlock()

	var errs []error
	for id, db := range opener.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(opener.dbs, id)
	}
	return errors.Join(errs...)
}
