package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var errInvalidConn = errors.New("database: driver reports connection invalid")

// Handle is a backend connection as seen by the pool. The pool never looks
// inside it.
type Handle interface {
	// Valid reports whether the handle can be reused.
	Valid() bool
	Close() error
}

// SQLHandle is a Handle over one dedicated database/sql connection.
type SQLHandle struct {
	Conn *sql.Conn
}

// Valid asks the driver through driver.Validator. A closed connection is
// never valid.
func (handle SQLHandle) Valid() bool {
	err := handle.Conn.Raw(func(driverConn any) error {
		if validator, ok := driverConn.(driver.Validator); ok && !validator.IsValid() {
			return errInvalidConn
		}
		return nil
	})
	return err == nil
}

func (handle SQLHandle) Close() error {
	return handle.Conn.Close()
}

type ConnectionState uint8

const (
	StateIdle ConnectionState = iota
	StateInUse
	StateClosed
	// StateReleased marks a Connection that was pushed back while its handle
	// lives on in another Connection.
	StateReleased
)

func (state ConnectionState) String() string {
	switch state {
	case StateIdle:
		return "idle"
	case StateInUse:
		return "in_use"
	case StateClosed:
		return "closed"
	case StateReleased:
		return "released"
	}
	return "unknown"
}

// Connection is a pooled Handle together with its identity. State and
// releasedAt are guarded by the pool mutex.
type Connection struct {
	env        string
	databaseID int
	slot       int
	handle     Handle
	releasedAt time.Time
	state      ConnectionState
	broken     atomic.Bool
}

func (conn *Connection) Environment() string {
	return conn.env
}

func (conn *Connection) DatabaseID() int {
	return conn.databaseID
}

// Slot is the per database id index the connection occupies while alive.
func (conn *Connection) Slot() int {
	return conn.slot
}

// Name is unique among the live connections of a process.
func (conn *Connection) Name() string {
	return fmt.Sprintf("rdb%d_%d", conn.databaseID, conn.slot)
}

func (conn *Connection) Handle() Handle {
	return conn.handle
}

// SQL returns the database/sql connection of handles opened by SQLOpener.
func (conn *Connection) SQL() (*sql.Conn, bool) {
	handle, ok := conn.handle.(SQLHandle)
	if !ok {
		return nil, false
	}
	return handle.Conn, true
}

// MarkBroken makes the next Push close the connection instead of reusing it.
func (conn *Connection) MarkBroken() {
	conn.broken.Store(true)
}

// release ends the checkout of conn. The pool keeps the returned Connection,
// so a later Push of conn is ignored.
func (conn *Connection) release(now time.Time) *Connection {
	conn.state = StateReleased
	return &Connection{
		env:        conn.env,
		databaseID: conn.databaseID,
		slot:       conn.slot,
		handle:     conn.handle,
		releasedAt: now,
		state:      StateIdle,
	}
}

func (conn *Connection) reusable() bool {
	return !conn.broken.Load() && conn.handle.Valid()
}

// ExecContext runs query on the connection of an SQL handle. A driver.ErrBadConn
// marks the connection broken.
func (conn *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	sqlConn, ok := conn.SQL()
	if !ok {
		return nil, fmt.Errorf("database: connection %s is not a database/sql connection", conn.Name())
	}

	result, err := sqlConn.ExecContext(ctx, query, args...)
	if errors.Is(err, driver.ErrBadConn) {
		conn.MarkBroken()
	}
	return result, err
}
