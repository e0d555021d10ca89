package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/freekieb7/ingress/database"

var (
	ErrPoolExhausted     = errors.New("database: connection pool exhausted")
	ErrPoolClosed        = errors.New("database: connection pool closed")
	ErrInvalidDatabaseID = errors.New("database: invalid database id")
)

// Opener creates backend connections for the pool.
type Opener interface {
	Open(ctx context.Context, databaseID int) (Handle, error)
}

type OpenerFunc func(ctx context.Context, databaseID int) (Handle, error)

func (f OpenerFunc) Open(ctx context.Context, databaseID int) (Handle, error) {
	return f(ctx, databaseID)
}

// connRequest is delivered to a waiting Pop. Either conn is a connection
// handed over by Push, or grant reports a reserved slot the waiter may open
// a connection in, or err fails the wait.
type connRequest struct {
	conn  *Connection
	grant bool
	slot  int
	err   error
}

type databasePool struct {
	idle    []*Connection // LIFO, most recently released last
	live    int
	slots   []bool
	waiters []chan connRequest
}

func (db *databasePool) reserve() int {
	db.live++
	for i, used := range db.slots {
		if !used {
			db.slots[i] = true
			return i
		}
	}
	db.slots = append(db.slots, true)
	return len(db.slots) - 1
}

func (db *databasePool) free(slot int) {
	db.live--
	db.slots[slot] = false
}

func (db *databasePool) removeWaiter(req chan connRequest) bool {
	for i, waiter := range db.waiters {
		if waiter == req {
			db.waiters = append(db.waiters[:i], db.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (db *databasePool) popWaiter() chan connRequest {
	req := db.waiters[0]
	db.waiters[0] = nil
	db.waiters = db.waiters[1:]
	return req
}

type Stats struct {
	Live    int `json:"live"`
	Idle    int `json:"idle"`
	InUse   int `json:"in_use"`
	Waiting int `json:"waiting"`
}

// Pool hands out connections per database id of one environment. At most
// MaxConnectionsPerProcess connections are alive per database id, idle
// connections are reused most recently released first and evicted by Sweep
// once idle longer than MaxIdle.
type Pool struct {
	Environment              string
	MaxConnectionsPerProcess int
	MaxIdle                  time.Duration
	SweepInterval            time.Duration
	WaitTimeout              time.Duration
	Logger                   *slog.Logger

	opener Opener
	now    func() time.Time

	opened    metric.Int64Counter
	closed    metric.Int64Counter
	waits     metric.Int64Counter
	exhausted metric.Int64Counter

	mu       sync.Mutex
	dbs      []*databasePool
	isClosed bool
}

// NewPool creates a pool for the databases configured in env.
func NewPool(cfg Config, env string, opener Opener, logger *slog.Logger) (*Pool, error) {
	profiles, err := cfg.Profiles(env)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	meter := otel.Meter(instrumentationName)

	pool := &Pool{
		Environment:              env,
		MaxConnectionsPerProcess: cfg.MaxConnectionsPerProcess,
		MaxIdle:                  cfg.MaxIdle,
		SweepInterval:            cfg.SweepInterval,
		WaitTimeout:              cfg.WaitTimeout,
		Logger:                   logger,

		opener: opener,
		now:    time.Now,

		opened:    int64Counter(meter, "db.pool.connections.opened", "Number of backend connections opened"),
		closed:    int64Counter(meter, "db.pool.connections.closed", "Number of backend connections closed"),
		waits:     int64Counter(meter, "db.pool.waits", "Number of pops that had to wait for a connection"),
		exhausted: int64Counter(meter, "db.pool.exhausted", "Number of pops that failed because the pool was exhausted"),

		dbs: make([]*databasePool, len(profiles)),
	}
	if pool.MaxConnectionsPerProcess <= 0 {
		pool.MaxConnectionsPerProcess = DefaultMaxConnectionsPerProcess
	}
	if pool.MaxIdle <= 0 {
		pool.MaxIdle = DefaultMaxIdle
	}
	for i := range pool.dbs {
		pool.dbs[i] = &databasePool{slots: make([]bool, 0, pool.MaxConnectionsPerProcess)}
	}

	return pool, nil
}

func (pool *Pool) database(databaseID int) (*databasePool, error) {
	if databaseID < 0 || databaseID >= len(pool.dbs) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidDatabaseID, databaseID, len(pool.dbs))
	}
	return pool.dbs[databaseID], nil
}

// Pop returns a connection to databaseID, reusing the most recently released
// idle one when there is one. At the connection limit it waits up to
// WaitTimeout for a connection to be pushed, or fails at once when
// WaitTimeout is zero.
func (pool *Pool) Pop(ctx context.Context, databaseID int) (*Connection, error) {
	db, err := pool.database(databaseID)
	if err != nil {
		return nil, err
	}

	pool.mu.Lock()
	if pool.isClosed {
		pool.mu.Unlock()
		return nil, ErrPoolClosed
	}

	if n := len(db.idle); n > 0 {
		conn := db.idle[n-1]
		db.idle[n-1] = nil
		db.idle = db.idle[:n-1]
		conn.state = StateInUse
		pool.mu.Unlock()
		return conn, nil
	}

	if db.live < pool.MaxConnectionsPerProcess {
		slot := db.reserve()
		pool.mu.Unlock()
		return pool.open(ctx, databaseID, slot)
	}

	if pool.WaitTimeout <= 0 {
		pool.mu.Unlock()
		pool.exhausted.Add(ctx, 1, pool.attributes(databaseID))
		return nil, ErrPoolExhausted
	}

	req := make(chan connRequest, 1)
	db.waiters = append(db.waiters, req)
	pool.mu.Unlock()

	pool.waits.Add(ctx, 1, pool.attributes(databaseID))

	timer := time.NewTimer(pool.WaitTimeout)
	defer timer.Stop()

	var cause error
	select {
	case res := <-req:
		return pool.fulfil(ctx, databaseID, res)
	case <-ctx.Done():
		cause = ctx.Err()
	case <-timer.C:
	}

	pool.mu.Lock()
	removed := db.removeWaiter(req)
	pool.mu.Unlock()

	// Lost the race against a handover, give back what was handed over
	if !removed {
		pool.abandon(databaseID, <-req)
	}

	pool.exhausted.Add(context.WithoutCancel(ctx), 1, pool.attributes(databaseID))
	if cause != nil {
		return nil, fmt.Errorf("%w: %w", ErrPoolExhausted, cause)
	}
	return nil, ErrPoolExhausted
}

func (pool *Pool) fulfil(ctx context.Context, databaseID int, res connRequest) (*Connection, error) {
	switch {
	case res.err != nil:
		return nil, res.err
	case res.grant:
		return pool.open(ctx, databaseID, res.slot)
	default:
		return res.conn, nil
	}
}

func (pool *Pool) abandon(databaseID int, res connRequest) {
	switch {
	case res.conn != nil:
		pool.Push(res.conn)
	case res.grant:
		pool.mu.Lock()
		db := pool.dbs[databaseID]
		db.free(res.slot)
		pool.grantLocked(db)
		pool.mu.Unlock()
	}
}

// open creates a connection in a reserved slot. The slot is released when
// the opener fails.
func (pool *Pool) open(ctx context.Context, databaseID, slot int) (*Connection, error) {
	handle, err := pool.opener.Open(ctx, databaseID)
	if err != nil {
		pool.mu.Lock()
		db := pool.dbs[databaseID]
		db.free(slot)
		pool.grantLocked(db)
		pool.mu.Unlock()

		pool.Logger.WarnContext(ctx, "open connection failed", "environment", pool.Environment, "database_id", databaseID, "error", err)
		return nil, fmt.Errorf("database: open connection to %d: %w", databaseID, err)
	}

	pool.opened.Add(ctx, 1, pool.attributes(databaseID))

	conn := &Connection{
		env:        pool.Environment,
		databaseID: databaseID,
		slot:       slot,
		handle:     handle,
		state:      StateInUse,
	}
	pool.Logger.DebugContext(ctx, "connection opened", "name", conn.Name())
	return conn, nil
}

// grantLocked lets the first waiter open a connection when a slot is free.
func (pool *Pool) grantLocked(db *databasePool) {
	if len(db.waiters) == 0 || db.live >= pool.MaxConnectionsPerProcess || pool.isClosed {
		return
	}
	db.popWaiter() <- connRequest{grant: true, slot: db.reserve()}
}

// Push returns a connection obtained from Pop. A connection marked broken or
// reported invalid by its handle is closed and its slot freed, any other goes
// to the first waiter or onto the idle stack. Each Pop hands out a distinct
// *Connection, so pushing the same one twice is ignored even when its handle
// was given to someone else in between.
func (pool *Pool) Push(conn *Connection) {
	if conn == nil {
		return
	}

	reusable := conn.reusable()
	now := pool.now()

	pool.mu.Lock()
	if conn.state != StateInUse {
		pool.mu.Unlock()
		pool.Logger.Warn("push of a connection that is not in use", "name", conn.Name(), "state", conn.state.String())
		return
	}

	db := pool.dbs[conn.databaseID]
	conn.releasedAt = now

	if !reusable || pool.isClosed {
		conn.state = StateClosed
		db.free(conn.slot)
		pool.grantLocked(db)
		pool.mu.Unlock()

		reason := "broken"
		if reusable {
			reason = "pool_closed"
		}
		pool.closeConn(conn, reason)
		return
	}

	next := conn.release(now)
	if len(db.waiters) > 0 {
		next.state = StateInUse
		db.popWaiter() <- connRequest{conn: next}
		pool.mu.Unlock()
		return
	}

	db.idle = append(db.idle, next)
	pool.mu.Unlock()
}

// Sweep closes every idle connection released longer than MaxIdle before
// now and returns how many it closed. Connections in use are not touched.
func (pool *Pool) Sweep(now time.Time) int {
	var evicted []*Connection

	pool.mu.Lock()
	for _, db := range pool.dbs {
		kept := db.idle[:0]
		for _, conn := range db.idle {
			if now.Sub(conn.releasedAt) > pool.MaxIdle {
				conn.state = StateClosed
				db.free(conn.slot)
				evicted = append(evicted, conn)
				continue
			}
			kept = append(kept, conn)
		}
		clear(db.idle[len(kept):])
		db.idle = kept
	}
	pool.mu.Unlock()

	for _, conn := range evicted {
		pool.closeConn(conn, "idle")
	}
	return len(evicted)
}

// Run sweeps every SweepInterval until ctx ends.
func (pool *Pool) Run(ctx context.Context) error {
	interval := pool.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := pool.Sweep(pool.now()); n > 0 {
				pool.Logger.DebugContext(ctx, "idle connections closed", "environment", pool.Environment, "count", n)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes the idle connections and fails every waiter. Connections in
// use are closed when they are pushed.
func (pool *Pool) Close() error {
	var idle []*Connection

	pool.mu.Lock()
	if pool.isClosed {
		pool.mu.Unlock()
		return nil
	}
	pool.isClosed = true

	for _, db := range pool.dbs {
		for _, conn := range db.idle {
			conn.state = StateClosed
			db.free(conn.slot)
			idle = append(idle, conn)
		}
		db.idle = nil

		for _, req := range db.waiters {
			req <- connRequest{err: ErrPoolClosed}
		}
		db.waiters = nil
	}
	pool.mu.Unlock()

	var errs []error
	for _, conn := range idle {
		if err := pool.closeConn(conn, "pool_closed"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (pool *Pool) Stats(databaseID int) (Stats, error) {
	db, err := pool.database(databaseID)
	if err != nil {
		return Stats{}, err
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()

	return Stats{
		Live:    db.live,
		Idle:    len(db.idle),
		InUse:   db.live - len(db.idle),
		Waiting: len(db.waiters),
	}, nil
}

// Databases returns the number of database ids of the environment.
func (pool *Pool) Databases() int {
	return len(pool.dbs)
}

func (pool *Pool) closeConn(conn *Connection, reason string) error {
	pool.closed.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Int("db.pool.database_id", conn.databaseID),
		attribute.String("reason", reason),
	))

	if err := conn.handle.Close(); err != nil {
		pool.Logger.Warn("close connection failed", "name", conn.Name(), "reason", reason, "error", err)
		return err
	}
	pool.Logger.Debug("connection closed", "name", conn.Name(), "reason", reason)
	return nil
}

func (pool *Pool) attributes(databaseID int) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("db.pool.environment", pool.Environment),
		attribute.Int("db.pool.database_id", databaseID),
	)
}

func int64Counter(meter metric.Meter, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		otel.Handle(err)
		return noop.Int64Counter{}
	}
	return counter
}
