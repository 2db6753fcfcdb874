package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	dbconfig "huddle/pkg/database"
	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

// Manager is the SQLite implementation of interfaces.Store. Reads run on the
// connection pool; every write, including whole transactions, runs on a
// single writer goroutine.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	log          *slog.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // protects closed
	retryDelay   time.Duration
}

var _ interfaces.Store = (*Manager)(nil)

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the writer goroutine. Call Migrate
// before serving traffic.
func NewManager(config *dbconfig.Config, log *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	if config.DatabasePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.DatabasePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		log:          log,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// Migrate applies the embedded migrations and validates the resulting schema.
func (m *Manager) Migrate() error {
	if err := dbconfig.NewMigrationManager(m.db).ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := dbconfig.NewSchemaValidator(m.db).Validate(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if isBusy(err) {
				m.log.Warn("Database busy, retrying write", "delay", m.retryDelay, "error", err)
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
				if err != nil {
					m.log.Error("Database write failed after retry", "error", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.log.Debug("Database write loop shutting down")
			return
		}
	}
}

// isBusy reports whether err is SQLite lock contention, the only failure
// worth retrying.
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(m.config.WriteTimeout):
		return interfaces.ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return interfaces.ErrStoreClosed
	}
}

// WithinTx runs fn inside one SQLite transaction on the writer goroutine, so
// transactions never interleave.
func (m *Manager) WithinTx(ctx context.Context, fn func(repos interfaces.Repositories) error) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(&repositories{q: tx}); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

func (m *Manager) reader() *repositories {
	return &repositories{q: m.db}
}

func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.WithinTx(ctx, func(r interfaces.Repositories) error { return r.CreateSession(ctx, session) })
}

func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	return m.reader().GetSession(ctx, sessionID)
}

func (m *Manager) UpdateSession(ctx context.Context, session *types.Session) error {
	return m.WithinTx(ctx, func(r interfaces.Repositories) error { return r.UpdateSession(ctx, session) })
}

func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	return m.WithinTx(ctx, func(r interfaces.Repositories) error { return r.CreateUser(ctx, user) })
}

func (m *Manager) GetUser(ctx context.Context, userID string) (*types.User, error) {
	return m.reader().GetUser(ctx, userID)
}

func (m *Manager) ListUsers(ctx context.Context, sessionID string) ([]*types.User, error) {
	return m.reader().ListUsers(ctx, sessionID)
}

func (m *Manager) UpdateUser(ctx context.Context, user *types.User) error {
	return m.WithinTx(ctx, func(r interfaces.Repositories) error { return r.UpdateUser(ctx, user) })
}

func (m *Manager) CreateActivity(ctx context.Context, activity *types.Activity) error {
	return m.WithinTx(ctx, func(r interfaces.Repositories) error { return r.CreateActivity(ctx, activity) })
}

func (m *Manager) ListActivities(ctx context.Context, sessionID string) ([]*types.Activity, error) {
	return m.reader().ListActivities(ctx, sessionID)
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return interfaces.ErrStoreClosed
	}

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// DB returns the underlying connection pool.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Close shuts down the writer and the connection pool. It is safe to call
// more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
