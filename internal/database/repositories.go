package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"huddle/pkg/types"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repositories implements interfaces.Repositories over a queryer.
type repositories struct {
	q queryer
}

// isForeignKeyViolation reports a row pointing at a missing session.
func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

func (r *repositories) CreateSession(ctx context.Context, session *types.Session) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sessions (id, name, started_at, stopped_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		session.ID,
		session.Name,
		nullTime(session.StartedAt),
		nullTime(session.StoppedAt),
		session.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *repositories) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, name, started_at, stopped_at, created_at
		FROM sessions
		WHERE id = ?
	`, sessionID)

	var session types.Session
	var startedAt, stoppedAt sql.NullTime

	err := row.Scan(&session.ID, &session.Name, &startedAt, &stoppedAt, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if startedAt.Valid {
		session.StartedAt = &startedAt.Time
	}
	if stoppedAt.Valid {
		session.StoppedAt = &stoppedAt.Time
	}

	return &session, nil
}

func (r *repositories) UpdateSession(ctx context.Context, session *types.Session) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE sessions
		SET started_at = ?, stopped_at = ?
		WHERE id = ?
	`,
		nullTime(session.StartedAt),
		nullTime(session.StoppedAt),
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return requireRow(result, types.ErrSessionNotFound)
}

func (r *repositories) CreateUser(ctx context.Context, user *types.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, session_id, name, is_host, turn_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		user.ID,
		user.SessionID,
		user.Name,
		user.IsHost,
		user.Order,
		user.CreatedAt.UTC(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return types.ErrSessionNotFound
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *repositories) GetUser(ctx context.Context, userID string) (*types.User, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, session_id, name, is_host, turn_order, created_at
		FROM users
		WHERE id = ?
	`, userID)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (r *repositories) ListUsers(ctx context.Context, sessionID string) ([]*types.User, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, session_id, name, is_host, turn_order, created_at
		FROM users
		WHERE session_id = ?
		ORDER BY turn_order ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*types.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, nil
}

func (r *repositories) UpdateUser(ctx context.Context, user *types.User) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET name = ?, turn_order = ?
		WHERE id = ?
	`, user.Name, user.Order, user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRow(result, types.ErrUserNotFound)
}

func (r *repositories) CreateActivity(ctx context.Context, activity *types.Activity) error {
	result, err := r.q.ExecContext(ctx, `
		INSERT INTO activities (id, session_id, event, event_at)
		VALUES (?, ?, ?, ?)
	`,
		activity.ID,
		activity.SessionID,
		activity.Event,
		activity.EventAt.UTC(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return types.ErrSessionNotFound
		}
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read activity sequence: %w", err)
	}
	activity.Seq = seq
	return nil
}

func (r *repositories) ListActivities(ctx context.Context, sessionID string) ([]*types.Activity, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT seq, id, session_id, event, event_at
		FROM activities
		WHERE session_id = ?
		ORDER BY event_at ASC, seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var activities []*types.Activity
	for rows.Next() {
		var a types.Activity
		if err := rows.Scan(&a.Seq, &a.ID, &a.SessionID, &a.Event, &a.EventAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		activities = append(activities, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}
	return activities, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*types.User, error) {
	var user types.User
	if err := s.Scan(&user.ID, &user.SessionID, &user.Name, &user.IsHost, &user.Order, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

// nullTime stores optional timestamps as NULL or UTC.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// requireRow returns notFound when an UPDATE matched nothing.
func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
