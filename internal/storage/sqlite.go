// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"meal-companion/internal/models"
	"meal-companion/internal/session"
)

type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

type Option func(*SQLiteStorage)

// WithClock overrides the clock used for session start and row creation times.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStorage) { s.now = now }
}

func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, errors.New("database path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{db: db, now: time.Now}
	for _, opt := range opts {
		opt(storage)
	}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY,
        total_consumed REAL NOT NULL,
        captures INTEGER NOT NULL,
        start_time INTEGER NOT NULL
    );

    CREATE TABLE IF NOT EXISTS meal_images (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        frame_id TEXT NOT NULL,
        user_id TEXT NOT NULL,
        file_path TEXT NOT NULL,
        url TEXT NOT NULL,
        uploaded_at INTEGER NOT NULL,
        created_at INTEGER NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_meal_images_uploaded_at ON meal_images(uploaded_at);
    CREATE INDEX IF NOT EXISTS idx_meal_images_user_id ON meal_images(user_id);
    CREATE INDEX IF NOT EXISTS idx_meal_images_session_id ON meal_images(session_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// GetOrCreate returns the stored session or a zeroed, unpersisted one.
func (s *SQLiteStorage) GetOrCreate(ctx context.Context, id string) (models.Session, error) {
	sess, err := s.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return models.Session{ID: id, StartTime: s.now()}, nil
	}
	return sess, err
}

func (s *SQLiteStorage) Get(ctx context.Context, id string) (models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, total_consumed, captures, start_time
        FROM sessions
        WHERE id = ?
    `, id)
	return scanSession(row)
}

// Update folds one analysis into the session row in a single statement.
func (s *SQLiteStorage) Update(ctx context.Context, id string, analysis models.CaptureAnalysis) (models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
        INSERT INTO sessions (id, total_consumed, captures, start_time)
        VALUES (?, ?, 1, ?)
        ON CONFLICT(id) DO UPDATE SET
            total_consumed = total_consumed + excluded.total_consumed,
            captures = captures + 1
        RETURNING id, total_consumed, captures, start_time
    `, id, analysis.ConsumedSinceLast, s.now().UnixMilli())

	sess, err := scanSession(row)
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to update session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStorage) End(ctx context.Context, id string) (models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
        DELETE FROM sessions
        WHERE id = ?
        RETURNING id, total_consumed, captures, start_time
    `, id)
	return scanSession(row)
}

func scanSession(row *sql.Row) (models.Session, error) {
	var sess models.Session
	var startMillis int64
	if err := row.Scan(&sess.ID, &sess.TotalConsumed, &sess.Captures, &startMillis); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Session{}, session.ErrNotFound
		}
		return models.Session{}, fmt.Errorf("failed to scan session: %w", err)
	}
	sess.StartTime = time.UnixMilli(startMillis)
	return sess, nil
}

var _ session.Store = (*SQLiteStorage)(nil)
