package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/yitech/candleclock/model/candle"
)

// SQLiteRecorder persists candles and fetch events to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *zap.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			time       INTEGER PRIMARY KEY,
			open       REAL NOT NULL,
			high       REAL NOT NULL,
			low        REAL NOT NULL,
			close      REAL NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS fetches (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			source    TEXT,
			candles   INTEGER,
			error     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetches_ts ON fetches(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordSeries upserts every candle, keyed by period start. The still-open
// last candle is overwritten on each refresh.
func (r *SQLiteRecorder) RecordSeries(ctx context.Context, s candle.Series) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO candles (time, open, high, low, close, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(time) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i := 0; i < s.Len(); i++ {
		c := s.At(i)
		if _, err := stmt.ExecContext(ctx, c.Time, c.Open, c.High, c.Low, c.Close, now); err != nil {
			return fmt.Errorf("upsert candle %d: %w", c.Time, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordFetch(ctx context.Context, evt *FetchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errText sql.NullString
	if evt.Err != nil {
		errText = sql.NullString{String: evt.Err.Error(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO fetches (timestamp, source, candles, error)
		VALUES (?,?,?,?)`,
		evt.At.Unix(), evt.Source, evt.Candles, errText,
	)
	return err
}

// Recent returns up to n stored candles in chronological order.
func (r *SQLiteRecorder) Recent(ctx context.Context, n int) (candle.Series, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT time, open, high, low, close FROM (
		SELECT time, open, high, low, close FROM candles ORDER BY time DESC LIMIT ?
	) ORDER BY time ASC`, n)
	if err != nil {
		return candle.Series{}, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var cs []candle.Candle
	for rows.Next() {
		var c candle.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return candle.Series{}, fmt.Errorf("scan candle: %w", err)
		}
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return candle.Series{}, err
	}
	return candle.NewSeries(cs), nil
}

// FetchCount returns how many fetch events were recorded, and how many failed.
func (r *SQLiteRecorder) FetchCount(ctx context.Context) (total, failed int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(error) FROM fetches`).Scan(&total, &failed)
	return total, failed, err
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
