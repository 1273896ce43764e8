// Package snapshot provides a SQLite save slot for the relation engine, used
// when no PostgreSQL server is configured.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nidhogg/nuka-bonds/internal/relation"
	"github.com/nidhogg/nuka-bonds/internal/society"
)

const stateKey = "engine_state"

// DB wraps a SQLite connection.
type DB struct {
	conn   *sqlx.DB
	logger *zap.Logger
}

// Open opens or creates a SQLite database at path.
func Open(path string, logger *zap.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer keeps WAL checkpoints simple.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, logger: logger}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS relations (
		seq INTEGER NOT NULL,
		owner_index INTEGER NOT NULL,
		owner_generation INTEGER NOT NULL,
		other_index INTEGER NOT NULL,
		other_generation INTEGER NOT NULL,
		value INTEGER NOT NULL,
		tier TEXT NOT NULL,
		context TEXT NOT NULL,
		kinship TEXT NOT NULL,
		first_met_tick INTEGER NOT NULL,
		last_interaction_tick INTEGER NOT NULL,
		positive_interactions INTEGER NOT NULL,
		negative_interactions INTEGER NOT NULL,
		shared_experiences INTEGER NOT NULL,
		is_romantic INTEGER NOT NULL,
		is_professional INTEGER NOT NULL,
		PRIMARY KEY (owner_index, owner_generation, other_index, other_generation)
	);

	CREATE TABLE IF NOT EXISTS engine_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_relations_seq ON relations(seq);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveLedger writes all relations (full replace).
func (db *DB) SaveLedger(ctx context.Context, records []relation.Record) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := replaceRelations(ctx, tx, records); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceRelations(ctx context.Context, tx *sqlx.Tx, records []relation.Record) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM relations"); err != nil {
		return err
	}
	stmt, err := tx.PrepareNamedContext(ctx, insertRelation)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx, society.ToRow(i, rec)); err != nil {
			return fmt.Errorf("insert relation %v->%v: %w", rec.Owner, rec.Other, err)
		}
	}
	return nil
}

var insertRelation = func() string {
	named := make([]string, len(society.RecordColumns))
	for i, c := range society.RecordColumns {
		named[i] = ":" + c
	}
	return "INSERT INTO relations (" + strings.Join(society.RecordColumns, ", ") +
		") VALUES (" + strings.Join(named, ", ") + ")"
}()

// LoadLedger returns every stored relation in saved order.
func (db *DB) LoadLedger(ctx context.Context) ([]relation.Record, error) {
	var rows []society.RecordRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT "+strings.Join(society.RecordColumns, ", ")+" FROM relations ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}
	out := make([]relation.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.Record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO engine_meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetMeta retrieves a metadata value. It reports false when key is unset.
func (db *DB) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, "SELECT value FROM engine_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Save implements society.Saver.
func (db *DB) Save(ctx context.Context, snap society.Snapshot) error {
	state, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("marshal engine state: %w", err)
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := replaceRelations(ctx, tx, snap.Records); err != nil {
		return fmt.Errorf("save relations: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO engine_meta (key, value) VALUES (?, ?)", stateKey, string(state)); err != nil {
		return fmt.Errorf("save engine state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	db.logger.Debug("snapshot saved",
		zap.Uint64("tick", snap.State.Tick),
		zap.Int("records", len(snap.Records)))
	return nil
}

// Load implements society.Saver.
func (db *DB) Load(ctx context.Context) (society.Snapshot, bool, error) {
	raw, ok, err := db.GetMeta(ctx, stateKey)
	if err != nil || !ok {
		return society.Snapshot{}, false, err
	}
	var snap society.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap.State); err != nil {
		return society.Snapshot{}, false, fmt.Errorf("decode engine state: %w", err)
	}
	if snap.Records, err = db.LoadLedger(ctx); err != nil {
		return society.Snapshot{}, false, err
	}
	return snap, true, nil
}
