package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/relation"
	"github.com/nidhogg/nuka-bonds/internal/society"
)

const stateKey = "engine_state"

// SaveLedger replaces every stored relation with records.
func (s *Store) SaveLedger(ctx context.Context, records []relation.Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save ledger: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := replaceRelations(ctx, tx, records); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save ledger: %w", err)
	}
	return nil
}

func replaceRelations(ctx context.Context, tx pgx.Tx, records []relation.Record) error {
	if _, err := tx.Exec(ctx, `DELETE FROM relations`); err != nil {
		return fmt.Errorf("clear relations: %w", err)
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"relations"}, society.RecordColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return society.ToRow(i, records[i]).Values(), nil
		}))
	if err != nil {
		return fmt.Errorf("copy relations: %w", err)
	}
	if int(n) != len(records) {
		return fmt.Errorf("copy relations: wrote %d of %d rows", n, len(records))
	}
	return nil
}

// LoadLedger returns every stored relation in saved order.
func (s *Store) LoadLedger(ctx context.Context) ([]relation.Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT seq, owner_index, owner_generation, other_index, other_generation,
		       value, tier, context, kinship, first_met_tick, last_interaction_tick,
		       positive_interactions, negative_interactions, shared_experiences,
		       is_romantic, is_professional
		FROM relations ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}
	flat, err := pgx.CollectRows(rows, pgx.RowToStructByName[society.RecordRow])
	if err != nil {
		return nil, fmt.Errorf("scan relations: %w", err)
	}

	out := make([]relation.Record, 0, len(flat))
	for _, r := range flat {
		rec, err := r.Record()
		if err != nil {
			return nil, fmt.Errorf("decode relation: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveMeta upserts a JSON value under key.
func (s *Store) SaveMeta(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal meta %s: %w", key, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO engine_meta (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, data)
	if err != nil {
		return fmt.Errorf("save meta %s: %w", key, err)
	}
	return nil
}

// GetMeta decodes the value stored under key into out. It reports false when
// the key does not exist.
func (s *Store) GetMeta(ctx context.Context, key string, out any) (bool, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM engine_meta WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get meta %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode meta %s: %w", key, err)
	}
	return true, nil
}

// SaveCursors stores the scanner state.
func (s *Store) SaveCursors(ctx context.Context, state society.State) error {
	return s.SaveMeta(ctx, stateKey, state)
}

// LoadCursors returns the stored scanner state, if any.
func (s *Store) LoadCursors(ctx context.Context) (society.State, bool, error) {
	var state society.State
	ok, err := s.GetMeta(ctx, stateKey, &state)
	return state, ok, err
}

// Save implements society.Saver. Relations and cursors are written in one
// transaction so a crash never pairs a new ledger with old cursors.
func (s *Store) Save(ctx context.Context, snap society.Snapshot) error {
	data, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("marshal engine state: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := replaceRelations(ctx, tx, snap.Records); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO engine_meta (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		stateKey, data)
	if err != nil {
		return fmt.Errorf("save engine state: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	s.logger.Debug("ledger saved",
		zap.Uint64("tick", snap.State.Tick),
		zap.Int("records", len(snap.Records)))
	return nil
}

// Load implements society.Saver.
func (s *Store) Load(ctx context.Context) (society.Snapshot, bool, error) {
	state, ok, err := s.LoadCursors(ctx)
	if err != nil || !ok {
		return society.Snapshot{}, false, err
	}
	records, err := s.LoadLedger(ctx)
	if err != nil {
		return society.Snapshot{}, false, err
	}
	return society.Snapshot{State: state, Records: records}, true, nil
}
