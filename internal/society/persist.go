package society

import (
	"context"
	"fmt"

	"github.com/nidhogg/nuka-bonds/internal/relation"
)

// Snapshot is everything needed to resume the engine: the ledger in export
// order plus the scanner state.
type Snapshot struct {
	State   State             `json:"state"`
	Records []relation.Record `json:"records"`
}

// Saver persists snapshots. Load reports false when nothing was saved yet.
type Saver interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, bool, error)
}

// Snapshot captures a consistent view of the ledger and cursors.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		State: State{
			Tick:      e.lastTick,
			Meeting:   e.meeting.Cursor(),
			Reinforce: e.reinforce.Cursor(),
		},
		Records: e.ledger.Export(),
	}
}

// Resume replaces the ledger and cursors with a saved snapshot. It holds the
// step lock throughout, so a running Step never sees a half-restored engine.
func (e *Engine) Resume(snap Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.Import(snap.Records)
	e.restoreLocked(snap.State)
}

// RecordRow is the flat storage form of a relation.Record shared by the SQL
// backends. Seq preserves export order.
type RecordRow struct {
	Seq                  int64  `db:"seq"`
	OwnerIndex           int64  `db:"owner_index"`
	OwnerGeneration      int64  `db:"owner_generation"`
	OtherIndex           int64  `db:"other_index"`
	OtherGeneration      int64  `db:"other_generation"`
	Value                int16  `db:"value"`
	Tier                 string `db:"tier"`
	Context              string `db:"context"`
	Kinship              string `db:"kinship"`
	FirstMetTick         int64  `db:"first_met_tick"`
	LastInteractionTick  int64  `db:"last_interaction_tick"`
	PositiveInteractions int64  `db:"positive_interactions"`
	NegativeInteractions int64  `db:"negative_interactions"`
	SharedExperiences    int64  `db:"shared_experiences"`
	IsRomantic           bool   `db:"is_romantic"`
	IsProfessional       bool   `db:"is_professional"`
}

// RecordColumns lists RecordRow's columns in declaration order.
var RecordColumns = []string{
	"seq", "owner_index", "owner_generation", "other_index", "other_generation",
	"value", "tier", "context", "kinship", "first_met_tick", "last_interaction_tick",
	"positive_interactions", "negative_interactions", "shared_experiences",
	"is_romantic", "is_professional",
}

// ToRow flattens rec.
func ToRow(seq int, rec relation.Record) RecordRow {
	return RecordRow{
		Seq:                  int64(seq),
		OwnerIndex:           int64(rec.Owner.Index),
		OwnerGeneration:      int64(rec.Owner.Generation),
		OtherIndex:           int64(rec.Other.Index),
		OtherGeneration:      int64(rec.Other.Generation),
		Value:                int16(rec.Value),
		Tier:                 rec.Tier.String(),
		Context:              rec.Context.String(),
		Kinship:              rec.Kinship.String(),
		FirstMetTick:         int64(rec.FirstMetTick),
		LastInteractionTick:  int64(rec.LastInteractionTick),
		PositiveInteractions: int64(rec.PositiveInteractions),
		NegativeInteractions: int64(rec.NegativeInteractions),
		SharedExperiences:    int64(rec.SharedExperiences),
		IsRomantic:           rec.IsRomantic,
		IsProfessional:       rec.IsProfessional,
	}
}

// Values returns the row in RecordColumns order.
func (r RecordRow) Values() []any {
	return []any{
		r.Seq, r.OwnerIndex, r.OwnerGeneration, r.OtherIndex, r.OtherGeneration,
		r.Value, r.Tier, r.Context, r.Kinship, r.FirstMetTick, r.LastInteractionTick,
		r.PositiveInteractions, r.NegativeInteractions, r.SharedExperiences,
		r.IsRomantic, r.IsProfessional,
	}
}

// Record rebuilds the relation. The tier is re-derived on Import, so the
// stored tier is informational only.
func (r RecordRow) Record() (relation.Record, error) {
	ctx, err := relation.ParseMeetingContext(r.Context)
	if err != nil {
		return relation.Record{}, fmt.Errorf("row %d: %w", r.Seq, err)
	}
	kin, err := relation.ParseKinship(r.Kinship)
	if err != nil {
		return relation.Record{}, fmt.Errorf("row %d: %w", r.Seq, err)
	}
	v := relation.Clamp(int(r.Value))
	return relation.Record{
		Owner: relation.Handle{Index: uint32(r.OwnerIndex), Generation: uint32(r.OwnerGeneration)},
		Relation: relation.Relation{
			Other:                relation.Handle{Index: uint32(r.OtherIndex), Generation: uint32(r.OtherGeneration)},
			Value:                int8(v),
			Tier:                 relation.TierFor(v),
			FirstMetTick:         uint64(r.FirstMetTick),
			LastInteractionTick:  uint64(r.LastInteractionTick),
			Context:              ctx,
			Kinship:              kin,
			PositiveInteractions: uint32(r.PositiveInteractions),
			NegativeInteractions: uint32(r.NegativeInteractions),
			SharedExperiences:    uint32(r.SharedExperiences),
			IsRomantic:           r.IsRomantic,
			IsProfessional:       r.IsProfessional,
		},
	}, nil
}
