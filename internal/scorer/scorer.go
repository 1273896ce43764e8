// Package scorer computes the initial relation value for two agents meeting
// for the first time. Every function here is pure; randomness comes only from
// a PRNG built from the caller's seed.
package scorer

import (
	"encoding/binary"
	"math"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"

	"github.com/nidhogg/nuka-bonds/internal/relation"
)

// Traits is the alignment and personality profile the scorer reads.
// All values lie in [-100, 100].
type Traits struct {
	Moral  float64 `json:"moral"`  // good (+) / evil (-)
	Order  float64 `json:"order"`  // lawful (+) / chaotic (-)
	Purity float64 `json:"purity"` // pure (+) / corrupt (-)

	Vengefulness float64 `json:"vengefulness"` // vengeful (+) / forgiving (-)
	Boldness     float64 `json:"boldness"`     // bold (+) / craven (-)
}

// Terms is the additive breakdown of one score.
type Terms struct {
	Context  float64 `json:"context"`
	Kinship  float64 `json:"kinship"`
	Moral    float64 `json:"moral"`
	Order    float64 `json:"order"`
	Chaos    float64 `json:"chaos"`
	Purity   float64 `json:"purity"`
	Behavior float64 `json:"behavior"`
	Jitter   float64 `json:"jitter"`
}

// Base sums every deterministic term, leaving out the seeded ones.
func (t Terms) Base() float64 {
	return t.Context + t.Kinship + t.Moral + t.Order + t.Purity + t.Behavior
}

// Total sums all terms.
func (t Terms) Total() float64 {
	return t.Base() + t.Chaos + t.Jitter
}

// Value rounds the total to the nearest integer and clamps it.
func (t Terms) Value() int8 {
	return int8(relation.Clamp(int(math.Round(t.Total()))))
}

// Scorer applies a fixed set of Tables.
type Scorer struct {
	tables Tables
}

// New creates a scorer. Nil maps in tables fall back to the defaults.
func New(tables Tables) *Scorer {
	def := DefaultTables()
	if tables.ContextOffsets == nil {
		tables.ContextOffsets = def.ContextOffsets
	}
	if tables.KinshipBonuses == nil {
		tables.KinshipBonuses = def.KinshipBonuses
	}
	return &Scorer{tables: tables}
}

// Tables returns the scorer's configuration.
func (s *Scorer) Tables() Tables { return s.tables }

// ContextOffset looks up the flat offset for how the pair met.
func (s *Scorer) ContextOffset(ctx relation.MeetingContext) float64 {
	return s.tables.ContextOffsets[ctx]
}

// KinshipBonus looks up the family bonus. KinNone always scores zero.
func (s *Scorer) KinshipBonus(kin relation.Kinship) float64 {
	if kin == relation.KinNone {
		return 0
	}
	return s.tables.KinshipBonuses[kin]
}

// AxisTerm scores one alignment axis. Matched extremes earn up to weight,
// less the further apart they sit; opposed extremes lose weight scaled by the
// gap; anything else is indifferent.
func (s *Scorer) AxisTerm(a, b, weight float64) float64 {
	th := s.tables.ExtremeThreshold
	diff := math.Abs(a - b)
	switch {
	case (a > th && b > th) || (a < -th && b < -th):
		return weight * (1 - diff/100)
	case (a > th && b < -th) || (a < -th && b > th):
		return -weight * diff / 100
	default:
		return 0
	}
}

// Behavior scores vengefulness and boldness.
func (s *Scorer) Behavior(a, b Traits) float64 {
	t := s.tables
	var total float64
	for _, tr := range [2]Traits{a, b} {
		switch {
		case tr.Vengefulness < -t.ForgivingThreshold:
			total += t.ForgivingBonus
		case tr.Vengefulness > t.VengefulThreshold:
			total -= t.VengefulPenalty
		}
	}

	boldA, boldB := a.Boldness > t.BoldThreshold, b.Boldness > t.BoldThreshold
	cravenA, cravenB := a.Boldness < -t.BoldThreshold, b.Boldness < -t.BoldThreshold
	switch {
	case (boldA && boldB) || (cravenA && cravenB):
		total += t.MatchedBoldness
	case (boldA && cravenB) || (cravenA && boldB):
		total -= t.MismatchedBoldness
	}
	return total
}

// Chaotic reports whether either agent sits on the chaotic extreme.
func (s *Scorer) Chaotic(a, b Traits) bool {
	th := s.tables.ExtremeThreshold
	return a.Order < -th || b.Order < -th
}

// Breakdown computes every term for one meeting.
func (s *Scorer) Breakdown(a, b Traits, ctx relation.MeetingContext, kin relation.Kinship, seed uint64) Terms {
	t := s.tables
	terms := Terms{
		Context:  s.ContextOffset(ctx),
		Kinship:  s.KinshipBonus(kin),
		Moral:    s.AxisTerm(a.Moral, b.Moral, t.MoralWeight),
		Order:    s.AxisTerm(a.Order, b.Order, t.OrderWeight),
		Purity:   s.AxisTerm(a.Purity, b.Purity, t.PurityWeight),
		Behavior: s.Behavior(a, b),
	}

	rng := newRand(seed)
	width := t.Jitter
	if s.Chaotic(a, b) {
		terms.Chaos = uniform(rng, t.ChaosSwing)
		width = t.ChaoticJitter
	}
	terms.Jitter = uniform(rng, width)
	return terms
}

// Score returns the clamped initial value for one meeting.
func (s *Scorer) Score(a, b Traits, ctx relation.MeetingContext, kin relation.Kinship, seed uint64) int8 {
	return s.Breakdown(a, b, ctx, kin, seed).Value()
}

// Seed derives the per-meeting seed from the two handles and the tick. The
// handles are ordered first so Seed(a, b, t) == Seed(b, a, t).
func Seed(a, b relation.Handle, tick uint64) uint64 {
	if b.Less(a) {
		a, b = b, a
	}
	var buf [24]byte
	binary.LittleEndian.PutUint32(buf[0:], a.Index)
	binary.LittleEndian.PutUint32(buf[4:], a.Generation)
	binary.LittleEndian.PutUint32(buf[8:], b.Index)
	binary.LittleEndian.PutUint32(buf[12:], b.Generation)
	binary.LittleEndian.PutUint64(buf[16:], tick)
	return xxhash.Sum64(buf[:])
}

// pcgStream keeps the two PCG words distinct for the same seed.
const pcgStream = 0x9e3779b97f4a7c15

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^pcgStream))
}

// uniform draws from [-w, w].
func uniform(rng *rand.Rand, w float64) float64 {
	if w <= 0 {
		return 0
	}
	return (rng.Float64()*2 - 1) * w
}
