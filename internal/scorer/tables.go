package scorer

import "github.com/nidhogg/nuka-bonds/internal/relation"

// Tables holds the designer-tunable numbers behind an initial score.
type Tables struct {
	ContextOffsets map[relation.MeetingContext]float64
	KinshipBonuses map[relation.Kinship]float64

	// Axis weights: the largest bonus two matched extremes can earn.
	MoralWeight  float64
	OrderWeight  float64
	PurityWeight float64

	// ExtremeThreshold is the magnitude past which an axis value counts as
	// committed to one side (and Order below -ExtremeThreshold as chaotic).
	ExtremeThreshold float64

	// ChaosSwing bounds the seeded order-axis term for chaotic pairs.
	ChaosSwing float64

	// Behaviour terms.
	ForgivingThreshold float64 // vengefulness below -x is forgiving
	VengefulThreshold  float64 // vengefulness above x is vengeful
	ForgivingBonus     float64
	VengefulPenalty    float64
	BoldThreshold      float64
	MatchedBoldness    float64
	MismatchedBoldness float64

	Jitter        float64
	ChaoticJitter float64
}

// DefaultTables returns the documented defaults.
func DefaultTables() Tables {
	return Tables{
		ContextOffsets: map[relation.MeetingContext]float64{
			relation.ContextVillageNeighbor: 0,
			relation.ContextWorkplace:       10,
			relation.ContextCombatAlly:      25,
			relation.ContextCombatOpposing:  -30,
			relation.ContextRescueSalvation: 40,
			relation.ContextCrimeVictim:     -35,
			relation.ContextTrade:           5,
			relation.ContextFestival:        8,
			relation.ContextTravel:          2,
		},
		KinshipBonuses: map[relation.Kinship]float64{
			relation.KinParentChild: 80,
			relation.KinSibling:     60,
			relation.KinSpouse:      70,
			relation.KinGrandparent: 50,
			relation.KinCousin:      30,
			relation.KinInLaw:       20,
			relation.KinDisowned:    -40,
		},
		MoralWeight:        20,
		OrderWeight:        15,
		PurityWeight:       15,
		ExtremeThreshold:   30,
		ChaosSwing:         12,
		ForgivingThreshold: 50,
		VengefulThreshold:  50,
		ForgivingBonus:     8,
		VengefulPenalty:    8,
		BoldThreshold:      30,
		MatchedBoldness:    5,
		MismatchedBoldness: 5,
		Jitter:             10,
		ChaoticJitter:      20,
	}
}

// Merge returns t with every entry of o's tables layered on top. Scalar fields
// in o override t when non-zero.
func (t Tables) Merge(o Tables) Tables {
	out := t
	out.ContextOffsets = make(map[relation.MeetingContext]float64, len(t.ContextOffsets))
	for k, v := range t.ContextOffsets {
		out.ContextOffsets[k] = v
	}
	for k, v := range o.ContextOffsets {
		out.ContextOffsets[k] = v
	}
	out.KinshipBonuses = make(map[relation.Kinship]float64, len(t.KinshipBonuses))
	for k, v := range t.KinshipBonuses {
		out.KinshipBonuses[k] = v
	}
	for k, v := range o.KinshipBonuses {
		out.KinshipBonuses[k] = v
	}

	override := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	override(&out.MoralWeight, o.MoralWeight)
	override(&out.OrderWeight, o.OrderWeight)
	override(&out.PurityWeight, o.PurityWeight)
	override(&out.ExtremeThreshold, o.ExtremeThreshold)
	override(&out.ChaosSwing, o.ChaosSwing)
	override(&out.ForgivingThreshold, o.ForgivingThreshold)
	override(&out.VengefulThreshold, o.VengefulThreshold)
	override(&out.ForgivingBonus, o.ForgivingBonus)
	override(&out.VengefulPenalty, o.VengefulPenalty)
	override(&out.BoldThreshold, o.BoldThreshold)
	override(&out.MatchedBoldness, o.MatchedBoldness)
	override(&out.MismatchedBoldness, o.MismatchedBoldness)
	override(&out.Jitter, o.Jitter)
	override(&out.ChaoticJitter, o.ChaoticJitter)
	return out
}
