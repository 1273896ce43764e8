package relation

import (
	"fmt"
	"strconv"
	"strings"
)

// Handle identifies a simulated agent. The host owns the index space and bumps
// Generation whenever an index is reused, so a stale handle never aliases a
// newer agent.
type Handle struct {
	Index      uint32 `json:"index"`
	Generation uint32 `json:"generation"`
}

// Less orders handles by index, then generation.
func (h Handle) Less(o Handle) bool {
	if h.Index != o.Index {
		return h.Index < o.Index
	}
	return h.Generation < o.Generation
}

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.Index, h.Generation)
}

// MarshalText renders the handle as "index:generation".
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText parses "index:generation" (a bare index means generation 0).
func (h *Handle) UnmarshalText(b []byte) error {
	parsed, err := ParseHandle(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHandle parses the textual form produced by Handle.String.
func ParseHandle(s string) (Handle, error) {
	idx, gen, found := strings.Cut(strings.TrimSpace(s), ":")
	i, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return Handle{}, fmt.Errorf("parse handle %q: %w", s, err)
	}
	h := Handle{Index: uint32(i)}
	if found {
		g, err := strconv.ParseUint(gen, 10, 32)
		if err != nil {
			return Handle{}, fmt.Errorf("parse handle %q: %w", s, err)
		}
		h.Generation = uint32(g)
	}
	return h, nil
}

// Value bounds.
const (
	MinValue = -100
	MaxValue = 100
)

// Clamp limits v to [MinValue, MaxValue].
func Clamp(v int) int {
	if v < MinValue {
		return MinValue
	}
	if v > MaxValue {
		return MaxValue
	}
	return v
}

// Tier is a coarse classification of a relation value.
type Tier uint8

const (
	TierMortalEnemy Tier = iota
	TierHostile
	TierUnfriendly
	TierNeutral
	TierFriendly
	TierCloseFriend
	TierDevoted
)

var tierNames = [...]string{
	TierMortalEnemy: "mortal_enemy",
	TierHostile:     "hostile",
	TierUnfriendly:  "unfriendly",
	TierNeutral:     "neutral",
	TierFriendly:    "friendly",
	TierCloseFriend: "close_friend",
	TierDevoted:     "devoted",
}

func (t Tier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return "unknown"
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Tier) UnmarshalText(b []byte) error {
	for i, name := range tierNames {
		if name == string(b) {
			*t = Tier(i)
			return nil
		}
	}
	return fmt.Errorf("unknown tier %q", b)
}

// TierFor derives the tier for a value. Thresholds are inclusive upper bounds.
func TierFor(value int) Tier {
	switch {
	case value <= -80:
		return TierMortalEnemy
	case value <= -50:
		return TierHostile
	case value <= -25:
		return TierUnfriendly
	case value <= 24:
		return TierNeutral
	case value <= 49:
		return TierFriendly
	case value <= 79:
		return TierCloseFriend
	default:
		return TierDevoted
	}
}

// MeetingContext records how two agents first met. Immutable after creation.
type MeetingContext uint8

const (
	ContextVillageNeighbor MeetingContext = iota
	ContextWorkplace
	ContextCombatAlly
	ContextCombatOpposing
	ContextRescueSalvation
	ContextCrimeVictim
	ContextTrade
	ContextFestival
	ContextTravel
)

var contextNames = [...]string{
	ContextVillageNeighbor: "village_neighbor",
	ContextWorkplace:       "workplace",
	ContextCombatAlly:      "combat_ally",
	ContextCombatOpposing:  "combat_opposing",
	ContextRescueSalvation: "rescue_salvation",
	ContextCrimeVictim:     "crime_victim",
	ContextTrade:           "trade",
	ContextFestival:        "festival",
	ContextTravel:          "travel",
}

// MeetingContexts lists every known context in declaration order.
func MeetingContexts() []MeetingContext {
	out := make([]MeetingContext, len(contextNames))
	for i := range contextNames {
		out[i] = MeetingContext(i)
	}
	return out
}

func (c MeetingContext) String() string {
	if int(c) < len(contextNames) {
		return contextNames[c]
	}
	return "unknown"
}

func (c MeetingContext) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *MeetingContext) UnmarshalText(b []byte) error {
	parsed, err := ParseMeetingContext(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseMeetingContext maps a snake_case name back to its context.
func ParseMeetingContext(s string) (MeetingContext, error) {
	for i, name := range contextNames {
		if name == s {
			return MeetingContext(i), nil
		}
	}
	return 0, fmt.Errorf("unknown meeting context %q", s)
}

// Kinship is a familial tag fixed at creation.
type Kinship uint8

const (
	KinNone Kinship = iota
	KinParentChild
	KinSibling
	KinSpouse
	KinGrandparent
	KinCousin
	KinInLaw
	KinDisowned
)

var kinshipNames = [...]string{
	KinNone:        "none",
	KinParentChild: "parent_child",
	KinSibling:     "sibling",
	KinSpouse:      "spouse",
	KinGrandparent: "grandparent",
	KinCousin:      "cousin",
	KinInLaw:       "in_law",
	KinDisowned:    "disowned",
}

// Kinships lists every known kinship in declaration order.
func Kinships() []Kinship {
	out := make([]Kinship, len(kinshipNames))
	for i := range kinshipNames {
		out[i] = Kinship(i)
	}
	return out
}

func (k Kinship) String() string {
	if int(k) < len(kinshipNames) {
		return kinshipNames[k]
	}
	return "unknown"
}

func (k Kinship) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kinship) UnmarshalText(b []byte) error {
	parsed, err := ParseKinship(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKinship maps a snake_case name back to its kinship. The empty string
// means none.
func ParseKinship(s string) (Kinship, error) {
	if s == "" {
		return KinNone, nil
	}
	for i, name := range kinshipNames {
		if name == s {
			return Kinship(i), nil
		}
	}
	return 0, fmt.Errorf("unknown kinship %q", s)
}

// Relation is one agent's record of another.
type Relation struct {
	Other               Handle         `json:"other"`
	Value               int8           `json:"value"`
	Tier                Tier           `json:"tier"`
	FirstMetTick        uint64         `json:"first_met_tick"`
	LastInteractionTick uint64         `json:"last_interaction_tick"`
	Context             MeetingContext `json:"context"`
	Kinship             Kinship        `json:"kinship"`

	PositiveInteractions uint32 `json:"positive_interactions"`
	NegativeInteractions uint32 `json:"negative_interactions"`
	SharedExperiences    uint32 `json:"shared_experiences"`

	IsRomantic     bool `json:"is_romantic"`
	IsProfessional bool `json:"is_professional"`
}

// Record is a relation together with its owner, the unit of persistence.
type Record struct {
	Owner Handle `json:"owner"`
	Relation
}
