// Package sandbox generates a synthetic population for running the relation
// engine without a host: settlements placed on simplex noise, agents with
// culturally biased traits, and a daily routine of shared activities.
package sandbox

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/relation"
	"github.com/nidhogg/nuka-bonds/internal/scorer"
	"github.com/nidhogg/nuka-bonds/internal/world"
)

// Config holds generation parameters.
type Config struct {
	Seed        int64   // 0 = random
	Population  int     // agents to spawn
	Settlements int     // settlement count
	WorldSize   float64 // side of the square world
	DayLength   uint64  // ticks per routine cycle
	WanderEvery uint64  // ticks between wander steps, 0 disables
}

// DefaultConfig returns a small village cluster.
func DefaultConfig() Config {
	return Config{
		Seed:        42,
		Population:  200,
		Settlements: 4,
		WorldSize:   200,
		DayLength:   240,
		WanderEvery: 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Population <= 0 {
		c.Population = d.Population
	}
	if c.Settlements <= 0 {
		c.Settlements = d.Settlements
	}
	if c.WorldSize <= 0 {
		c.WorldSize = d.WorldSize
	}
	if c.DayLength == 0 {
		c.DayLength = d.DayLength
	}
	if c.Seed == 0 {
		c.Seed = rand.Int63()
	}
	return c
}

// Settlement is one cluster of homes. Culture biases the traits of everyone
// born there.
type Settlement struct {
	Name    string        `json:"name"`
	Center  world.Vec3    `json:"center"`
	Radius  float64       `json:"radius"`
	Culture scorer.Traits `json:"culture"`
	Score   float64       `json:"score"`
}

// Sandbox owns the generated world.
type Sandbox struct {
	cfg         Config
	reg         *world.Registry
	sched       *world.ScheduleManager
	rng         *rand.Rand
	settlements []Settlement
	home        map[relation.Handle]int
	agents      []relation.Handle
	logger      *zap.Logger
}

// Generate places settlements, spawns the population into reg and gives every
// agent a recurring routine in sched. The same seed always yields the same
// positions, traits and routines.
func Generate(cfg Config, reg *world.Registry, sched *world.ScheduleManager, logger *zap.Logger) *Sandbox {
	cfg = cfg.withDefaults()
	s := &Sandbox{
		cfg:    cfg,
		reg:    reg,
		sched:  sched,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		home:   make(map[relation.Handle]int),
		logger: logger,
	}
	s.settlements = placeSettlements(cfg)
	s.populate()

	logger.Info("sandbox generated",
		zap.Int64("seed", cfg.Seed),
		zap.Int("agents", len(s.agents)),
		zap.Int("settlements", len(s.settlements)))
	return s
}

// placeSettlements scores a coarse grid with layered noise and keeps the best
// cells, enforcing a minimum spacing.
func placeSettlements(cfg Config) []Settlement {
	fertility := opensimplex.NewNormalized(cfg.Seed)
	moral := opensimplex.New(cfg.Seed + 1)
	order := opensimplex.New(cfg.Seed + 2)
	purity := opensimplex.New(cfg.Seed + 3)

	type scored struct {
		x, y  float64
		score float64
	}
	const cells = 24
	step := cfg.WorldSize / cells
	var candidates []scored
	for i := 0; i < cells; i++ {
		for j := 0; j < cells; j++ {
			x := (float64(i) + 0.5) * step
			y := (float64(j) + 0.5) * step
			score := octaveNoise(fertility, x, y, 3, 0.02, 0.5)

			// Keep clear of the world edge.
			cx, cy := x/cfg.WorldSize-0.5, y/cfg.WorldSize-0.5
			score *= 1 - math.Pow(math.Sqrt(cx*cx+cy*cy)*1.4, 4)
			if score > 0 {
				candidates = append(candidates, scored{x, y, score})
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	minDist := cfg.WorldSize / (2 * math.Sqrt(float64(cfg.Settlements)))
	radius := minDist / 3

	var out []Settlement
	for pass := 0; pass < 2 && len(out) < cfg.Settlements; pass++ {
		for _, c := range candidates {
			if len(out) >= cfg.Settlements {
				break
			}
			center := world.Vec3{X: c.x, Y: c.y}
			if tooClose(center, out, minDist) {
				continue
			}
			out = append(out, Settlement{
				Name:   fmt.Sprintf("settlement-%d", len(out)+1),
				Center: center,
				Radius: radius,
				Score:  c.score,
				Culture: scorer.Traits{
					Moral:  40 * moral.Eval2(c.x*0.01, c.y*0.01),
					Order:  40 * order.Eval2(c.x*0.01, c.y*0.01),
					Purity: 40 * purity.Eval2(c.x*0.01, c.y*0.01),
				},
			})
		}
		// Crowded worlds relax the spacing once.
		minDist /= 2
	}
	for len(out) < cfg.Settlements {
		// Degenerate noise fields still get the requested count.
		out = append(out, Settlement{
			Name:   fmt.Sprintf("settlement-%d", len(out)+1),
			Center: world.Vec3{X: cfg.WorldSize / 2, Y: cfg.WorldSize / 2},
			Radius: radius,
		})
	}
	return out
}

func tooClose(p world.Vec3, placed []Settlement, minDist float64) bool {
	for _, s := range placed {
		if world.DistanceSq(p, s.Center) < minDist*minDist {
			return true
		}
	}
	return false
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}

func (s *Sandbox) populate() {
	for i := 0; i < s.cfg.Population; i++ {
		home := i % len(s.settlements)
		st := s.settlements[home]
		h := s.reg.Spawn(s.near(st), s.traits(st.Culture))
		s.home[h] = home
		s.agents = append(s.agents, h)
		s.plan(h, home, i)
	}
}

// near returns a point scattered around a settlement center.
func (s *Sandbox) near(st Settlement) world.Vec3 {
	angle := s.rng.Float64() * 2 * math.Pi
	dist := math.Abs(s.rng.NormFloat64()) * st.Radius / 2
	return world.Vec3{
		X: clampf(st.Center.X+math.Cos(angle)*dist, 0, s.cfg.WorldSize),
		Y: clampf(st.Center.Y+math.Sin(angle)*dist, 0, s.cfg.WorldSize),
	}
}

func (s *Sandbox) traits(culture scorer.Traits) scorer.Traits {
	axis := func(bias float64) float64 {
		return clampf(bias+s.rng.NormFloat64()*35, -100, 100)
	}
	return scorer.Traits{
		Moral:        axis(culture.Moral),
		Order:        axis(culture.Order),
		Purity:       axis(culture.Purity),
		Vengefulness: axis(0),
		Boldness:     axis(0),
	}
}

// occupations rotate through the population so each settlement has a mix.
var occupations = []world.ActivityType{
	world.ActivityWork,
	world.ActivityWork,
	world.ActivityPatrol,
	world.ActivityLearn,
}

// plan gives an agent a day: an occupation shift, an evening gathering and a
// weekly service. Offsets depend on the settlement so neighbours overlap.
func (s *Sandbox) plan(h relation.Handle, home, i int) {
	day := s.cfg.DayLength
	offset := uint64(home) * (day / 16)

	s.sched.AddEntry(h, world.ScheduleEntry{
		Type:       occupations[i%len(occupations)],
		Title:      "shift",
		StartTick:  day/8 + offset,
		Duration:   day / 3,
		RecurEvery: day,
	})
	s.sched.AddEntry(h, world.ScheduleEntry{
		Type:       world.ActivitySocial,
		Title:      "gathering",
		StartTick:  day/2 + offset,
		Duration:   day / 6,
		RecurEvery: day,
	})
	if i%3 == 0 {
		s.sched.AddEntry(h, world.ScheduleEntry{
			Type:       world.ActivityWorship,
			Title:      "service",
			StartTick:  day*6 + day/4 + offset,
			Duration:   day / 8,
			RecurEvery: day * 7,
		})
	}
}

// Settlements returns the generated settlements.
func (s *Sandbox) Settlements() []Settlement {
	out := make([]Settlement, len(s.settlements))
	copy(out, s.settlements)
	return out
}

// Agents returns the spawned agents in spawn order.
func (s *Sandbox) Agents() []relation.Handle {
	out := make([]relation.Handle, len(s.agents))
	copy(out, s.agents)
	return out
}

// Home returns the settlement an agent was born in.
func (s *Sandbox) Home(h relation.Handle) (Settlement, bool) {
	i, ok := s.home[h]
	if !ok {
		return Settlement{}, false
	}
	return s.settlements[i], true
}

// OnTick implements world.TickListener. Every WanderEvery ticks a few agents
// walk to a point near a random settlement, which is how strangers from
// different settlements eventually meet.
func (s *Sandbox) OnTick(info world.TickInfo) {
	if info.Paused || s.cfg.WanderEvery == 0 || info.Tick%s.cfg.WanderEvery != 0 || len(s.agents) == 0 {
		return
	}
	walkers := max(1, len(s.agents)/50)
	for range walkers {
		h := s.agents[s.rng.Intn(len(s.agents))]
		dest := s.settlements[s.rng.Intn(len(s.settlements))]
		if !s.reg.Move(h, s.near(dest)) {
			continue
		}
		s.logger.Debug("agent wandered",
			zap.Stringer("agent", h),
			zap.String("to", dest.Name),
			zap.Uint64("tick", info.Tick))
	}
}

func clampf(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
