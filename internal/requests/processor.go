package requests

import (
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/relation"
	"github.com/nidhogg/nuka-bonds/internal/scorer"
)

// TraitSource looks up the trait profile used to score creation requests.
type TraitSource interface {
	Traits(h relation.Handle) (scorer.Traits, bool)
}

// Result counts what one Drain did.
type Result struct {
	Created       int `json:"created"`
	CreateSkipped int `json:"create_skipped"`
	Modified      int `json:"modified"`
	ModifyDropped int `json:"modify_dropped"`
	Flagged       int `json:"flagged"`
	FlagDropped   int `json:"flag_dropped"`
}

// Applied returns the number of requests that changed the ledger.
func (r Result) Applied() int { return r.Created + r.Modified + r.Flagged }

// Dropped returns the number of requests discarded without effect.
func (r Result) Dropped() int { return r.CreateSkipped + r.ModifyDropped + r.FlagDropped }

// Processor applies queued requests to the ledger.
type Processor struct {
	ledger *relation.Ledger
	scorer *scorer.Scorer
	queue  *Queue
	traits TraitSource
	logger *zap.Logger
}

// NewProcessor creates a processor draining queue into ledger.
func NewProcessor(ledger *relation.Ledger, sc *scorer.Scorer, queue *Queue, traits TraitSource, logger *zap.Logger) *Processor {
	return &Processor{
		ledger: ledger,
		scorer: sc,
		queue:  queue,
		traits: traits,
		logger: logger,
	}
}

// Queue returns the queue this processor drains.
func (p *Processor) Queue() *Queue { return p.queue }

// Drain applies every pending request: creations first, then modifications,
// then flags. Each request is used once and discarded.
func (p *Processor) Drain(tick uint64) Result {
	var res Result
	b := p.queue.Drain()

	for _, c := range b.Creates {
		if p.create(c, tick) {
			res.Created++
		} else {
			res.CreateSkipped++
		}
	}
	for _, m := range b.Modifies {
		if p.Apply(m, tick) {
			res.Modified++
		} else {
			res.ModifyDropped++
			p.logger.Debug("dropped modification for unknown relation",
				zap.Stringer("source", m.Source),
				zap.Stringer("target", m.Target),
				zap.Int("delta", m.Delta))
		}
	}
	for _, f := range b.Flags {
		if f.Validate() == nil && p.ledger.SetBonds(f.Source, f.Target, f.Romantic, f.Professional) {
			res.Flagged++
		} else {
			res.FlagDropped++
		}
	}
	return res
}

// Apply shifts an existing relation. It never creates one: a request against a
// missing relation returns false and changes nothing.
func (p *Processor) Apply(m Modify, tick uint64) bool {
	if m.Validate() != nil {
		return false
	}
	if !p.ledger.Modify(m.Source, m.Target, m.Delta, tick) {
		return false
	}
	if m.Shared {
		p.ledger.MarkShared(m.Source, m.Target, tick)
	}
	return true
}

func (p *Processor) create(c Create, tick uint64) bool {
	if c.Validate() != nil {
		return false
	}
	if p.ledger.Has(c.A, c.B) || p.ledger.Has(c.B, c.A) {
		return false
	}
	ta, ok := p.traits.Traits(c.A)
	if !ok {
		return false
	}
	tb, ok := p.traits.Traits(c.B)
	if !ok {
		return false
	}
	value := int(p.scorer.Score(ta, tb, c.Context, c.Kinship, scorer.Seed(c.A, c.B, tick)))
	if !p.ledger.Add(c.A, c.B, value, c.Context, tick, c.Kinship) {
		return false
	}
	p.ledger.Add(c.B, c.A, value, c.Context, tick, c.Kinship)
	p.logger.Debug("relation created on request",
		zap.Stringer("a", c.A),
		zap.Stringer("b", c.B),
		zap.Int("value", value),
		zap.Stringer("kinship", c.Kinship))
	return true
}
