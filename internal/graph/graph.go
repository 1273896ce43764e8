// Package graph mirrors the relation ledger into Neo4j as
// (:Agent)-[:RELATES_TO]->(:Agent) edges for downstream graph queries.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/relation"
)

// batchSize bounds the rows sent per UNWIND.
const batchSize = 500

// Edge is one mirrored relation as read back from Neo4j.
type Edge struct {
	From                relation.Handle `json:"from"`
	To                  relation.Handle `json:"to"`
	Value               int             `json:"value"`
	Tier                string          `json:"tier"`
	Context             string          `json:"context"`
	Kinship             string          `json:"kinship"`
	SharedExperiences   int64           `json:"shared_experiences"`
	LastInteractionTick int64           `json:"last_interaction_tick"`
}

// Graph manages the relation mirror stored in Neo4j.
type Graph struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// Open connects to Neo4j.
func Open(uri, user, password string, logger *zap.Logger) (*Graph, error) {
	auth := neo4j.NoAuth()
	if user != "" {
		auth = neo4j.BasicAuth(user, password, "")
	}
	driver, err := neo4j.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return New(driver, logger), nil
}

// New wraps an existing driver.
func New(driver neo4j.DriverWithContext, logger *zap.Logger) *Graph {
	return &Graph{driver: driver, logger: logger}
}

// Ping verifies the Neo4j connection.
func (g *Graph) Ping(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

// Close shuts down the driver.
func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// EnsureSchema creates the uniqueness constraint on agent ids.
func (g *Graph) EnsureSchema(ctx context.Context) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`CREATE CONSTRAINT agent_id IF NOT EXISTS FOR (a:Agent) REQUIRE a.id IS UNIQUE`, nil)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Sync upserts every record as an edge stamped with tick, then removes edges
// from earlier syncs that no longer exist in the ledger.
func (g *Graph) Sync(ctx context.Context, records []relation.Record, tick uint64) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		rows := make([]any, 0, end-start)
		for _, rec := range records[start:end] {
			rows = append(rows, map[string]any{
				"from":         rec.Owner.String(),
				"to":           rec.Other.String(),
				"value":        int64(rec.Value),
				"tier":         rec.Tier.String(),
				"context":      rec.Context.String(),
				"kinship":      rec.Kinship.String(),
				"shared":       int64(rec.SharedExperiences),
				"lastTick":     int64(rec.LastInteractionTick),
				"romantic":     rec.IsRomantic,
				"professional": rec.IsProfessional,
			})
		}
		_, err := session.Run(ctx,
			`UNWIND $rows AS row
			 MERGE (a:Agent {id: row.from})
			 MERGE (b:Agent {id: row.to})
			 MERGE (a)-[r:RELATES_TO]->(b)
			 SET r.value = row.value, r.tier = row.tier, r.context = row.context,
			     r.kinship = row.kinship, r.shared_experiences = row.shared,
			     r.last_interaction_tick = row.lastTick, r.is_romantic = row.romantic,
			     r.is_professional = row.professional, r.synced_tick = $tick`,
			map[string]any{"rows": rows, "tick": int64(tick)})
		if err != nil {
			return fmt.Errorf("sync relations: %w", err)
		}
	}

	_, err := session.Run(ctx,
		`MATCH ()-[r:RELATES_TO]->() WHERE r.synced_tick <> $tick DELETE r`,
		map[string]any{"tick": int64(tick)})
	if err != nil {
		return fmt.Errorf("prune relations: %w", err)
	}
	g.logger.Debug("relation graph synced",
		zap.Uint64("tick", tick),
		zap.Int("edges", len(records)))
	return nil
}

// Relations returns all outgoing edges of an agent ordered by value, highest
// first.
func (g *Graph) Relations(ctx context.Context, h relation.Handle) ([]Edge, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:Agent {id: $id})-[r:RELATES_TO]->(b:Agent)
		 RETURN b.id AS to, r.value AS value, r.tier AS tier, r.context AS context,
		        r.kinship AS kinship, r.shared_experiences AS shared,
		        r.last_interaction_tick AS lastTick
		 ORDER BY r.value DESC, b.id`,
		map[string]any{"id": h.String()})
	if err != nil {
		return nil, fmt.Errorf("get relations: %w", err)
	}

	var edges []Edge
	for result.Next(ctx) {
		rec := result.Record()
		toID, _ := rec.Get("to")
		to, err := relation.ParseHandle(toID.(string))
		if err != nil {
			return nil, fmt.Errorf("decode edge target: %w", err)
		}
		value, _ := rec.Get("value")
		tier, _ := rec.Get("tier")
		ctxName, _ := rec.Get("context")
		kin, _ := rec.Get("kinship")
		shared, _ := rec.Get("shared")
		lastTick, _ := rec.Get("lastTick")

		edges = append(edges, Edge{
			From:                h,
			To:                  to,
			Value:               int(value.(int64)),
			Tier:                tier.(string),
			Context:             ctxName.(string),
			Kinship:             kin.(string),
			SharedExperiences:   shared.(int64),
			LastInteractionTick: lastTick.(int64),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read relations: %w", err)
	}
	return edges, nil
}
