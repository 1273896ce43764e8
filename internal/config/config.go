package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nidhogg/nuka-bonds/internal/meeting"
	"github.com/nidhogg/nuka-bonds/internal/reinforce"
	"github.com/nidhogg/nuka-bonds/internal/relation"
	"github.com/nidhogg/nuka-bonds/internal/scorer"
	"github.com/nidhogg/nuka-bonds/internal/society"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Relations  RelationsConfig  `json:"relations" yaml:"relations"`
	Database   DatabaseConfig   `json:"database" yaml:"database"`
}

type ServerConfig struct {
	Port     int    `json:"port" yaml:"port"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// SimulationConfig drives the built-in clock and sandbox population.
type SimulationConfig struct {
	TickMillis     int     `json:"tick_ms" yaml:"tick_ms"`
	Speed          float64 `json:"speed" yaml:"speed"`
	Population     int     `json:"population" yaml:"population"`
	Settlements    int     `json:"settlements" yaml:"settlements"`
	WorldSize      float64 `json:"world_size" yaml:"world_size"`
	Seed           int64   `json:"seed" yaml:"seed"`
	AutosaveEvery  uint64  `json:"autosave_every" yaml:"autosave_every"`
	GraphSyncEvery uint64  `json:"graph_sync_every" yaml:"graph_sync_every"`
}

type RelationsConfig struct {
	Meeting          meeting.Config   `json:"meeting" yaml:"meeting"`
	Reinforce        reinforce.Config `json:"reinforce" yaml:"reinforce"`
	ActivityContexts bool             `json:"activity_contexts" yaml:"activity_contexts"`
	Tables           TablesConfig     `json:"tables" yaml:"tables"`
}

// TablesConfig overrides scoring tables. Map keys are context and kinship
// names. Scalars are pointers so an explicit 0 overrides; absent fields keep
// their defaults.
type TablesConfig struct {
	ContextOffsets     map[string]float64 `json:"context_offsets,omitempty" yaml:"context_offsets,omitempty"`
	KinshipBonuses     map[string]float64 `json:"kinship_bonuses,omitempty" yaml:"kinship_bonuses,omitempty"`
	MoralWeight        *float64           `json:"moral_weight,omitempty" yaml:"moral_weight,omitempty"`
	OrderWeight        *float64           `json:"order_weight,omitempty" yaml:"order_weight,omitempty"`
	PurityWeight       *float64           `json:"purity_weight,omitempty" yaml:"purity_weight,omitempty"`
	ExtremeThreshold   *float64           `json:"extreme_threshold,omitempty" yaml:"extreme_threshold,omitempty"`
	ChaosSwing         *float64           `json:"chaos_swing,omitempty" yaml:"chaos_swing,omitempty"`
	ForgivingThreshold *float64           `json:"forgiving_threshold,omitempty" yaml:"forgiving_threshold,omitempty"`
	VengefulThreshold  *float64           `json:"vengeful_threshold,omitempty" yaml:"vengeful_threshold,omitempty"`
	ForgivingBonus     *float64           `json:"forgiving_bonus,omitempty" yaml:"forgiving_bonus,omitempty"`
	VengefulPenalty    *float64           `json:"vengeful_penalty,omitempty" yaml:"vengeful_penalty,omitempty"`
	BoldThreshold      *float64           `json:"bold_threshold,omitempty" yaml:"bold_threshold,omitempty"`
	MatchedBoldness    *float64           `json:"matched_boldness,omitempty" yaml:"matched_boldness,omitempty"`
	MismatchedBoldness *float64           `json:"mismatched_boldness,omitempty" yaml:"mismatched_boldness,omitempty"`
	Jitter             *float64           `json:"jitter,omitempty" yaml:"jitter,omitempty"`
	ChaoticJitter      *float64           `json:"chaotic_jitter,omitempty" yaml:"chaotic_jitter,omitempty"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j" yaml:"neo4j"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	SQLite   SQLiteConfig   `json:"sqlite" yaml:"sqlite"`
}

type PostgresConfig struct {
	DSN           string `json:"dsn" yaml:"dsn"`
	MigrationsDir string `json:"migrations_dir" yaml:"migrations_dir"`
}

type Neo4jConfig struct {
	URI      string `json:"uri" yaml:"uri"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

type RedisConfig struct {
	URL    string `json:"url" yaml:"url"`
	Stream string `json:"stream" yaml:"stream"`
}

// SQLiteConfig is the local save slot used when PostgreSQL is not configured.
type SQLiteConfig struct {
	Path string `json:"path" yaml:"path"`
}

// Default returns a config with every tunable set.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3210
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	s := &c.Simulation
	if s.TickMillis <= 0 {
		s.TickMillis = 100
	}
	if s.Speed <= 0 {
		s.Speed = 1
	}
	if s.Population <= 0 {
		s.Population = 200
	}
	if s.Settlements <= 0 {
		s.Settlements = 4
	}
	if s.Seed == 0 {
		s.Seed = 42
	}
	if s.WorldSize <= 0 {
		s.WorldSize = 200
	}
	if s.AutosaveEvery == 0 {
		s.AutosaveEvery = 600
	}
	if s.GraphSyncEvery == 0 {
		s.GraphSyncEvery = 300
	}
	c.Relations.Meeting = c.Relations.Meeting.WithDefaults()
	c.Relations.Reinforce = c.Relations.Reinforce.WithDefaults()
	if c.Database.Postgres.MigrationsDir == "" {
		c.Database.Postgres.MigrationsDir = "migrations"
	}
	if c.Database.Redis.Stream == "" {
		c.Database.Redis.Stream = "bonds:requests"
	}
}

// Society converts the relation settings into engine configuration.
func (c *Config) Society() (society.Config, error) {
	tables, err := c.Relations.Tables.Resolve()
	if err != nil {
		return society.Config{}, err
	}
	return society.Config{
		Meeting:          c.Relations.Meeting,
		Reinforce:        c.Relations.Reinforce,
		Tables:           tables,
		ActivityContexts: c.Relations.ActivityContexts,
	}, nil
}

// Resolve layers the overrides onto scorer.DefaultTables.
func (t TablesConfig) Resolve() (*scorer.Tables, error) {
	var maps scorer.Tables
	if len(t.ContextOffsets) > 0 {
		maps.ContextOffsets = make(map[relation.MeetingContext]float64, len(t.ContextOffsets))
		for name, v := range t.ContextOffsets {
			ctx, err := relation.ParseMeetingContext(name)
			if err != nil {
				return nil, fmt.Errorf("context_offsets: %w", err)
			}
			maps.ContextOffsets[ctx] = v
		}
	}
	if len(t.KinshipBonuses) > 0 {
		maps.KinshipBonuses = make(map[relation.Kinship]float64, len(t.KinshipBonuses))
		for name, v := range t.KinshipBonuses {
			kin, err := relation.ParseKinship(name)
			if err != nil {
				return nil, fmt.Errorf("kinship_bonuses: %w", err)
			}
			maps.KinshipBonuses[kin] = v
		}
	}
	out := scorer.DefaultTables().Merge(maps)

	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&out.MoralWeight, t.MoralWeight)
	set(&out.OrderWeight, t.OrderWeight)
	set(&out.PurityWeight, t.PurityWeight)
	set(&out.ExtremeThreshold, t.ExtremeThreshold)
	set(&out.ChaosSwing, t.ChaosSwing)
	set(&out.ForgivingThreshold, t.ForgivingThreshold)
	set(&out.VengefulThreshold, t.VengefulThreshold)
	set(&out.ForgivingBonus, t.ForgivingBonus)
	set(&out.VengefulPenalty, t.VengefulPenalty)
	set(&out.BoldThreshold, t.BoldThreshold)
	set(&out.MatchedBoldness, t.MatchedBoldness)
	set(&out.MismatchedBoldness, t.MismatchedBoldness)
	set(&out.Jitter, t.Jitter)
	set(&out.ChaoticJitter, t.ChaoticJitter)
	return &out, nil
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

func expandEnv(data []byte) []byte {
	return envVarRe.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envVarRe.FindSubmatch(match)
		if v := os.Getenv(string(parts[1])); v != "" {
			return []byte(v)
		}
		return parts[2]
	})
}

// Load reads a JSON or YAML config file, substitutes environment variable
// references and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(expandEnv(data), filepath.Ext(path))
}

// Parse decodes an already-read config. ext selects the format (".yaml",
// ".yml", anything else is JSON).
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse json config: %w", err)
		}
	}
	cfg.applyDefaults()
	if _, err := cfg.Relations.Tables.Resolve(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
