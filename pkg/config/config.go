package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/ritzau/agentic-mesh/pkg/policy"
	"github.com/ritzau/agentic-mesh/pkg/pubsub"
	"github.com/ritzau/agentic-mesh/pkg/simulator"
	"github.com/ritzau/agentic-mesh/pkg/topology"
	"github.com/spf13/pflag"
)

// DefaultFile is the optional config file read from the working directory
const DefaultFile = "mesh-router.toml"

// EnvPrefix prefixes every environment override, e.g. MESH_ROUTER_PORT=9090
const EnvPrefix = "MESH_ROUTER_"

// LegacyPolicyEnv selects the policy like the first mesh server did
const LegacyPolicyEnv = "MESH_POLICY"

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration for the application
type Config struct {
	Port           int           `koanf:"port"`
	Policy         string        `koanf:"policy"`
	Seed           int64         `koanf:"seed"`
	Nodes          int           `koanf:"nodes"`
	Tick           time.Duration `koanf:"tick"`
	BroadcastEvery int           `koanf:"broadcast_every"`
	Rate           float64       `koanf:"rate"`
	TTLMultiplier  int           `koanf:"ttl_multiplier"`
	LogCapacity    int           `koanf:"log_capacity"`
	SnapshotLogs   int           `koanf:"snapshot_logs"`
	QueueDepth     int           `koanf:"queue_depth"`
	TrustThreshold float64       `koanf:"trust_threshold"`
	TrustReward    float64       `koanf:"trust_reward"`
	TrustPenalty   float64       `koanf:"trust_penalty"`
	TrustRecovery  float64       `koanf:"trust_recovery"`
	TopologyFile   string        `koanf:"topology_file"`
	Watch          bool          `koanf:"watch"`
	Duration       time.Duration `koanf:"duration"`
	Verbosity      string        `koanf:"verbosity"`
	VerboseCnt     int           `koanf:"verbose"`
	LogFormat      string        `koanf:"log_format"`
}

// Defaults returns the built-in configuration layer
func Defaults() map[string]interface{} {
	sim := simulator.DefaultOptions()
	return map[string]interface{}{
		"port":            8080,
		"policy":          policy.KindAgentic.String(),
		"seed":            sim.Seed,
		"nodes":           topology.DefaultNodeCount,
		"tick":            200 * time.Millisecond,
		"broadcast_every": 1,
		"rate":            sim.Rate,
		"ttl_multiplier":  sim.TTLMultiplier,
		"log_capacity":    sim.LogCapacity,
		"snapshot_logs":   sim.SnapshotLogs,
		"queue_depth":     pubsub.DefaultQueueDepth,
		"trust_threshold": policy.DefaultConfig().TrustThreshold,
		"trust_reward":    sim.TrustReward,
		"trust_penalty":   sim.TrustPenalty,
		"trust_recovery":  sim.TrustRecovery,
		"topology_file":   "",
		"watch":           false,
		"duration":        30 * time.Second,
		"verbosity":       "",
		"verbose":         0,
		"log_format":      "compact",
	}
}

// RegisterFlags defines the command-line flags understood by Load
func RegisterFlags(f *pflag.FlagSet) {
	d := Defaults()
	f.Int("port", d["port"].(int), "HTTP port")
	f.String("policy", d["policy"].(string), "Routing policy: threshold, agentic or flood")
	f.Int64("seed", d["seed"].(int64), "Random seed for topology and traffic")
	f.Int("nodes", d["nodes"].(int), "Number of generated nodes (a served mesh is always 15)")
	f.Duration("tick", d["tick"].(time.Duration), "Simulation tick interval")
	f.Int("broadcast_every", d["broadcast_every"].(int), "Broadcast a snapshot every N ticks")
	f.Float64("rate", d["rate"].(float64), "New messages per tick")
	f.Int("ttl_multiplier", d["ttl_multiplier"].(int), "Message TTL as a multiple of the mesh diameter")
	f.Int("log_capacity", d["log_capacity"].(int), "Routing log entries retained")
	f.Int("snapshot_logs", d["snapshot_logs"].(int), "Routing log entries carried in each snapshot")
	f.Int("queue_depth", d["queue_depth"].(int), "Per-observer snapshot queue depth (1-2)")
	f.Float64("trust_threshold", d["trust_threshold"].(float64), "Minimum trust score of an acceptable next hop")
	f.Float64("trust_reward", d["trust_reward"].(float64), "Trust gained per delivered message along its path")
	f.Float64("trust_penalty", d["trust_penalty"].(float64), "Trust lost by a refused next hop")
	f.Float64("trust_recovery", d["trust_recovery"].(float64), "Per-tick trust drift back to baseline")
	f.String("topology_file", "", "YAML topology file (default: generated)")
	f.Bool("watch", false, "Restart the simulation when the topology file changes")
	f.Duration("duration", d["duration"].(time.Duration), "Simulated wall time for headless runs")
	f.String("verbosity", "", "Log level: trace, debug, info, warn, error")
	f.CountP("verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	f.String("log_format", d["log_format"].(string), "Log format: compact or json")
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return LoadFile(DefaultFile, f)
}

// LoadFile is Load with an explicit config file path
func LoadFile(path string, f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional)
	// A missing file is fine, a malformed one is not
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// 3. Environment Variables
	// Legacy MESH_POLICY first so MESH_ROUTER_POLICY wins over it
	if err := k.Load(env.Provider(LegacyPolicyEnv, ".", func(s string) string {
		if s == LegacyPolicyEnv {
			return "policy"
		}
		return ""
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}
	// Keys are flat, so underscores are kept: MESH_ROUTER_TRUST_THRESHOLD -> trust_threshold
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects values the simulation cannot run with
func (c *Config) Validate() error {
	if _, err := policy.ParseKind(c.Policy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	case c.Nodes != topology.DefaultNodeCount:
		return fmt.Errorf("%w: nodes must be %d, got %d", ErrInvalidConfig, topology.DefaultNodeCount, c.Nodes)
	case c.Tick <= 0:
		return fmt.Errorf("%w: tick must be positive, got %s", ErrInvalidConfig, c.Tick)
	case c.BroadcastEvery < 1:
		return fmt.Errorf("%w: broadcast_every must be at least 1, got %d", ErrInvalidConfig, c.BroadcastEvery)
	case c.Rate < 0:
		return fmt.Errorf("%w: rate must not be negative, got %g", ErrInvalidConfig, c.Rate)
	case c.TTLMultiplier < 1:
		return fmt.Errorf("%w: ttl_multiplier must be at least 1, got %d", ErrInvalidConfig, c.TTLMultiplier)
	case c.LogCapacity < 1:
		return fmt.Errorf("%w: log_capacity must be at least 1, got %d", ErrInvalidConfig, c.LogCapacity)
	case c.QueueDepth < pubsub.MinQueueDepth || c.QueueDepth > pubsub.MaxQueueDepth:
		return fmt.Errorf("%w: queue_depth must be %d-%d, got %d",
			ErrInvalidConfig, pubsub.MinQueueDepth, pubsub.MaxQueueDepth, c.QueueDepth)
	case c.TrustThreshold < 0 || c.TrustThreshold > 1:
		return fmt.Errorf("%w: trust_threshold must be within [0,1], got %g", ErrInvalidConfig, c.TrustThreshold)
	case c.TrustReward < 0 || c.TrustPenalty < 0 || c.TrustRecovery < 0:
		return fmt.Errorf("%w: trust dynamics must not be negative", ErrInvalidConfig)
	case c.Watch && c.TopologyFile == "":
		return fmt.Errorf("%w: watch requires topology_file", ErrInvalidConfig)
	case c.LogFormat != "compact" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be compact or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}

// PolicyKind returns the configured policy; call Validate first
func (c *Config) PolicyKind() policy.Kind {
	kind, err := policy.ParseKind(c.Policy)
	if err != nil {
		return policy.KindAgentic
	}
	return kind
}

// PolicyConfig returns the policy engine settings
func (c *Config) PolicyConfig() policy.Config {
	return policy.Config{TrustThreshold: c.TrustThreshold}
}

// SimulatorOptions returns the simulation settings
func (c *Config) SimulatorOptions() simulator.Options {
	opts := simulator.DefaultOptions()
	opts.Seed = c.Seed
	opts.Rate = c.Rate
	opts.TTLMultiplier = c.TTLMultiplier
	opts.LogCapacity = c.LogCapacity
	opts.SnapshotLogs = c.SnapshotLogs
	opts.TrustReward = c.TrustReward
	opts.TrustPenalty = c.TrustPenalty
	opts.TrustRecovery = c.TrustRecovery
	return opts
}

// GenerateOptions returns the options for a generated topology
func (c *Config) GenerateOptions() topology.GenerateOptions {
	opts := topology.DefaultGenerateOptions(c.Seed)
	opts.Count = c.Nodes
	return opts
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
