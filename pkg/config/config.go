// Package config loads the coordinator's configuration: the handful of
// options named in the external interfaces (archive root, memory
// thresholds, the per-user active-job cap, and this node's hostname).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MemoryConfig holds the three memory thresholds the admission pipeline
// consults at stage 6 (effective memory) and stage 9 (node admission).
type MemoryConfig struct {
	DefaultJobMemory int `yaml:"defaultJobMemory"`
	MaxJobMemory     int `yaml:"maxJobMemory"`
	MaxSystemMemory  int `yaml:"maxSystemMemory"`
}

// ActiveLimitConfig holds the per-user active-jobs cap consulted at
// stage 8. UserLimits maps a user name to their limit; a user absent from
// the map falls back to DefaultLimit.
type ActiveLimitConfig struct {
	Enabled      bool           `yaml:"enabled"`
	DefaultLimit int            `yaml:"defaultLimit"`
	UserLimits   map[string]int `yaml:"userLimits"`
}

// Limit returns the active-job cap for user.
func (a ActiveLimitConfig) Limit(user string) int {
	if limit, ok := a.UserLimits[user]; ok {
		return limit
	}
	return a.DefaultLimit
}

// CatalogConfig selects and configures the Catalog Store backend.
type CatalogConfig struct {
	// Backend is "memory" or "dynamodb".
	Backend           string `yaml:"backend"`
	Region            string `yaml:"region"`
	JobsTable         string `yaml:"jobsTable"`
	ClustersTable     string `yaml:"clustersTable"`
	CommandsTable     string `yaml:"commandsTable"`
	ApplicationsTable string `yaml:"applicationsTable"`
}

// TransportConfig names the Unix sockets the Resolver and Killer IPC
// clients dial.
type TransportConfig struct {
	ResolverSocket string `yaml:"resolverSocket"`
	KillerSocket   string `yaml:"killerSocket"`
}

// Config is the coordinator's full configuration surface.
type Config struct {
	ArchiveRoot string            `yaml:"archiveRoot"`
	Memory      MemoryConfig      `yaml:"memory"`
	ActiveLimit ActiveLimitConfig `yaml:"activeLimit"`
	Hostname    string            `yaml:"hostname"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Transport   TransportConfig   `yaml:"transport"`
}

// DefaultConfig is used whenever no config file is found and no
// environment override is set.
var DefaultConfig = Config{
	ArchiveRoot: "/var/lib/coordinator/archive/",
	Memory: MemoryConfig{
		DefaultJobMemory: 1024,
		MaxJobMemory:      4096,
		MaxSystemMemory:   8192,
	},
	ActiveLimit: ActiveLimitConfig{
		Enabled:      false,
		DefaultLimit: 10,
	},
	Hostname: "localhost",
	Catalog: CatalogConfig{
		Backend:           "memory",
		JobsTable:         "coordinator-jobs",
		ClustersTable:     "coordinator-clusters",
		CommandsTable:     "coordinator-commands",
		ApplicationsTable: "coordinator-applications",
	},
	Transport: TransportConfig{
		ResolverSocket: "/opt/coordinator/run/resolver-ipc.sock",
		KillerSocket:   "/opt/coordinator/run/killer-ipc.sock",
	},
}

// Load builds a Config by layering, in order: built-in defaults, the
// first YAML file found on the search path (explicit path argument, then
// $COORDINATOR_CONFIG, then ./coordinator.yml, then
// /etc/coordinator/config.yml), then a small
// set of per-deployment environment overrides. The result is validated
// before being returned.
func Load(explicitPath string) (*Config, string, error) {
	cfg := DefaultConfig

	path, err := loadFromFile(&cfg, explicitPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config file: %w", err)
	}

	if val := os.Getenv("COORDINATOR_HOSTNAME"); val != "" {
		cfg.Hostname = val
	}
	if val := os.Getenv("COORDINATOR_ARCHIVE_ROOT"); val != "" {
		cfg.ArchiveRoot = val
	}
	if val := os.Getenv("COORDINATOR_MAX_SYSTEM_MEMORY"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return nil, "", fmt.Errorf("parse COORDINATOR_MAX_SYSTEM_MEMORY: %w", err)
		}
		cfg.Memory.MaxSystemMemory = n
	}

	NormalizeArchiveRoot(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("validate config: %w", err)
	}

	return &cfg, path, nil
}

func loadFromFile(cfg *Config, explicitPath string) (string, error) {
	paths := []string{
		explicitPath,
		os.Getenv("COORDINATOR_CONFIG"),
		"./coordinator.yml",
		"/etc/coordinator/config.yml",
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return "", fmt.Errorf("parse config file %s: %w", path, err)
		}
		return path, nil
	}

	return "built-in defaults (no config file found)", nil
}

// NormalizeArchiveRoot ensures archiveRoot ends with the path separator,
// per the stage-2 archiveLocation derivation rule. Load calls this after
// layering in file and environment values; callers that apply further
// overrides of their own (e.g. a CLI flag) after Load returns must call
// this again before the config is handed to the coordinator.
func NormalizeArchiveRoot(cfg *Config) {
	if cfg.ArchiveRoot != "" && !strings.HasSuffix(cfg.ArchiveRoot, "/") {
		cfg.ArchiveRoot += "/"
	}
}

// Validate rejects a configuration that the admission pipeline could not
// safely operate under.
func (c *Config) Validate() error {
	if c.Memory.MaxSystemMemory <= 0 {
		return fmt.Errorf("memory.maxSystemMemory must be positive, got %d", c.Memory.MaxSystemMemory)
	}
	if c.Memory.MaxJobMemory <= 0 {
		return fmt.Errorf("memory.maxJobMemory must be positive, got %d", c.Memory.MaxJobMemory)
	}
	if c.Memory.MaxJobMemory > c.Memory.MaxSystemMemory {
		return fmt.Errorf("memory.maxJobMemory (%d) exceeds memory.maxSystemMemory (%d)",
			c.Memory.MaxJobMemory, c.Memory.MaxSystemMemory)
	}
	if c.Memory.DefaultJobMemory < 0 {
		return fmt.Errorf("memory.defaultJobMemory must be non-negative, got %d", c.Memory.DefaultJobMemory)
	}
	if c.ArchiveRoot == "" {
		return fmt.Errorf("archiveRoot must not be empty")
	}
	if c.Hostname == "" {
		return fmt.Errorf("hostname must not be empty")
	}
	if c.ActiveLimit.Enabled && c.ActiveLimit.DefaultLimit <= 0 {
		return fmt.Errorf("activeLimit.defaultLimit must be positive when activeLimit.enabled is true, got %d",
			c.ActiveLimit.DefaultLimit)
	}
	switch c.Catalog.Backend {
	case "memory", "dynamodb":
	default:
		return fmt.Errorf("catalog.backend must be \"memory\" or \"dynamodb\", got %q", c.Catalog.Backend)
	}
	if c.Catalog.Backend == "dynamodb" && c.Catalog.JobsTable == "" {
		return fmt.Errorf("catalog.jobsTable is required when catalog.backend is \"dynamodb\"")
	}
	return nil
}
