package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"peerescrow/crypto"
)

type Config struct {
	DataDir   string       `toml:"DataDir"`
	ProgramID string       `toml:"ProgramID"`
	Escrow    Escrow       `toml:"Escrow"`
	RPC       RPC          `toml:"RPC"`
	Log       Log          `toml:"Log"`
	Telemetry Telemetry    `toml:"Telemetry"`
	Pauses    Pauses       `toml:"Pauses"`
	Genesis   []Allocation `toml:"Genesis,omitempty"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by a default configuration written to path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDir:   "./escrow-data",
		ProgramID: crypto.DefaultProgramID.String(),
		Escrow: Escrow{
			DisputeGracePeriodSeconds: 86_400,
			MinTimeoutSeconds:         900,
			MaxTimeoutSeconds:         86_400,
			DefaultTimeoutSeconds:     3_600,
			FundingPolicy:             "seller",
			DisputeFee:                5_000_000,
			FeeSplit:                  FeeSplit{RecipientBps: 8_000, ArbitratorBps: 1_000, PartnerBps: 1_000},
		},
		RPC: RPC{
			ListenAddress:        ":8090",
			RequestsPerMinute:    120,
			Burst:                20,
			AuditDBPath:          "audit.db",
			MaxRequestAgeSeconds: 600,
		},
		Log: Log{
			Env:        "dev",
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
		Telemetry: Telemetry{
			Endpoint:              "localhost:4318",
			Insecure:              true,
			Traces:                true,
			Metrics:               true,
			ExportIntervalSeconds: 15,
		},
	}
}

func (c *Config) normalize() {
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.ProgramID = strings.TrimSpace(c.ProgramID)
	if c.ProgramID == "" {
		c.ProgramID = crypto.DefaultProgramID.String()
	}
	c.Escrow.FundingPolicy = strings.ToLower(strings.TrimSpace(c.Escrow.FundingPolicy))
	if c.Escrow.FundingPolicy == "" {
		c.Escrow.FundingPolicy = "seller"
	}
	if strings.TrimSpace(c.Log.Env) == "" {
		c.Log.Env = "dev"
	}
	c.Telemetry.Endpoint = strings.TrimSpace(c.Telemetry.Endpoint)
}

// ResolvePath anchors a relative path under DataDir.
func (c *Config) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
