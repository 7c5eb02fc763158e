package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"peerescrow/crypto"
	"peerescrow/native/escrow"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
	if cfg.ProgramID != crypto.DefaultProgramID.String() {
		t.Fatalf("unexpected program id %q", cfg.ProgramID)
	}

	// the persisted default must load back to the same values
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.RPC != cfg.RPC || again.Escrow != cfg.Escrow || again.Log != cfg.Log || again.Telemetry != cfg.Telemetry {
		t.Fatalf("reloaded config differs:\n%+v\n%+v", again, cfg)
	}
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `DataDir = "/var/lib/escrow"
ProgramID = "`+crypto.DefaultProgramID.String()+`"

[Escrow]
DisputeGracePeriodSeconds = 3600
MinTimeoutSeconds = 60
MaxTimeoutSeconds = 7200
DefaultTimeoutSeconds = 600
FundingPolicy = "Buyer"
DisputeFee = 1000

[Escrow.FeeSplit]
RecipientBps = 7000
ArbitratorBps = 2000
PartnerBps = 1000

[RPC]
ListenAddress = "127.0.0.1:9999"
RequestsPerMinute = 30.0
Burst = 5
AuditDBPath = "audit/escrow.db"
MaxRequestAgeSeconds = 120

[Log]
Env = "prod"
File = "/var/log/escrowd.log"

[Telemetry]
Enabled = true
Endpoint = " collector:4318 "
Insecure = false
Headers = "authorization=Bearer x, tenant=escrow"
Metrics = false

[Pauses]
Escrow = true

[[Genesis]]
Owner = "11111111111111111111111111111112"
Amount = 500
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	policy, err := cfg.Policy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if policy.Funding != escrow.FundingByBuyer || policy.MinTimeoutSeconds != 60 || policy.DisputeFee != 1000 {
		t.Fatalf("unexpected policy: %+v", policy)
	}
	if policy.FeeSplit.ArbitratorBps != 2000 {
		t.Fatalf("fee split not parsed: %+v", policy.FeeSplit)
	}
	if cfg.MaxRequestAge() != 2*time.Minute {
		t.Fatalf("unexpected request age %s", cfg.MaxRequestAge())
	}
	if got := cfg.ResolvePath(cfg.RPC.AuditDBPath); got != filepath.Join("/var/lib/escrow", "audit/escrow.db") {
		t.Fatalf("unexpected audit path %q", got)
	}
	if !cfg.PauseSet().IsPaused(escrow.ModuleName) {
		t.Fatalf("escrow pause not applied")
	}
	if cfg.Log.MaxSizeMB != 100 {
		t.Fatalf("unset keys should keep defaults, got %d", cfg.Log.MaxSizeMB)
	}
	tel := cfg.TelemetryConfig("escrowd")
	if !cfg.Telemetry.Enabled || tel.Endpoint != "collector:4318" || tel.Insecure || tel.Metrics || !tel.Traces {
		t.Fatalf("unexpected telemetry: %+v", tel)
	}
	if tel.ServiceName != "escrowd" || tel.Environment != "prod" || tel.ExportInterval != 15*time.Second {
		t.Fatalf("unexpected telemetry identity: %+v", tel)
	}
	if tel.Headers["authorization"] != "Bearer x" || tel.Headers["tenant"] != "escrow" {
		t.Fatalf("unexpected telemetry headers: %v", tel.Headers)
	}
	allocs, err := cfg.Allocations()
	if err != nil {
		t.Fatalf("allocations: %v", err)
	}
	if len(allocs) != 1 || allocs[0].Amount != 500 || !allocs[0].Mint.IsZero() {
		t.Fatalf("unexpected allocations: %+v", allocs)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"empty data dir":   func(c *Config) { c.DataDir = "" },
		"bad program id":   func(c *Config) { c.ProgramID = "not-base58!" },
		"bad funding":      func(c *Config) { c.Escrow.FundingPolicy = "partner" },
		"inverted bounds":  func(c *Config) { c.Escrow.MinTimeoutSeconds = c.Escrow.MaxTimeoutSeconds + 1 },
		"fee split sum":    func(c *Config) { c.Escrow.FeeSplit.PartnerBps = 0 },
		"burst missing":    func(c *Config) { c.RPC.Burst = 0 },
		"negative age":     func(c *Config) { c.RPC.MaxRequestAgeSeconds = -1 },
		"no exporters":     func(c *Config) { c.Telemetry = Telemetry{Enabled: true} },
		"negative export":  func(c *Config) { c.Telemetry.ExportIntervalSeconds = -1 },
		"zero genesis":     func(c *Config) { c.Genesis = []Allocation{{Owner: crypto.DefaultProgramID.String()}} },
		"bad genesis mint": func(c *Config) { c.Genesis = []Allocation{{Owner: crypto.DefaultProgramID.String(), Mint: "??", Amount: 1}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := writeConfig(t, "[Escrow]\nFundingPolicy = \"nobody\"\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "funding policy") {
		t.Fatalf("expected funding policy error, got %v", err)
	}
}
