package config

// Escrow carries the node-wide escrow policy.
type Escrow struct {
	DisputeGracePeriodSeconds int64    `toml:"DisputeGracePeriodSeconds"`
	MinTimeoutSeconds         uint64   `toml:"MinTimeoutSeconds"`
	MaxTimeoutSeconds         uint64   `toml:"MaxTimeoutSeconds"`
	DefaultTimeoutSeconds     uint64   `toml:"DefaultTimeoutSeconds"`
	FundingPolicy             string   `toml:"FundingPolicy"`
	DisputeFee                uint64   `toml:"DisputeFee"`
	FeeSplit                  FeeSplit `toml:"FeeSplit"`
}

// FeeSplit divides the escrow fee between the fee recipient, the arbitrator
// and an optional partner. The shares are basis points of the fee.
type FeeSplit struct {
	RecipientBps  uint32 `toml:"RecipientBps"`
	ArbitratorBps uint32 `toml:"ArbitratorBps"`
	PartnerBps    uint32 `toml:"PartnerBps"`
}

// RPC controls the JSON-RPC listener.
type RPC struct {
	ListenAddress        string  `toml:"ListenAddress"`
	RequestsPerMinute    float64 `toml:"RequestsPerMinute"`
	Burst                int     `toml:"Burst"`
	AuditDBPath          string  `toml:"AuditDBPath"`
	MaxRequestAgeSeconds int64   `toml:"MaxRequestAgeSeconds"`
}

type Log struct {
	Env        string `toml:"Env"`
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

// Telemetry gates the OTLP/HTTP trace and metric exporters.
type Telemetry struct {
	Enabled               bool   `toml:"Enabled"`
	Endpoint              string `toml:"Endpoint"`
	Insecure              bool   `toml:"Insecure"`
	Headers               string `toml:"Headers,omitempty"`
	Traces                bool   `toml:"Traces"`
	Metrics               bool   `toml:"Metrics"`
	ExportIntervalSeconds int    `toml:"ExportIntervalSeconds"`
}

type Pauses struct {
	Escrow bool `toml:"Escrow"`
}

// Allocation is a genesis balance. Mint is empty for the native currency.
type Allocation struct {
	Owner  string `toml:"Owner"`
	Mint   string `toml:"Mint,omitempty"`
	Amount uint64 `toml:"Amount"`
}
