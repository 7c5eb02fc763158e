package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"peerescrow/core/state"
	"peerescrow/crypto"
	"peerescrow/native/common"
	"peerescrow/native/escrow"
	telemetry "peerescrow/observability/otel"
)

// Validate rejects configurations the node cannot start with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if _, err := c.Program(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.RPC.ListenAddress == "" {
		return fmt.Errorf("rpc: ListenAddress must be set")
	}
	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.RequestsPerMinute > 0 && c.RPC.Burst == 0 {
		return fmt.Errorf("rpc: Burst must be positive when RequestsPerMinute is set")
	}
	if c.RPC.MaxRequestAgeSeconds < 0 {
		return fmt.Errorf("rpc: MaxRequestAgeSeconds must not be negative")
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return fmt.Errorf("log: rotation limits must not be negative")
	}
	if c.Telemetry.ExportIntervalSeconds < 0 {
		return fmt.Errorf("telemetry: ExportIntervalSeconds must not be negative")
	}
	if c.Telemetry.Enabled && !c.Telemetry.Traces && !c.Telemetry.Metrics {
		return fmt.Errorf("telemetry: enable Traces or Metrics, or disable telemetry")
	}
	if _, err := c.Allocations(); err != nil {
		return err
	}
	return nil
}

// Program returns the configured program id.
func (c *Config) Program() (solana.PublicKey, error) {
	id, err := crypto.ParseAddress(c.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("ProgramID: %w", err)
	}
	return id, nil
}

// Policy converts the [Escrow] section into an engine policy.
func (c *Config) Policy() (escrow.Policy, error) {
	funding, err := escrow.ParseFundingPolicy(c.Escrow.FundingPolicy)
	if err != nil {
		return escrow.Policy{}, fmt.Errorf("escrow: %w", err)
	}
	p := escrow.Policy{
		DisputeGracePeriodSeconds: c.Escrow.DisputeGracePeriodSeconds,
		MinTimeoutSeconds:         c.Escrow.MinTimeoutSeconds,
		MaxTimeoutSeconds:         c.Escrow.MaxTimeoutSeconds,
		DefaultTimeoutSeconds:     c.Escrow.DefaultTimeoutSeconds,
		Funding:                   funding,
		DisputeFee:                c.Escrow.DisputeFee,
		FeeSplit: escrow.FeeSplit{
			RecipientBps:  c.Escrow.FeeSplit.RecipientBps,
			ArbitratorBps: c.Escrow.FeeSplit.ArbitratorBps,
			PartnerBps:    c.Escrow.FeeSplit.PartnerBps,
		},
	}
	if err := p.Validate(); err != nil {
		return escrow.Policy{}, err
	}
	return p, nil
}

// Allocations parses the genesis balances.
func (c *Config) Allocations() ([]state.Allocation, error) {
	out := make([]state.Allocation, 0, len(c.Genesis))
	for i, alloc := range c.Genesis {
		owner, err := crypto.ParseAddress(alloc.Owner)
		if err != nil {
			return nil, fmt.Errorf("genesis[%d]: owner: %w", i, err)
		}
		currency, err := escrow.ParseCurrency(alloc.Mint)
		if err != nil {
			return nil, fmt.Errorf("genesis[%d]: mint: %w", i, err)
		}
		if alloc.Amount == 0 {
			return nil, errors.New("genesis: allocation amount must be positive")
		}
		out = append(out, state.Allocation{Owner: owner, Mint: currency.Mint, Amount: alloc.Amount})
	}
	return out, nil
}

// MaxRequestAge is the longest validity window accepted for signed requests.
func (c *Config) MaxRequestAge() time.Duration {
	if c.RPC.MaxRequestAgeSeconds <= 0 {
		return escrow.DefaultMaxRequestAge
	}
	return time.Duration(c.RPC.MaxRequestAgeSeconds) * time.Second
}

// TelemetryConfig converts the [Telemetry] section into exporter settings for
// service.
func (c *Config) TelemetryConfig(service string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    service,
		Environment:    c.Log.Env,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		Headers:        telemetry.ParseHeaders(c.Telemetry.Headers),
		Traces:         c.Telemetry.Traces,
		Metrics:        c.Telemetry.Metrics,
		ExportInterval: time.Duration(c.Telemetry.ExportIntervalSeconds) * time.Second,
	}
}

// PauseSet returns the operator pause switches as a PauseView.
func (c *Config) PauseSet() *common.PauseSet {
	p := common.NewPauseSet()
	p.Set(escrow.ModuleName, c.Pauses.Escrow)
	return p
}
