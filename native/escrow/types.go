package escrow

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// MaxFeeBps is the upper bound for any basis point value.
const MaxFeeBps = 10_000

// EscrowStatus represents the lifecycle states of a single order. The zero
// value is never persisted; an order without a record is uninitialised.
type EscrowStatus uint8

const (
	EscrowCreated EscrowStatus = iota + 1
	EscrowFunded
	EscrowPaid
	EscrowReleased
	EscrowCancelled
)

// Valid reports whether the status value is within the supported range.
func (s EscrowStatus) Valid() bool {
	switch s {
	case EscrowCreated, EscrowFunded, EscrowPaid, EscrowReleased, EscrowCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed from s.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowReleased || s == EscrowCancelled
}

func (s EscrowStatus) String() string {
	switch s {
	case EscrowCreated:
		return "created"
	case EscrowFunded:
		return "funded"
	case EscrowPaid:
		return "paid"
	case EscrowReleased:
		return "released"
	case EscrowCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Currency selects the asset an escrow is denominated in. A zero mint means
// the native currency.
type Currency struct {
	Mint solana.PublicKey
}

// NativeCurrency is the chain's native asset.
var NativeCurrency = Currency{}

// TokenCurrency selects a fungible token by mint.
func TokenCurrency(mint solana.PublicKey) Currency { return Currency{Mint: mint} }

// IsNative reports whether c is the native currency.
func (c Currency) IsNative() bool { return c.Mint.IsZero() }

// Kind returns "native" or "token".
func (c Currency) Kind() string {
	if c.IsNative() {
		return "native"
	}
	return "token"
}

func (c Currency) String() string {
	if c.IsNative() {
		return "native"
	}
	return c.Mint.String()
}

// ParseCurrency accepts "native" (or an empty string) and a base58 mint.
func ParseCurrency(value string) (Currency, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.EqualFold(trimmed, "native") {
		return NativeCurrency, nil
	}
	mint, err := solana.PublicKeyFromBase58(trimmed)
	if err != nil {
		return Currency{}, fmt.Errorf("escrow: invalid currency %q: %w", value, err)
	}
	return TokenCurrency(mint), nil
}

// FundingPolicy decides whose wallet pays an escrow into custody. It is
// independent from whoever pays transaction fees.
type FundingPolicy uint8

const (
	FundingBySeller FundingPolicy = iota
	FundingByBuyer
)

func (p FundingPolicy) String() string {
	if p == FundingByBuyer {
		return "buyer"
	}
	return "seller"
}

// ParseFundingPolicy maps a configuration string to a policy.
func ParseFundingPolicy(value string) (FundingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "seller":
		return FundingBySeller, nil
	case "buyer":
		return FundingByBuyer, nil
	default:
		return 0, fmt.Errorf("escrow: unknown funding policy %q", value)
	}
}

// SellerConfig holds the per-seller defaults copied into every escrow the
// seller opens. It is written once and never modified.
type SellerConfig struct {
	Address               solana.PublicKey
	Bump                  uint8
	Seller                solana.PublicKey
	FeeBps                uint32
	DefaultTimeoutSeconds uint64
	Arbitrator            solana.PublicKey
	FeeRecipient          solana.PublicKey
	CreatedAt             int64
}

// Clone returns a copy of the configuration.
func (c *SellerConfig) Clone() *SellerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Dispute tracks the arbitration side channel of a paid escrow.
type Dispute struct {
	Open       bool
	OpenedBy   solana.PublicKey
	OpenedAt   int64
	BuyerPaid  bool
	SellerPaid bool
	Fee        uint64
}

// Escrow captures the immutable terms and runtime status of one order.
type Escrow struct {
	Address              solana.PublicKey
	Bump                 uint8
	OrderID              string
	Seller               solana.PublicKey
	Buyer                solana.PublicKey
	Partner              solana.PublicKey
	Arbitrator           solana.PublicKey
	FeeRecipient         solana.PublicKey
	Funder               solana.PublicKey
	Amount               uint64
	Currency             Currency
	FeeBps               uint32
	Status               EscrowStatus
	CreatedAt            int64
	TimeoutSeconds       uint64
	PaidAt               int64
	SellerCanCancelAfter int64
	Automatic            bool
	Dispute              Dispute
}

// Clone returns a copy of the escrow so callers can mutate it freely.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// HasPartner reports whether a referring partner shares in the fee.
func (e *Escrow) HasPartner() bool { return e != nil && !e.Partner.IsZero() }

// BuyerDeadline is the last instant at which the buyer may mark the order
// as paid.
func (e *Escrow) BuyerDeadline() int64 {
	return e.CreatedAt + int64(e.TimeoutSeconds)
}

// SanitizeEscrow validates a decoded escrow and returns a clone.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	if !e.Status.Valid() {
		return nil, fmt.Errorf("invalid escrow status: %d", e.Status)
	}
	if e.Amount == 0 {
		return nil, fmt.Errorf("escrow amount must be positive")
	}
	if e.FeeBps > MaxFeeBps {
		return nil, fmt.Errorf("escrow fee bps out of range: %d", e.FeeBps)
	}
	if e.Seller.IsZero() || e.Buyer.IsZero() {
		return nil, fmt.Errorf("escrow parties must be set")
	}
	return e.Clone(), nil
}

// Ref identifies an escrow by its natural key.
type Ref struct {
	Seller  solana.PublicKey
	OrderID string
}

// ConfigParams are the inputs of InitializeConfig.
type ConfigParams struct {
	FeeBps                uint32
	DefaultTimeoutSeconds uint64
	Arbitrator            solana.PublicKey
	FeeRecipient          solana.PublicKey
}

// OpenParams are the inputs of OpenEscrow. A zero TimeoutSeconds selects the
// seller default. Automatic funds the escrow in the same transition.
type OpenParams struct {
	OrderID        string
	Amount         uint64
	Currency       Currency
	TimeoutSeconds uint64
	Buyer          solana.PublicKey
	Partner        solana.PublicKey
	Automatic      bool
	FromPool       bool
}

// FundParams are the inputs of FundEscrow. Amount and Currency must restate
// the escrow terms.
type FundParams struct {
	Amount   uint64
	Currency Currency
	FromPool bool
}
