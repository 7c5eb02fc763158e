package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// MaxOrderIDLength is the longest order id that fits in a single derivation seed.
const MaxOrderIDLength = 32

// Seed prefixes for every record kind owned by the escrow program.
var (
	configSeed  = []byte("escrow_state")
	escrowSeed  = []byte("escrow")
	disputeSeed = []byte("dispute")
)

// DefaultProgramID namespaces all derived addresses unless the node is
// configured otherwise.
var DefaultProgramID = solana.MustPublicKeyFromBase58("1w3ekpHrruiEJPYKpQH6rQssTRNKCKiqUjfQeJXTTrX")

var (
	ErrEmptyOrderID   = errors.New("crypto: order id must not be empty")
	ErrOrderIDTooLong = fmt.Errorf("crypto: order id longer than %d bytes", MaxOrderIDLength)
	ErrZeroAddress    = errors.New("crypto: address must not be zero")
)

// ParseAddress decodes a base58 identity and rejects the zero key.
func ParseAddress(value string) (solana.PublicKey, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return solana.PublicKey{}, ErrZeroAddress
	}
	key, err := solana.PublicKeyFromBase58(trimmed)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("crypto: invalid address %q: %w", trimmed, err)
	}
	if key.IsZero() {
		return solana.PublicKey{}, ErrZeroAddress
	}
	return key, nil
}

// ValidateOrderID checks that the order id can be used as a derivation seed.
func ValidateOrderID(orderID string) error {
	if orderID == "" {
		return ErrEmptyOrderID
	}
	if len(orderID) > MaxOrderIDLength {
		return ErrOrderIDTooLong
	}
	return nil
}

// Deriver computes program-derived addresses under a fixed program id. Every
// method is pure: equal inputs always produce equal outputs.
type Deriver struct {
	program solana.PublicKey
}

// NewDeriver returns a deriver for the supplied program id. A zero id selects
// DefaultProgramID.
func NewDeriver(program solana.PublicKey) Deriver {
	if program.IsZero() {
		program = DefaultProgramID
	}
	return Deriver{program: program}
}

// ProgramID returns the namespace used for derivation.
func (d Deriver) ProgramID() solana.PublicKey { return d.program }

// ConfigAddress derives the seller configuration record address. The same
// address owns the seller's pooled balance.
func (d Deriver) ConfigAddress(seller solana.PublicKey) (solana.PublicKey, uint8, error) {
	if seller.IsZero() {
		return solana.PublicKey{}, 0, ErrZeroAddress
	}
	return solana.FindProgramAddress([][]byte{configSeed, seller.Bytes()}, d.program)
}

// EscrowAddress derives the record and custody address for one order of one
// seller.
func (d Deriver) EscrowAddress(seller solana.PublicKey, orderID string) (solana.PublicKey, uint8, error) {
	if seller.IsZero() {
		return solana.PublicKey{}, 0, ErrZeroAddress
	}
	if err := ValidateOrderID(orderID); err != nil {
		return solana.PublicKey{}, 0, err
	}
	return solana.FindProgramAddress([][]byte{escrowSeed, seller.Bytes(), []byte(orderID)}, d.program)
}

// DisputeVaultAddress derives the account holding dispute fees for an escrow.
func (d Deriver) DisputeVaultAddress(escrow solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{disputeSeed, escrow.Bytes()}, d.program)
	return addr, err
}

// CustodyAddress resolves where an owner's funds live for the given mint.
// Native funds sit on the owner itself; token funds sit in the owner's
// associated token account.
func CustodyAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	if mint.IsZero() {
		return owner, nil
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("crypto: associated token address: %w", err)
	}
	return ata, nil
}
