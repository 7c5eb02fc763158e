package state

import (
	"github.com/gagliardetto/solana-go"

	"peerescrow/native/escrow"
)

// rlp has no signed integers, so timestamps are stored as uint64. They are
// never negative.

type storedConfig struct {
	Address               [32]byte
	Bump                  uint8
	Seller                [32]byte
	FeeBps                uint32
	DefaultTimeoutSeconds uint64
	Arbitrator            [32]byte
	FeeRecipient          [32]byte
	CreatedAt             uint64
}

func newStoredConfig(c *escrow.SellerConfig) *storedConfig {
	return &storedConfig{
		Address:               c.Address,
		Bump:                  c.Bump,
		Seller:                c.Seller,
		FeeBps:                c.FeeBps,
		DefaultTimeoutSeconds: c.DefaultTimeoutSeconds,
		Arbitrator:            c.Arbitrator,
		FeeRecipient:          c.FeeRecipient,
		CreatedAt:             uint64(c.CreatedAt),
	}
}

func (s *storedConfig) toConfig() *escrow.SellerConfig {
	return &escrow.SellerConfig{
		Address:               solana.PublicKey(s.Address),
		Bump:                  s.Bump,
		Seller:                solana.PublicKey(s.Seller),
		FeeBps:                s.FeeBps,
		DefaultTimeoutSeconds: s.DefaultTimeoutSeconds,
		Arbitrator:            solana.PublicKey(s.Arbitrator),
		FeeRecipient:          solana.PublicKey(s.FeeRecipient),
		CreatedAt:             int64(s.CreatedAt),
	}
}

type storedDispute struct {
	Open       bool
	OpenedBy   [32]byte
	OpenedAt   uint64
	BuyerPaid  bool
	SellerPaid bool
	Fee        uint64
}

type storedEscrow struct {
	Address              [32]byte
	Bump                 uint8
	OrderID              string
	Seller               [32]byte
	Buyer                [32]byte
	Partner              [32]byte
	Arbitrator           [32]byte
	FeeRecipient         [32]byte
	Funder               [32]byte
	Amount               uint64
	Mint                 [32]byte
	FeeBps               uint32
	Status               uint8
	CreatedAt            uint64
	TimeoutSeconds       uint64
	PaidAt               uint64
	SellerCanCancelAfter uint64
	Automatic            bool
	Dispute              storedDispute
}

func newStoredEscrow(e *escrow.Escrow) *storedEscrow {
	return &storedEscrow{
		Address:              e.Address,
		Bump:                 e.Bump,
		OrderID:              e.OrderID,
		Seller:               e.Seller,
		Buyer:                e.Buyer,
		Partner:              e.Partner,
		Arbitrator:           e.Arbitrator,
		FeeRecipient:         e.FeeRecipient,
		Funder:               e.Funder,
		Amount:               e.Amount,
		Mint:                 e.Currency.Mint,
		FeeBps:               e.FeeBps,
		Status:               uint8(e.Status),
		CreatedAt:            uint64(e.CreatedAt),
		TimeoutSeconds:       e.TimeoutSeconds,
		PaidAt:               uint64(e.PaidAt),
		SellerCanCancelAfter: uint64(e.SellerCanCancelAfter),
		Automatic:            e.Automatic,
		Dispute: storedDispute{
			Open:       e.Dispute.Open,
			OpenedBy:   e.Dispute.OpenedBy,
			OpenedAt:   uint64(e.Dispute.OpenedAt),
			BuyerPaid:  e.Dispute.BuyerPaid,
			SellerPaid: e.Dispute.SellerPaid,
			Fee:        e.Dispute.Fee,
		},
	}
}

func (s *storedEscrow) toEscrow() *escrow.Escrow {
	return &escrow.Escrow{
		Address:              solana.PublicKey(s.Address),
		Bump:                 s.Bump,
		OrderID:              s.OrderID,
		Seller:               solana.PublicKey(s.Seller),
		Buyer:                solana.PublicKey(s.Buyer),
		Partner:              solana.PublicKey(s.Partner),
		Arbitrator:           solana.PublicKey(s.Arbitrator),
		FeeRecipient:         solana.PublicKey(s.FeeRecipient),
		Funder:               solana.PublicKey(s.Funder),
		Amount:               s.Amount,
		Currency:             escrow.Currency{Mint: solana.PublicKey(s.Mint)},
		FeeBps:               s.FeeBps,
		Status:               escrow.EscrowStatus(s.Status),
		CreatedAt:            int64(s.CreatedAt),
		TimeoutSeconds:       s.TimeoutSeconds,
		PaidAt:               int64(s.PaidAt),
		SellerCanCancelAfter: int64(s.SellerCanCancelAfter),
		Automatic:            s.Automatic,
		Dispute: escrow.Dispute{
			Open:       s.Dispute.Open,
			OpenedBy:   solana.PublicKey(s.Dispute.OpenedBy),
			OpenedAt:   int64(s.Dispute.OpenedAt),
			BuyerPaid:  s.Dispute.BuyerPaid,
			SellerPaid: s.Dispute.SellerPaid,
			Fee:        s.Dispute.Fee,
		},
	}
}
