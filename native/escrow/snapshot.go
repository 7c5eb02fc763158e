package escrow

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Account layouts are borsh encoded and prefixed with an 8-byte
// discriminator derived from the account name.
var (
	configDiscriminator = accountDiscriminator("SellerConfig")
	escrowDiscriminator = accountDiscriminator("Escrow")
)

func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

type configAccount struct {
	Discriminator         [8]byte
	Seller                solana.PublicKey
	FeeBps                uint32
	DefaultTimeoutSeconds uint64
	Arbitrator            solana.PublicKey
	FeeRecipient          solana.PublicKey
	CreatedAt             int64
	Bump                  uint8
}

type escrowAccount struct {
	Discriminator        [8]byte
	OrderID              string
	Seller               solana.PublicKey
	Buyer                solana.PublicKey
	Partner              solana.PublicKey
	Arbitrator           solana.PublicKey
	FeeRecipient         solana.PublicKey
	Funder               solana.PublicKey
	Mint                 solana.PublicKey
	Amount               uint64
	FeeBps               uint32
	Status               uint8
	CreatedAt            int64
	TimeoutSeconds       uint64
	PaidAt               int64
	SellerCanCancelAfter int64
	Automatic            bool
	DisputeOpen          bool
	DisputeOpenedBy      solana.PublicKey
	DisputeOpenedAt      int64
	BuyerPaidDispute     bool
	SellerPaidDispute    bool
	DisputeFee           uint64
	Bump                 uint8
}

func borshEncode(v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeConfigAccount returns the account layout of cfg.
func EncodeConfigAccount(cfg *SellerConfig) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil seller config")
	}
	return borshEncode(&configAccount{
		Discriminator:         configDiscriminator,
		Seller:                cfg.Seller,
		FeeBps:                cfg.FeeBps,
		DefaultTimeoutSeconds: cfg.DefaultTimeoutSeconds,
		Arbitrator:            cfg.Arbitrator,
		FeeRecipient:          cfg.FeeRecipient,
		CreatedAt:             cfg.CreatedAt,
		Bump:                  cfg.Bump,
	})
}

// DecodeConfigAccount parses a config account stored at addr.
func DecodeConfigAccount(addr solana.PublicKey, data []byte) (*SellerConfig, error) {
	var acct configAccount
	if err := bin.NewBorshDecoder(data).Decode(&acct); err != nil {
		return nil, fmt.Errorf("decode seller config: %w", err)
	}
	if acct.Discriminator != configDiscriminator {
		return nil, fmt.Errorf("decode seller config: wrong discriminator")
	}
	return &SellerConfig{
		Address:               addr,
		Bump:                  acct.Bump,
		Seller:                acct.Seller,
		FeeBps:                acct.FeeBps,
		DefaultTimeoutSeconds: acct.DefaultTimeoutSeconds,
		Arbitrator:            acct.Arbitrator,
		FeeRecipient:          acct.FeeRecipient,
		CreatedAt:             acct.CreatedAt,
	}, nil
}

// EncodeEscrowAccount returns the account layout of esc.
func EncodeEscrowAccount(esc *Escrow) ([]byte, error) {
	if esc == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	return borshEncode(&escrowAccount{
		Discriminator:        escrowDiscriminator,
		OrderID:              esc.OrderID,
		Seller:               esc.Seller,
		Buyer:                esc.Buyer,
		Partner:              esc.Partner,
		Arbitrator:           esc.Arbitrator,
		FeeRecipient:         esc.FeeRecipient,
		Funder:               esc.Funder,
		Mint:                 esc.Currency.Mint,
		Amount:               esc.Amount,
		FeeBps:               esc.FeeBps,
		Status:               uint8(esc.Status),
		CreatedAt:            esc.CreatedAt,
		TimeoutSeconds:       esc.TimeoutSeconds,
		PaidAt:               esc.PaidAt,
		SellerCanCancelAfter: esc.SellerCanCancelAfter,
		Automatic:            esc.Automatic,
		DisputeOpen:          esc.Dispute.Open,
		DisputeOpenedBy:      esc.Dispute.OpenedBy,
		DisputeOpenedAt:      esc.Dispute.OpenedAt,
		BuyerPaidDispute:     esc.Dispute.BuyerPaid,
		SellerPaidDispute:    esc.Dispute.SellerPaid,
		DisputeFee:           esc.Dispute.Fee,
		Bump:                 esc.Bump,
	})
}

// DecodeEscrowAccount parses an escrow account stored at addr.
func DecodeEscrowAccount(addr solana.PublicKey, data []byte) (*Escrow, error) {
	var acct escrowAccount
	if err := bin.NewBorshDecoder(data).Decode(&acct); err != nil {
		return nil, fmt.Errorf("decode escrow: %w", err)
	}
	if acct.Discriminator != escrowDiscriminator {
		return nil, fmt.Errorf("decode escrow: wrong discriminator")
	}
	return SanitizeEscrow(&Escrow{
		Address:              addr,
		Bump:                 acct.Bump,
		OrderID:              acct.OrderID,
		Seller:               acct.Seller,
		Buyer:                acct.Buyer,
		Partner:              acct.Partner,
		Arbitrator:           acct.Arbitrator,
		FeeRecipient:         acct.FeeRecipient,
		Funder:               acct.Funder,
		Amount:               acct.Amount,
		Currency:             Currency{Mint: acct.Mint},
		FeeBps:               acct.FeeBps,
		Status:               EscrowStatus(acct.Status),
		CreatedAt:            acct.CreatedAt,
		TimeoutSeconds:       acct.TimeoutSeconds,
		PaidAt:               acct.PaidAt,
		SellerCanCancelAfter: acct.SellerCanCancelAfter,
		Automatic:            acct.Automatic,
		Dispute: Dispute{
			Open:       acct.DisputeOpen,
			OpenedBy:   acct.DisputeOpenedBy,
			OpenedAt:   acct.DisputeOpenedAt,
			BuyerPaid:  acct.BuyerPaidDispute,
			SellerPaid: acct.SellerPaidDispute,
			Fee:        acct.DisputeFee,
		},
	})
}

// ConfigSnapshot is a point-in-time read of a seller configuration.
type ConfigSnapshot struct {
	Config *SellerConfig
	Data   []byte
	// PoolBalance is the native balance pooled under the config address.
	PoolBalance uint64
}

// EscrowSnapshot is a point-in-time read of an escrow and its custody.
type EscrowSnapshot struct {
	Escrow         *Escrow
	Data           []byte
	CustodyBalance uint64
}

// ConfigSnapshot reads the configuration at addr without side effects.
func (e *Engine) ConfigSnapshot(addr solana.PublicKey) (*ConfigSnapshot, error) {
	var snap *ConfigSnapshot
	err := e.view(func(tc *txContext) error {
		cfg, ok, err := tc.state.ConfigGet(addr)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, addr)
		}
		data, err := EncodeConfigAccount(cfg)
		if err != nil {
			return err
		}
		pool, err := tc.funds.balance(addr, NativeCurrency)
		if err != nil {
			return err
		}
		snap = &ConfigSnapshot{Config: cfg, Data: data, PoolBalance: pool}
		return nil
	})
	return snap, err
}

// EscrowSnapshot reads the escrow at addr together with the balance held in
// its custody account.
func (e *Engine) EscrowSnapshot(addr solana.PublicKey) (*EscrowSnapshot, error) {
	var snap *EscrowSnapshot
	err := e.view(func(tc *txContext) error {
		esc, err := tc.loadEscrow(addr)
		if err != nil {
			return err
		}
		data, err := EncodeEscrowAccount(esc)
		if err != nil {
			return err
		}
		custody, err := tc.funds.balance(addr, esc.Currency)
		if err != nil {
			return err
		}
		snap = &EscrowSnapshot{Escrow: esc, Data: data, CustodyBalance: custody}
		return nil
	})
	return snap, err
}
