package rpc

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"

	"peerescrow/crypto"
	"peerescrow/native/escrow"
)

// ProofJSON is the wire form of an ed25519 authorization proof.
type ProofJSON struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

// SubmitParams is the single parameter object of escrow_submit. Addresses
// are base58 and amounts are decimal strings. Optional addresses may be
// omitted.
type SubmitParams struct {
	Op             string      `json:"op"`
	Caller         string      `json:"caller"`
	FeePayer       string      `json:"feePayer,omitempty"`
	Seller         string      `json:"seller,omitempty"`
	OrderID        string      `json:"orderId,omitempty"`
	Amount         string      `json:"amount,omitempty"`
	Mint           string      `json:"mint,omitempty"`
	Buyer          string      `json:"buyer,omitempty"`
	Partner        string      `json:"partner,omitempty"`
	Arbitrator     string      `json:"arbitrator,omitempty"`
	FeeRecipient   string      `json:"feeRecipient,omitempty"`
	Winner         string      `json:"winner,omitempty"`
	FeeBps         uint32      `json:"feeBps,omitempty"`
	TimeoutSeconds uint64      `json:"timeoutSeconds,omitempty"`
	Automatic      bool        `json:"automatic,omitempty"`
	FromPool       bool        `json:"fromPool,omitempty"`
	Nonce          uint64      `json:"nonce"`
	ValidUntil     int64       `json:"validUntil"`
	Proofs         []ProofJSON `json:"proofs"`
}

// EncodeSubmitParams renders a signed request in its wire form.
func EncodeSubmitParams(req escrow.SignedRequest) SubmitParams {
	r := req.Request
	out := SubmitParams{
		Op:             r.Op.String(),
		Caller:         r.Caller.String(),
		FeePayer:       optionalAddress(r.FeePayer),
		Seller:         optionalAddress(r.Seller),
		OrderID:        r.OrderID,
		Mint:           optionalAddress(r.Mint),
		Buyer:          optionalAddress(r.Buyer),
		Partner:        optionalAddress(r.Partner),
		Arbitrator:     optionalAddress(r.Arbitrator),
		FeeRecipient:   optionalAddress(r.FeeRecipient),
		Winner:         optionalAddress(r.Winner),
		FeeBps:         r.FeeBps,
		TimeoutSeconds: r.TimeoutSeconds,
		Automatic:      r.Automatic,
		FromPool:       r.FromPool,
		Nonce:          r.Nonce,
		ValidUntil:     r.ValidUntil,
	}
	if r.Amount > 0 {
		out.Amount = strconv.FormatUint(r.Amount, 10)
	}
	for _, proof := range req.Proofs {
		out.Proofs = append(out.Proofs, ProofJSON{Signer: proof.Signer.String(), Signature: proof.Signature.String()})
	}
	return out
}

// Decode converts the wire form back into a signed request.
func (p SubmitParams) Decode() (escrow.SignedRequest, error) {
	var out escrow.SignedRequest
	op, err := escrow.ParseOp(p.Op)
	if err != nil {
		return out, err
	}
	caller, err := crypto.ParseAddress(p.Caller)
	if err != nil {
		return out, fmt.Errorf("caller: %w", err)
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return out, err
	}
	req := escrow.Request{
		Op:             op,
		Caller:         caller,
		OrderID:        p.OrderID,
		Amount:         amount,
		FeeBps:         p.FeeBps,
		TimeoutSeconds: p.TimeoutSeconds,
		Automatic:      p.Automatic,
		FromPool:       p.FromPool,
		Nonce:          p.Nonce,
		ValidUntil:     p.ValidUntil,
	}
	optional := []struct {
		name  string
		value string
		dst   *solana.PublicKey
	}{
		{"feePayer", p.FeePayer, &req.FeePayer},
		{"seller", p.Seller, &req.Seller},
		{"mint", p.Mint, &req.Mint},
		{"buyer", p.Buyer, &req.Buyer},
		{"partner", p.Partner, &req.Partner},
		{"arbitrator", p.Arbitrator, &req.Arbitrator},
		{"feeRecipient", p.FeeRecipient, &req.FeeRecipient},
		{"winner", p.Winner, &req.Winner},
	}
	for _, field := range optional {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		key, err := crypto.ParseAddress(field.value)
		if err != nil {
			return out, fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dst = key
	}
	if len(p.Proofs) == 0 {
		return out, fmt.Errorf("at least one proof required")
	}
	for i, proof := range p.Proofs {
		signer, err := crypto.ParseAddress(proof.Signer)
		if err != nil {
			return out, fmt.Errorf("proofs[%d].signer: %w", i, err)
		}
		sig, err := solana.SignatureFromBase58(strings.TrimSpace(proof.Signature))
		if err != nil {
			return out, fmt.Errorf("proofs[%d].signature: %w", i, err)
		}
		out.Proofs = append(out.Proofs, crypto.Proof{Signer: signer, Signature: sig})
	}
	out.Request = req
	return out, nil
}

type configJSON struct {
	Address               string `json:"address"`
	Bump                  uint8  `json:"bump"`
	Seller                string `json:"seller"`
	FeeBps                uint32 `json:"feeBps"`
	DefaultTimeoutSeconds uint64 `json:"defaultTimeoutSeconds"`
	Arbitrator            string `json:"arbitrator"`
	FeeRecipient          string `json:"feeRecipient"`
	CreatedAt             int64  `json:"createdAt"`
}

type disputeJSON struct {
	OpenedBy   string `json:"openedBy"`
	OpenedAt   int64  `json:"openedAt"`
	BuyerPaid  bool   `json:"buyerPaid"`
	SellerPaid bool   `json:"sellerPaid"`
	Fee        string `json:"fee"`
}

type escrowJSON struct {
	Address              string       `json:"address"`
	Bump                 uint8        `json:"bump"`
	OrderID              string       `json:"orderId"`
	Seller               string       `json:"seller"`
	Buyer                string       `json:"buyer"`
	Partner              *string      `json:"partner,omitempty"`
	Arbitrator           string       `json:"arbitrator"`
	FeeRecipient         string       `json:"feeRecipient"`
	Funder               *string      `json:"funder,omitempty"`
	Amount               string       `json:"amount"`
	Currency             string       `json:"currency"`
	FeeBps               uint32       `json:"feeBps"`
	Status               string       `json:"status"`
	CreatedAt            int64        `json:"createdAt"`
	TimeoutSeconds       uint64       `json:"timeoutSeconds"`
	BuyerDeadline        int64        `json:"buyerDeadline"`
	PaidAt               *int64       `json:"paidAt,omitempty"`
	SellerCanCancelAfter *int64       `json:"sellerCanCancelAfter,omitempty"`
	Automatic            bool         `json:"automatic"`
	Dispute              *disputeJSON `json:"dispute,omitempty"`
}

type settlementJSON struct {
	Buyer        string `json:"buyer"`
	FeeRecipient string `json:"feeRecipient"`
	Arbitrator   string `json:"arbitrator"`
	Partner      string `json:"partner"`
}

type submitResult struct {
	Op         string          `json:"op"`
	Config     *configJSON     `json:"config,omitempty"`
	Escrow     *escrowJSON     `json:"escrow,omitempty"`
	Settlement *settlementJSON `json:"settlement,omitempty"`
}

type configSnapshotJSON struct {
	Config      configJSON `json:"config"`
	Data        string     `json:"data"`
	PoolBalance string     `json:"poolBalance"`
}

type escrowSnapshotJSON struct {
	Escrow         escrowJSON `json:"escrow"`
	Data           string     `json:"data"`
	CustodyBalance string     `json:"custodyBalance"`
}

func formatConfigJSON(cfg *escrow.SellerConfig) configJSON {
	return configJSON{
		Address:               cfg.Address.String(),
		Bump:                  cfg.Bump,
		Seller:                cfg.Seller.String(),
		FeeBps:                cfg.FeeBps,
		DefaultTimeoutSeconds: cfg.DefaultTimeoutSeconds,
		Arbitrator:            cfg.Arbitrator.String(),
		FeeRecipient:          cfg.FeeRecipient.String(),
		CreatedAt:             cfg.CreatedAt,
	}
}

func formatEscrowJSON(esc *escrow.Escrow) escrowJSON {
	out := escrowJSON{
		Address:        esc.Address.String(),
		Bump:           esc.Bump,
		OrderID:        esc.OrderID,
		Seller:         esc.Seller.String(),
		Buyer:          esc.Buyer.String(),
		Arbitrator:     esc.Arbitrator.String(),
		FeeRecipient:   esc.FeeRecipient.String(),
		Amount:         strconv.FormatUint(esc.Amount, 10),
		Currency:       esc.Currency.String(),
		FeeBps:         esc.FeeBps,
		Status:         esc.Status.String(),
		CreatedAt:      esc.CreatedAt,
		TimeoutSeconds: esc.TimeoutSeconds,
		BuyerDeadline:  esc.BuyerDeadline(),
		Automatic:      esc.Automatic,
	}
	if esc.HasPartner() {
		partner := esc.Partner.String()
		out.Partner = &partner
	}
	if !esc.Funder.IsZero() {
		funder := esc.Funder.String()
		out.Funder = &funder
	}
	if esc.PaidAt != 0 {
		paidAt := esc.PaidAt
		out.PaidAt = &paidAt
		after := esc.SellerCanCancelAfter
		out.SellerCanCancelAfter = &after
	}
	if esc.Dispute.Open {
		out.Dispute = &disputeJSON{
			OpenedBy:   esc.Dispute.OpenedBy.String(),
			OpenedAt:   esc.Dispute.OpenedAt,
			BuyerPaid:  esc.Dispute.BuyerPaid,
			SellerPaid: esc.Dispute.SellerPaid,
			Fee:        strconv.FormatUint(esc.Dispute.Fee, 10),
		}
	}
	return out
}

func formatSettlementJSON(s *escrow.Settlement) *settlementJSON {
	if s == nil {
		return nil
	}
	return &settlementJSON{
		Buyer:        strconv.FormatUint(s.Buyer, 10),
		FeeRecipient: strconv.FormatUint(s.FeeRecipient, 10),
		Arbitrator:   strconv.FormatUint(s.Arbitrator, 10),
		Partner:      strconv.FormatUint(s.Partner, 10),
	}
}

func formatResult(res *escrow.Result) submitResult {
	out := submitResult{Op: res.Op.String(), Settlement: formatSettlementJSON(res.Settlement)}
	if res.Config != nil {
		cfg := formatConfigJSON(res.Config)
		out.Config = &cfg
	}
	if res.Escrow != nil {
		esc := formatEscrowJSON(res.Escrow)
		out.Escrow = &esc
	}
	return out
}

func encodeData(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func optionalAddress(key solana.PublicKey) string {
	if key.IsZero() {
		return ""
	}
	return key.String()
}

// parseAmount accepts an empty string as zero so operations without an
// amount can omit it. The engine rejects zero where an amount is required.
func parseAmount(value string) (uint64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	amount, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}
