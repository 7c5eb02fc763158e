package escrow

import (
	"fmt"

	"github.com/holiman/uint256"
)

// FeeSplit divides the escrow fee between its recipients. The three shares
// are basis points of the fee and must sum to MaxFeeBps.
type FeeSplit struct {
	RecipientBps  uint32
	ArbitratorBps uint32
	PartnerBps    uint32
}

// DefaultFeeSplit routes most of the fee to the fee recipient.
var DefaultFeeSplit = FeeSplit{RecipientBps: 8_000, ArbitratorBps: 1_000, PartnerBps: 1_000}

// Validate ensures the shares cover the whole fee exactly.
func (s FeeSplit) Validate() error {
	total := uint64(s.RecipientBps) + uint64(s.ArbitratorBps) + uint64(s.PartnerBps)
	if total != MaxFeeBps {
		return fmt.Errorf("%w: fee split sums to %d bps", ErrInvalidFeeRate, total)
	}
	return nil
}

// Settlement is the outcome of splitting an escrow amount on release.
type Settlement struct {
	Buyer        uint64
	FeeRecipient uint64
	Arbitrator   uint64
	Partner      uint64
}

// Fee returns the total fee portion.
func (s Settlement) Fee() uint64 {
	return s.FeeRecipient + s.Arbitrator + s.Partner
}

// Total returns the sum of all outgoing transfers.
func (s Settlement) Total() uint64 {
	return s.Buyer + s.Fee()
}

var bpsDenominator = uint256.NewInt(MaxFeeBps)

func mulBps(amount uint64, bps uint32) uint64 {
	v := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(uint64(bps)))
	v.Div(v, bpsDenominator)
	return v.Uint64()
}

// ComputeSettlement splits amount into the buyer payout and fee shares.
// Integer remainders land on the fee recipient so the parts always sum to
// amount. Without a partner the partner share also goes to the fee
// recipient.
func ComputeSettlement(amount uint64, feeBps uint32, split FeeSplit, hasPartner bool) (Settlement, error) {
	if feeBps > MaxFeeBps {
		return Settlement{}, ErrInvalidFeeRate
	}
	if err := split.Validate(); err != nil {
		return Settlement{}, err
	}
	fee := mulBps(amount, feeBps)
	out := Settlement{Buyer: amount - fee}
	out.Arbitrator = mulBps(fee, split.ArbitratorBps)
	if hasPartner {
		out.Partner = mulBps(fee, split.PartnerBps)
	}
	out.FeeRecipient = fee - out.Arbitrator - out.Partner
	return out, nil
}
