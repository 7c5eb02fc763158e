package escrow

import (
	"strconv"

	"github.com/gagliardetto/solana-go"

	"peerescrow/core/types"
)

const (
	EventTypeConfigInitialized = "escrow.config.initialized"
	EventTypeEscrowCreated     = "escrow.created"
	EventTypeEscrowFunded      = "escrow.funded"
	EventTypeEscrowPaid        = "escrow.paid"
	EventTypeEscrowReleased    = "escrow.released"
	EventTypeEscrowCancelled   = "escrow.cancelled"
	EventTypeDisputeOpened     = "escrow.dispute.opened"
	EventTypeDisputeResolved   = "escrow.dispute.resolved"
	EventTypePoolDeposited     = "escrow.pool.deposited"
	EventTypePoolWithdrawn     = "escrow.pool.withdrawn"
)

// NewConfigInitializedEvent describes a freshly created seller configuration.
func NewConfigInitializedEvent(c *SellerConfig) *types.Event {
	attrs := make(map[string]string)
	if c != nil {
		attrs["address"] = c.Address.String()
		attrs["seller"] = c.Seller.String()
		attrs["feeBps"] = strconv.FormatUint(uint64(c.FeeBps), 10)
		attrs["defaultTimeout"] = strconv.FormatUint(c.DefaultTimeoutSeconds, 10)
		attrs["arbitrator"] = c.Arbitrator.String()
		attrs["feeRecipient"] = c.FeeRecipient.String()
	}
	return &types.Event{Type: EventTypeConfigInitialized, Attributes: attrs}
}

// NewCreatedEvent returns the canonical event payload for a newly opened
// escrow.
func NewCreatedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowCreated, e) }

// NewFundedEvent is emitted once custody holds the escrow amount.
func NewFundedEvent(e *Escrow) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowFunded, e)
	if e != nil {
		evt.Attributes["funder"] = e.Funder.String()
	}
	return evt
}

// NewPaidEvent is emitted when the buyer claims off-ledger payment.
func NewPaidEvent(e *Escrow) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowPaid, e)
	if e != nil {
		evt.Attributes["sellerCanCancelAfter"] = strconv.FormatInt(e.SellerCanCancelAfter, 10)
	}
	return evt
}

// NewReleasedEvent carries the payout breakdown of a release.
func NewReleasedEvent(e *Escrow, s Settlement) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowReleased, e)
	evt.Attributes["buyerAmount"] = strconv.FormatUint(s.Buyer, 10)
	evt.Attributes["feeRecipientAmount"] = strconv.FormatUint(s.FeeRecipient, 10)
	evt.Attributes["arbitratorAmount"] = strconv.FormatUint(s.Arbitrator, 10)
	evt.Attributes["partnerAmount"] = strconv.FormatUint(s.Partner, 10)
	return evt
}

// NewCancelledEvent records who cancelled and how much was refunded.
func NewCancelledEvent(e *Escrow, by solana.PublicKey, refunded uint64) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowCancelled, e)
	evt.Attributes["cancelledBy"] = by.String()
	evt.Attributes["refunded"] = strconv.FormatUint(refunded, 10)
	return evt
}

func NewDisputeOpenedEvent(e *Escrow, by solana.PublicKey) *types.Event {
	evt := newEscrowEvent(EventTypeDisputeOpened, e)
	evt.Attributes["openedBy"] = by.String()
	evt.Attributes["disputeFee"] = strconv.FormatUint(e.Dispute.Fee, 10)
	return evt
}

func NewDisputeResolvedEvent(e *Escrow, winner solana.PublicKey) *types.Event {
	evt := newEscrowEvent(EventTypeDisputeResolved, e)
	evt.Attributes["winner"] = winner.String()
	return evt
}

// NewPoolEvent describes a seller pool deposit or withdrawal.
func NewPoolEvent(eventType string, seller, pool solana.PublicKey, currency Currency, amount uint64) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"seller":   seller.String(),
		"pool":     pool.String(),
		"currency": currency.String(),
		"amount":   strconv.FormatUint(amount, 10),
	}}
}

func newEscrowEvent(eventType string, e *Escrow) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["address"] = e.Address.String()
	attrs["orderId"] = e.OrderID
	attrs["seller"] = e.Seller.String()
	attrs["buyer"] = e.Buyer.String()
	attrs["amount"] = strconv.FormatUint(e.Amount, 10)
	attrs["currency"] = e.Currency.String()
	attrs["feeBps"] = strconv.FormatUint(uint64(e.FeeBps), 10)
	attrs["status"] = e.Status.String()
	if e.HasPartner() {
		attrs["partner"] = e.Partner.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
