package escrow

import (
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"peerescrow/core/events"
	"peerescrow/core/types"
	"peerescrow/crypto"
	"peerescrow/native/common"
)

// ModuleName is the pause-guard key of the escrow module.
const ModuleName = "escrow"

type engineState interface {
	ConfigGet(addr solana.PublicKey) (*SellerConfig, bool, error)
	ConfigPut(cfg *SellerConfig) error
	EscrowGet(addr solana.PublicKey) (*Escrow, bool, error)
	EscrowPut(esc *Escrow) error
	Balance(account, mint solana.PublicKey) (uint64, error)
	Transfer(from, to, mint solana.PublicKey, amount uint64) error
}

// StateTxn is a unit of work against the state backend. Nothing is visible
// to other transactions until Commit returns nil.
type StateTxn interface {
	engineState
	Commit() error
	Discard()
}

// Store opens state transactions.
type Store interface {
	BeginTxn() StateTxn
}

// Policy holds the node-wide escrow parameters.
type Policy struct {
	DisputeGracePeriodSeconds int64
	MinTimeoutSeconds         uint64
	MaxTimeoutSeconds         uint64
	DefaultTimeoutSeconds     uint64
	Funding                   FundingPolicy
	DisputeFee                uint64
	FeeSplit                  FeeSplit
}

// DefaultPolicy mirrors the limits of the reference deployment: buyers get
// between 15 minutes and 24 hours to pay and sellers wait a day after a
// payment claim before they may cancel.
func DefaultPolicy() Policy {
	return Policy{
		DisputeGracePeriodSeconds: int64((24 * time.Hour).Seconds()),
		MinTimeoutSeconds:         uint64((15 * time.Minute).Seconds()),
		MaxTimeoutSeconds:         uint64((24 * time.Hour).Seconds()),
		DefaultTimeoutSeconds:     uint64(time.Hour.Seconds()),
		Funding:                   FundingBySeller,
		DisputeFee:                5_000_000,
		FeeSplit:                  DefaultFeeSplit,
	}
}

// Validate checks the policy for internal consistency.
func (p Policy) Validate() error {
	if p.DisputeGracePeriodSeconds < 0 {
		return fmt.Errorf("escrow policy: negative dispute grace period")
	}
	if p.MinTimeoutSeconds == 0 || p.MinTimeoutSeconds > p.MaxTimeoutSeconds {
		return fmt.Errorf("escrow policy: invalid timeout bounds [%d, %d]", p.MinTimeoutSeconds, p.MaxTimeoutSeconds)
	}
	if p.DefaultTimeoutSeconds < p.MinTimeoutSeconds || p.DefaultTimeoutSeconds > p.MaxTimeoutSeconds {
		return fmt.Errorf("escrow policy: default timeout %d outside bounds", p.DefaultTimeoutSeconds)
	}
	return p.FeeSplit.Validate()
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine runs the escrow state machine. Every mutating call executes under
// the lock of the record it targets and commits its record writes and fund
// movements as one transaction.
type Engine struct {
	store   Store
	deriver crypto.Deriver
	emitter events.Emitter
	pauses  common.PauseView
	locks   *common.KeyedMutex[solana.PublicKey]
	policy  Policy
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter and the default
// policy.
func NewEngine(store Store, deriver crypto.Deriver) *Engine {
	return &Engine{
		store:   store,
		deriver: deriver,
		emitter: events.NoopEmitter{},
		locks:   common.NewKeyedMutex[solana.PublicKey](),
		policy:  DefaultPolicy(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetPolicy replaces the engine policy after validating it.
func (e *Engine) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.policy = p
	return nil
}

// Policy returns the active policy.
func (e *Engine) Policy() Policy { return e.policy }

// Deriver exposes the address scheme used by the engine.
func (e *Engine) Deriver() crypto.Deriver { return e.deriver }

// SetPauses wires the operator pause switch.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// txContext is the view a single transition has of state.
type txContext struct {
	state  engineState
	funds  valueTransfer
	events []*types.Event
}

func (tc *txContext) record(evt *types.Event) { tc.events = append(tc.events, evt) }

func (tc *txContext) loadEscrow(addr solana.PublicKey) (*Escrow, error) {
	esc, ok, err := tc.state.EscrowGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEscrowNotFound, addr)
	}
	return esc, nil
}

// transact serializes fn on key and commits its effects atomically. Events
// are published only after a successful commit.
func (e *Engine) transact(key solana.PublicKey, fn func(tc *txContext) error) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	unlock := e.locks.Lock(key)
	defer unlock()

	txn := e.store.BeginTxn()
	tc := &txContext{state: txn, funds: valueTransfer{state: txn}}
	if err := fn(tc); err != nil {
		txn.Discard()
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	for _, evt := range tc.events {
		e.emit(evt)
	}
	return nil
}

// view runs fn against a read-only transaction that is always discarded.
func (e *Engine) view(fn func(tc *txContext) error) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	txn := e.store.BeginTxn()
	defer txn.Discard()
	return fn(&txContext{state: txn, funds: valueTransfer{state: txn}})
}

func (e *Engine) escrowAddress(ref Ref) (solana.PublicKey, uint8, error) {
	addr, bump, err := e.deriver.EscrowAddress(ref.Seller, ref.OrderID)
	if err != nil {
		if errors.Is(err, crypto.ErrZeroAddress) {
			return solana.PublicKey{}, 0, fmt.Errorf("%w: seller: %v", ErrInvalidParty, err)
		}
		return solana.PublicKey{}, 0, fmt.Errorf("%w: %v", ErrInvalidOrderID, err)
	}
	return addr, bump, nil
}

func (e *Engine) configAddress(seller solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := e.deriver.ConfigAddress(seller)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: seller: %v", ErrInvalidParty, err)
	}
	return addr, bump, nil
}

// EscrowAddress returns the derived address of ref.
func (e *Engine) EscrowAddress(ref Ref) (solana.PublicKey, error) {
	addr, _, err := e.escrowAddress(ref)
	return addr, err
}

// ConfigAddress returns the derived configuration address of seller.
func (e *Engine) ConfigAddress(seller solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := e.configAddress(seller)
	return addr, err
}

func (e *Engine) checkTimeout(seconds uint64) error {
	if seconds < e.policy.MinTimeoutSeconds || seconds > e.policy.MaxTimeoutSeconds {
		return fmt.Errorf("%w: %ds not in [%d, %d]", ErrInvalidTimeout, seconds, e.policy.MinTimeoutSeconds, e.policy.MaxTimeoutSeconds)
	}
	return nil
}

// InitializeConfig creates the seller configuration record owned by caller.
func (e *Engine) InitializeConfig(caller solana.PublicKey, p ConfigParams) (*SellerConfig, error) {
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: missing caller", ErrUnauthorized)
	}
	if p.FeeBps > MaxFeeBps {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFeeRate, p.FeeBps)
	}
	if p.Arbitrator.IsZero() || p.FeeRecipient.IsZero() {
		return nil, fmt.Errorf("%w: arbitrator and fee recipient are required", ErrInvalidParty)
	}
	if p.DefaultTimeoutSeconds != 0 {
		if err := e.checkTimeout(p.DefaultTimeoutSeconds); err != nil {
			return nil, err
		}
	}
	addr, bump, err := e.configAddress(caller)
	if err != nil {
		return nil, err
	}
	var created *SellerConfig
	err = e.transact(addr, func(tc *txContext) error {
		_, exists, err := tc.state.ConfigGet(addr)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrAlreadyInitialized, caller)
		}
		cfg := &SellerConfig{
			Address:               addr,
			Bump:                  bump,
			Seller:                caller,
			FeeBps:                p.FeeBps,
			DefaultTimeoutSeconds: p.DefaultTimeoutSeconds,
			Arbitrator:            p.Arbitrator,
			FeeRecipient:          p.FeeRecipient,
			CreatedAt:             e.now(),
		}
		if err := tc.state.ConfigPut(cfg); err != nil {
			return err
		}
		tc.record(NewConfigInitializedEvent(cfg))
		created = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// OpenEscrow creates a new escrow for caller's order. The seller's
// configuration supplies the fee rate, arbitrator and fee recipient.
func (e *Engine) OpenEscrow(caller solana.PublicKey, p OpenParams) (*Escrow, error) {
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: missing caller", ErrUnauthorized)
	}
	if p.Amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if p.Buyer.IsZero() || p.Buyer == caller {
		return nil, fmt.Errorf("%w: buyer must be set and differ from the seller", ErrInvalidParty)
	}
	if p.Partner == caller || (!p.Partner.IsZero() && p.Partner == p.Buyer) {
		return nil, fmt.Errorf("%w: partner must be a third party", ErrInvalidParty)
	}
	if p.FromPool && !p.Automatic {
		return nil, fmt.Errorf("%w: pool funding requires automatic funding", ErrInvalidParty)
	}
	cfgAddr, _, err := e.configAddress(caller)
	if err != nil {
		return nil, err
	}
	addr, bump, err := e.escrowAddress(Ref{Seller: caller, OrderID: p.OrderID})
	if err != nil {
		return nil, err
	}
	var opened *Escrow
	err = e.transact(addr, func(tc *txContext) error {
		cfg, ok, err := tc.state.ConfigGet(cfgAddr)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, caller)
		}
		if p.Buyer == cfg.Arbitrator || p.Buyer == cfg.FeeRecipient {
			return fmt.Errorf("%w: buyer cannot be the arbitrator or fee recipient", ErrInvalidParty)
		}
		_, exists, err := tc.state.EscrowGet(addr)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateOrder, p.OrderID)
		}
		timeout := p.TimeoutSeconds
		if timeout == 0 {
			timeout = cfg.DefaultTimeoutSeconds
		}
		if timeout == 0 {
			timeout = e.policy.DefaultTimeoutSeconds
		}
		if err := e.checkTimeout(timeout); err != nil {
			return err
		}
		esc := &Escrow{
			Address:        addr,
			Bump:           bump,
			OrderID:        p.OrderID,
			Seller:         caller,
			Buyer:          p.Buyer,
			Partner:        p.Partner,
			Arbitrator:     cfg.Arbitrator,
			FeeRecipient:   cfg.FeeRecipient,
			Amount:         p.Amount,
			Currency:       p.Currency,
			FeeBps:         cfg.FeeBps,
			Status:         EscrowCreated,
			CreatedAt:      e.now(),
			TimeoutSeconds: timeout,
			Automatic:      p.Automatic,
		}
		tc.record(NewCreatedEvent(esc.Clone()))
		if p.Automatic {
			if e.policy.Funding != FundingBySeller {
				return fmt.Errorf("%w: automatic funding requires seller funding", ErrUnauthorized)
			}
			if err := e.fundInto(tc, esc, caller, p.FromPool); err != nil {
				return err
			}
		}
		if err := tc.state.EscrowPut(esc); err != nil {
			return err
		}
		opened = esc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opened.Clone(), nil
}

// fundInto moves the escrow amount from payer (or the seller pool) into
// custody and marks the escrow funded.
func (e *Engine) fundInto(tc *txContext, esc *Escrow, payer solana.PublicKey, fromPool bool) error {
	source := payer
	if fromPool {
		if payer != esc.Seller {
			return fmt.Errorf("%w: only the seller can fund from its pool", ErrUnauthorized)
		}
		pool, _, err := e.configAddress(esc.Seller)
		if err != nil {
			return err
		}
		source = pool
	}
	if err := tc.funds.move(source, esc.Address, esc.Currency, esc.Amount); err != nil {
		return err
	}
	esc.Funder = source
	esc.Status = EscrowFunded
	tc.record(NewFundedEvent(esc.Clone()))
	return nil
}

func (e *Engine) requiredFunder(esc *Escrow) solana.PublicKey {
	if e.policy.Funding == FundingByBuyer {
		return esc.Buyer
	}
	return esc.Seller
}

// FundEscrow moves the escrow amount into custody. The amount and currency
// restate the escrow terms and must match exactly.
func (e *Engine) FundEscrow(caller solana.PublicKey, ref Ref, p FundParams) (*Escrow, error) {
	addr, _, err := e.escrowAddress(ref)
	if err != nil {
		return nil, err
	}
	var funded *Escrow
	err = e.transact(addr, func(tc *txContext) error {
		esc, err := tc.loadEscrow(addr)
		if err != nil {
			return err
		}
		if caller != e.requiredFunder(esc) {
			return fmt.Errorf("%w: %s funding policy", ErrUnauthorized, e.policy.Funding)
		}
		if esc.Status != EscrowCreated {
			return fmt.Errorf("%w: cannot fund in status %s", ErrWrongState, esc.Status)
		}
		if p.Amount == 0 {
			return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
		}
		if p.Amount != esc.Amount {
			return fmt.Errorf("%w: got %d, escrow holds %d", ErrAmountMismatch, p.Amount, esc.Amount)
		}
		if p.Currency != esc.Currency {
			return fmt.Errorf("%w: got %s, escrow uses %s", ErrCurrencyMismatch, p.Currency, esc.Currency)
		}
		if err := e.fundInto(tc, esc, caller, p.FromPool); err != nil {
			return err
		}
		if err := tc.state.EscrowPut(esc); err != nil {
			return err
		}
		funded = esc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return funded.Clone(), nil
}

// MarkAsPaid records the buyer's claim of off-ledger payment and starts the
// dispute grace window.
func (e *Engine) MarkAsPaid(caller solana.PublicKey, ref Ref) (*Escrow, error) {
	addr, _, err := e.escrowAddress(ref)
	if err != nil {
		return nil, err
	}
	var paid *Escrow
	err = e.transact(addr, func(tc *txContext) error {
		esc, err := tc.loadEscrow(addr)
		if err != nil {
			return err
		}
		if caller != esc.Buyer {
			return fmt.Errorf("%w: only the buyer can mark as paid", ErrUnauthorized)
		}
		if esc.Status != EscrowFunded {
			return fmt.Errorf("%w: cannot mark paid in status %s", ErrWrongState, esc.Status)
		}
		now := e.now()
		if now > esc.BuyerDeadline() {
			return fmt.Errorf("%w: deadline %d, now %d", ErrDeadlinePassed, esc.BuyerDeadline(), now)
		}
		esc.Status = EscrowPaid
		esc.PaidAt = now
		esc.SellerCanCancelAfter = now + e.policy.DisputeGracePeriodSeconds
		if err := tc.state.EscrowPut(esc); err != nil {
			return err
		}
		tc.record(NewPaidEvent(esc.Clone()))
		paid = esc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid.Clone(), nil
}

// settle pays the escrow out to the buyer and fee recipients.
func (e *Engine) settle(tc *txContext, esc *Escrow) (Settlement, error) {
	s, err := ComputeSettlement(esc.Amount, esc.FeeBps, e.policy.FeeSplit, esc.HasPartner())
	if err != nil {
		return Settlement{}, err
	}
	if s.Total() != esc.Amount {
		return Settlement{}, fmt.Errorf("escrow: settlement of %d does not conserve amount %d", s.Total(), esc.Amount)
	}
	payouts := []struct {
		to     solana.PublicKey
		amount uint64
	}{
		{esc.Buyer, s.Buyer},
		{esc.FeeRecipient, s.FeeRecipient},
		{esc.Arbitrator, s.Arbitrator},
		{esc.Partner, s.Partner},
	}
	for _, p := range payouts {
		if err := tc.funds.move(esc.Address, p.to, esc.Currency, p.amount); err != nil {
			return Settlement{}, err
		}
	}
	esc.Status = EscrowReleased
	return s, nil
}

// refund returns the full amount to whoever funded the escrow.
func (e *Engine) refund(tc *txContext, esc *Escrow) (uint64, error) {
	if esc.Status != EscrowFunded && esc.Status != EscrowPaid {
		esc.Status = EscrowCancelled
		return 0, nil
	}
	if err := tc.funds.move(esc.Address, esc.Funder, esc.Currency, esc.Amount); err != nil {
		return 0, err
	}
	esc.Status = EscrowCancelled
	return esc.Amount, nil
}

// ReleaseFunds settles a paid escrow in favour of the buyer. The arbitrator
// may also release an escrow that is funded but not yet marked paid.
func (e *Engine) ReleaseFunds(caller solana.PublicKey, ref Ref) (*Escrow, Settlement, error) {
	addr, _, err := e.escrowAddress(ref)
	if err != nil {
		return nil, Settlement{}, err
	}
	var (
		released   *Escrow
		settlement Settlement
	)
	err = e.transact(addr, func(tc *txContext) error {
		esc, err := tc.loadEscrow(addr)
		if err != nil {
			return err
		}
		if caller != esc.Seller && caller != esc.Arbitrator {
			return fmt.Errorf("%w: only the seller or arbitrator can release", ErrUnauthorized)
		}
		switch {
		case esc.Status == EscrowPaid:
		case esc.Status == EscrowFunded && caller == esc.Arbitrator:
		default:
			return fmt.Errorf("%w: cannot release in status %s", ErrWrongState, esc.Status)
		}
		if esc.Dispute.Open {
			return fmt.Errorf("%w: resolve the dispute instead", ErrDisputeOpen)
		}
		s, err := e.settle(tc, esc)
		if err != nil {
			return err
		}
		if err := tc.state.EscrowPut(esc); err != nil {
			return err
		}
		tc.record(NewReleasedEvent(esc.Clone(), s))
		released, settlement = esc, s
		return nil
	})
	if err != nil {
		return nil, Settlement{}, err
	}
	return released.Clone(), settlement, nil
}

// CancelEscrow aborts an escrow. The buyer may cancel until it marks the
// order paid. The seller may cancel an unpaid escrow at any time and a paid
// one once the dispute grace window has elapsed.
func (e *Engine) CancelEscrow(caller solana.PublicKey, ref Ref) (*Escrow, error) {
	addr, _, err := e.escrowAddress(ref)
	if err != nil {
		return nil, err
	}
	var cancelled *Escrow
	err = e.transact(addr, func(tc *txContext) error {
		esc, err := tc.loadEscrow(addr)
		if err != nil {
			return err
		}
		if caller != esc.Seller && caller != esc.Buyer {
			return fmt.Errorf("%w: only the seller or buyer can cancel", ErrUnauthorized)
		}
		if esc.Status.Terminal() {
			return fmt.Errorf("%w: cannot cancel in status %s", ErrWrongState, esc.Status)
		}
		if esc.Dispute.Open {
			return fmt.Errorf("%w: resolve the dispute instead", ErrDisputeOpen)
		}
		if esc.Status == EscrowPaid {
			if caller != esc.Seller {
				return fmt.Errorf("%w: buyer cannot cancel after marking paid", ErrWrongState)
			}
			if now := e.now(); now < esc.SellerCanCancelAfter {
				return fmt.Errorf("%w: seller can cancel after %d, now %d", ErrTooEarly, esc.SellerCanCancelAfter, now)
			}
		}
		refunded, err := e.refund(tc, esc)
		if err != nil {
			return err
		}
		if err := tc.state.EscrowPut(esc); err != nil {
			return err
		}
		tc.record(NewCancelledEvent(esc.Clone(), caller, refunded))
		cancelled = esc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled.Clone(), nil
}

// OpenDispute escalates a paid escrow to the arbitrator. Each party pays the
// dispute fee at most once; the first payment fixes the fee.
func (e *Engine) OpenDispute(caller solana.PublicKey, ref Ref) (*Escrow, error) {
	addr, _, err := e.escrowAddress(ref)
	if err != nil {
		return nil, err
	}
	vault, err := e.deriver.DisputeVaultAddress(addr)
	if err != nil {
		return nil, err
	}
	var disputed *Escrow
	err = e.transact(addr, func(tc *txContext) error {
		esc, err := tc.loadEscrow(addr)
		if err != nil {
			return err
		}
		if caller != esc.Seller && caller != esc.Buyer {
			return fmt.Errorf("%w: only the seller or buyer can dispute", ErrUnauthorized)
		}
		if esc.Status != EscrowPaid {
			return fmt.Errorf("%w: cannot dispute in status %s", ErrWrongState, esc.Status)
		}
		paid := &esc.Dispute.BuyerPaid
		if caller == esc.Seller {
			paid = &esc.Dispute.SellerPaid
		}
		if *paid {
			return ErrDisputeAlreadyOpen
		}
		if !esc.Dispute.Open {
			esc.Dispute = Dispute{Open: true, OpenedBy: caller, OpenedAt: e.now(), Fee: e.policy.DisputeFee}
		}
		if err := tc.funds.move(caller, vault, NativeCurrency, esc.Dispute.Fee); err != nil {
			return err
		}
		*paid = true
		if err := tc.state.EscrowPut(esc); err != nil {
			return err
		}
		tc.record(NewDisputeOpenedEvent(esc.Clone(), caller))
		disputed = esc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return disputed.Clone(), nil
}

// ResolveDispute lets the arbitrator settle a disputed escrow. A buyer win
// releases the funds with the usual fee split; a seller win refunds the
// funder. The winner's dispute fee is returned and the loser's goes to the
// arbitrator.
func (e *Engine) ResolveDispute(caller solana.PublicKey, ref Ref, winner solana.PublicKey) (*Escrow, error) {
	addr, _, err := e.escrowAddress(ref)
	if err != nil {
		return nil, err
	}
	vault, err := e.deriver.DisputeVaultAddress(addr)
	if err != nil {
		return nil, err
	}
	var resolved *Escrow
	err = e.transact(addr, func(tc *txContext) error {
		esc, err := tc.loadEscrow(addr)
		if err != nil {
			return err
		}
		if caller != esc.Arbitrator {
			return fmt.Errorf("%w: only the arbitrator can resolve", ErrUnauthorized)
		}
		if esc.Status.Terminal() {
			return fmt.Errorf("%w: cannot resolve in status %s", ErrWrongState, esc.Status)
		}
		if !esc.Dispute.Open {
			return ErrDisputeNotOpen
		}
		if winner != esc.Buyer && winner != esc.Seller {
			return ErrInvalidWinner
		}
		fees := []struct {
			party solana.PublicKey
			paid  bool
		}{
			{esc.Buyer, esc.Dispute.BuyerPaid},
			{esc.Seller, esc.Dispute.SellerPaid},
		}
		for _, f := range fees {
			if !f.paid {
				continue
			}
			to := esc.Arbitrator
			if f.party == winner {
				to = winner
			}
			if err := tc.funds.move(vault, to, NativeCurrency, esc.Dispute.Fee); err != nil {
				return err
			}
		}
		esc.Dispute.Open = false
		tc.record(NewDisputeResolvedEvent(esc.Clone(), winner))
		if winner == esc.Buyer {
			s, err := e.settle(tc, esc)
			if err != nil {
				return err
			}
			tc.record(NewReleasedEvent(esc.Clone(), s))
		} else {
			refunded, err := e.refund(tc, esc)
			if err != nil {
				return err
			}
			tc.record(NewCancelledEvent(esc.Clone(), caller, refunded))
		}
		if err := tc.state.EscrowPut(esc); err != nil {
			return err
		}
		resolved = esc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved.Clone(), nil
}

// DepositToPool moves funds from the seller's wallet into its pool, from
// which later escrows can be funded instantly.
func (e *Engine) DepositToPool(caller solana.PublicKey, currency Currency, amount uint64) error {
	return e.movePool(caller, currency, amount, true)
}

// WithdrawFromPool returns pooled funds to the seller's wallet.
func (e *Engine) WithdrawFromPool(caller solana.PublicKey, currency Currency, amount uint64) error {
	return e.movePool(caller, currency, amount, false)
}

func (e *Engine) movePool(caller solana.PublicKey, currency Currency, amount uint64, deposit bool) error {
	if amount == 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	pool, _, err := e.configAddress(caller)
	if err != nil {
		return err
	}
	return e.transact(pool, func(tc *txContext) error {
		_, ok, err := tc.state.ConfigGet(pool)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, caller)
		}
		from, to, eventType := caller, pool, EventTypePoolDeposited
		if !deposit {
			from, to, eventType = pool, caller, EventTypePoolWithdrawn
		}
		if err := tc.funds.move(from, to, currency, amount); err != nil {
			return err
		}
		tc.record(NewPoolEvent(eventType, caller, pool, currency, amount))
		return nil
	})
}

// Config returns the configuration of seller.
func (e *Engine) Config(seller solana.PublicKey) (*SellerConfig, error) {
	addr, _, err := e.configAddress(seller)
	if err != nil {
		return nil, err
	}
	return e.ConfigAt(addr)
}

// ConfigAt returns the configuration stored at addr.
func (e *Engine) ConfigAt(addr solana.PublicKey) (*SellerConfig, error) {
	var cfg *SellerConfig
	err := e.view(func(tc *txContext) error {
		stored, ok, err := tc.state.ConfigGet(addr)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, addr)
		}
		cfg = stored
		return nil
	})
	return cfg, err
}

// Escrow returns the escrow identified by ref.
func (e *Engine) Escrow(ref Ref) (*Escrow, error) {
	addr, _, err := e.escrowAddress(ref)
	if err != nil {
		return nil, err
	}
	return e.EscrowAt(addr)
}

// EscrowAt returns the escrow stored at addr. Terminal escrows remain
// readable.
func (e *Engine) EscrowAt(addr solana.PublicKey) (*Escrow, error) {
	var esc *Escrow
	err := e.view(func(tc *txContext) error {
		stored, err := tc.loadEscrow(addr)
		esc = stored
		return err
	})
	return esc, err
}

// Balance returns the funds owner holds in currency.
func (e *Engine) Balance(owner solana.PublicKey, currency Currency) (uint64, error) {
	var bal uint64
	err := e.view(func(tc *txContext) error {
		v, err := tc.funds.balance(owner, currency)
		bal = v
		return err
	})
	return bal, err
}

// PoolBalance returns the pooled funds of seller in currency.
func (e *Engine) PoolBalance(seller solana.PublicKey, currency Currency) (uint64, error) {
	pool, _, err := e.configAddress(seller)
	if err != nil {
		return 0, err
	}
	return e.Balance(pool, currency)
}
