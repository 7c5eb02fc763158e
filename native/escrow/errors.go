package escrow

import (
	"errors"

	"peerescrow/native/common"
)

var (
	ErrUnauthorized        = errors.New("escrow: unauthorized")
	ErrWrongState          = errors.New("escrow: wrong state")
	ErrInvalidAmount       = errors.New("escrow: invalid amount")
	ErrAmountMismatch      = errors.New("escrow: amount mismatch")
	ErrCurrencyMismatch    = errors.New("escrow: currency mismatch")
	ErrDuplicateOrder      = errors.New("escrow: duplicate order")
	ErrAlreadyInitialized  = errors.New("escrow: seller config already initialized")
	ErrTooEarly            = errors.New("escrow: too early")
	ErrInsufficientBalance = errors.New("escrow: insufficient balance")
	ErrBalanceOverflow     = errors.New("escrow: balance overflow")
	ErrConfigNotFound      = errors.New("escrow: seller config not found")
	ErrEscrowNotFound      = errors.New("escrow: escrow not found")
	ErrInvalidFeeRate      = errors.New("escrow: fee basis points out of range")
	ErrInvalidTimeout      = errors.New("escrow: timeout out of range")
	ErrInvalidOrderID      = errors.New("escrow: invalid order id")
	ErrInvalidParty        = errors.New("escrow: invalid party")
	ErrDeadlinePassed      = errors.New("escrow: buyer deadline passed")
	ErrDisputeOpen         = errors.New("escrow: dispute open")
	ErrDisputeNotOpen      = errors.New("escrow: no dispute open")
	ErrDisputeAlreadyOpen  = errors.New("escrow: dispute already paid by caller")
	ErrInvalidWinner       = errors.New("escrow: winner must be buyer or seller")
	ErrRequestExpired      = errors.New("escrow: request expired")
	ErrUnknownOperation    = errors.New("escrow: unknown operation")

	errNilState = errors.New("escrow engine: state not configured")
)

// Error kinds are stable identifiers for API consumers.
const (
	KindUnauthorized        = "unauthorized"
	KindWrongState          = "wrong_state"
	KindInvalidAmount       = "invalid_amount"
	KindAmountMismatch      = "amount_mismatch"
	KindDuplicateOrder      = "duplicate_order"
	KindAlreadyInitialized  = "already_initialized"
	KindTooEarly            = "too_early"
	KindInsufficientBalance = "insufficient_balance"
	KindConfigNotFound      = "config_not_found"
	KindNotFound            = "not_found"
	KindInvalidArgument     = "invalid_argument"
	KindDispute             = "dispute"
	KindPaused              = "paused"
	KindInternal            = "internal"
)

var kindTable = []struct {
	err  error
	kind string
}{
	{ErrUnauthorized, KindUnauthorized},
	{ErrRequestExpired, KindUnauthorized},
	{ErrWrongState, KindWrongState},
	{ErrDeadlinePassed, KindWrongState},
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrAmountMismatch, KindAmountMismatch},
	{ErrCurrencyMismatch, KindAmountMismatch},
	{ErrDuplicateOrder, KindDuplicateOrder},
	{ErrAlreadyInitialized, KindAlreadyInitialized},
	{ErrTooEarly, KindTooEarly},
	{ErrInsufficientBalance, KindInsufficientBalance},
	{ErrConfigNotFound, KindConfigNotFound},
	{ErrEscrowNotFound, KindNotFound},
	{ErrInvalidFeeRate, KindInvalidArgument},
	{ErrInvalidTimeout, KindInvalidArgument},
	{ErrInvalidOrderID, KindInvalidArgument},
	{ErrInvalidParty, KindInvalidArgument},
	{ErrInvalidWinner, KindInvalidArgument},
	{ErrUnknownOperation, KindInvalidArgument},
	{ErrBalanceOverflow, KindInvalidAmount},
	{ErrDisputeOpen, KindDispute},
	{ErrDisputeNotOpen, KindDispute},
	{ErrDisputeAlreadyOpen, KindDispute},
	{common.ErrModulePaused, KindPaused},
}

// Kind classifies err into one of the Kind constants. Unrecognised errors
// are reported as internal.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}
