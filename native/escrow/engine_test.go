package escrow

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gagliardetto/solana-go"

	"peerescrow/native/common"
)

func TestInitializeConfig(t *testing.T) {
	h := newHarness(t)
	cfg := h.initConfig(t, 50)
	if cfg.Seller != testSeller || cfg.FeeBps != 50 || cfg.CreatedAt != testStart {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	want, _ := h.engine.ConfigAddress(testSeller)
	if cfg.Address != want {
		t.Fatalf("config stored at %s, expected %s", cfg.Address, want)
	}
	_, err := h.engine.InitializeConfig(testSeller, ConfigParams{FeeBps: 10, Arbitrator: testArbitrator, FeeRecipient: testFeeRecipient})
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	stored, err := h.engine.Config(testSeller)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if stored.FeeBps != 50 {
		t.Fatalf("config must be immutable, fee changed to %d", stored.FeeBps)
	}
	if got := h.emitter.types(); !reflect.DeepEqual(got, []string{EventTypeConfigInitialized}) {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestInitializeConfigValidation(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name   string
		caller solana.PublicKey
		params ConfigParams
		want   error
	}{
		{"fee above 100%", testSeller, ConfigParams{FeeBps: 10_001, Arbitrator: testArbitrator, FeeRecipient: testFeeRecipient}, ErrInvalidFeeRate},
		{"missing arbitrator", testSeller, ConfigParams{FeeRecipient: testFeeRecipient}, ErrInvalidParty},
		{"timeout below floor", testSeller, ConfigParams{DefaultTimeoutSeconds: 60, Arbitrator: testArbitrator, FeeRecipient: testFeeRecipient}, ErrInvalidTimeout},
		{"anonymous caller", solana.PublicKey{}, ConfigParams{Arbitrator: testArbitrator, FeeRecipient: testFeeRecipient}, ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.engine.InitializeConfig(tc.caller, tc.params); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, err := h.engine.Config(testSeller); !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("rejected config must not be stored, got %v", err)
	}
}

func TestOpenEscrowCopiesConfig(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 50)
	esc, err := h.engine.OpenEscrow(testSeller, OpenParams{OrderID: "3968", Amount: 1_000, Buyer: testBuyer, Partner: testPartner})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if esc.Status != EscrowCreated {
		t.Fatalf("expected created, got %s", esc.Status)
	}
	if esc.FeeBps != 50 || esc.Arbitrator != testArbitrator || esc.FeeRecipient != testFeeRecipient {
		t.Fatalf("config fields not copied: %+v", esc)
	}
	if esc.SellerCanCancelAfter != 0 {
		t.Fatalf("opening must not set the cancel lock, got %d", esc.SellerCanCancelAfter)
	}
	if esc.TimeoutSeconds != DefaultPolicy().DefaultTimeoutSeconds {
		t.Fatalf("expected policy default timeout, got %d", esc.TimeoutSeconds)
	}
	addr, _ := h.engine.EscrowAddress(ref("3968"))
	if esc.Address != addr {
		t.Fatalf("escrow stored at %s, expected %s", esc.Address, addr)
	}
	if h.store.balance(testSeller, NativeCurrency) != 0 || h.store.commits != 2 {
		t.Fatalf("open must not move funds")
	}
}

func TestOpenEscrowErrors(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.OpenEscrow(testSeller, OpenParams{OrderID: "1", Amount: 1, Buyer: testBuyer}); !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
	h.initConfig(t, 0)
	h.open(t, "1", 10)

	cases := []struct {
		name   string
		params OpenParams
		want   error
	}{
		{"duplicate order", OpenParams{OrderID: "1", Amount: 10, Buyer: testBuyer}, ErrDuplicateOrder},
		{"zero amount", OpenParams{OrderID: "2", Amount: 0, Buyer: testBuyer}, ErrInvalidAmount},
		{"seller as buyer", OpenParams{OrderID: "2", Amount: 1, Buyer: testSeller}, ErrInvalidParty},
		{"missing buyer", OpenParams{OrderID: "2", Amount: 1}, ErrInvalidParty},
		{"empty order id", OpenParams{OrderID: "", Amount: 1, Buyer: testBuyer}, ErrInvalidOrderID},
		{"order id too long", OpenParams{OrderID: "0123456789abcdef0123456789abcdef!", Amount: 1, Buyer: testBuyer}, ErrInvalidOrderID},
		{"timeout too short", OpenParams{OrderID: "2", Amount: 1, Buyer: testBuyer, TimeoutSeconds: 899}, ErrInvalidTimeout},
		{"timeout too long", OpenParams{OrderID: "2", Amount: 1, Buyer: testBuyer, TimeoutSeconds: 86_401}, ErrInvalidTimeout},
		{"pool without automatic", OpenParams{OrderID: "2", Amount: 1, Buyer: testBuyer, FromPool: true}, ErrInvalidParty},
		{"arbitrator as buyer", OpenParams{OrderID: "2", Amount: 1, Buyer: testArbitrator}, ErrInvalidParty},
		{"fee recipient as buyer", OpenParams{OrderID: "2", Amount: 1, Buyer: testFeeRecipient}, ErrInvalidParty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.engine.OpenEscrow(testSeller, tc.params); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, err := h.engine.Escrow(ref("2")); !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("rejected opens must not persist an escrow, got %v", err)
	}
}

func TestFundEscrow(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 50)
	h.open(t, "1", 500)

	if _, err := h.engine.FundEscrow(testBuyer, ref("1"), FundParams{Amount: 500}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("buyer cannot fund under seller policy, got %v", err)
	}
	if _, err := h.engine.FundEscrow(testSeller, ref("1"), FundParams{Amount: 499}); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	if _, err := h.engine.FundEscrow(testSeller, ref("1"), FundParams{Amount: 500, Currency: TokenCurrency(testMint)}); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
	if _, err := h.engine.FundEscrow(testSeller, ref("1"), FundParams{Amount: 500}); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	esc, _ := h.engine.Escrow(ref("1"))
	if esc.Status != EscrowCreated {
		t.Fatalf("failed funding must not change status, got %s", esc.Status)
	}

	funded := h.fund(t, "1", 500)
	if funded.Status != EscrowFunded || funded.Funder != testSeller {
		t.Fatalf("unexpected funded escrow: %+v", funded)
	}
	if got := h.store.balance(funded.Address, NativeCurrency); got != 500 {
		t.Fatalf("custody should hold 500, got %d", got)
	}

	h.store.credit(testSeller, NativeCurrency, 500)
	if _, err := h.engine.FundEscrow(testSeller, ref("1"), FundParams{Amount: 500}); !errors.Is(err, ErrWrongState) {
		t.Fatalf("second funding must fail with ErrWrongState, got %v", err)
	}
	if got := h.store.balance(funded.Address, NativeCurrency); got != 500 {
		t.Fatalf("custody changed after rejected funding: %d", got)
	}
}

func TestFundEscrowTokenCustody(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 0)
	token := TokenCurrency(testMint)
	esc, err := h.engine.OpenEscrow(testSeller, OpenParams{OrderID: "t", Amount: 42, Currency: token, Buyer: testBuyer})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	h.store.credit(testSeller, token, 42)
	if _, err := h.engine.FundEscrow(testSeller, ref("t"), FundParams{Amount: 42, Currency: token}); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if got := h.store.balance(esc.Address, token); got != 42 {
		t.Fatalf("token custody should hold 42, got %d", got)
	}
	if got := h.store.balance(esc.Address, NativeCurrency); got != 0 {
		t.Fatalf("native balance must be untouched, got %d", got)
	}
}

func TestBuyerFundingPolicy(t *testing.T) {
	h := newHarness(t)
	policy := DefaultPolicy()
	policy.Funding = FundingByBuyer
	if err := h.engine.SetPolicy(policy); err != nil {
		t.Fatalf("set policy: %v", err)
	}
	h.initConfig(t, 0)
	h.open(t, "b", 100)
	h.store.credit(testSeller, NativeCurrency, 100)
	h.store.credit(testBuyer, NativeCurrency, 100)
	if _, err := h.engine.FundEscrow(testSeller, ref("b"), FundParams{Amount: 100}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("seller cannot fund under buyer policy, got %v", err)
	}
	esc, err := h.engine.FundEscrow(testBuyer, ref("b"), FundParams{Amount: 100})
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if esc.Funder != testBuyer {
		t.Fatalf("expected buyer as funder, got %s", esc.Funder)
	}
	if _, err := h.engine.CancelEscrow(testSeller, ref("b")); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.store.balance(testBuyer, NativeCurrency); got != 100 {
		t.Fatalf("refund must go back to the buyer who funded, got %d", got)
	}
	if _, err := h.engine.OpenEscrow(testSeller, OpenParams{OrderID: "auto", Amount: 1, Buyer: testBuyer, Automatic: true}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("automatic funding needs the seller policy, got %v", err)
	}
}

func TestMarkAsPaidOnlyBuyer(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 0)
	h.open(t, "created", 10)
	h.open(t, "funded", 10)
	h.fund(t, "funded", 10)
	h.open(t, "cancelled", 10)
	if _, err := h.engine.CancelEscrow(testSeller, ref("cancelled")); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	for _, order := range []string{"created", "funded", "cancelled"} {
		for _, caller := range []solana.PublicKey{testSeller, testArbitrator, testStranger} {
			if _, err := h.engine.MarkAsPaid(caller, ref(order)); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("order %s caller %s: expected ErrUnauthorized, got %v", order, caller, err)
			}
		}
	}
	if _, err := h.engine.MarkAsPaid(testBuyer, ref("created")); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState before funding, got %v", err)
	}
}

func TestMarkAsPaidStartsGraceWindow(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 0)
	h.open(t, "1", 10)
	h.fund(t, "1", 10)
	h.clock.Advance(120)
	esc := h.markPaid(t, "1")
	if esc.Status != EscrowPaid || esc.PaidAt != testStart+120 {
		t.Fatalf("unexpected paid escrow: %+v", esc)
	}
	if want := testStart + 120 + DefaultPolicy().DisputeGracePeriodSeconds; esc.SellerCanCancelAfter != want {
		t.Fatalf("expected cancel lock %d, got %d", want, esc.SellerCanCancelAfter)
	}
	if _, err := h.engine.MarkAsPaid(testBuyer, ref("1")); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState on repeat, got %v", err)
	}
}

func TestMarkAsPaidAfterDeadline(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 0)
	esc := h.open(t, "1", 10)
	h.fund(t, "1", 10)
	h.clock.Advance(int64(esc.TimeoutSeconds) + 1)
	if _, err := h.engine.MarkAsPaid(testBuyer, ref("1")); !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("expected ErrDeadlinePassed, got %v", err)
	}
	if Kind(ErrDeadlinePassed) != KindWrongState {
		t.Fatalf("deadline errors should classify as wrong state")
	}
}

func TestReleaseOrder3968WithFee(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 50)
	h.open(t, "3968", 1_000_000_000)
	h.fund(t, "3968", 1_000_000_000)
	h.markPaid(t, "3968")

	esc, s, err := h.engine.ReleaseFunds(testSeller, ref("3968"))
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if esc.Status != EscrowReleased {
		t.Fatalf("expected released, got %s", esc.Status)
	}
	// 50 bps of 1_000_000_000
	if got := h.store.balance(testBuyer, NativeCurrency); got != 995_000_000 {
		t.Fatalf("buyer should receive 995000000, got %d", got)
	}
	fees := h.store.balance(testFeeRecipient, NativeCurrency) + h.store.balance(testArbitrator, NativeCurrency)
	if fees != 5_000_000 || s.Fee() != 5_000_000 {
		t.Fatalf("fee recipients should receive 5000000, got %d (settlement %d)", fees, s.Fee())
	}
	if fees+h.store.balance(testBuyer, NativeCurrency) != 1_000_000_000 {
		t.Fatalf("release must conserve the escrow amount")
	}
	if got := h.store.balance(esc.Address, NativeCurrency); got != 0 {
		t.Fatalf("custody must be empty after release, got %d", got)
	}
	for _, caller := range []solana.PublicKey{testSeller, testBuyer} {
		if _, err := h.engine.CancelEscrow(caller, ref("3968")); !errors.Is(err, ErrWrongState) {
			t.Fatalf("released escrow must be terminal, got %v", err)
		}
	}
	if _, _, err := h.engine.ReleaseFunds(testSeller, ref("3968")); !errors.Is(err, ErrWrongState) {
		t.Fatalf("double release must fail with ErrWrongState, got %v", err)
	}
}

func TestReleaseWithPartner(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 100)
	if _, err := h.engine.OpenEscrow(testSeller, OpenParams{OrderID: "p", Amount: 1_000_003, Buyer: testBuyer, Partner: testPartner}); err != nil {
		t.Fatalf("open: %v", err)
	}
	h.fund(t, "p", 1_000_003)
	h.markPaid(t, "p")
	_, s, err := h.engine.ReleaseFunds(testArbitrator, ref("p"))
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if s.Total() != 1_000_003 {
		t.Fatalf("settlement leaks funds: %+v", s)
	}
	if h.store.balance(testPartner, NativeCurrency) != s.Partner || s.Partner == 0 {
		t.Fatalf("partner share not paid: %+v", s)
	}
	if got := h.emitter.last().EventType(); got != EventTypeEscrowReleased {
		t.Fatalf("expected release event last, got %s", got)
	}
}

func TestReleaseAuthorization(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 0)
	h.open(t, "1", 10)
	if _, _, err := h.engine.ReleaseFunds(testBuyer, ref("1")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("buyer cannot release, got %v", err)
	}
	if _, _, err := h.engine.ReleaseFunds(testSeller, ref("1")); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState from created, got %v", err)
	}
	h.fund(t, "1", 10)
	if _, _, err := h.engine.ReleaseFunds(testSeller, ref("1")); !errors.Is(err, ErrWrongState) {
		t.Fatalf("seller cannot release before payment, got %v", err)
	}
	esc, _, err := h.engine.ReleaseFunds(testArbitrator, ref("1"))
	if err != nil {
		t.Fatalf("arbitrator override release: %v", err)
	}
	if esc.Status != EscrowReleased || h.store.balance(testBuyer, NativeCurrency) != 10 {
		t.Fatalf("unexpected override outcome: %+v", esc)
	}
}

func TestCancelUnfundedMovesNothing(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 0)
	h.open(t, "b", 10)
	commits := h.store.commits
	esc, err := h.engine.CancelEscrow(testSeller, ref("b"))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if esc.Status != EscrowCancelled {
		t.Fatalf("expected cancelled, got %s", esc.Status)
	}
	if h.store.commits != commits+1 || h.store.balance(testSeller, NativeCurrency) != 0 {
		t.Fatalf("cancel of an unfunded escrow must not move funds")
	}
	h.store.credit(testSeller, NativeCurrency, 10)
	if _, err := h.engine.FundEscrow(testSeller, ref("b"), FundParams{Amount: 10}); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
	if _, err := h.engine.CancelEscrow(testSeller, ref("b")); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
	if _, err := h.engine.MarkAsPaid(testBuyer, ref("b")); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
}

func TestSellerRefundAfterBuyerTimeout(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 50)
	esc := h.open(t, "c", 777)
	h.fund(t, "c", 777)
	h.clock.Advance(int64(esc.TimeoutSeconds) + 10)
	cancelled, err := h.engine.CancelEscrow(testSeller, ref("c"))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != EscrowCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if got := h.store.balance(testSeller, NativeCurrency); got != 777 {
		t.Fatalf("seller should be refunded 777, got %d", got)
	}
	if got := h.store.balance(esc.Address, NativeCurrency); got != 0 {
		t.Fatalf("custody must be empty, got %d", got)
	}
}

func TestSellerCancelPaidRespectsGraceWindow(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 0)
	h.open(t, "1", 10)
	h.fund(t, "1", 10)
	paid := h.markPaid(t, "1")

	if _, err := h.engine.CancelEscrow(testSeller, ref("1")); !errors.Is(err, ErrTooEarly) {
		t.Fatalf("expected ErrTooEarly, got %v", err)
	}
	if _, err := h.engine.CancelEscrow(testBuyer, ref("1")); !errors.Is(err, ErrWrongState) {
		t.Fatalf("buyer cannot cancel after paying, got %v", err)
	}
	if _, err := h.engine.CancelEscrow(testArbitrator, ref("1")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	h.clock.Advance(paid.SellerCanCancelAfter - h.clock.Now())
	esc, err := h.engine.CancelEscrow(testSeller, ref("1"))
	if err != nil {
		t.Fatalf("cancel after grace: %v", err)
	}
	if esc.Status != EscrowCancelled || h.store.balance(testSeller, NativeCurrency) != 10 {
		t.Fatalf("expected refund to seller, got %+v", esc)
	}
}

func TestBuyerCancelFundedRefundsFunder(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 0)
	h.open(t, "1", 10)
	h.fund(t, "1", 10)
	if _, err := h.engine.CancelEscrow(testBuyer, ref("1")); err != nil {
		t.Fatalf("buyer cancel: %v", err)
	}
	if got := h.store.balance(testSeller, NativeCurrency); got != 10 {
		t.Fatalf("funds must return to the seller, got %d", got)
	}
	if got := h.store.balance(testBuyer, NativeCurrency); got != 0 {
		t.Fatalf("buyer must not receive funds on cancel, got %d", got)
	}
}

func TestFailedCommitLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 0)
	h.open(t, "1", 10)
	h.store.credit(testSeller, NativeCurrency, 10)
	h.store.commitErr = errors.New("disk full")
	before := len(h.emitter.types())
	if _, err := h.engine.FundEscrow(testSeller, ref("1"), FundParams{Amount: 10}); err == nil {
		t.Fatalf("expected commit failure")
	}
	h.store.commitErr = nil
	esc, _ := h.engine.Escrow(ref("1"))
	if esc.Status != EscrowCreated || h.store.balance(testSeller, NativeCurrency) != 10 {
		t.Fatalf("failed commit changed state: %+v", esc)
	}
	if len(h.emitter.types()) != before {
		t.Fatalf("events must not be emitted for failed transitions")
	}
}

func TestEventsFollowLifecycle(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 50)
	h.open(t, "1", 100)
	h.fund(t, "1", 100)
	h.markPaid(t, "1")
	if _, _, err := h.engine.ReleaseFunds(testSeller, ref("1")); err != nil {
		t.Fatalf("release: %v", err)
	}
	want := []string{
		EventTypeConfigInitialized,
		EventTypeEscrowCreated,
		EventTypeEscrowFunded,
		EventTypeEscrowPaid,
		EventTypeEscrowReleased,
	}
	if got := h.emitter.types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected events:\n got %v\nwant %v", got, want)
	}
	released := h.emitter.last().(escrowEvent).Event()
	if released.Attributes["buyerAmount"] != "100" || released.Attributes["orderId"] != "1" {
		t.Fatalf("unexpected release attributes: %v", released.Attributes)
	}
}

func TestPausedEngineRejectsTransitions(t *testing.T) {
	h := newHarness(t)
	h.initConfig(t, 0)
	pauses := common.NewPauseSet(ModuleName)
	h.engine.SetPauses(pauses)
	_, err := h.engine.OpenEscrow(testSeller, OpenParams{OrderID: "1", Amount: 1, Buyer: testBuyer})
	if !errors.Is(err, common.ErrModulePaused) || Kind(err) != KindPaused {
		t.Fatalf("expected paused error, got %v", err)
	}
	if _, err := h.engine.Config(testSeller); err != nil {
		t.Fatalf("reads stay available while paused: %v", err)
	}
	pauses.Set(ModuleName, false)
	h.open(t, "1", 1)
}

func TestKindClassification(t *testing.T) {
	cases := map[error]string{
		ErrUnauthorized:        KindUnauthorized,
		ErrWrongState:          KindWrongState,
		ErrInvalidAmount:       KindInvalidAmount,
		ErrAmountMismatch:      KindAmountMismatch,
		ErrDuplicateOrder:      KindDuplicateOrder,
		ErrAlreadyInitialized:  KindAlreadyInitialized,
		ErrTooEarly:            KindTooEarly,
		ErrInsufficientBalance: KindInsufficientBalance,
		ErrConfigNotFound:      KindConfigNotFound,
		errors.New("boom"):     KindInternal,
	}
	for err, want := range cases {
		if got := Kind(err); got != want {
			t.Fatalf("Kind(%v) = %s, want %s", err, got, want)
		}
	}
	if Kind(nil) != "" {
		t.Fatalf("nil error must have no kind")
	}
}
