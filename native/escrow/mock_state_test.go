package escrow

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"

	"peerescrow/core/events"
	"peerescrow/crypto"
)

type balanceID struct {
	account solana.PublicKey
	mint    solana.PublicKey
}

// mockStore is a map-backed Store. Transactions copy on write and publish
// their overlay on Commit.
type mockStore struct {
	mu        sync.Mutex
	configs   map[solana.PublicKey]*SellerConfig
	escrows   map[solana.PublicKey]*Escrow
	balances  map[balanceID]uint64
	commitErr error
	commits   int
}

func newMockStore() *mockStore {
	return &mockStore{
		configs:  make(map[solana.PublicKey]*SellerConfig),
		escrows:  make(map[solana.PublicKey]*Escrow),
		balances: make(map[balanceID]uint64),
	}
}

func (s *mockStore) BeginTxn() StateTxn {
	return &mockTxn{
		store:    s,
		configs:  make(map[solana.PublicKey]*SellerConfig),
		escrows:  make(map[solana.PublicKey]*Escrow),
		balances: make(map[balanceID]uint64),
	}
}

// credit seeds a wallet or program account directly.
func (s *mockStore) credit(owner solana.PublicKey, currency Currency, amount uint64) {
	account, err := crypto.CustodyAddress(owner, currency.Mint)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balanceID{account, currency.Mint}] += amount
}

func (s *mockStore) balance(owner solana.PublicKey, currency Currency) uint64 {
	account, err := crypto.CustodyAddress(owner, currency.Mint)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[balanceID{account, currency.Mint}]
}

type mockTxn struct {
	store    *mockStore
	configs  map[solana.PublicKey]*SellerConfig
	escrows  map[solana.PublicKey]*Escrow
	balances map[balanceID]uint64
	closed   bool
}

func (t *mockTxn) ConfigGet(addr solana.PublicKey) (*SellerConfig, bool, error) {
	if cfg, ok := t.configs[addr]; ok {
		return cfg.Clone(), true, nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	cfg, ok := t.store.configs[addr]
	return cfg.Clone(), ok, nil
}

func (t *mockTxn) ConfigPut(cfg *SellerConfig) error {
	t.configs[cfg.Address] = cfg.Clone()
	return nil
}

func (t *mockTxn) EscrowGet(addr solana.PublicKey) (*Escrow, bool, error) {
	if esc, ok := t.escrows[addr]; ok {
		return esc.Clone(), true, nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	esc, ok := t.store.escrows[addr]
	return esc.Clone(), ok, nil
}

func (t *mockTxn) EscrowPut(esc *Escrow) error {
	if _, err := SanitizeEscrow(esc); err != nil {
		return err
	}
	t.escrows[esc.Address] = esc.Clone()
	return nil
}

func (t *mockTxn) Balance(account, mint solana.PublicKey) (uint64, error) {
	id := balanceID{account, mint}
	if v, ok := t.balances[id]; ok {
		return v, nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.balances[id], nil
}

func (t *mockTxn) Transfer(from, to, mint solana.PublicKey, amount uint64) error {
	src, _ := t.Balance(from, mint)
	if src < amount {
		return fmt.Errorf("%w: %s holds %d", ErrInsufficientBalance, from, src)
	}
	dst, _ := t.Balance(to, mint)
	t.balances[balanceID{from, mint}] = src - amount
	t.balances[balanceID{to, mint}] = dst + amount
	return nil
}

func (t *mockTxn) Commit() error {
	if t.closed {
		return errors.New("mock: closed")
	}
	t.closed = true
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	for k, v := range t.configs {
		s.configs[k] = v
	}
	for k, v := range t.escrows {
		s.escrows[k] = v
	}
	for k, v := range t.balances {
		s.balances[k] = v
	}
	s.commits++
	return nil
}

func (t *mockTxn) Discard() { t.closed = true }

type captureEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.EventType()
	}
	return out
}

func (c *captureEmitter) last() events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

func newTestAddress(fill byte) solana.PublicKey {
	var addr solana.PublicKey
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

var (
	testSeller       = newTestAddress(0x01)
	testBuyer        = newTestAddress(0x02)
	testArbitrator   = newTestAddress(0x03)
	testFeeRecipient = newTestAddress(0x04)
	testPartner      = newTestAddress(0x05)
	testStranger     = newTestAddress(0x06)
	testMint         = newTestAddress(0x07)
)

const testStart int64 = 1_700_000_000

type testClock struct {
	mu  sync.Mutex
	now int64
}

func (c *testClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(seconds int64) {
	c.mu.Lock()
	c.now += seconds
	c.mu.Unlock()
}

type harness struct {
	engine  *Engine
	store   *mockStore
	clock   *testClock
	emitter *captureEmitter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMockStore()
	clock := &testClock{now: testStart}
	emitter := &captureEmitter{}
	engine := NewEngine(store, crypto.NewDeriver(crypto.DefaultProgramID))
	engine.SetNowFunc(clock.Now)
	engine.SetEmitter(emitter)
	return &harness{engine: engine, store: store, clock: clock, emitter: emitter}
}

func (h *harness) initConfig(t *testing.T, feeBps uint32) *SellerConfig {
	t.Helper()
	cfg, err := h.engine.InitializeConfig(testSeller, ConfigParams{
		FeeBps:       feeBps,
		Arbitrator:   testArbitrator,
		FeeRecipient: testFeeRecipient,
	})
	if err != nil {
		t.Fatalf("initialize config: %v", err)
	}
	return cfg
}

func (h *harness) open(t *testing.T, orderID string, amount uint64) *Escrow {
	t.Helper()
	esc, err := h.engine.OpenEscrow(testSeller, OpenParams{OrderID: orderID, Amount: amount, Buyer: testBuyer})
	if err != nil {
		t.Fatalf("open escrow: %v", err)
	}
	return esc
}

func (h *harness) fund(t *testing.T, orderID string, amount uint64) *Escrow {
	t.Helper()
	h.store.credit(testSeller, NativeCurrency, amount)
	esc, err := h.engine.FundEscrow(testSeller, Ref{Seller: testSeller, OrderID: orderID}, FundParams{Amount: amount})
	if err != nil {
		t.Fatalf("fund escrow: %v", err)
	}
	return esc
}

func (h *harness) markPaid(t *testing.T, orderID string) *Escrow {
	t.Helper()
	esc, err := h.engine.MarkAsPaid(testBuyer, Ref{Seller: testSeller, OrderID: orderID})
	if err != nil {
		t.Fatalf("mark as paid: %v", err)
	}
	return esc
}

func ref(orderID string) Ref { return Ref{Seller: testSeller, OrderID: orderID} }
