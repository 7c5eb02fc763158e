package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"peerescrow/native/escrow"
	"peerescrow/storage"
)

var errTxnClosed = errors.New("state: transaction already closed")

type balanceDelta struct {
	key     []byte
	account solana.PublicKey
	credit  uint256.Int
	debit   uint256.Int
}

// Txn buffers record writes and balance movements. Reads observe the
// transaction's own writes on top of committed state. Balance movements are
// kept as deltas and re-validated against the latest committed balances at
// Commit, so two transactions touching the same wallet cannot overdraw it.
type Txn struct {
	m      *Manager
	writes map[string][]byte
	deltas map[string]*balanceDelta
	closed bool
}

func (t *Txn) read(key []byte) ([]byte, bool, error) {
	if data, ok := t.writes[string(key)]; ok {
		return data, true, nil
	}
	return t.m.get(key)
}

func (t *Txn) write(key []byte, value interface{}) error {
	if t.closed {
		return errTxnClosed
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	t.writes[string(key)] = encoded
	return nil
}

// ConfigGet loads the seller configuration stored at addr.
func (t *Txn) ConfigGet(addr solana.PublicKey) (*escrow.SellerConfig, bool, error) {
	data, ok, err := t.read(configKey(addr))
	if err != nil || !ok {
		return nil, false, err
	}
	var stored storedConfig
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, fmt.Errorf("state: decode seller config: %w", err)
	}
	return stored.toConfig(), true, nil
}

// ConfigPut stores cfg under its own address.
func (t *Txn) ConfigPut(cfg *escrow.SellerConfig) error {
	if cfg == nil {
		return fmt.Errorf("state: nil seller config")
	}
	return t.write(configKey(cfg.Address), newStoredConfig(cfg))
}

// EscrowGet loads the escrow stored at addr.
func (t *Txn) EscrowGet(addr solana.PublicKey) (*escrow.Escrow, bool, error) {
	data, ok, err := t.read(escrowKey(addr))
	if err != nil || !ok {
		return nil, false, err
	}
	var stored storedEscrow
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, fmt.Errorf("state: decode escrow: %w", err)
	}
	esc, err := escrow.SanitizeEscrow(stored.toEscrow())
	if err != nil {
		return nil, false, fmt.Errorf("state: stored escrow %s: %w", addr, err)
	}
	return esc, true, nil
}

// EscrowPut stores esc under its own address.
func (t *Txn) EscrowPut(esc *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(esc)
	if err != nil {
		return err
	}
	return t.write(escrowKey(sanitized.Address), newStoredEscrow(sanitized))
}

func (t *Txn) delta(account, mint solana.PublicKey) *balanceDelta {
	key := balanceKey(account, mint)
	d, ok := t.deltas[string(key)]
	if !ok {
		d = &balanceDelta{key: key, account: account}
		t.deltas[string(key)] = d
	}
	return d
}

func applyDelta(base uint64, d *balanceDelta) (uint64, error) {
	v := uint256.NewInt(base)
	v.Add(v, &d.credit)
	if v.Lt(&d.debit) {
		return 0, fmt.Errorf("%w: %s", escrow.ErrInsufficientBalance, d.account)
	}
	v.Sub(v, &d.debit)
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s", escrow.ErrBalanceOverflow, d.account)
	}
	return v.Uint64(), nil
}

// Balance returns the balance of account including pending movements.
func (t *Txn) Balance(account, mint solana.PublicKey) (uint64, error) {
	key := balanceKey(account, mint)
	base, err := t.m.loadBalance(key)
	if err != nil {
		return 0, err
	}
	d, ok := t.deltas[string(key)]
	if !ok {
		return base, nil
	}
	return applyDelta(base, d)
}

// Transfer moves amount of mint between two ledger accounts.
func (t *Txn) Transfer(from, to, mint solana.PublicKey, amount uint64) error {
	if t.closed {
		return errTxnClosed
	}
	if amount == 0 {
		return nil
	}
	available, err := t.Balance(from, mint)
	if err != nil {
		return err
	}
	if available < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", escrow.ErrInsufficientBalance, from, available, amount)
	}
	received, err := t.Balance(to, mint)
	if err != nil {
		return err
	}
	if received+amount < received {
		return fmt.Errorf("%w: %s", escrow.ErrBalanceOverflow, to)
	}
	amt := uint256.NewInt(amount)
	src := t.delta(from, mint)
	src.debit.Add(&src.debit, amt)
	dst := t.delta(to, mint)
	dst.credit.Add(&dst.credit, amt)
	return nil
}

// Credit mints amount into account. It backs genesis allocations and is not
// reachable from escrow transitions.
func (t *Txn) Credit(account, mint solana.PublicKey, amount uint64) error {
	if t.closed {
		return errTxnClosed
	}
	received, err := t.Balance(account, mint)
	if err != nil {
		return err
	}
	if received+amount < received {
		return fmt.Errorf("%w: %s", escrow.ErrBalanceOverflow, account)
	}
	d := t.delta(account, mint)
	d.credit.Add(&d.credit, uint256.NewInt(amount))
	return nil
}

// Commit validates pending balance movements against the latest committed
// balances and writes everything in one batch. On error nothing is written.
func (t *Txn) Commit() error {
	if t.closed {
		return errTxnClosed
	}
	t.closed = true
	m := t.m
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	batch := storage.NewBatch()
	keys := make([]string, 0, len(t.writes))
	for k := range t.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		batch.Put([]byte(k), t.writes[k])
	}

	deltaKeys := make([]string, 0, len(t.deltas))
	for k := range t.deltas {
		deltaKeys = append(deltaKeys, k)
	}
	sort.Strings(deltaKeys)
	for _, k := range deltaKeys {
		d := t.deltas[k]
		base, err := m.loadBalance(d.key)
		if err != nil {
			return err
		}
		next, err := applyDelta(base, d)
		if err != nil {
			return err
		}
		encoded, err := rlp.EncodeToBytes(next)
		if err != nil {
			return err
		}
		batch.Put(d.key, encoded)
	}
	return m.db.Write(batch)
}

// Discard drops all pending changes.
func (t *Txn) Discard() {
	t.closed = true
	t.writes = nil
	t.deltas = nil
}
