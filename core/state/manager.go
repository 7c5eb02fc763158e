package state

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gagliardetto/solana-go"

	"peerescrow/native/escrow"
	"peerescrow/storage"
)

// Manager persists escrow records and ledger balances on top of a key-value
// database. Mutations go through a Txn and land in a single batch write.
type Manager struct {
	db storage.Database
	// commitMu orders commits so balance checks see every earlier commit.
	commitMu sync.Mutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	configPrefix  = []byte("escrow/config/")
	escrowPrefix  = []byte("escrow/record/")
	balancePrefix = []byte("ledger/balance/")
)

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return ethcrypto.Keccak256(buf)
}

func configKey(addr solana.PublicKey) []byte {
	return prefixedKey(configPrefix, addr.Bytes())
}

func escrowKey(addr solana.PublicKey) []byte {
	return prefixedKey(escrowPrefix, addr.Bytes())
}

func balanceKey(account, mint solana.PublicKey) []byte {
	return prefixedKey(balancePrefix, mint.Bytes(), []byte{':'}, account.Bytes())
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// KVPut stores an rlp-encoded value outside any escrow transaction.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	return m.db.Put(kvKey(key), encoded)
}

// KVGet decodes the value stored under key into out.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	data, ok, err := m.get(kvKey(key))
	if err != nil || !ok {
		return ok, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Begin opens a transaction against the current state.
func (m *Manager) Begin() *Txn {
	return &Txn{
		m:      m,
		writes: make(map[string][]byte),
		deltas: make(map[string]*balanceDelta),
	}
}

// BeginTxn satisfies escrow.Store.
func (m *Manager) BeginTxn() escrow.StateTxn { return m.Begin() }

// Balance reads a committed balance.
func (m *Manager) Balance(account, mint solana.PublicKey) (uint64, error) {
	return m.loadBalance(balanceKey(account, mint))
}

func (m *Manager) loadBalance(key []byte) (uint64, error) {
	data, ok, err := m.get(key)
	if err != nil || !ok {
		return 0, err
	}
	var bal uint64
	if err := rlp.DecodeBytes(data, &bal); err != nil {
		return 0, fmt.Errorf("state: decode balance: %w", err)
	}
	return bal, nil
}
