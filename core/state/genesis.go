package state

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"peerescrow/crypto"
)

var genesisMarkerKey = []byte("genesis/applied")

// Allocation seeds an owner's balance at first start.
type Allocation struct {
	Owner  solana.PublicKey
	Mint   solana.PublicKey
	Amount uint64
}

// ApplyGenesis credits allocs exactly once per database. It reports whether
// the allocations were applied by this call.
func (m *Manager) ApplyGenesis(allocs []Allocation) (bool, error) {
	var applied bool
	ok, err := m.KVGet(genesisMarkerKey, &applied)
	if err != nil {
		return false, err
	}
	if ok && applied {
		return false, nil
	}
	txn := m.Begin()
	for _, alloc := range allocs {
		account, err := crypto.CustodyAddress(alloc.Owner, alloc.Mint)
		if err != nil {
			txn.Discard()
			return false, err
		}
		if err := txn.Credit(account, alloc.Mint, alloc.Amount); err != nil {
			txn.Discard()
			return false, fmt.Errorf("genesis allocation for %s: %w", alloc.Owner, err)
		}
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}
	if err := m.KVPut(genesisMarkerKey, true); err != nil {
		return false, err
	}
	return true, nil
}
