package escrow

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"peerescrow/crypto"
)

// valueTransfer moves funds between owners. Owners are wallets or derived
// program accounts; token balances live in the owner's associated token
// account, native balances on the owner itself.
type valueTransfer struct {
	state engineState
}

func (v valueTransfer) custody(owner solana.PublicKey, currency Currency) (solana.PublicKey, error) {
	addr, err := crypto.CustodyAddress(owner, currency.Mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return addr, nil
}

func (v valueTransfer) move(from, to solana.PublicKey, currency Currency, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if from == to {
		return fmt.Errorf("escrow: transfer source and destination are both %s", from)
	}
	src, err := v.custody(from, currency)
	if err != nil {
		return err
	}
	dst, err := v.custody(to, currency)
	if err != nil {
		return err
	}
	return v.state.Transfer(src, dst, currency.Mint, amount)
}

func (v valueTransfer) balance(owner solana.PublicKey, currency Currency) (uint64, error) {
	addr, err := v.custody(owner, currency)
	if err != nil {
		return 0, err
	}
	return v.state.Balance(addr, currency.Mint)
}
