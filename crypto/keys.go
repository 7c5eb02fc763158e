package crypto

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// --- Key Management ---

// PrivateKey is an ed25519 signing key whose public half doubles as the
// holder's ledger identity.
type PrivateKey struct {
	key solana.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBase58 loads a key in the usual 64-byte base58 wallet format.
func PrivateKeyFromBase58(value string) (*PrivateKey, error) {
	key, err := solana.PrivateKeyFromBase58(value)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode private key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// Address returns the identity controlled by the key.
func (k *PrivateKey) Address() solana.PublicKey {
	return k.key.PublicKey()
}

// String returns the base58 encoding of the key material.
func (k *PrivateKey) String() string {
	return k.key.String()
}

// Sign produces a detached ed25519 signature over msg.
func (k *PrivateKey) Sign(msg []byte) (solana.Signature, error) {
	if k == nil || len(k.key) == 0 {
		return solana.Signature{}, errors.New("crypto: nil private key")
	}
	return k.key.Sign(msg)
}

// Proof asserts that Signer signed a message.
type Proof struct {
	Signer    solana.PublicKey
	Signature solana.Signature
}

var ErrInvalidSignature = errors.New("crypto: invalid signature")

// Verify checks the proof against msg.
func (p Proof) Verify(msg []byte) error {
	if p.Signer.IsZero() {
		return ErrZeroAddress
	}
	if !p.Signature.Verify(p.Signer, msg) {
		return fmt.Errorf("%w for %s", ErrInvalidSignature, p.Signer)
	}
	return nil
}

// SignProof signs msg and wraps the result as a Proof.
func SignProof(key *PrivateKey, msg []byte) (Proof, error) {
	sig, err := key.Sign(msg)
	if err != nil {
		return Proof{}, err
	}
	return Proof{Signer: key.Address(), Signature: sig}, nil
}
