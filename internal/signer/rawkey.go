package signer

import (
	"context"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
)

// KeySigner signs locally with an in-memory secret.
type KeySigner struct {
	secret chain.SecretKey
}

func NewKeySigner(secret chain.SecretKey) *KeySigner {
	return &KeySigner{secret: secret}
}

func (s *KeySigner) GetPublicKey(_ context.Context) (chain.PublicKey, error) {
	if s.secret.IsZero() {
		return chain.PublicKey{}, ErrNoKeyAvailable
	}
	return s.secret.PublicKey(), nil
}

func (s *KeySigner) Sign(_ context.Context, tx *chain.Transaction) (*chain.SignedTransaction, error) {
	if s.secret.IsZero() {
		return nil, ErrNoKeyAvailable
	}
	hash := tx.Hash()
	return &chain.SignedTransaction{
		Transaction: *tx,
		Signature:   s.secret.Sign(hash[:]),
	}, nil
}
