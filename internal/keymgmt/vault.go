package keymgmt

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
)

var ErrSecretNotLoaded = errors.New("secret not loaded in this session")

// Vault holds imported raw secrets for the lifetime of the process. It is
// never written to the store, so every restart requires a new import. With
// a sealer configured the secrets are kept sealed and opened per use.
type Vault struct {
	mu      sync.RWMutex
	sealer  Sealer
	secrets map[chain.PublicKey][]byte
}

func NewVault(sealer Sealer) *Vault {
	return &Vault{sealer: sealer, secrets: make(map[chain.PublicKey][]byte)}
}

func (v *Vault) Put(ctx context.Context, secret chain.SecretKey) error {
	if secret.IsZero() {
		return errors.New("empty secret")
	}
	entry := []byte(secret.String())
	if v.sealer != nil {
		sealed, err := v.sealer.Seal(ctx, entry)
		if err != nil {
			return errors.Wrapf(err, "sealing secret for %s", secret.PublicKey())
		}
		entry = sealed
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets[secret.PublicKey()] = entry
	return nil
}

func (v *Vault) Get(ctx context.Context, pk chain.PublicKey) (chain.SecretKey, error) {
	v.mu.RLock()
	entry, ok := v.secrets[pk]
	v.mu.RUnlock()
	if !ok {
		return chain.SecretKey{}, errors.Wrap(ErrSecretNotLoaded, pk.String())
	}

	if v.sealer != nil {
		plain, err := v.sealer.Open(ctx, entry)
		if err != nil {
			return chain.SecretKey{}, errors.Wrapf(err, "opening secret for %s", pk)
		}
		entry = plain
	}
	return chain.ParseSecretKey(string(entry))
}

// Forget drops every secret held by the vault.
func (v *Vault) Forget() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets = make(map[chain.PublicKey][]byte)
}
