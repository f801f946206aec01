package signer

import (
	"context"
	"net/url"

	"github.com/pkg/errors"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/keymgmt"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
)

var (
	ErrNoKeyAvailable    = errors.New("signer has no key available")
	ErrSigningRejected   = errors.New("signing rejected")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrProtocolError     = errors.New("signer protocol error")
)

// Signer is implemented by every key custody backend.
type Signer interface {
	GetPublicKey(ctx context.Context) (chain.PublicKey, error)
	Sign(ctx context.Context, tx *chain.Transaction) (*chain.SignedTransaction, error)
}

// Options carries the backend specific collaborators needed by ForSource.
type Options struct {
	OpenTransport TransportOpener
	NetworkID     byte
	WalletURL     string
	// Callback is where the remote wallet returns after signing. It must
	// carry every parameter needed to resume the pending action.
	Callback *url.URL
	// Secret is the session secret of a raw key source.
	Secret chain.SecretKey
}

// ForSource returns the backend owning pk.
func ForSource(source keymgmt.KeySource, pk chain.PublicKey, opts Options) (Signer, error) {
	switch source.Kind {
	case keymgmt.SourceHardware:
		if opts.OpenTransport == nil {
			return nil, errors.Wrap(ErrDeviceUnavailable, "no hardware transport configured")
		}
		return NewLedgerSigner(opts.OpenTransport, source.DerivationPath, opts.NetworkID), nil
	case keymgmt.SourceRemoteRedirect:
		return NewWalletSigner(opts.WalletURL, pk, opts.Callback)
	case keymgmt.SourceRawKey:
		if opts.Secret.IsZero() {
			return nil, errors.Wrapf(ErrNoKeyAvailable, "secret for %s is not loaded in this session", pk)
		}
		return NewKeySigner(opts.Secret), nil
	default:
		return nil, errors.Errorf("unknown key source %q", source.Kind)
	}
}
