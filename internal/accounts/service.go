package accounts

import (
	"context"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/keymgmt"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/signer"
)

const (
	signCallbackPath    = "/wallet-api/sign/callback"
	connectCallbackPath = "/wallet-api/accounts/wallet/callback"
)

var ErrInvalidDerivationPath = errors.New("invalid derivation path")

type Discoverer interface {
	Discover(ctx context.Context, pk chain.PublicKey) ([]chain.AccountID, error)
}

type Persister interface {
	Save(ctx context.Context, snap keymgmt.Snapshot) error
}

type Settings struct {
	// Vault holds imported raw secrets for this session.
	Vault          *keymgmt.Vault
	OpenTransport  signer.TransportOpener
	NetworkID      byte
	DerivationPath string
	WalletURL      string
	PublicBaseURL  string
}

// Connection reports what a connect operation registered.
type Connection struct {
	PublicKey chain.PublicKey    `json:"publicKey"`
	Source    keymgmt.SourceKind `json:"source"`
	Accounts  []chain.AccountID  `json:"accounts"`
}

type Service struct {
	registry   *keymgmt.Registry
	discoverer Discoverer
	store      Persister
	settings   Settings
}

func NewService(registry *keymgmt.Registry, discoverer Discoverer, store Persister, settings Settings) *Service {
	if settings.DerivationPath == "" {
		settings.DerivationPath = signer.DefaultDerivationPath
	}
	if settings.NetworkID == 0 {
		settings.NetworkID = signer.DefaultNetworkID
	}
	if settings.Vault == nil {
		settings.Vault = keymgmt.NewVault(nil)
	}
	return &Service{registry: registry, discoverer: discoverer, store: store, settings: settings}
}

// ConnectLedger reads the device key at derivationPath, discovers the
// accounts it controls and registers them as hardware backed.
func (s *Service) ConnectLedger(ctx context.Context, derivationPath string) (*Connection, error) {
	if derivationPath == "" {
		derivationPath = s.settings.DerivationPath
	}
	if _, err := signer.ParseDerivationPath(derivationPath); err != nil {
		return nil, errors.Wrap(ErrInvalidDerivationPath, err.Error())
	}
	if s.settings.OpenTransport == nil {
		return nil, errors.Wrap(signer.ErrDeviceUnavailable, "no hardware transport configured")
	}

	ledger := signer.NewLedgerSigner(s.settings.OpenTransport, derivationPath, s.settings.NetworkID)
	pk, err := ledger.GetPublicKey(ctx)
	if err != nil {
		return nil, err
	}
	return s.connect(ctx, pk, keymgmt.Hardware(derivationPath))
}

// ImportKey registers a raw secret key and the accounts it controls. The
// secret stays in the session vault and is never persisted.
func (s *Service) ImportKey(ctx context.Context, secretKey string) (*Connection, error) {
	secret, err := chain.ParseSecretKey(strings.TrimSpace(secretKey))
	if err != nil {
		return nil, err
	}
	if err := s.settings.Vault.Put(ctx, secret); err != nil {
		return nil, err
	}
	return s.connect(ctx, secret.PublicKey(), keymgmt.RawKey())
}

func (s *Service) connect(ctx context.Context, pk chain.PublicKey, source keymgmt.KeySource, known ...chain.AccountID) (*Connection, error) {
	discovered, err := s.discoverer.Discover(ctx, pk)
	if err != nil {
		return nil, err
	}

	ids := mapset.NewThreadUnsafeSet[chain.AccountID](discovered...)
	for _, id := range known {
		ids.Add(id)
	}
	if source.Kind != keymgmt.SourceRemoteRedirect {
		ids.Add(chain.ImplicitAccountID(pk))
	}

	s.registry.AddAccounts(
		map[chain.PublicKey][]chain.AccountID{pk: ids.ToSlice()},
		map[chain.PublicKey]keymgmt.KeySource{pk: source},
	)
	s.persist(ctx)

	log.Info().
		Str("public_key", pk.String()).
		Str("source", string(source.Kind)).
		Int("accounts", ids.Cardinality()).
		Msg("Key connected")

	return &Connection{PublicKey: pk, Source: source.Kind, Accounts: s.registry.Accounts(pk)}, nil
}

// persist keeps the in-memory registry authoritative; a failed save is
// retried with the next connect.
func (s *Service) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, s.registry.Snapshot()); err != nil {
		log.Error().Err(err).Msg("Failed to persist keyed accounts")
	}
}

// WalletLoginURL starts the remote wallet connect flow.
func (s *Service) WalletLoginURL(returnPath string) (string, error) {
	loginURL, flowID, err := signer.ConnectURL(s.settings.WalletURL, s.callbackURL(connectCallbackPath), returnPath)
	if err != nil {
		return "", err
	}
	log.Debug().Str("flow_id", flowID).Msg("Wallet connect started")
	return loginURL, nil
}

// CompleteWalletConnect registers the keys a remote wallet returned. A
// failed flow is returned as is and registers nothing.
func (s *Service) CompleteWalletConnect(ctx context.Context, res *signer.Resumption) ([]Connection, error) {
	if res.Flow != signer.FlowConnect {
		return nil, errors.Wrapf(signer.ErrProtocolError, "expected connect flow, got %q", res.Flow)
	}
	if res.State != signer.StateConnected {
		log.Info().Str("flow_id", res.FlowID).Str("error_code", res.ErrorCode).Msg("Wallet connect failed")
		return nil, nil
	}

	connections := make([]Connection, 0, len(res.PublicKeys))
	for _, pk := range res.PublicKeys {
		connection, err := s.connect(ctx, pk, keymgmt.RemoteRedirect(), res.AccountID)
		if err != nil {
			log.Warn().Err(err).Str("public_key", pk.String()).Msg("Discovery failed for wallet key, registering wallet account only")
			s.registry.AddAccounts(
				map[chain.PublicKey][]chain.AccountID{pk: {res.AccountID}},
				map[chain.PublicKey]keymgmt.KeySource{pk: keymgmt.RemoteRedirect()},
			)
			s.persist(ctx)
			connection = &Connection{PublicKey: pk, Source: keymgmt.SourceRemoteRedirect, Accounts: s.registry.Accounts(pk)}
		}
		connections = append(connections, *connection)
	}
	return connections, nil
}

type KeyAuthority struct {
	PublicKey chain.PublicKey    `json:"publicKey"`
	Source    keymgmt.SourceKind `json:"source,omitempty"`
}

// SigningAuthority lists the connected keys that can sign for accountID.
func (s *Service) SigningAuthority(accountID chain.AccountID) []KeyAuthority {
	keys := s.registry.AccountsSigningAuthority(chain.NormalizeAccountID(accountID))
	authority := make([]KeyAuthority, 0, len(keys))
	for _, pk := range keys {
		entry := KeyAuthority{PublicKey: pk}
		if source, ok := s.registry.Source(pk); ok {
			entry.Source = source.Kind
		}
		authority = append(authority, entry)
	}
	return authority
}

// SignerFor resolves the backend that signs for accountID. For remote
// wallet keys the pending action is encoded into the callback url.
func (s *Service) SignerFor(ctx context.Context, accountID chain.AccountID, pending signer.PendingAction) (signer.Signer, error) {
	pk, source, err := s.registry.SigningKey(accountID)
	if err != nil {
		return nil, err
	}

	opts := signer.Options{
		OpenTransport: s.settings.OpenTransport,
		NetworkID:     s.settings.NetworkID,
		WalletURL:     s.settings.WalletURL,
	}
	switch source.Kind {
	case keymgmt.SourceRemoteRedirect:
		callback, err := signer.SignCallbackURL(s.callbackURL(signCallbackPath), pending)
		if err != nil {
			return nil, err
		}
		opts.Callback = callback
	case keymgmt.SourceRawKey:
		secret, err := s.settings.Vault.Get(ctx, pk)
		if err != nil && !errors.Is(err, keymgmt.ErrSecretNotLoaded) {
			return nil, err
		}
		opts.Secret = secret
	}
	return signer.ForSource(source, pk, opts)
}

func (s *Service) callbackURL(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(s.settings.PublicBaseURL, "/"), path)
}
