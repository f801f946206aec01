package keymgmt

import (
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
)

var ErrNotConnected = errors.New("no connected key controls the account")

// Notifier delivers user-visible notifications, keyed by topic.
type Notifier interface {
	Publish(targetTopic string, event any)
}

// Registry maps public keys to the accounts they may sign for and to the
// backend that holds them. Account sets only grow; sources are last-write-wins.
type Registry struct {
	mu       sync.RWMutex
	accounts map[chain.PublicKey]mapset.Set[chain.AccountID]
	sources  map[chain.PublicKey]KeySource
	notifier Notifier
}

func NewRegistry(notifier Notifier) *Registry {
	return &Registry{
		accounts: make(map[chain.PublicKey]mapset.Set[chain.AccountID]),
		sources:  make(map[chain.PublicKey]KeySource),
		notifier: notifier,
	}
}

// AddAccounts unions the incoming account ids into each key's set and
// replaces the key's source when one is supplied.
func (r *Registry) AddAccounts(newAccounts map[chain.PublicKey][]chain.AccountID, newSources map[chain.PublicKey]KeySource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pk, ids := range newAccounts {
		set, ok := r.accounts[pk]
		if !ok {
			set = mapset.NewThreadUnsafeSet[chain.AccountID]()
			r.accounts[pk] = set
		}
		for _, id := range ids {
			id = chain.NormalizeAccountID(id)
			if id == "" {
				continue
			}
			set.Add(id)
		}
	}

	for pk, source := range newSources {
		r.sources[pk] = source
		if _, ok := r.accounts[pk]; !ok {
			r.accounts[pk] = mapset.NewThreadUnsafeSet[chain.AccountID]()
		}
	}
}

// AccountsSigningAuthority returns every known key whose account set contains accountID.
func (r *Registry) AccountsSigningAuthority(accountID chain.AccountID) []chain.PublicKey {
	accountID = chain.NormalizeAccountID(accountID)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []chain.PublicKey
	for pk, set := range r.accounts {
		if set.Contains(accountID) {
			keys = append(keys, pk)
		}
	}
	sortKeys(keys)
	return keys
}

// RequireSigningCapability fails with ErrNotConnected when no known key
// controls accountID, and notifies the user so the UI can prompt a connection.
func (r *Registry) RequireSigningCapability(accountID chain.AccountID) error {
	accountID = chain.NormalizeAccountID(accountID)
	if len(r.AccountsSigningAuthority(accountID)) > 0 {
		return nil
	}

	log.Info().Str("account_id", accountID).Msg("No connected key can sign for account")
	if r.notifier != nil {
		r.notifier.Publish(fmt.Sprintf("accounts/%s", accountID), map[string]any{
			"type":    "NOT_CONNECTED",
			"payload": map[string]string{"accountId": accountID},
		})
	}
	return errors.Wrapf(ErrNotConnected, "account %s", accountID)
}

func (r *Registry) Source(pk chain.PublicKey) (KeySource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[pk]
	return s, ok
}

// SigningKey picks the key used to sign for accountID, preferring the lowest
// key in canonical order so repeated calls are stable.
func (r *Registry) SigningKey(accountID chain.AccountID) (chain.PublicKey, KeySource, error) {
	if err := r.RequireSigningCapability(accountID); err != nil {
		return chain.PublicKey{}, KeySource{}, err
	}
	for _, pk := range r.AccountsSigningAuthority(accountID) {
		if source, ok := r.Source(pk); ok {
			return pk, source, nil
		}
	}
	return chain.PublicKey{}, KeySource{}, errors.Wrapf(ErrNotConnected, "account %s has no key with a known source", accountID)
}

func (r *Registry) Accounts(pk chain.PublicKey) []chain.AccountID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.accounts[pk]
	if !ok {
		return nil
	}
	ids := set.ToSlice()
	sort.Strings(ids)
	return ids
}

// AllAccounts lists every account any known key can sign for.
func (r *Registry) AllAccounts() []chain.AccountID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := mapset.NewThreadUnsafeSet[chain.AccountID]()
	for _, set := range r.accounts {
		all = all.Union(set)
	}
	ids := all.ToSlice()
	sort.Strings(ids)
	return ids
}

// Snapshot is the persistence boundary of the registry.
type Snapshot struct {
	Accounts map[chain.PublicKey][]chain.AccountID
	Sources  map[chain.PublicKey]KeySource
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Accounts: make(map[chain.PublicKey][]chain.AccountID, len(r.accounts)),
		Sources:  make(map[chain.PublicKey]KeySource, len(r.sources)),
	}
	for pk, set := range r.accounts {
		ids := set.ToSlice()
		sort.Strings(ids)
		snap.Accounts[pk] = ids
	}
	for pk, s := range r.sources {
		snap.Sources[pk] = s
	}
	return snap
}

// Restore merges a snapshot into the registry using AddAccounts semantics.
func (r *Registry) Restore(snap Snapshot) {
	r.AddAccounts(snap.Accounts, snap.Sources)
}

func sortKeys(keys []chain.PublicKey) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}
