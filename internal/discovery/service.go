package discovery

import (
	"context"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
)

// ErrCapabilityProbeFailed never leaves this package as a failure; the
// account is simply not reported.
var ErrCapabilityProbeFailed = errors.New("capability probe failed")

const (
	capabilityProbeMethod = "list_request_ids"
	maxParallelProbes     = 8
)

var indexerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wallet_discovery_indexer_failures_total",
	Help: "Indexer lookups that failed during discovery",
}, []string{"indexer"})

type Prober interface {
	CallFunction(ctx context.Context, accountID, method string, args any) ([]byte, error)
}

type Service struct {
	indexers []Indexer
	prober   Prober
}

func NewService(indexers []Indexer, prober Prober) *Service {
	return &Service{indexers: indexers, prober: prober}
}

// Discover returns the multisig capable accounts pk holds a key on. A failed
// indexer only reduces the candidate set; an error is returned only when
// every indexer failed.
func (s *Service) Discover(ctx context.Context, pk chain.PublicKey) ([]chain.AccountID, error) {
	candidates, err := s.Candidates(ctx, pk)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		capable = mapset.NewThreadUnsafeSet[chain.AccountID]()
		g       errgroup.Group
	)
	g.SetLimit(maxParallelProbes)
	for _, accountID := range candidates {
		accountID := accountID
		g.Go(func() error {
			if err := s.Probe(ctx, accountID); err != nil {
				log.Debug().Err(err).Str("account_id", accountID).Msg("Account is not multisig capable")
				return nil
			}
			mu.Lock()
			capable.Add(accountID)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return sorted(capable), nil
}

// Candidates is the union of every indexer's answer for pk.
func (s *Service) Candidates(ctx context.Context, pk chain.PublicKey) ([]chain.AccountID, error) {
	var (
		mu       sync.Mutex
		union    = mapset.NewThreadUnsafeSet[chain.AccountID]()
		failures int
		g        errgroup.Group
	)
	for _, indexer := range s.indexers {
		indexer := indexer
		g.Go(func() error {
			ids, err := indexer.AccountsForKey(ctx, pk)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				indexerFailures.WithLabelValues(indexer.Name()).Inc()
				log.Warn().Err(err).Str("indexer", indexer.Name()).Str("public_key", pk.String()).Msg("Indexer lookup failed")
				return nil
			}
			for _, id := range ids {
				if id = chain.NormalizeAccountID(id); id != "" {
					union.Add(id)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(s.indexers) > 0 && failures == len(s.indexers) {
		return nil, errors.Wrapf(ErrIndexerUnavailable, "all %d indexers failed", failures)
	}
	return sorted(union), nil
}

// Probe calls the multisig only getter. Any failure, including transient
// network errors, counts as not capable.
func (s *Service) Probe(ctx context.Context, accountID chain.AccountID) error {
	if _, err := s.prober.CallFunction(ctx, accountID, capabilityProbeMethod, nil); err != nil {
		return errors.Wrap(ErrCapabilityProbeFailed, err.Error())
	}
	return nil
}

func sorted(set mapset.Set[chain.AccountID]) []chain.AccountID {
	out := set.ToSlice()
	sort.Strings(out)
	return out
}
