package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/rpc"
)

var ErrIndexerUnavailable = errors.New("account indexer unavailable")

// Indexer maps a public key to the accounts it holds an access key on.
type Indexer interface {
	Name() string
	AccountsForKey(ctx context.Context, pk chain.PublicKey) ([]chain.AccountID, error)
}

type Kind string

const (
	KindKitWallet  Kind = "kitwallet"
	KindNearBlocks Kind = "nearblocks"
	KindFastNear   Kind = "fastnear"
)

// HTTPIndexer speaks one of the known indexer response formats.
type HTTPIndexer struct {
	kind    Kind
	baseURL string
	http    *retryablehttp.Client
	limiter *rpc.Limiter
}

func NewHTTPIndexer(kind Kind, baseURL string, limiter *rpc.Limiter) (*HTTPIndexer, error) {
	switch kind {
	case KindKitWallet, KindNearBlocks, KindFastNear:
	default:
		return nil, errors.Errorf("unknown indexer kind %q", kind)
	}
	return &HTTPIndexer{
		kind:    kind,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    rpc.NewHTTPClient(15*time.Second, limiter),
		limiter: limiter,
	}, nil
}

// ParseIndexers reads `kind|url` entries.
func ParseIndexers(entries []string, limiter *rpc.Limiter) ([]Indexer, error) {
	var indexers []Indexer
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		kind, url, ok := strings.Cut(entry, "|")
		if !ok {
			return nil, errors.Errorf("indexer entry %q is not kind|url", entry)
		}
		indexer, err := NewHTTPIndexer(Kind(kind), url, limiter)
		if err != nil {
			return nil, err
		}
		indexers = append(indexers, indexer)
	}
	return indexers, nil
}

func (i *HTTPIndexer) Name() string {
	return fmt.Sprintf("%s(%s)", i.kind, i.baseURL)
}

func (i *HTTPIndexer) endpoint(pk chain.PublicKey) string {
	switch i.kind {
	case KindNearBlocks:
		return i.baseURL + "/v1/keys/" + pk.String()
	case KindFastNear:
		return i.baseURL + "/v0/public_key/" + pk.String()
	default:
		return i.baseURL + "/publicKey/" + pk.String() + "/accounts"
	}
}

type nearBlocksResponse struct {
	Keys []struct {
		AccountID string `json:"account_id"`
	} `json:"keys"`
}

type fastNearResponse struct {
	AccountIDs []string `json:"account_ids"`
}

func (i *HTTPIndexer) AccountsForKey(ctx context.Context, pk chain.PublicKey) ([]chain.AccountID, error) {
	if err := i.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, i.endpoint(pk), nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating indexer request")
	}
	req.Header.Set("Accept", "application/json")

	res, err := i.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrIndexerUnavailable, err.Error())
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrIndexerUnavailable, "%s returned status %d", i.Name(), res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(ErrIndexerUnavailable, err.Error())
	}
	return i.decode(body)
}

func (i *HTTPIndexer) decode(body []byte) ([]chain.AccountID, error) {
	var ids []string
	switch i.kind {
	case KindNearBlocks:
		var res nearBlocksResponse
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, errors.Wrapf(ErrIndexerUnavailable, "decoding %s response: %v", i.Name(), err)
		}
		for _, k := range res.Keys {
			ids = append(ids, k.AccountID)
		}
	case KindFastNear:
		var res fastNearResponse
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, errors.Wrapf(ErrIndexerUnavailable, "decoding %s response: %v", i.Name(), err)
		}
		ids = res.AccountIDs
	default:
		if err := json.Unmarshal(body, &ids); err != nil {
			return nil, errors.Wrapf(ErrIndexerUnavailable, "decoding %s response: %v", i.Name(), err)
		}
	}
	return ids, nil
}
