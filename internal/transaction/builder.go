package transaction

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/rpc"
)

// ErrAccessKeyNotFound means the registry believes a key controls an account
// the chain does not. Callers refresh the registry and retry.
var ErrAccessKeyNotFound = errors.New("access key not found")

type ChainReader interface {
	ViewAccessKey(ctx context.Context, accountID, publicKey string) (*rpc.AccessKeyView, error)
	FinalBlock(ctx context.Context) (*rpc.BlockView, error)
}

// Builder assembles transactions. The counter is shared by every build in
// the process and never resets, so two builds against the same on-chain
// nonce still get distinct nonces.
type Builder struct {
	chain   ChainReader
	counter atomic.Uint64
}

func NewBuilder(chain ChainReader) *Builder {
	return &Builder{chain: chain}
}

func (b *Builder) Build(ctx context.Context, pk chain.PublicKey, receiverID, senderID chain.AccountID, actions []chain.Action) (*chain.Transaction, error) {
	accessKey, err := b.chain.ViewAccessKey(ctx, senderID, pk.String())
	if err != nil {
		if errors.Is(err, rpc.ErrUnknownAccessKey) {
			return nil, errors.Wrapf(ErrAccessKeyNotFound, "%s on %s", pk, senderID)
		}
		return nil, errors.Wrap(err, "fetching access key")
	}

	block, err := b.chain.FinalBlock(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetching recent block")
	}
	blockHash, err := chain.ParseBlockHash(block.Header.Hash)
	if err != nil {
		return nil, err
	}

	return &chain.Transaction{
		SignerID:   senderID,
		PublicKey:  pk,
		Nonce:      accessKey.Nonce + b.counter.Inc(),
		ReceiverID: receiverID,
		BlockHash:  blockHash,
		Actions:    append([]chain.Action(nil), actions...),
	}, nil
}
