package transaction

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/signer"
)

const maxNonceRetries = 3

// Pipeline builds, signs and submits one transaction.
type Pipeline struct {
	builder   *Builder
	submitter *Submitter
}

func NewPipeline(builder *Builder, submitter *Submitter) *Pipeline {
	return &Pipeline{builder: builder, submitter: submitter}
}

// Execute returns *signer.RedirectRequired unchanged when the backend
// suspends. Nonce conflicts are retried with a fresh build.
func (p *Pipeline) Execute(ctx context.Context, s signer.Signer, senderID, receiverID chain.AccountID, actions []chain.Action) (*OutcomeEvent, error) {
	pk, err := s.GetPublicKey(ctx)
	if err != nil {
		return nil, err
	}

	b := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 2 * time.Second, Factor: 2}
	for attempt := 1; ; attempt++ {
		tx, err := p.builder.Build(ctx, pk, receiverID, senderID, actions)
		if err != nil {
			return nil, err
		}
		signed, err := s.Sign(ctx, tx)
		if err != nil {
			return nil, err
		}
		event, err := p.submitter.Submit(ctx, signed)
		if !errors.Is(err, ErrNonceConflict) || attempt == maxNonceRetries {
			return event, err
		}

		wait := b.Duration()
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("Nonce conflict, rebuilding transaction")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}
