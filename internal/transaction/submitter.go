package transaction

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/rpc"
)

var (
	// ErrNonceConflict is the chain rejecting a nonce another client consumed
	// first. The transaction can be rebuilt and resubmitted.
	ErrNonceConflict     = errors.New("nonce already used")
	ErrTransactionFailed = errors.New("transaction failed on chain")
)

type Broadcaster interface {
	BroadcastTxCommit(ctx context.Context, signedTxBase64 string) (*rpc.ExecutionOutcome, error)
}

type EventPublisher interface {
	Publish(message pubsub.Publishable)
}

type Notifier interface {
	Publish(targetTopic string, event any)
}

const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// OutcomeEvent is published for every transaction that reached the chain.
type OutcomeEvent struct {
	ID         string          `json:"id"`
	Hash       string          `json:"hash"`
	SignerID   string          `json:"signerId"`
	ReceiverID string          `json:"receiverId"`
	Status     string          `json:"status"`
	Failure    json.RawMessage `json:"failure,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Origin     string          `json:"origin"`
	topic      string
}

func (e OutcomeEvent) GetEventTopicName() string {
	return e.topic
}

type Submitter struct {
	broadcaster Broadcaster
	publisher   EventPublisher
	notifier    Notifier
	topic       string
	// origin identifies this process in published events.
	origin string
}

// NewSubmitter accepts nil publisher and notifier.
func NewSubmitter(broadcaster Broadcaster, publisher EventPublisher, notifier Notifier, topic string) *Submitter {
	return &Submitter{broadcaster: broadcaster, publisher: publisher, notifier: notifier, topic: topic, origin: uuid.NewString()}
}

func (s *Submitter) Submit(ctx context.Context, stx *chain.SignedTransaction) (*OutcomeEvent, error) {
	outcome, err := s.broadcaster.BroadcastTxCommit(ctx, stx.Base64())
	if err != nil {
		if strings.Contains(err.Error(), "InvalidNonce") {
			return nil, errors.Wrap(ErrNonceConflict, err.Error())
		}
		return nil, errors.Wrap(err, "broadcasting transaction")
	}

	event := OutcomeEvent{
		ID:         uuid.NewString(),
		Hash:       outcome.Transaction.Hash,
		SignerID:   stx.Transaction.SignerID,
		ReceiverID: stx.Transaction.ReceiverID,
		Status:     StatusSuccess,
		Timestamp:  time.Now().UTC(),
		Origin:     s.origin,
		topic:      s.topic,
	}
	if event.Hash == "" {
		event.Hash = stx.Transaction.HashString()
	}
	if failure := outcome.Failure(); failure != nil {
		event.Status = StatusFailure
		event.Failure = failure
	}
	s.announce(event)

	log.Info().
		Str("hash", event.Hash).
		Str("signer_id", event.SignerID).
		Str("receiver_id", event.ReceiverID).
		Str("status", event.Status).
		Msg("Transaction submitted")

	if event.Status == StatusFailure {
		return &event, errors.Wrap(ErrTransactionFailed, string(event.Failure))
	}
	return &event, nil
}

func (s *Submitter) announce(event OutcomeEvent) {
	if s.publisher != nil && s.topic != "" {
		s.publisher.Publish(event)
	}
	notifyOutcome(s.notifier, event)
}

func notifyOutcome(notifier Notifier, event OutcomeEvent) {
	if notifier != nil {
		notifier.Publish("accounts/"+event.SignerID, map[string]any{"type": "TRANSACTION_OUTCOME", "payload": event})
	}
}
