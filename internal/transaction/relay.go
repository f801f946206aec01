package transaction

import (
	"context"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/pubsub"
)

// OutcomeRelay forwards outcome events submitted by other instances to the
// local notification hub. Events this process published were already
// delivered by its Submitter.
func (s *Submitter) OutcomeRelay(subscriptionID string, notifier Notifier) pubsub.SubscriptionHandler {
	return pubsub.SubscriptionHandler{
		SubscriptionId: subscriptionID,
		Handler: func(_ context.Context, message *gpubsub.Message) {
			defer message.Ack()

			event, err := pubsub.DecodeMessage[OutcomeEvent](message)
			if err != nil {
				log.Warn().Err(err).Str("message_id", message.ID).Msg("Dropping undecodable outcome event")
				return
			}
			if event.Origin == s.origin {
				return
			}
			notifyOutcome(notifier, *event)
		},
	}
}
