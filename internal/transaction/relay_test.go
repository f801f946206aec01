package transaction

import (
	"context"
	"encoding/json"
	"testing"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeRelaySkipsOwnEvents(t *testing.T) {
	s := NewSubmitter(&fakeChain{}, nil, nil, "tx-outcomes")
	notifier := &recordingNotifier{}
	handler := s.OutcomeRelay("tx-outcomes-sub", notifier)
	assert.Equal(t, "tx-outcomes-sub", handler.SubscriptionId)

	own, err := json.Marshal(OutcomeEvent{Hash: "h1", SignerID: "alice.near", Origin: s.origin})
	require.NoError(t, err)
	handler.Handler(context.Background(), &gpubsub.Message{ID: "1", Data: own})
	assert.Empty(t, notifier.topics)

	remote, err := json.Marshal(OutcomeEvent{Hash: "h2", SignerID: "bob.near", Origin: "other-instance"})
	require.NoError(t, err)
	handler.Handler(context.Background(), &gpubsub.Message{ID: "2", Data: remote})
	assert.Equal(t, []string{"accounts/bob.near"}, notifier.topics)

	handler.Handler(context.Background(), &gpubsub.Message{ID: "3", Data: []byte("not json")})
	assert.Len(t, notifier.topics, 1)
}
