package pubsub

import (
	"testing"

	"cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	Hash   string `json:"hash"`
	Status string `json:"status"`
}

func (outcome) GetEventTopicName() string { return "tx-outcomes" }

func TestEncodeDecodeMessage(t *testing.T) {
	data := encodeMessage(outcome{Hash: "abc", Status: "SUCCESS"})
	decoded, err := DecodeMessage[outcome](&pubsub.Message{Data: data})
	require.NoError(t, err)
	assert.Equal(t, "abc", decoded.Hash)
	assert.Equal(t, "SUCCESS", decoded.Status)

	assert.Equal(t, []byte("raw"), encodeMessage("raw"))

	_, err = DecodeMessage[outcome](&pubsub.Message{Data: []byte("{")})
	assert.Error(t, err)
}
