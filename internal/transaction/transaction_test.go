package transaction

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/rpc"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/signer"
)

type fakeChain struct {
	nonce     uint64
	keyErr    error
	blockHash chain.BlockHash
	outcomes  []*rpc.ExecutionOutcome
	errs      []error
	sent      []string
}

func (f *fakeChain) ViewAccessKey(_ context.Context, _, _ string) (*rpc.AccessKeyView, error) {
	if f.keyErr != nil {
		return nil, f.keyErr
	}
	return &rpc.AccessKeyView{Nonce: f.nonce}, nil
}

func (f *fakeChain) FinalBlock(_ context.Context) (*rpc.BlockView, error) {
	return &rpc.BlockView{Header: rpc.BlockHeader{Hash: f.blockHash.String()}}, nil
}

func (f *fakeChain) BroadcastTxCommit(_ context.Context, b64 string) (*rpc.ExecutionOutcome, error) {
	f.sent = append(f.sent, b64)
	i := len(f.sent) - 1
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(f.outcomes) {
		return f.outcomes[i], nil
	}
	return &rpc.ExecutionOutcome{Status: json.RawMessage(`{"SuccessValue":""}`)}, nil
}

type recordingPublisher struct {
	messages []pubsub.Publishable
}

func (r *recordingPublisher) Publish(message pubsub.Publishable) {
	r.messages = append(r.messages, message)
}

type recordingNotifier struct {
	topics []string
}

func (r *recordingNotifier) Publish(topic string, _ any) {
	r.topics = append(r.topics, topic)
}

func testKey() chain.SecretKey {
	return chain.NewSecretKeyFromSeed(bytes.Repeat([]byte{5}, 32))
}

func TestBuildGivesDistinctNoncesForSameAccessKey(t *testing.T) {
	fc := &fakeChain{nonce: 41, blockHash: chain.BlockHash{1, 2, 3}}
	b := NewBuilder(fc)
	actions := []chain.Action{chain.Transfer(uint256.NewInt(10))}

	first, err := b.Build(context.Background(), testKey().PublicKey(), "bob.near", "alice.near", actions)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), testKey().PublicKey(), "bob.near", "alice.near", actions)
	require.NoError(t, err)

	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.Greater(t, first.Nonce, uint64(41))
	assert.Equal(t, fc.blockHash, first.BlockHash)
	assert.Equal(t, "alice.near", first.SignerID)
	assert.Equal(t, "bob.near", first.ReceiverID)
}

func TestBuildMapsUnknownAccessKey(t *testing.T) {
	fc := &fakeChain{keyErr: errors.Wrap(rpc.ErrUnknownAccessKey, "gone")}
	_, err := NewBuilder(fc).Build(context.Background(), testKey().PublicKey(), "bob.near", "alice.near", nil)
	assert.ErrorIs(t, err, ErrAccessKeyNotFound)
}

func TestSubmitPublishesOutcome(t *testing.T) {
	fc := &fakeChain{outcomes: []*rpc.ExecutionOutcome{{Status: json.RawMessage(`{"Failure":{"ActionError":{}}}`)}}}
	publisher, notifier := &recordingPublisher{}, &recordingNotifier{}
	s := NewSubmitter(fc, publisher, notifier, "tx-outcomes")

	stx := &chain.SignedTransaction{Transaction: chain.Transaction{SignerID: "alice.near", ReceiverID: "bob.near"}}
	event, err := s.Submit(context.Background(), stx)
	assert.ErrorIs(t, err, ErrTransactionFailed)
	require.NotNil(t, event)
	assert.Equal(t, StatusFailure, event.Status)
	assert.Equal(t, stx.Transaction.HashString(), event.Hash)

	require.Len(t, publisher.messages, 1)
	assert.Equal(t, "tx-outcomes", publisher.messages[0].GetEventTopicName())
	assert.Equal(t, []string{"accounts/alice.near"}, notifier.topics)
}

func TestSubmitMapsInvalidNonce(t *testing.T) {
	fc := &fakeChain{errs: []error{&rpc.Error{Name: "HANDLER_ERROR", Message: "InvalidTransaction", Data: json.RawMessage(`{"TxExecutionError":{"InvalidTxError":{"InvalidNonce":{}}}}`)}}}
	_, err := NewSubmitter(fc, nil, nil, "").Submit(context.Background(), &chain.SignedTransaction{})
	assert.ErrorIs(t, err, ErrNonceConflict)
}

func TestPipelineRetriesNonceConflict(t *testing.T) {
	fc := &fakeChain{
		nonce: 7,
		errs:  []error{errors.New("InvalidNonce { tx_nonce: 8, ak_nonce: 9 }")},
	}
	p := NewPipeline(NewBuilder(fc), NewSubmitter(fc, nil, nil, ""))

	event, err := p.Execute(context.Background(), signer.NewKeySigner(testKey()), "alice.near", "bob.near",
		[]chain.Action{chain.Transfer(uint256.NewInt(1))})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, event.Status)
	assert.Len(t, fc.sent, 2)
}

func TestPipelinePropagatesRedirect(t *testing.T) {
	fc := &fakeChain{}
	callback, _ := url.Parse("https://app.example/wallet-api/sign/callback")
	ws, err := signer.NewWalletSigner("https://wallet.near.org", testKey().PublicKey(), callback)
	require.NoError(t, err)

	_, err = NewPipeline(NewBuilder(fc), NewSubmitter(fc, nil, nil, "")).
		Execute(context.Background(), ws, "alice.near", "bob.near", nil)
	var redirect *signer.RedirectRequired
	assert.ErrorAs(t, err, &redirect)
	assert.Empty(t, fc.sent)
}
