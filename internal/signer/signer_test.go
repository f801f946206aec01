package signer

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/keymgmt"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
)

type fakeTransport struct {
	sent      [][]byte
	responses [][]byte
	failAt    int
	closed    int
}

func (f *fakeTransport) Exchange(_ context.Context, apdu []byte) ([]byte, error) {
	f.sent = append(f.sent, append([]byte(nil), apdu...))
	if f.failAt > 0 && len(f.sent) == f.failAt {
		return nil, errors.New("usb disconnected")
	}
	if len(f.responses) == 0 {
		return []byte{0x90, 0x00}, nil
	}
	res := f.responses[0]
	f.responses = f.responses[1:]
	return res, nil
}

func (f *fakeTransport) Close() error {
	f.closed++
	return nil
}

func opener(t *fakeTransport) TransportOpener {
	return func(context.Context) (Transport, error) { return t, nil }
}

func ok(data []byte) []byte {
	return append(append([]byte(nil), data...), 0x90, 0x00)
}

func testTransaction(t *testing.T, argsLen int) *chain.Transaction {
	t.Helper()
	sk := chain.NewSecretKeyFromSeed(bytes.Repeat([]byte{7}, 32))
	return &chain.Transaction{
		SignerID:   "alice.near",
		PublicKey:  sk.PublicKey(),
		Nonce:      11,
		ReceiverID: "multisig.near",
		Actions: []chain.Action{
			chain.FunctionCall("add_request", bytes.Repeat([]byte{'x'}, argsLen), 100, uint256.NewInt(0)),
		},
	}
}

func TestParseDerivationPath(t *testing.T) {
	path, err := ParseDerivationPath(DefaultDerivationPath)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x80, 0, 0, 44,
		0x80, 0, 0x01, 0x8d,
		0x80, 0, 0, 0,
		0x80, 0, 0, 0,
		0x80, 0, 0, 1,
	}, path)

	path, err = ParseDerivationPath("44/1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 44, 0, 0, 0, 1}, path)

	_, err = ParseDerivationPath("44'/x'")
	assert.Error(t, err)
}

func TestLedgerSignChunksAndChecksVersionFirst(t *testing.T) {
	sig := bytes.Repeat([]byte{0xab}, 64)
	transport := &fakeTransport{responses: [][]byte{ok([]byte{1, 2, 3})}}
	signer := NewLedgerSigner(opener(transport), "", 0)
	tx := testTransaction(t, 300)

	// every chunk but the last answers with a bare status word
	chunks := (20 + len(tx.Serialize()) + ledgerChunkSize - 1) / ledgerChunkSize
	for i := 0; i < chunks-1; i++ {
		transport.responses = append(transport.responses, ok(nil))
	}
	transport.responses = append(transport.responses, ok(sig))

	signed, err := signer.Sign(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, sig, signed.Signature.Data[:])
	assert.Equal(t, 1, transport.closed)

	require.Len(t, transport.sent, chunks+1)
	assert.Equal(t, byte(insGetVersion), transport.sent[0][1])

	var payload []byte
	for i, apdu := range transport.sent[1:] {
		assert.Equal(t, byte(ledgerCLA), apdu[0])
		assert.Equal(t, byte(insSign), apdu[1])
		assert.Equal(t, byte(DefaultNetworkID), apdu[3])
		assert.LessOrEqual(t, int(apdu[4]), ledgerChunkSize)
		if i == chunks-1 {
			assert.Equal(t, byte(p1Last), apdu[2])
		} else {
			assert.Equal(t, byte(p1More), apdu[2])
		}
		payload = append(payload, apdu[5:]...)
	}
	path, _ := ParseDerivationPath(DefaultDerivationPath)
	assert.Equal(t, append(path, tx.Serialize()...), payload)
}

func TestLedgerClosesTransportOnFailure(t *testing.T) {
	transport := &fakeTransport{failAt: 2, responses: [][]byte{ok([]byte{1, 0, 0})}}
	signer := NewLedgerSigner(opener(transport), "", 0)

	_, err := signer.Sign(context.Background(), testTransaction(t, 10))
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, 1, transport.closed)
}

func TestLedgerStatusWords(t *testing.T) {
	tests := []struct {
		status []byte
		want   error
	}{
		{[]byte{0x69, 0x85}, ErrSigningRejected},
		{[]byte{0x6e, 0x00}, ErrDeviceUnavailable},
		{[]byte{0x6a, 0x80}, ErrProtocolError},
	}
	for _, tc := range tests {
		transport := &fakeTransport{responses: [][]byte{ok([]byte{1, 0, 0}), tc.status}}
		signer := NewLedgerSigner(opener(transport), "", 0)
		_, err := signer.Sign(context.Background(), testTransaction(t, 10))
		assert.ErrorIs(t, err, tc.want)
		assert.Equal(t, 1, transport.closed)
	}
}

func TestLedgerOpenFailure(t *testing.T) {
	signer := NewLedgerSigner(func(context.Context) (Transport, error) {
		return nil, errors.New("no device")
	}, "", 0)
	_, err := signer.GetPublicKey(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestLedgerGetPublicKey(t *testing.T) {
	sk := chain.NewSecretKeyFromSeed(bytes.Repeat([]byte{1}, 32))
	want := sk.PublicKey()
	transport := &fakeTransport{responses: [][]byte{ok(want.Data[:])}}
	signer := NewLedgerSigner(opener(transport), "44'/397'/0'/0'/2'", 'T')

	pk, err := signer.GetPublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, pk)
	assert.Equal(t, byte(insGetPublicKey), transport.sent[0][1])
	assert.Equal(t, byte('T'), transport.sent[0][3])
	assert.Equal(t, 1, transport.closed)
}

func TestKeySignerProducesVerifiableSignature(t *testing.T) {
	sk := chain.NewSecretKeyFromSeed(bytes.Repeat([]byte{7}, 32))
	s := NewKeySigner(sk)
	tx := testTransaction(t, 4)

	signed, err := s.Sign(context.Background(), tx)
	require.NoError(t, err)
	hash := tx.Hash()
	assert.True(t, signed.Signature.Verify(sk.PublicKey(), hash[:]))

	_, err = NewKeySigner(chain.SecretKey{}).Sign(context.Background(), tx)
	assert.ErrorIs(t, err, ErrNoKeyAvailable)
}

func TestFrameRoundTrip(t *testing.T) {
	apdu := bytes.Repeat([]byte{0x42}, 150)
	packets := frameAPDU(apdu)
	require.Len(t, packets, 3)
	for _, p := range packets {
		assert.Len(t, p, hidPacketSize)
	}
	var stream bytes.Buffer
	for _, p := range packets {
		stream.Write(p)
	}
	got, err := readFramed(&stream)
	require.NoError(t, err)
	assert.Equal(t, apdu, got)
}

func TestForSource(t *testing.T) {
	sk := chain.NewSecretKeyFromSeed(bytes.Repeat([]byte{3}, 32))
	pk := sk.PublicKey()
	callback, _ := url.Parse("https://app.example/wallet-api/sign/callback")

	s, err := ForSource(keymgmt.RawKey(), pk, Options{Secret: sk})
	require.NoError(t, err)
	assert.IsType(t, &KeySigner{}, s)

	_, err = ForSource(keymgmt.RawKey(), pk, Options{})
	assert.ErrorIs(t, err, ErrNoKeyAvailable)

	_, err = ForSource(keymgmt.Hardware(""), pk, Options{})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)

	s, err = ForSource(keymgmt.RemoteRedirect(), pk, Options{WalletURL: "https://wallet.near.org", Callback: callback})
	require.NoError(t, err)
	_, err = s.Sign(context.Background(), testTransaction(t, 4))
	var redirect *RedirectRequired
	require.ErrorAs(t, err, &redirect)
	assert.True(t, strings.HasPrefix(redirect.URL, "https://wallet.near.org/sign?"))
}

func TestSignRedirectRoundTrip(t *testing.T) {
	requestID := uint64(5)
	callback, err := SignCallbackURL("https://app.example/wallet-api/sign/callback", PendingAction{
		Kind:      "confirm",
		AccountID: "multisig.near",
		RequestID: &requestID,
	})
	require.NoError(t, err)

	s, err := NewWalletSigner("https://wallet.near.org", chain.PublicKey{}, callback)
	require.NoError(t, err)
	tx := testTransaction(t, 4)
	redirect, err := url.Parse(s.SignURL(tx))
	require.NoError(t, err)
	assert.Equal(t, "/sign", redirect.Path)

	returned, err := url.Parse(redirect.Query().Get("callbackUrl"))
	require.NoError(t, err)
	q := returned.Query()
	q.Set("transactionHashes", "hash1")

	res, err := ResumeFromCallback(q)
	require.NoError(t, err)
	assert.Equal(t, StateSigned, res.State)
	assert.Equal(t, []string{"hash1"}, res.TransactionHashes)
	assert.Equal(t, "confirm", res.Pending.Kind)
	assert.Equal(t, "multisig.near", res.Pending.AccountID)
	require.NotNil(t, res.Pending.RequestID)
	assert.Equal(t, uint64(5), *res.Pending.RequestID)

	q = returned.Query()
	q.Set("errorCode", "userRejected")
	res, err = ResumeFromCallback(q)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, res.State)
}

func TestConnectCallback(t *testing.T) {
	login, flowID, err := ConnectURL("https://wallet.near.org", "https://app.example/wallet-api/accounts/wallet/callback", "/home")
	require.NoError(t, err)
	u, err := url.Parse(login)
	require.NoError(t, err)
	assert.Equal(t, "/login/", u.Path)

	success, err := url.Parse(u.Query().Get("success_url"))
	require.NoError(t, err)
	sk := chain.NewSecretKeyFromSeed(bytes.Repeat([]byte{9}, 32))
	q := success.Query()
	q.Set("account_id", "alice.near")
	q.Set("all_keys", sk.PublicKey().String())

	res, err := ResumeFromCallback(q)
	require.NoError(t, err)
	assert.Equal(t, StateConnected, res.State)
	assert.Equal(t, flowID, res.FlowID)
	assert.Equal(t, "alice.near", res.AccountID)
	assert.Equal(t, []chain.PublicKey{sk.PublicKey()}, res.PublicKeys)
	assert.Equal(t, "/home", res.Pending.ReturnPath)

	failure, err := url.Parse(u.Query().Get("failure_url"))
	require.NoError(t, err)
	res, err = ResumeFromCallback(failure.Query())
	require.NoError(t, err)
	assert.Equal(t, StateFailed, res.State)

	_, err = ResumeFromCallback(url.Values{"flow": {"other"}})
	assert.ErrorIs(t, err, ErrProtocolError)
}
