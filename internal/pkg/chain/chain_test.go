package chain

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecretKey() SecretKey {
	return NewSecretKeyFromSeed(bytes.Repeat([]byte{7}, 32))
}

func TestPublicKey_RoundTrip(t *testing.T) {
	pk := testSecretKey().PublicKey()
	parsed, err := ParsePublicKey(pk.String())
	require.NoError(t, err)
	assert.Equal(t, pk, parsed)
	assert.Equal(t, pk.String(), parsed.String())

	bare, err := ParsePublicKey(pk.String()[len("ed25519:"):])
	require.NoError(t, err)
	assert.Equal(t, pk, bare)
}

func TestParsePublicKey_Invalid(t *testing.T) {
	_, err := ParsePublicKey("secp256k1:abc")
	assert.Error(t, err)
	_, err = ParsePublicKey("ed25519:abc")
	assert.Error(t, err)
}

func TestSecretKey_ParseAndSign(t *testing.T) {
	sk := testSecretKey()
	parsed, err := ParseSecretKey(sk.String())
	require.NoError(t, err)
	assert.Equal(t, sk.PublicKey(), parsed.PublicKey())

	msg := []byte("message")
	sig := parsed.Sign(msg)
	assert.True(t, sig.Verify(sk.PublicKey(), msg))
	assert.False(t, sig.Verify(sk.PublicKey(), []byte("other")))
}

func TestImplicitAccount(t *testing.T) {
	pk := testSecretKey().PublicKey()
	id := ImplicitAccountID(pk)
	assert.True(t, IsImplicitAccount(id))
	b, ok := ImplicitAccountBytes(id)
	require.True(t, ok)
	assert.Equal(t, pk.Data[:], b)

	assert.False(t, IsImplicitAccount("alice.near"))
	_, ok = ImplicitAccountBytes("alice.near")
	assert.False(t, ok)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1", FormatNear(MustParseAmount("1000000000000000000000000")))
	assert.Equal(t, "1.5", FormatNear(MustParseAmount("1500000000000000000000000")))
	assert.Equal(t, "0.000001", FormatAmount(uint256.NewInt(1), 6))
	assert.Equal(t, "0", FormatAmount(uint256.NewInt(0), 6))
	assert.Equal(t, "12", FormatAmount(uint256.NewInt(12), 0))
}

func TestParseU128(t *testing.T) {
	v, err := ParseU128("340282366920938463463374607431768211455")
	require.NoError(t, err)
	assert.Equal(t, 128, v.BitLen())

	_, err = ParseU128("340282366920938463463374607431768211456")
	assert.ErrorIs(t, err, ErrAmountOverflow)

	v, err = ParseU128("")
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

func TestSaturatingSub(t *testing.T) {
	assert.Equal(t, uint64(0), SaturatingSub(uint256.NewInt(1), uint256.NewInt(5)).Uint64())
	assert.Equal(t, uint64(4), SaturatingSub(uint256.NewInt(5), uint256.NewInt(1)).Uint64())
}

func TestTransaction_SerializeDecode(t *testing.T) {
	sk := testSecretKey()
	other := NewSecretKeyFromSeed(bytes.Repeat([]byte{9}, 32)).PublicKey()
	allowance := uint256.NewInt(250)
	tx := Transaction{
		SignerID:   "multisig.near",
		PublicKey:  sk.PublicKey(),
		Nonce:      42,
		ReceiverID: "lockup.near",
		BlockHash:  BlockHash{1, 2, 3},
		Actions: []Action{
			CreateAccount(),
			DeployContract([]byte{0, 97, 115, 109}),
			FunctionCall("add_request", []byte(`{"request":{}}`), 100_000_000_000_000, uint256.NewInt(1)),
			Transfer(uint256.NewInt(1000)),
			Stake(uint256.NewInt(5), other),
			AddFullAccessKey(other),
			AddFunctionCallKey(other, FunctionCallPermission{Allowance: allowance, ReceiverID: "multisig.near", MethodNames: []string{"confirm"}}),
			DeleteKey(other),
			DeleteAccount("beneficiary.near"),
		},
	}

	decoded, err := DecodeTransaction(tx.Serialize())
	require.NoError(t, err)
	assert.Equal(t, tx.SignerID, decoded.SignerID)
	assert.Equal(t, tx.PublicKey, decoded.PublicKey)
	assert.Equal(t, tx.Nonce, decoded.Nonce)
	assert.Equal(t, tx.ReceiverID, decoded.ReceiverID)
	assert.Equal(t, tx.BlockHash, decoded.BlockHash)
	require.Len(t, decoded.Actions, len(tx.Actions))
	for i, a := range tx.Actions {
		assert.Equal(t, a.Kind, decoded.Actions[i].Kind, "action %d", i)
	}
	assert.Equal(t, "add_request", decoded.Actions[2].MethodName)
	assert.Equal(t, "1000", decoded.Actions[3].Deposit.Dec())
	require.NotNil(t, decoded.Actions[6].AccessKey.FunctionCall)
	assert.Equal(t, []string{"confirm"}, decoded.Actions[6].AccessKey.FunctionCall.MethodNames)
	assert.Nil(t, decoded.Actions[5].AccessKey.FunctionCall)
	assert.Equal(t, "beneficiary.near", decoded.Actions[8].BeneficiaryID)

	assert.Equal(t, tx.Serialize(), decoded.Serialize())
	assert.Equal(t, "1001", tx.TotalDeposit().Dec())
}

func TestTransaction_KnownLayout(t *testing.T) {
	tx := Transaction{
		SignerID:   "a",
		Nonce:      1,
		ReceiverID: "b",
		Actions:    []Action{Transfer(uint256.NewInt(1))},
	}
	b := tx.Serialize()
	// signer id: len(4) + "a"
	assert.Equal(t, []byte{1, 0, 0, 0, 'a'}, b[:5])
	// key type then 32 key bytes
	assert.Equal(t, byte(0), b[5])
	// nonce follows the key
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, b[38:46])
	// transfer tag then u128 deposit at the very end
	assert.Equal(t, byte(ActionTransfer), b[len(b)-17])
	assert.Equal(t, byte(1), b[len(b)-16])
}

func TestBlockHash_RoundTrip(t *testing.T) {
	h := BlockHash{9, 8, 7}
	parsed, err := ParseBlockHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}
