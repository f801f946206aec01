package chain

import (
	"crypto/ed25519"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/pkg/errors"
)

type KeyType uint8

const (
	KeyTypeED25519 KeyType = 0
)

const ed25519Prefix = "ed25519:"

var ErrInvalidKey = errors.New("invalid key")

// PublicKey is compared by value; String returns the canonical `ed25519:<base58>` form.
type PublicKey struct {
	Type KeyType
	Data [ed25519.PublicKeySize]byte
}

func ParsePublicKey(s string) (PublicKey, error) {
	s = strings.TrimSpace(s)
	raw := strings.TrimPrefix(s, ed25519Prefix)
	if strings.Contains(raw, ":") {
		return PublicKey{}, errors.Wrapf(ErrInvalidKey, "unsupported curve in %q", s)
	}
	data := base58.Decode(raw)
	if len(data) != ed25519.PublicKeySize {
		return PublicKey{}, errors.Wrapf(ErrInvalidKey, "public key %q decodes to %d bytes", s, len(data))
	}
	var pk PublicKey
	copy(pk.Data[:], data)
	return pk, nil
}

func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return PublicKey{}, errors.Wrapf(ErrInvalidKey, "public key is %d bytes", len(b))
	}
	var pk PublicKey
	copy(pk.Data[:], b)
	return pk, nil
}

func (pk PublicKey) String() string {
	return ed25519Prefix + base58.Encode(pk.Data[:])
}

func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// SecretKey is an ed25519 private key in the `ed25519:<base58 of 64 bytes>` form.
type SecretKey struct {
	key ed25519.PrivateKey
}

func ParseSecretKey(s string) (SecretKey, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), ed25519Prefix)
	data := base58.Decode(raw)
	switch len(data) {
	case ed25519.PrivateKeySize:
		return SecretKey{key: ed25519.PrivateKey(data)}, nil
	case ed25519.SeedSize:
		return SecretKey{key: ed25519.NewKeyFromSeed(data)}, nil
	default:
		return SecretKey{}, errors.Wrapf(ErrInvalidKey, "secret key decodes to %d bytes", len(data))
	}
}

func NewSecretKeyFromSeed(seed []byte) SecretKey {
	return SecretKey{key: ed25519.NewKeyFromSeed(seed)}
}

func (sk SecretKey) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk.Data[:], sk.key.Public().(ed25519.PublicKey))
	return pk
}

func (sk SecretKey) Sign(message []byte) Signature {
	var sig Signature
	copy(sig.Data[:], ed25519.Sign(sk.key, message))
	return sig
}

func (sk SecretKey) String() string {
	return ed25519Prefix + base58.Encode(sk.key)
}

func (sk SecretKey) IsZero() bool {
	return len(sk.key) == 0
}

type Signature struct {
	Type KeyType
	Data [ed25519.SignatureSize]byte
}

func SignatureFromBytes(b []byte) (Signature, error) {
	if len(b) != ed25519.SignatureSize {
		return Signature{}, errors.Errorf("signature is %d bytes, want %d", len(b), ed25519.SignatureSize)
	}
	var sig Signature
	copy(sig.Data[:], b)
	return sig, nil
}

func (s Signature) Verify(pk PublicKey, message []byte) bool {
	return ed25519.Verify(pk.Data[:], message, s.Data[:])
}

func (s Signature) String() string {
	return ed25519Prefix + base58.Encode(s.Data[:])
}
