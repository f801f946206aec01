package keymgmt

import (
	"context"
	"hash/crc32"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Sealer protects raw secret keys held by the Vault.
type Sealer interface {
	Seal(ctx context.Context, plaintext []byte) ([]byte, error)
	Open(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KMSSealer encrypts secrets with a Google KMS symmetric key.
type KMSSealer struct {
	client  *kms.KeyManagementClient
	keyName string
}

func NewKMSSealer(ctx context.Context, keyName string) (*KMSSealer, error) {
	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "creating kms client")
	}
	return &KMSSealer{client: client, keyName: keyName}, nil
}

func (s *KMSSealer) Close() error {
	return s.client.Close()
}

func crc32c(data []byte) int64 {
	return int64(crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli)))
}

func (s *KMSSealer) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	res, err := s.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:            s.keyName,
		Plaintext:       plaintext,
		PlaintextCrc32C: wrapperspb.Int64(crc32c(plaintext)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "kms encrypt")
	}
	if !res.VerifiedPlaintextCrc32C || res.CiphertextCrc32C.GetValue() != crc32c(res.Ciphertext) {
		log.Error().Str("key", s.keyName).Msg("KMS encrypt response failed integrity check")
		return nil, errors.New("kms encrypt: integrity check failed")
	}
	return res.Ciphertext, nil
}

func (s *KMSSealer) Open(ctx context.Context, ciphertext []byte) ([]byte, error) {
	res, err := s.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:             s.keyName,
		Ciphertext:       ciphertext,
		CiphertextCrc32C: wrapperspb.Int64(crc32c(ciphertext)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "kms decrypt")
	}
	if res.PlaintextCrc32C.GetValue() != crc32c(res.Plaintext) {
		log.Error().Str("key", s.keyName).Msg("KMS decrypt response failed integrity check")
		return nil, errors.New("kms decrypt: integrity check failed")
	}
	return res.Plaintext, nil
}
