package signer

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
)

const (
	ledgerCLA           = 0x80
	insSign             = 0x02
	insGetPublicKey     = 0x04
	insGetVersion       = 0x06
	p1More              = 0x00
	p1Last              = 0x80
	ledgerChunkSize     = 128
	statusTrailerLength = 2

	DefaultNetworkID      = 'W'
	DefaultDerivationPath = "44'/397'/0'/0'/1'"
)

// Transport is an exclusive channel to the device. Exchange sends one APDU
// and returns the response including the two byte status word.
type Transport interface {
	Exchange(ctx context.Context, apdu []byte) ([]byte, error)
	Close() error
}

type TransportOpener func(ctx context.Context) (Transport, error)

// LedgerSigner opens the transport per operation and always closes it. It
// does not queue concurrent calls.
type LedgerSigner struct {
	open      TransportOpener
	path      string
	networkID byte
}

func NewLedgerSigner(open TransportOpener, derivationPath string, networkID byte) *LedgerSigner {
	if derivationPath == "" {
		derivationPath = DefaultDerivationPath
	}
	if networkID == 0 {
		networkID = DefaultNetworkID
	}
	return &LedgerSigner{open: open, path: derivationPath, networkID: networkID}
}

// ParseDerivationPath encodes a path as 4 byte big endian segments with
// hardened segments or'ed with 0x80000000.
func ParseDerivationPath(path string) ([]byte, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(path), "m/"), "/")
	out := make([]byte, 0, 4*len(parts))
	for _, part := range parts {
		hardened := strings.HasSuffix(part, "'")
		n, err := strconv.ParseUint(strings.TrimSuffix(part, "'"), 10, 31)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid derivation path segment %q", part)
		}
		v := uint32(n)
		if hardened {
			v |= 0x80000000
		}
		out = binary.BigEndian.AppendUint32(out, v)
	}
	return out, nil
}

func apdu(ins, p1, p2 byte, data []byte) []byte {
	return append([]byte{ledgerCLA, ins, p1, p2, byte(len(data))}, data...)
}

func (s *LedgerSigner) exchange(ctx context.Context, t Transport, cmd []byte) ([]byte, error) {
	res, err := t.Exchange(ctx, cmd)
	if err != nil {
		return nil, errors.Wrap(ErrDeviceUnavailable, err.Error())
	}
	if len(res) < statusTrailerLength {
		return nil, errors.Wrapf(ErrProtocolError, "short device response of %d bytes", len(res))
	}
	status := binary.BigEndian.Uint16(res[len(res)-statusTrailerLength:])
	if err := statusError(status); err != nil {
		return nil, err
	}
	return res[:len(res)-statusTrailerLength], nil
}

func statusError(status uint16) error {
	switch status {
	case 0x9000:
		return nil
	case 0x6985:
		return errors.Wrap(ErrSigningRejected, "rejected on device")
	case 0x6982:
		return errors.Wrap(ErrDeviceUnavailable, "device is locked")
	case 0x6d00, 0x6e00, 0x6e01:
		return errors.Wrap(ErrDeviceUnavailable, "NEAR app is not open on the device")
	default:
		return errors.Wrap(ErrProtocolError, fmt.Sprintf("device returned status 0x%04x", status))
	}
}

func (s *LedgerSigner) withTransport(ctx context.Context, fn func(t Transport) error) error {
	t, err := s.open(ctx)
	if err != nil {
		return errors.Wrap(ErrDeviceUnavailable, err.Error())
	}
	defer func() {
		if cerr := t.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close hardware transport")
		}
	}()
	return fn(t)
}

// Version returns the app version as major.minor.patch.
func (s *LedgerSigner) Version(ctx context.Context) (string, error) {
	var version string
	err := s.withTransport(ctx, func(t Transport) error {
		v, err := s.version(ctx, t)
		version = v
		return err
	})
	return version, err
}

func (s *LedgerSigner) version(ctx context.Context, t Transport) (string, error) {
	res, err := s.exchange(ctx, t, apdu(insGetVersion, 0, 0, nil))
	if err != nil {
		return "", err
	}
	if len(res) < 3 {
		return "", errors.Wrapf(ErrProtocolError, "version response of %d bytes", len(res))
	}
	return fmt.Sprintf("%d.%d.%d", res[0], res[1], res[2]), nil
}

func (s *LedgerSigner) GetPublicKey(ctx context.Context) (chain.PublicKey, error) {
	path, err := ParseDerivationPath(s.path)
	if err != nil {
		return chain.PublicKey{}, err
	}
	var pk chain.PublicKey
	err = s.withTransport(ctx, func(t Transport) error {
		res, err := s.exchange(ctx, t, apdu(insGetPublicKey, 0, s.networkID, path))
		if err != nil {
			return err
		}
		parsed, err := chain.PublicKeyFromBytes(res)
		if err != nil {
			return errors.Wrap(ErrProtocolError, err.Error())
		}
		pk = parsed
		return nil
	})
	if err != nil {
		return chain.PublicKey{}, err
	}
	return pk, nil
}

// Sign streams path and transaction in fixed size frames; the last frame is
// marked and its response carries the signature.
func (s *LedgerSigner) Sign(ctx context.Context, tx *chain.Transaction) (*chain.SignedTransaction, error) {
	path, err := ParseDerivationPath(s.path)
	if err != nil {
		return nil, err
	}
	payload := append(path, tx.Serialize()...)

	var signed *chain.SignedTransaction
	err = s.withTransport(ctx, func(t Transport) error {
		// resets any partially filled buffer left on the device
		version, err := s.version(ctx, t)
		if err != nil {
			return err
		}
		log.Debug().Str("app_version", version).Str("signer_id", tx.SignerID).Msg("Signing with hardware device")

		for offset := 0; offset < len(payload); offset += ledgerChunkSize {
			end := offset + ledgerChunkSize
			last := end >= len(payload)
			if last {
				end = len(payload)
			}
			p1 := byte(p1More)
			if last {
				p1 = p1Last
			}
			res, err := s.exchange(ctx, t, apdu(insSign, p1, s.networkID, payload[offset:end]))
			if err != nil {
				return err
			}
			if !last {
				continue
			}
			sig, err := chain.SignatureFromBytes(res)
			if err != nil {
				return errors.Wrap(ErrProtocolError, err.Error())
			}
			signed = &chain.SignedTransaction{Transaction: *tx, Signature: sig}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if signed == nil {
		return nil, errors.Wrap(ErrProtocolError, "device returned no signature")
	}
	return signed, nil
}
