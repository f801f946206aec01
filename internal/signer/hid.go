package signer

import (
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/jpillora/backoff"
	"github.com/karalabe/usb"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	ledgerVendorID  = 0x2c97
	ledgerUsagePage = 0xffa0
	hidPacketSize   = 64
	hidChannel      = 0x0101
	hidTagAPDU      = 0x05
)

var errInvalidFrame = errors.New("invalid HID frame header")

// hidTransport frames APDUs over the Ledger HID protocol.
type hidTransport struct {
	device usb.Device
}

// OpenLedgerHID returns an opener that polls for a device until ctx is done
// or the backoff window is exhausted.
func OpenLedgerHID(maxWait time.Duration) TransportOpener {
	return func(ctx context.Context) (Transport, error) {
		b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Factor: 2}
		deadline := time.Now().Add(maxWait)
		for {
			device, err := openLedgerDevice()
			if err == nil {
				return &hidTransport{device: device}, nil
			}
			wait := b.Duration()
			if time.Now().Add(wait).After(deadline) {
				return nil, err
			}
			log.Debug().Err(err).Dur("retry_in", wait).Msg("Hardware device not ready")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}
}

func openLedgerDevice() (usb.Device, error) {
	infos, err := usb.EnumerateHid(ledgerVendorID, 0)
	if err != nil {
		return nil, errors.Wrap(err, "enumerate hid devices")
	}
	for _, info := range infos {
		if info.UsagePage == ledgerUsagePage || info.Interface == 0 {
			return info.Open()
		}
	}
	return nil, errors.New("no Ledger device connected")
}

func (t *hidTransport) Close() error {
	return t.device.Close()
}

func (t *hidTransport) Exchange(ctx context.Context, apdu []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, packet := range frameAPDU(apdu) {
		if _, err := t.device.Write(packet); err != nil {
			return nil, errors.Wrap(err, "write to device")
		}
	}
	return readFramed(t.device)
}

// frameAPDU splits a length prefixed APDU into sequenced 64 byte packets.
func frameAPDU(apdu []byte) [][]byte {
	msg := binary.BigEndian.AppendUint16(nil, uint16(len(apdu)))
	msg = append(msg, apdu...)

	var packets [][]byte
	for seq := uint16(0); len(msg) > 0; seq++ {
		packet := make([]byte, 0, hidPacketSize)
		packet = binary.BigEndian.AppendUint16(packet, hidChannel)
		packet = append(packet, hidTagAPDU)
		packet = binary.BigEndian.AppendUint16(packet, seq)
		n := min(hidPacketSize-len(packet), len(msg))
		packet = append(packet, msg[:n]...)
		msg = msg[n:]
		packets = append(packets, packet[:hidPacketSize])
	}
	return packets
}

func readFramed(r io.Reader) ([]byte, error) {
	var (
		reply []byte
		total = -1
	)
	packet := make([]byte, hidPacketSize)
	for seq := uint16(0); ; seq++ {
		if _, err := io.ReadFull(r, packet); err != nil {
			return nil, errors.Wrap(err, "read from device")
		}
		if binary.BigEndian.Uint16(packet) != hidChannel || packet[2] != hidTagAPDU ||
			binary.BigEndian.Uint16(packet[3:]) != seq {
			return nil, errInvalidFrame
		}
		payload := packet[5:]
		if total < 0 {
			total = int(binary.BigEndian.Uint16(payload))
			reply = make([]byte, 0, total)
			payload = payload[2:]
		}
		n := min(total-len(reply), len(payload))
		reply = append(reply, payload[:n]...)
		if len(reply) == total {
			return reply, nil
		}
	}
}
