package simulator

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/beingmushfiq/Track-R/parser"
)

const ackTimeout = 10 * time.Second

// Login announces the device. HT02 has no login message, so its identifier
// travels with every sentence instead.
func (td *TrackerDevice) Login() error {
	var packet []byte
	switch td.protocol {
	case parser.ProtocolGT06:
		packet = parser.EncodeGT06Login(td.imei, td.nextSeq())
	case parser.ProtocolConcox:
		packet = parser.EncodeConcoxLogin(td.imei, 0x3608, td.nextSeq())
	default:
		return nil
	}
	if _, err := td.conn.Write(packet); err != nil {
		return fmt.Errorf("failed to send login: %w", err)
	}
	ack, err := td.readGT06Ack()
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}
	if ack[3] != 0x01 {
		return fmt.Errorf("login not accepted: unexpected response % X", ack)
	}
	return nil
}

func (td *TrackerDevice) SendPoint(p Point) error {
	packet := td.encode(p)
	if _, err := td.conn.Write(packet); err != nil {
		return fmt.Errorf("failed to send position: %w", err)
	}
	if td.protocol == parser.ProtocolHT02 {
		return td.readHT02Ack()
	}
	if _, err := td.readGT06Ack(); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	return nil
}

func (td *TrackerDevice) encode(p Point) []byte {
	switch td.protocol {
	case parser.ProtocolHT02:
		return parser.EncodeHT02(&parser.HT02Sentence{
			DeviceID:  td.imei,
			Time:      p.Time,
			Valid:     p.Valid,
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			SpeedKmh:  float64(p.Speed),
			Heading:   int(p.Heading),
		})
	case parser.ProtocolConcox:
		return parser.EncodeConcoxLocation(p.gt06(), p.Ignition, td.nextSeq())
	}
	return parser.EncodeGT06Location(p.gt06(), td.nextSeq())
}

func (td *TrackerDevice) readGT06Ack() ([]byte, error) {
	if err := td.conn.SetReadDeadline(time.Now().Add(ackTimeout)); err != nil {
		return nil, err
	}
	ack := make([]byte, 10)
	if _, err := io.ReadFull(td.conn, ack); err != nil {
		return nil, err
	}
	if ack[0] != 0x78 || ack[1] != 0x78 {
		return nil, fmt.Errorf("malformed response % X", ack)
	}
	return ack, nil
}

func (td *TrackerDevice) readHT02Ack() error {
	if err := td.conn.SetReadDeadline(time.Now().Add(ackTimeout)); err != nil {
		return err
	}
	buf := make([]byte, 64)
	var got []byte
	for !bytes.HasSuffix(got, []byte("#")) {
		n, err := td.conn.Read(buf)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.HasPrefix(got, []byte("*HQ,"+td.imei+",V4,")) {
		return fmt.Errorf("unexpected response %q", got)
	}
	return nil
}
