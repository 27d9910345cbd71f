package parser

import (
	"errors"
	"math"
)

var (
	ErrIncomplete  = errors.New("incomplete frame")
	ErrMalformed   = errors.New("malformed frame")
	ErrUnsupported = errors.New("unsupported message type")
)

type Protocol string

const (
	ProtocolGT06      Protocol = "GT06"
	ProtocolConcox    Protocol = "Concox"
	ProtocolHT02      Protocol = "HT02"
	ProtocolGeneric   Protocol = "Generic"
	ProtocolHTTP      Protocol = "HTTP"
	ProtocolHTTPBatch Protocol = "HTTP_BATCH"
)

type MessageType string

const (
	MessageLogin     MessageType = "login"
	MessageLocation  MessageType = "location"
	MessageHeartbeat MessageType = "heartbeat"
	MessageAlarm     MessageType = "alarm"
	MessageData      MessageType = "data"
)

// Parser decodes one wire protocol. Implementations hold no per-connection
// state and are safe for concurrent use.
type Parser interface {
	Protocol() Protocol
	// Parse decodes buf as a single frame. A nil frame is always paired with
	// one of ErrIncomplete, ErrMalformed or ErrUnsupported.
	Parse(buf []byte) (*Frame, error)
	Validate(rec *Record) bool
	// Acknowledge returns the reply for f, or nil when the protocol sends none.
	Acknowledge(f *Frame) []byte
}

// Frame is one decoded logical message.
type Frame struct {
	Protocol     Protocol
	Type         MessageType
	Code         byte
	DeviceID     string
	Sequence     uint16
	TerminalType uint16
	Position     *Position
	Ignition     *bool
	Alarm        AlarmType
	Status       *TerminalStatus
	Attributes   map[string]any
	RawData      string
}

type TerminalStatus struct {
	BatteryLevel   int
	BatteryVoltage float64
	GSMSignal      int
}

// ValidateRecord reports whether rec carries an identifier and finite
// coordinates inside the WGS84 range.
func ValidateRecord(rec *Record) bool {
	if rec == nil || rec.DeviceID == "" {
		return false
	}
	if !finite(rec.Speed) || rec.Speed < 0 {
		return false
	}
	return ValidCoordinates(rec.Latitude, rec.Longitude)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Build turns a decoded frame into a position record. boundID is used when the
// frame itself carries no identifier. Build returns nil for frames without a
// position and for candidates p.Validate rejects.
func Build(p Parser, f *Frame, boundID string) *Record {
	if f == nil || f.Position == nil {
		return nil
	}
	pos := f.Position
	rec := &Record{
		DeviceID:   f.DeviceID,
		Latitude:   pos.Latitude,
		Longitude:  pos.Longitude,
		Altitude:   pos.Altitude,
		Speed:      pos.Speed,
		Heading:    pos.Heading,
		Satellites: pos.Satellites,
		HDOP:       pos.HDOP,
		Ignition:   f.Ignition,
		GPSValid:   pos.Valid,
		AlarmType:  f.Alarm,
		Protocol:   p.Protocol(),
		Sequence:   f.Sequence,
		DeviceTime: pos.Time,
		RawData:    f.RawData,
		Attributes: f.Attributes,
	}
	if rec.DeviceID == "" {
		rec.DeviceID = boundID
	}
	if rec.AlarmType == "" {
		rec.AlarmType = AlarmNormal
	}
	if !p.Validate(rec) {
		return nil
	}
	return rec
}
