package parser

import (
	"encoding/binary"
	"time"
)

const (
	startMarker     uint16 = 0x7878
	startMarkerLong uint16 = 0x7979
	stopMarker      uint16 = 0x0D0A

	minFrameSize    = 10
	coordinateScale = 1800000.0
	gpsBlockSize    = 18
	lbsBlockSize    = 8
)

// GT06-family message codes.
const (
	codeLogin       byte = 0x01
	codeLocation    byte = 0x12
	codeStatus      byte = 0x13
	codeAlarm       byte = 0x16
	codeGPSLBS      byte = 0x1A
	codeLocationExt byte = 0x22
)

var gt06Alarms = map[byte]AlarmType{
	0x00: AlarmNormal,
	0x01: AlarmSOS,
	0x02: AlarmPowerCut,
	0x03: AlarmVibration,
	0x04: AlarmEnterFence,
	0x05: AlarmExitFence,
	0x06: AlarmOverspeed,
	0x09: AlarmMoving,
}

// GT06Parser decodes the GT06 binary protocol:
//
//	start(2) length(1) type(1) payload info(2) serial(2) stop(2)
//
// The frame ends length+5 bytes after its start marker. Alarm frames carry
// the alarm code in the first info byte; other frames carry a check value
// there which is not verified.
type GT06Parser struct{}

var _ Parser = GT06Parser{}

func NewGT06Parser() GT06Parser {
	return GT06Parser{}
}

func (GT06Parser) Protocol() Protocol { return ProtocolGT06 }

func (GT06Parser) Validate(rec *Record) bool { return ValidateRecord(rec) }

func (p GT06Parser) Parse(buf []byte) (*Frame, error) {
	end, err := frameEnd(buf)
	if err != nil {
		return nil, err
	}
	frame := &Frame{Protocol: ProtocolGT06, Code: buf[3]}
	switch frame.Code {
	case codeLogin:
		frame.Type = MessageLogin
		frame.DeviceID, err = decodeLogin(buf, end)
	case codeLocation, codeGPSLBS:
		frame.Type = MessageLocation
		frame.Position, err = decodeLocation(buf, end)
	case codeStatus:
		frame.Type = MessageHeartbeat
		frame.Status, frame.Ignition, err = decodeStatus(buf, end)
	case codeAlarm:
		frame.Type = MessageAlarm
		frame.Position, err = decodeLocation(buf, end)
		frame.Alarm = alarmAt(buf, end, gt06Alarms)
	default:
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, err
	}
	frame.Sequence = sequenceAt(buf, end)
	frame.RawData = hexUpper(buf[:end])
	return frame, nil
}

// Acknowledge echoes the request's message code and sequence.
func (GT06Parser) Acknowledge(f *Frame) []byte {
	if f == nil {
		return nil
	}
	return ackFrame(f.Code, f.Sequence)
}

// frameEnd checks the envelope of buf and returns the size of the frame it
// starts with.
func frameEnd(buf []byte) (int, error) {
	if len(buf) < minFrameSize {
		return 0, ErrIncomplete
	}
	start := binary.BigEndian.Uint16(buf[0:2])
	if start != startMarker && start != startMarkerLong {
		return 0, ErrMalformed
	}
	end := int(buf[2]) + 5
	if end < minFrameSize {
		return 0, ErrMalformed
	}
	if len(buf) < end {
		return 0, ErrIncomplete
	}
	if binary.BigEndian.Uint16(buf[end-2:end]) != stopMarker {
		return 0, ErrMalformed
	}
	return end, nil
}

// payload returns the bytes between the message code and the trailer, or
// nil if fewer than need bytes are available.
func payload(buf []byte, end, need int) []byte {
	if end-6 < 4+need {
		return nil
	}
	return buf[4 : end-6]
}

func sequenceAt(buf []byte, end int) uint16 {
	return binary.BigEndian.Uint16(buf[end-4 : end-2])
}

func alarmAt(buf []byte, end int, table map[byte]AlarmType) AlarmType {
	if alarm, ok := table[buf[end-6]]; ok {
		return alarm
	}
	return AlarmUnknown
}

func decodeLogin(buf []byte, end int) (string, error) {
	data := payload(buf, end, 8)
	if data == nil {
		return "", ErrMalformed
	}
	id, ok := decodeBCD(data[:8])
	if !ok {
		return "", ErrMalformed
	}
	return id, nil
}

func decodeLocation(buf []byte, end int) (*Position, error) {
	data := payload(buf, end, gpsBlockSize)
	if data == nil {
		return nil, ErrMalformed
	}
	pos := &Position{
		Time:       time.Date(2000+int(data[0]), time.Month(data[1]), int(data[2]), int(data[3]), int(data[4]), int(data[5]), 0, time.UTC),
		Satellites: int(data[6] & 0x0F),
		Latitude:   float64(binary.BigEndian.Uint32(data[7:11])) / coordinateScale,
		Longitude:  float64(binary.BigEndian.Uint32(data[11:15])) / coordinateScale,
		Speed:      float64(data[15]),
	}
	courseStatus := binary.BigEndian.Uint16(data[16:18])
	pos.Heading = intPtr(int(courseStatus & 0x03FF))
	if courseStatus&0x0400 == 0 {
		pos.Latitude = -pos.Latitude
	}
	if courseStatus&0x0800 != 0 {
		pos.Longitude = -pos.Longitude
	}
	pos.Valid = courseStatus&0x1000 != 0
	return pos, nil
}

func decodeStatus(buf []byte, end int) (*TerminalStatus, *bool, error) {
	data := payload(buf, end, 4)
	if data == nil {
		return nil, nil, ErrMalformed
	}
	info := data[0]
	status := &TerminalStatus{
		BatteryLevel:   int(info>>1) & 0x7F,
		BatteryVoltage: float64(binary.BigEndian.Uint16(data[1:3])) / 100.0,
		GSMSignal:      int(data[3]),
	}
	return status, boolPtr(info&0x01 == 1), nil
}

func ackFrame(code byte, seq uint16) []byte {
	resp := make([]byte, 10)
	binary.BigEndian.PutUint16(resp[0:2], startMarker)
	resp[2] = 0x05
	resp[3] = code
	binary.BigEndian.PutUint16(resp[4:6], seq)
	binary.BigEndian.PutUint16(resp[6:8], additiveCheck(resp[2:6]))
	binary.BigEndian.PutUint16(resp[8:10], stopMarker)
	return resp
}
