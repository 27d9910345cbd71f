package parser

import "encoding/binary"

var concoxAlarms = map[byte]AlarmType{
	0x00: AlarmNormal,
	0x01: AlarmSOS,
	0x02: AlarmPowerCut,
	0x03: AlarmVibration,
	0x04: AlarmEnterFence,
	0x05: AlarmExitFence,
	0x06: AlarmOverspeed,
}

// ConcoxParser shares the GT06 envelope and GPS layout. Its login carries a
// terminal type code after the identifier, and extended location frames may
// append an ACC byte after the LBS block.
type ConcoxParser struct{}

var _ Parser = ConcoxParser{}

func NewConcoxParser() ConcoxParser {
	return ConcoxParser{}
}

func (ConcoxParser) Protocol() Protocol { return ProtocolConcox }

func (ConcoxParser) Validate(rec *Record) bool { return ValidateRecord(rec) }

func (ConcoxParser) Parse(buf []byte) (*Frame, error) {
	end, err := frameEnd(buf)
	if err != nil {
		return nil, err
	}
	frame := &Frame{Protocol: ProtocolConcox, Code: buf[3]}
	switch frame.Code {
	case codeLogin:
		frame.Type = MessageLogin
		data := payload(buf, end, 10)
		if data == nil {
			return nil, ErrMalformed
		}
		id, ok := decodeBCD(data[:8])
		if !ok {
			return nil, ErrMalformed
		}
		frame.DeviceID = id
		frame.TerminalType = binary.BigEndian.Uint16(data[8:10])
	case codeLocation, codeLocationExt:
		frame.Type = MessageLocation
		if frame.Position, err = decodeLocation(buf, end); err != nil {
			return nil, err
		}
		if frame.Code == codeLocationExt {
			if data := payload(buf, end, gpsBlockSize+lbsBlockSize+1); data != nil {
				frame.Ignition = boolPtr(data[gpsBlockSize+lbsBlockSize] != 0)
			}
		}
	case codeStatus:
		frame.Type = MessageHeartbeat
		if frame.Status, frame.Ignition, err = decodeStatus(buf, end); err != nil {
			return nil, err
		}
	case codeAlarm:
		frame.Type = MessageAlarm
		if frame.Position, err = decodeLocation(buf, end); err != nil {
			return nil, err
		}
		frame.Alarm = alarmAt(buf, end, concoxAlarms)
	default:
		return nil, ErrUnsupported
	}
	frame.Sequence = sequenceAt(buf, end)
	frame.RawData = hexUpper(buf[:end])
	return frame, nil
}

func (ConcoxParser) Acknowledge(f *Frame) []byte {
	if f == nil {
		return nil
	}
	switch f.Type {
	case MessageLogin:
		return ackFrame(codeLogin, f.Sequence)
	case MessageHeartbeat:
		return ackFrame(codeStatus, f.Sequence)
	default:
		return ackFrame(codeLocation, f.Sequence)
	}
}
