package parser

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/sigurn/crc16"
)

var x25Table = crc16.MakeTable(crc16.CRC16_X_25)

// alarmLanguageEnglish follows the alarm code in the info field of alarm frames.
const alarmLanguageEnglish byte = 0x02

type GT06Location struct {
	Time       time.Time
	Latitude   float64
	Longitude  float64
	Speed      uint8
	Heading    uint16
	Satellites uint8
	Valid      bool
}

type GT06Status struct {
	Ignition     bool
	BatteryLevel uint8
	Voltage      float64
	GSMSignal    uint8
}

func EncodeGT06Login(imei string, seq uint16) []byte {
	return encodeGT06Frame(codeLogin, encodeBCD(imei, 8), nil, seq)
}

func EncodeConcoxLogin(imei string, terminalType uint16, seq uint16) []byte {
	data := binary.BigEndian.AppendUint16(encodeBCD(imei, 8), terminalType)
	return encodeGT06Frame(codeLogin, data, nil, seq)
}

func EncodeGT06Location(loc *GT06Location, seq uint16) []byte {
	return encodeGT06Frame(codeLocation, encodeGPS(loc), nil, seq)
}

// EncodeConcoxLocation writes an extended location frame with a zeroed LBS
// block followed by the ACC byte.
func EncodeConcoxLocation(loc *GT06Location, ignition bool, seq uint16) []byte {
	data := append(encodeGPS(loc), make([]byte, lbsBlockSize)...)
	if ignition {
		data = append(data, 0x01)
	} else {
		data = append(data, 0x00)
	}
	return encodeGT06Frame(codeLocationExt, data, nil, seq)
}

func EncodeGT06Heartbeat(st *GT06Status, seq uint16) []byte {
	info := st.BatteryLevel << 1
	if st.Ignition {
		info |= 0x01
	}
	data := []byte{info}
	data = binary.BigEndian.AppendUint16(data, uint16(math.Round(st.Voltage*100)))
	data = append(data, st.GSMSignal)
	return encodeGT06Frame(codeStatus, data, nil, seq)
}

func EncodeGT06Alarm(loc *GT06Location, alarm byte, seq uint16) []byte {
	return encodeGT06Frame(codeAlarm, encodeGPS(loc), []byte{alarm, alarmLanguageEnglish}, seq)
}

// encodeGT06Frame lays out
//
//	start(2) length(1) code(1) payload info(2) serial(2) stop(2)
//
// where info is the CRC-ITU of length..payload unless the caller supplies it.
func encodeGT06Frame(code byte, payload, info []byte, seq uint16) []byte {
	data := make([]byte, 0, len(payload)+10)
	data = binary.BigEndian.AppendUint16(data, startMarker)
	data = append(data, byte(len(payload)+5), code)
	data = append(data, payload...)
	if info == nil {
		data = binary.BigEndian.AppendUint16(data, crc16.Checksum(data[2:], x25Table))
	} else {
		data = append(data, info[:2]...)
	}
	data = binary.BigEndian.AppendUint16(data, seq)
	data = binary.BigEndian.AppendUint16(data, stopMarker)
	return data
}

func encodeGPS(loc *GT06Location) []byte {
	t := loc.Time.UTC()
	data := []byte{
		byte(t.Year() - 2000), byte(t.Month()), byte(t.Day()),
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()),
		0xC0 | loc.Satellites&0x0F,
	}
	data = binary.BigEndian.AppendUint32(data, uint32(math.Round(math.Abs(loc.Latitude)*coordinateScale)))
	data = binary.BigEndian.AppendUint32(data, uint32(math.Round(math.Abs(loc.Longitude)*coordinateScale)))
	data = append(data, loc.Speed)
	courseStatus := loc.Heading & 0x03FF
	if loc.Latitude >= 0 {
		courseStatus |= 0x0400
	}
	if loc.Longitude < 0 {
		courseStatus |= 0x0800
	}
	if loc.Valid {
		courseStatus |= 0x1000
	}
	return binary.BigEndian.AppendUint16(data, courseStatus)
}

type HT02Sentence struct {
	DeviceID string
	Command  string
	Time     time.Time
	Valid    bool
	// Latitude and Longitude are decimal degrees.
	Latitude  float64
	Longitude float64
	SpeedKmh  float64
	Heading   int
	Status    uint32
}

func EncodeHT02(s *HT02Sentence) []byte {
	t := s.Time.UTC()
	cmd := s.Command
	if cmd == "" {
		cmd = "V1"
	}
	validity := "V"
	if s.Valid {
		validity = "A"
	}
	latHemi, lonHemi := "N", "E"
	if s.Latitude < 0 {
		latHemi = "S"
	}
	if s.Longitude < 0 {
		lonHemi = "W"
	}
	return []byte(fmt.Sprintf("*HQ,%s,%s,%s,%s,%s,%s,%s,%s,%.2f,%d,%s,%08X#",
		s.DeviceID, cmd, t.Format("150405"), validity,
		formatDegreesMinutes(math.Abs(s.Latitude), 2), latHemi,
		formatDegreesMinutes(math.Abs(s.Longitude), 3), lonHemi,
		s.SpeedKmh/knotsToKmh, s.Heading, t.Format("020106"), s.Status))
}

func formatDegreesMinutes(v float64, degreeDigits int) string {
	deg := math.Floor(v)
	minutes := (v - deg) * 60
	return fmt.Sprintf("%0*d%07.4f", degreeDigits, int(deg), minutes)
}
