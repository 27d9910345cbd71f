package parser

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"math/rand"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	assert.NilError(t, err)
	return b
}

func approx(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestGT06Parse(t *testing.T) {
	fixTime := time.Date(2023, 3, 15, 10, 30, 0, 0, time.UTC)
	tests := map[string]struct {
		dataString string
		data       []byte
		errWant    error
		msgType    MessageType
		deviceID   string
		sequence   uint16
		lat, lon   float64
		heading    int
		valid      bool
		alarm      AlarmType
		status     *TerminalStatus
		ignition   *bool
	}{
		"login": {
			dataString: "78780D01123456789012345600000001" + "0D0A",
			msgType:    MessageLogin,
			deviceID:   "1234567890123456",
			sequence:   1,
		},
		"location north east": {
			dataString: "7878171217030F0A1E00C9026C139C0C3DE86428145A000000070D0A",
			msgType:    MessageLocation,
			sequence:   7,
			lat:        22.5763,
			lon:        114.1021,
			heading:    90,
			valid:      true,
		},
		"location south east": {
			dataString: "7878171217030F0A1E00C903A23C00103916643210B4000000080D0A",
			msgType:    MessageLocation,
			sequence:   8,
			lat:        -33.8688,
			lon:        151.2093,
			heading:    180,
			valid:      true,
		},
		"location west without fix": {
			data: EncodeGT06Location(&GT06Location{
				Time: fixTime, Latitude: 40.7128, Longitude: -74.006, Heading: 270,
			}, 9),
			msgType:  MessageLocation,
			sequence: 9,
			lat:      40.7128,
			lon:      -74.006,
			heading:  270,
		},
		"heartbeat": {
			data:     EncodeGT06Heartbeat(&GT06Status{Ignition: true, BatteryLevel: 80, Voltage: 4.12, GSMSignal: 4}, 3),
			msgType:  MessageHeartbeat,
			sequence: 3,
			status:   &TerminalStatus{BatteryLevel: 80, BatteryVoltage: 4.12, GSMSignal: 4},
			ignition: boolPtr(true),
		},
		"sos alarm": {
			data: EncodeGT06Alarm(&GT06Location{
				Time: fixTime, Latitude: 22.5763, Longitude: 114.1021, Heading: 90, Valid: true,
			}, 0x01, 11),
			msgType:  MessageAlarm,
			sequence: 11,
			lat:      22.5763,
			lon:      114.1021,
			heading:  90,
			valid:    true,
			alarm:    AlarmSOS,
		},
		"moving alarm": {
			data: EncodeGT06Alarm(&GT06Location{
				Time: fixTime, Latitude: 1, Longitude: 2, Valid: true,
			}, 0x09, 12),
			msgType:  MessageAlarm,
			sequence: 12,
			lat:      1,
			lon:      2,
			valid:    true,
			alarm:    AlarmMoving,
		},
		"unknown alarm code": {
			data: EncodeGT06Alarm(&GT06Location{
				Time: fixTime, Latitude: 1, Longitude: 2, Valid: true,
			}, 0x7F, 13),
			msgType:  MessageAlarm,
			sequence: 13,
			lat:      1,
			lon:      2,
			valid:    true,
			alarm:    AlarmUnknown,
		},
		"too short": {
			dataString: "78780D01",
			errWant:    ErrIncomplete,
		},
		"declared length beyond buffer": {
			dataString: "78780D011234567890123456",
			errWant:    ErrIncomplete,
		},
		"bad start marker": {
			dataString: "AAAA0D01123456789012345600000001" + "0D0A",
			errWant:    ErrMalformed,
		},
		"bad stop marker": {
			dataString: "78780D01123456789012345600000001" + "FFFF",
			errWant:    ErrMalformed,
		},
		"login with non decimal nibble": {
			dataString: "78780D011234567890123A5600000001" + "0D0A",
			errWant:    ErrMalformed,
		},
		"unsupported message type": {
			dataString: "78780D80123456789012345600000001" + "0D0A",
			errWant:    ErrUnsupported,
		},
	}
	p := NewGT06Parser()
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			data := test.data
			if test.dataString != "" {
				data = mustHex(t, test.dataString)
			}
			frame, err := p.Parse(data)
			if test.errWant != nil {
				assert.ErrorIs(t, err, test.errWant)
				assert.Assert(t, frame == nil)
				return
			}
			assert.NilError(t, err)
			assert.Equal(t, frame.Protocol, ProtocolGT06)
			assert.Equal(t, frame.Type, test.msgType)
			assert.Equal(t, frame.DeviceID, test.deviceID)
			assert.Equal(t, frame.Sequence, test.sequence)
			assert.Equal(t, frame.Alarm, test.alarm)
			assert.DeepEqual(t, frame.Status, test.status)
			assert.DeepEqual(t, frame.Ignition, test.ignition)
			if test.msgType == MessageLocation || test.msgType == MessageAlarm {
				assert.Assert(t, frame.Position != nil)
				assert.Assert(t, approx(frame.Position.Latitude, test.lat, 1e-6), frame.Position.Latitude)
				assert.Assert(t, approx(frame.Position.Longitude, test.lon, 1e-6), frame.Position.Longitude)
				assert.Equal(t, *frame.Position.Heading, test.heading)
				assert.Equal(t, frame.Position.Valid, test.valid)
				assert.Equal(t, frame.Position.Time, fixTime)
			} else {
				assert.Assert(t, frame.Position == nil)
			}
		})
	}
}

func TestGT06LocationFields(t *testing.T) {
	frame, err := NewGT06Parser().Parse(mustHex(t, "7878171217030F0A1E00C9026C139C0C3DE86428145A000000070D0A"))
	assert.NilError(t, err)
	assert.Equal(t, frame.Position.Satellites, 9)
	assert.Equal(t, frame.Position.Speed, 40.0)
	assert.Equal(t, frame.RawData, "7878171217030F0A1E00C9026C139C0C3DE86428145A000000070D0A")
}

func TestGT06CoordinateScale(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	p := NewGT06Parser()
	for i := 0; i < 500; i++ {
		rawLat := uint32(rnd.Int63n(90 * coordinateScale))
		rawLon := uint32(rnd.Int63n(180 * coordinateScale))
		south, west := rnd.Intn(2) == 0, rnd.Intn(2) == 0

		data := EncodeGT06Location(&GT06Location{Time: time.Now()}, uint16(i))
		// overwrite the fixed point fields and hemisphere bits in place
		putUint32(data[11:15], rawLat)
		putUint32(data[15:19], rawLon)
		courseStatus := uint16(0)
		if !south {
			courseStatus |= 0x0400
		}
		if west {
			courseStatus |= 0x0800
		}
		data[20], data[21] = byte(courseStatus>>8), byte(courseStatus)

		frame, err := p.Parse(data)
		assert.NilError(t, err)
		wantLat := float64(rawLat) / 1800000.0
		wantLon := float64(rawLon) / 1800000.0
		if south {
			wantLat = -wantLat
		}
		if west {
			wantLon = -wantLon
		}
		assert.Assert(t, approx(frame.Position.Latitude, wantLat, 1e-6))
		assert.Assert(t, approx(frame.Position.Longitude, wantLon, 1e-6))
	}
}

func putUint32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
}

func TestGT06Acknowledge(t *testing.T) {
	tests := map[string]struct {
		frame *Frame
		want  string
	}{
		"login": {
			frame: &Frame{Type: MessageLogin, Code: codeLogin, Sequence: 1},
			want:  "787805010001" + "0007" + "0D0A",
		},
		"location": {
			frame: &Frame{Type: MessageLocation, Code: codeLocation, Sequence: 0x0102},
			want:  "787805120102" + "001A" + "0D0A",
		},
		"zero sequence": {
			frame: &Frame{Type: MessageHeartbeat, Code: codeStatus},
			want:  "787805130000" + "0018" + "0D0A",
		},
	}
	p := NewGT06Parser()
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ack := p.Acknowledge(test.frame)
			assert.Equal(t, len(ack), 10)
			assert.Equal(t, hexUpper(ack), test.want)
		})
	}
}

func TestConcoxParse(t *testing.T) {
	p := NewConcoxParser()
	fixTime := time.Date(2024, 1, 1, 12, 12, 0, 0, time.UTC)

	t.Run("login with terminal type", func(t *testing.T) {
		frame, err := p.Parse(EncodeConcoxLogin("0358899050123456", 0x3612, 1))
		assert.NilError(t, err)
		assert.Equal(t, frame.Type, MessageLogin)
		assert.Equal(t, frame.DeviceID, "0358899050123456")
		assert.Equal(t, frame.TerminalType, uint16(0x3612))
		assert.Equal(t, hexUpper(p.Acknowledge(frame)), "787805010001"+"0007"+"0D0A")
	})

	t.Run("login without terminal type", func(t *testing.T) {
		_, err := p.Parse(EncodeGT06Login("1234567890123456", 1))
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("extended location with acc", func(t *testing.T) {
		loc := &GT06Location{Time: fixTime, Latitude: -1.2921, Longitude: 36.8219, Speed: 55, Heading: 12, Satellites: 7, Valid: true}
		frame, err := p.Parse(EncodeConcoxLocation(loc, true, 0x0A))
		assert.NilError(t, err)
		assert.Equal(t, frame.Type, MessageLocation)
		assert.Assert(t, approx(frame.Position.Latitude, -1.2921, 1e-6))
		assert.Assert(t, approx(frame.Position.Longitude, 36.8219, 1e-6))
		assert.Equal(t, frame.Position.Speed, 55.0)
		assert.Equal(t, frame.Position.Satellites, 7)
		assert.DeepEqual(t, frame.Ignition, boolPtr(true))
		assert.Equal(t, hexUpper(p.Acknowledge(frame)), "78780512000A"+"0021"+"0D0A")
	})

	t.Run("plain location has no ignition", func(t *testing.T) {
		frame, err := p.Parse(EncodeGT06Location(&GT06Location{Time: fixTime, Latitude: 1, Longitude: 1}, 2))
		assert.NilError(t, err)
		assert.Assert(t, frame.Ignition == nil)
	})

	t.Run("heartbeat", func(t *testing.T) {
		frame, err := p.Parse(EncodeGT06Heartbeat(&GT06Status{BatteryLevel: 6, Voltage: 3.9, GSMSignal: 3}, 5))
		assert.NilError(t, err)
		assert.Equal(t, frame.Type, MessageHeartbeat)
		assert.DeepEqual(t, frame.Ignition, boolPtr(false))
		assert.Equal(t, frame.Status.BatteryLevel, 6)
		assert.Equal(t, hexUpper(p.Acknowledge(frame)), "787805130005"+"001D"+"0D0A")
	})

	t.Run("alarm table has no moving entry", func(t *testing.T) {
		frame, err := p.Parse(EncodeGT06Alarm(&GT06Location{Time: fixTime, Latitude: 1, Longitude: 1}, 0x09, 6))
		assert.NilError(t, err)
		assert.Equal(t, frame.Alarm, AlarmUnknown)

		frame, err = p.Parse(EncodeGT06Alarm(&GT06Location{Time: fixTime, Latitude: 1, Longitude: 1}, 0x02, 6))
		assert.NilError(t, err)
		assert.Equal(t, frame.Alarm, AlarmPowerCut)
	})
}

func TestHT02Parse(t *testing.T) {
	tests := map[string]struct {
		sentence string
		errWant  error
		deviceID string
		lat, lon float64
		speed    float64
		heading  int
		valid    bool
		ignition *bool
		time     time.Time
	}{
		"standard sentence": {
			sentence: "*HQ,8800000001,V1,121200,A,2234.5678,N,11406.1234,E,010.0,090,010124,00000003#",
			deviceID: "8800000001",
			lat:      22 + 34.5678/60,
			lon:      114 + 6.1234/60,
			speed:    18.52,
			heading:  90,
			valid:    true,
			ignition: boolPtr(true),
			time:     time.Date(2024, 1, 1, 12, 12, 0, 0, time.UTC),
		},
		"southern western hemisphere without status": {
			sentence: "*HQ,4210000002,V1,235959,V,3352.1280,S,07030.0000,W,000.0,359,311223#\r\n",
			deviceID: "4210000002",
			lat:      -33.8688,
			lon:      -70.5,
			heading:  359,
			time:     time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
		},
		"ignition off": {
			sentence: "*HQ,8800000001,V1,121200,A,2234.5678,N,11406.1234,E,000.0,000,010124,FFFFFFFE#",
			deviceID: "8800000001",
			lat:      22 + 34.5678/60,
			lon:      114 + 6.1234/60,
			valid:    true,
			ignition: boolPtr(false),
			time:     time.Date(2024, 1, 1, 12, 12, 0, 0, time.UTC),
		},
		"empty status field": {
			sentence: "*HQ,8800000001,V1,121200,A,2234.5678,N,11406.1234,E,010.0,090,010124,#",
			deviceID: "8800000001",
			lat:      22 + 34.5678/60,
			lon:      114 + 6.1234/60,
			speed:    18.52,
			heading:  90,
			valid:    true,
			time:     time.Date(2024, 1, 1, 12, 12, 0, 0, time.UTC),
		},
		"nan speed": {
			sentence: "*HQ,8800000001,V1,121200,A,2234.5678,N,11406.1234,E,NaN,090,010124#",
			errWant:  ErrMalformed,
		},
		"infinite speed": {
			sentence: "*HQ,8800000001,V1,121200,A,2234.5678,N,11406.1234,E,Inf,090,010124#",
			errWant:  ErrMalformed,
		},
		"negative speed": {
			sentence: "*HQ,8800000001,V1,121200,A,2234.5678,N,11406.1234,E,-010.0,090,010124#",
			errWant:  ErrMalformed,
		},
		"fewer than twelve fields": {
			sentence: "*HQ,8800000001,V1,121200,A,2234.5678,N,11406.1234,E,010.0,090#",
			errWant:  ErrMalformed,
		},
		"missing terminator": {
			sentence: "*HQ,8800000001,V1,121200,A,2234.5678,N",
			errWant:  ErrIncomplete,
		},
		"partial prefix": {
			sentence: "*H",
			errWant:  ErrIncomplete,
		},
		"wrong prefix": {
			sentence: "$GPRMC,1,2,3#",
			errWant:  ErrMalformed,
		},
		"bad latitude": {
			sentence: "*HQ,8800000001,V1,121200,A,XX34.5678,N,11406.1234,E,010.0,090,010124#",
			errWant:  ErrMalformed,
		},
		"bad date": {
			sentence: "*HQ,8800000001,V1,121200,A,2234.5678,N,11406.1234,E,010.0,090,0101#",
			errWant:  ErrMalformed,
		},
	}
	p := NewHT02Parser()
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			frame, err := p.Parse([]byte(test.sentence))
			if test.errWant != nil {
				assert.ErrorIs(t, err, test.errWant)
				return
			}
			assert.NilError(t, err)
			assert.Equal(t, frame.DeviceID, test.deviceID)
			assert.Equal(t, frame.Type, MessageLocation)
			assert.Assert(t, approx(frame.Position.Latitude, test.lat, 1e-6), frame.Position.Latitude)
			assert.Assert(t, approx(frame.Position.Longitude, test.lon, 1e-6), frame.Position.Longitude)
			assert.Assert(t, approx(frame.Position.Speed, test.speed, 1e-9), frame.Position.Speed)
			assert.Equal(t, *frame.Position.Heading, test.heading)
			assert.Equal(t, frame.Position.Valid, test.valid)
			assert.Equal(t, frame.Position.Time, test.time)
			assert.DeepEqual(t, frame.Ignition, test.ignition)
			assert.Equal(t, frame.Attributes["command"], "V1")
		})
	}
}

func TestHT02Acknowledge(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("X", 3600)) }
	p := NewHT02ParserWithClock(clock)
	ack := p.Acknowledge(&Frame{DeviceID: "8800000001"})
	assert.Equal(t, string(ack), "*HQ,8800000001,V4,060809,00#")
	assert.Assert(t, p.Acknowledge(&Frame{}) == nil)
}

func TestHT02EncodeRoundTrip(t *testing.T) {
	s := &HT02Sentence{
		DeviceID:  "1234567890",
		Time:      time.Date(2024, 2, 29, 1, 2, 3, 0, time.UTC),
		Valid:     true,
		Latitude:  -12.3456,
		Longitude: -45.6789,
		SpeedKmh:  60,
		Heading:   45,
		Status:    0x01,
	}
	frame, err := NewHT02Parser().Parse(EncodeHT02(s))
	assert.NilError(t, err)
	assert.Equal(t, frame.DeviceID, s.DeviceID)
	assert.Assert(t, approx(frame.Position.Latitude, s.Latitude, 1e-5))
	assert.Assert(t, approx(frame.Position.Longitude, s.Longitude, 1e-5))
	assert.Assert(t, approx(frame.Position.Speed, s.SpeedKmh, 0.01))
	assert.Equal(t, frame.Position.Time, s.Time)
	assert.DeepEqual(t, frame.Ignition, boolPtr(true))
}

func TestGenericParse(t *testing.T) {
	t.Run("default ascii layout", func(t *testing.T) {
		p, err := NewGenericParser(DefaultGenericConfig())
		assert.NilError(t, err)
		frame, err := p.Parse([]byte("356307042441013,35.6892,51.3890,42.5,270,1700000000\n"))
		assert.NilError(t, err)
		assert.Equal(t, frame.DeviceID, "356307042441013")
		assert.Equal(t, frame.Position.Latitude, 35.6892)
		assert.Equal(t, frame.Position.Longitude, 51.389)
		assert.Equal(t, frame.Position.Speed, 42.5)
		assert.Equal(t, *frame.Position.Heading, 270)
		assert.Equal(t, frame.Position.Time, time.Unix(1700000000, 0).UTC())
		assert.Assert(t, frame.Position.Valid)
		assert.Assert(t, p.Acknowledge(frame) == nil)
	})

	t.Run("millisecond timestamp", func(t *testing.T) {
		p, err := NewGenericParser(DefaultGenericConfig())
		assert.NilError(t, err)
		frame, err := p.Parse([]byte("1,1,1,0,0,1700000000123"))
		assert.NilError(t, err)
		assert.Equal(t, frame.Position.Time, time.UnixMilli(1700000000123).UTC())
	})

	t.Run("markers and acknowledgement", func(t *testing.T) {
		p, err := NewGenericParser(GenericConfig{
			Delimiter:       ";",
			StartMarker:     "$",
			EndMarker:       "*",
			Acknowledgement: "OK {id}",
			Fields: []Field{
				{Name: "id", Type: "int"},
				{Name: "latitude", Type: "float"},
				{Name: "longitude", Type: "float"},
				{Name: "acc", Type: "bool"},
				{Name: "flags", Type: "hex"},
			},
		})
		assert.NilError(t, err)

		_, err = p.Parse([]byte("$77;1.5;2.5"))
		assert.ErrorIs(t, err, ErrIncomplete)
		_, err = p.Parse([]byte("#77;1.5;2.5*"))
		assert.ErrorIs(t, err, ErrMalformed)

		frame, err := p.Parse([]byte("$77;1.5;2.5;1;1F*"))
		assert.NilError(t, err)
		assert.Equal(t, frame.DeviceID, "77")
		assert.DeepEqual(t, frame.Ignition, boolPtr(true))
		assert.Equal(t, frame.Attributes["flags"], int64(31))
		assert.Equal(t, string(p.Acknowledge(frame)), "OK 77")
	})

	t.Run("ascii conversion failure", func(t *testing.T) {
		p, err := NewGenericParser(DefaultGenericConfig())
		assert.NilError(t, err)
		_, err = p.Parse([]byte("356307042441013,north,51.3890"))
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("no coordinates", func(t *testing.T) {
		p, err := NewGenericParser(GenericConfig{Fields: []Field{{Name: "imei"}, {Name: "battery", Type: "float"}}})
		assert.NilError(t, err)
		frame, err := p.Parse([]byte("42,3.7"))
		assert.NilError(t, err)
		assert.Assert(t, frame.Position == nil)
		assert.Assert(t, Build(p, frame, "") == nil)
	})

	t.Run("binary layout", func(t *testing.T) {
		p, err := NewGenericParser(GenericConfig{
			Format: FormatBinary,
			Fields: []Field{
				{Name: "imei", Type: "string", Length: 4},
				{Name: "lat", Type: "double"},
				{Name: "lon", Type: "double"},
				{Name: "speed", Type: "uint8"},
				{Name: "heading", Type: "uint16"},
				{Name: "altitude", Type: "int16"},
			},
		})
		assert.NilError(t, err)
		data := mustHex(t, "41423132"+"4036B0A3D70A3D71"+"C05E9D70A3D70A3D"+"3C"+"0168"+"FFF6")
		frame, err := p.Parse(data)
		assert.NilError(t, err)
		assert.Equal(t, frame.DeviceID, "AB12")
		assert.Equal(t, frame.Position.Latitude, 22.69)
		assert.Equal(t, frame.Position.Longitude, -122.46)
		assert.Equal(t, frame.Position.Speed, 60.0)
		assert.Equal(t, *frame.Position.Heading, 360)
		assert.Equal(t, *frame.Position.Altitude, -10.0)

		_, err = p.Parse(data[:10])
		assert.ErrorIs(t, err, ErrIncomplete)
	})

	t.Run("speed must be finite and not negative", func(t *testing.T) {
		p, err := NewGenericParser(DefaultGenericConfig())
		assert.NilError(t, err)
		tests := map[string]struct {
			line    string
			errWant error
			speed   float64
		}{
			"negative":  {line: "1,1.5,2.5,-3,0,1700000000", errWant: ErrMalformed},
			"infinite":  {line: "1,1.5,2.5,+Inf,0,1700000000"},
			"not a num": {line: "1,1.5,2.5,NaN,0,1700000000"},
			"zero":      {line: "1,1.5,2.5,0,0,1700000000"},
		}
		for name, test := range tests {
			t.Run(name, func(t *testing.T) {
				frame, err := p.Parse([]byte(test.line))
				if test.errWant != nil {
					assert.ErrorIs(t, err, test.errWant)
					return
				}
				assert.NilError(t, err)
				assert.Equal(t, frame.Position.Speed, test.speed)
				rec := Build(p, frame, "")
				assert.Assert(t, rec != nil)
				_, err = json.Marshal(rec)
				assert.NilError(t, err)
			})
		}
	})

	t.Run("infinite coordinates", func(t *testing.T) {
		p, err := NewGenericParser(DefaultGenericConfig())
		assert.NilError(t, err)
		frame, err := p.Parse([]byte("1,Inf,2.5,0,0,1700000000"))
		assert.NilError(t, err)
		assert.Assert(t, frame.Position == nil)
	})

	t.Run("invalid definitions", func(t *testing.T) {
		_, err := NewGenericParser(GenericConfig{Format: "xml"})
		assert.ErrorContains(t, err, "unknown format")
		_, err = NewGenericParser(GenericConfig{Format: FormatBinary, Fields: []Field{{Name: "x", Type: "uint64"}}})
		assert.ErrorContains(t, err, "unknown binary type")
		_, err = NewGenericParser(GenericConfig{Fields: []Field{{Type: "int"}}})
		assert.ErrorContains(t, err, "has no name")
	})
}

func TestParseIdempotent(t *testing.T) {
	generic, err := NewGenericParser(DefaultGenericConfig())
	assert.NilError(t, err)
	loc := &GT06Location{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Latitude: 10, Longitude: 20, Valid: true}
	tests := map[string]struct {
		parser  Parser
		data    []byte
		boundID string
	}{
		"gt06":    {parser: NewGT06Parser(), data: EncodeGT06Location(loc, 1), boundID: "1234567890123456"},
		"concox":  {parser: NewConcoxParser(), data: EncodeConcoxLocation(loc, false, 1), boundID: "1234567890123456"},
		"ht02":    {parser: NewHT02Parser(), data: []byte("*HQ,8800000001,V1,121200,A,2234.5678,N,11406.1234,E,010.0,090,010124,00000003#")},
		"generic": {parser: generic, data: []byte("9,1.5,2.5,3,4,1700000000")},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			f1, err := test.parser.Parse(test.data)
			assert.NilError(t, err)
			f2, err := test.parser.Parse(test.data)
			assert.NilError(t, err)
			assert.DeepEqual(t, f1, f2)
			r1, r2 := Build(test.parser, f1, test.boundID), Build(test.parser, f2, test.boundID)
			assert.Assert(t, r1 != nil)
			assert.DeepEqual(t, r1, r2)
		})
	}
}

func TestBuild(t *testing.T) {
	p := NewGT06Parser()
	pos := &Position{Latitude: 10, Longitude: 20, Valid: true}
	tests := map[string]struct {
		frame   *Frame
		boundID string
		wantID  string
		wantNil bool
	}{
		"no position": {
			frame:   &Frame{Type: MessageLogin, DeviceID: "1"},
			wantNil: true,
		},
		"bound identifier": {
			frame:   &Frame{Type: MessageLocation, Position: pos},
			boundID: "bound",
			wantID:  "bound",
		},
		"frame identifier wins": {
			frame:   &Frame{Type: MessageLocation, DeviceID: "own", Position: pos},
			boundID: "bound",
			wantID:  "own",
		},
		"no identifier": {
			frame:   &Frame{Type: MessageLocation, Position: pos},
			wantNil: true,
		},
		"latitude out of range": {
			frame:   &Frame{DeviceID: "1", Position: &Position{Latitude: 91, Longitude: 0}},
			wantNil: true,
		},
		"longitude out of range": {
			frame:   &Frame{DeviceID: "1", Position: &Position{Latitude: 0, Longitude: -180.5}},
			wantNil: true,
		},
		"nan latitude": {
			frame:   &Frame{DeviceID: "1", Position: &Position{Latitude: math.NaN()}},
			wantNil: true,
		},
		"negative speed": {
			frame:   &Frame{DeviceID: "1", Position: &Position{Latitude: 1, Longitude: 2, Speed: -18.52}},
			wantNil: true,
		},
		"infinite speed": {
			frame:   &Frame{DeviceID: "1", Position: &Position{Latitude: 1, Longitude: 2, Speed: math.Inf(1)}},
			wantNil: true,
		},
		"nan speed": {
			frame:   &Frame{DeviceID: "1", Position: &Position{Latitude: 1, Longitude: 2, Speed: math.NaN()}},
			wantNil: true,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			rec := Build(p, test.frame, test.boundID)
			if test.wantNil {
				assert.Assert(t, rec == nil)
				return
			}
			assert.Assert(t, rec != nil)
			assert.Equal(t, rec.DeviceID, test.wantID)
			assert.Equal(t, rec.AlarmType, AlarmNormal)
			assert.Equal(t, rec.Protocol, ProtocolGT06)
		})
	}
}

func TestRecordJSON(t *testing.T) {
	deviceTime := time.Date(2024, 1, 1, 12, 12, 0, 0, time.UTC)
	rec := &Record{
		DeviceID:   "8800000001",
		Latitude:   22.5763,
		Longitude:  114.1021,
		Speed:      18.52,
		Heading:    intPtr(90),
		Ignition:   boolPtr(true),
		GPSValid:   true,
		AlarmType:  AlarmNormal,
		Protocol:   ProtocolHT02,
		DeviceTime: deviceTime,
		ServerTime: deviceTime.Add(time.Second),
	}
	data, err := json.Marshal(rec)
	assert.NilError(t, err)
	var out map[string]any
	assert.NilError(t, json.Unmarshal(data, &out))
	assert.Equal(t, out["imei"], "8800000001")
	assert.Equal(t, out["timestamp"], float64(deviceTime.UnixMilli()))
	assert.Equal(t, out["ignition"], true)
	assert.Equal(t, out["gps_valid"], true)
	assert.Equal(t, out["protocol"], "HT02")
	assert.Equal(t, out["alarmType"], "normal")
	assert.Equal(t, out["altitude"], nil)
	_, hasBattery := out["battery_voltage"]
	assert.Assert(t, !hasBattery)
}
