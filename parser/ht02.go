package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	ht02Prefix    = "*HQ,"
	ht02End       = "#"
	ht02MinFields = 12
	knotsToKmh    = 1.852
)

// HT02Parser decodes comma separated HT02 sentences:
//
//	*HQ,<id>,<cmd>,HHMMSS,A|V,DDMM.MMMM,N|S,DDDMM.MMMM,E|W,<knots>,<heading>,DDMMYY[,<status hex>]#
type HT02Parser struct {
	now func() time.Time
}

var _ Parser = HT02Parser{}

func NewHT02Parser() HT02Parser {
	return HT02Parser{now: time.Now}
}

// NewHT02ParserWithClock returns a parser whose acknowledgements are stamped
// by now.
func NewHT02ParserWithClock(now func() time.Time) HT02Parser {
	return HT02Parser{now: now}
}

func (HT02Parser) Protocol() Protocol { return ProtocolHT02 }

func (HT02Parser) Validate(rec *Record) bool { return ValidateRecord(rec) }

func (HT02Parser) Parse(buf []byte) (*Frame, error) {
	sentence := strings.TrimSpace(string(buf))
	if !strings.HasPrefix(sentence, ht02Prefix) {
		if strings.HasPrefix(ht02Prefix, sentence) {
			return nil, ErrIncomplete
		}
		return nil, ErrMalformed
	}
	if !strings.HasSuffix(sentence, ht02End) {
		return nil, ErrIncomplete
	}
	body := strings.TrimSuffix(sentence, ht02End)
	fields := strings.Split(body, ",")
	if len(fields) < ht02MinFields {
		return nil, ErrMalformed
	}
	if fields[1] == "" {
		return nil, ErrMalformed
	}

	lat, err := degreesMinutes(fields[5], 2)
	if err != nil {
		return nil, err
	}
	if fields[6] == "S" {
		lat = -lat
	}
	lon, err := degreesMinutes(fields[7], 3)
	if err != nil {
		return nil, err
	}
	if fields[8] == "W" {
		lon = -lon
	}
	knots, err := strconv.ParseFloat(fields[9], 64)
	if err != nil || !finite(knots) || knots < 0 {
		return nil, ErrMalformed
	}
	heading, err := strconv.Atoi(fields[10])
	if err != nil {
		return nil, ErrMalformed
	}
	hms, err := splitTriplet(fields[3])
	if err != nil {
		return nil, err
	}
	dmy, err := splitTriplet(fields[11])
	if err != nil {
		return nil, err
	}

	frame := &Frame{
		Protocol: ProtocolHT02,
		Type:     MessageLocation,
		DeviceID: fields[1],
		Position: &Position{
			Time:      time.Date(2000+dmy[2], time.Month(dmy[1]), dmy[0], hms[0], hms[1], hms[2], 0, time.UTC),
			Latitude:  lat,
			Longitude: lon,
			Speed:     knots * knotsToKmh,
			Heading:   intPtr(heading),
			Valid:     fields[4] == "A",
		},
		Attributes: map[string]any{"command": fields[2]},
		RawData:    hexUpper([]byte(sentence)),
	}
	// the trailing status word is optional and may be sent empty
	if len(fields) > ht02MinFields && fields[12] != "" {
		flags, err := strconv.ParseUint(fields[12], 16, 32)
		if err != nil {
			return nil, ErrMalformed
		}
		frame.Ignition = boolPtr(flags&0x01 != 0)
		frame.Attributes["statusFlags"] = fields[12]
		frame.Attributes["gpsPositioned"] = flags&0x02 != 0
	}
	return frame, nil
}

// Acknowledge answers with the device identifier and the current UTC time.
func (p HT02Parser) Acknowledge(f *Frame) []byte {
	if f == nil || f.DeviceID == "" {
		return nil
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	return []byte(fmt.Sprintf("*HQ,%s,V4,%s,00#", f.DeviceID, now().UTC().Format("150405")))
}

// degreesMinutes converts DDMM.MMMM (degreeDigits=2) or DDDMM.MMMM
// (degreeDigits=3) to decimal degrees.
func degreesMinutes(s string, degreeDigits int) (float64, error) {
	if len(s) <= degreeDigits {
		return 0, ErrMalformed
	}
	deg, err := strconv.Atoi(s[:degreeDigits])
	if err != nil {
		return 0, ErrMalformed
	}
	minutes, err := strconv.ParseFloat(s[degreeDigits:], 64)
	if err != nil {
		return 0, ErrMalformed
	}
	return float64(deg) + minutes/60, nil
}

func splitTriplet(s string) ([3]int, error) {
	var out [3]int
	if len(s) < 6 {
		return out, ErrMalformed
	}
	for i := range out {
		v, err := strconv.Atoi(s[2*i : 2*i+2])
		if err != nil {
			return out, ErrMalformed
		}
		out[i] = v
	}
	return out, nil
}
