package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	FormatASCII  = "ascii"
	FormatBinary = "binary"

	defaultStringLength = 10
)

type Field struct {
	Name   string `mapstructure:"name" json:"name"`
	Type   string `mapstructure:"type" json:"type"`
	Length int    `mapstructure:"length" json:"length,omitempty"`
}

// GenericConfig describes a protocol that does not warrant its own decoder.
// An ASCII layout is split on Delimiter after stripping the markers; a binary
// layout is read field by field, big-endian, from the start of the buffer.
type GenericConfig struct {
	Format          string  `mapstructure:"format"`
	Delimiter       string  `mapstructure:"delimiter"`
	StartMarker     string  `mapstructure:"start_marker"`
	EndMarker       string  `mapstructure:"end_marker"`
	Fields          []Field `mapstructure:"fields"`
	Acknowledgement string  `mapstructure:"acknowledgement"`
}

func DefaultGenericConfig() GenericConfig {
	return GenericConfig{
		Format:    FormatASCII,
		Delimiter: ",",
		Fields: []Field{
			{Name: "imei", Type: "string"},
			{Name: "lat", Type: "float"},
			{Name: "lon", Type: "float"},
			{Name: "speed", Type: "float"},
			{Name: "heading", Type: "int"},
			{Name: "timestamp", Type: "int"},
		},
	}
}

var (
	asciiTypes  = map[string]bool{"int": true, "integer": true, "float": true, "double": true, "number": true, "bool": true, "boolean": true, "hex": true, "string": true, "": true}
	binarySizes = map[string]int{"uint8": 1, "int8": 1, "uint16": 2, "int16": 2, "uint32": 4, "int32": 4, "float": 4, "double": 8}
)

type GenericParser struct {
	cfg GenericConfig
}

var _ Parser = (*GenericParser)(nil)

func NewGenericParser(cfg GenericConfig) (*GenericParser, error) {
	switch cfg.Format {
	case "":
		cfg.Format = FormatASCII
	case FormatASCII, FormatBinary:
	default:
		return nil, fmt.Errorf("generic parser: unknown format %q", cfg.Format)
	}
	if cfg.Format == FormatASCII && cfg.Delimiter == "" {
		cfg.Delimiter = ","
	}
	fields := make([]Field, len(cfg.Fields))
	for i, f := range cfg.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("generic parser: field %d has no name", i)
		}
		f.Type = strings.ToLower(f.Type)
		if cfg.Format == FormatASCII && !asciiTypes[f.Type] {
			return nil, fmt.Errorf("generic parser: field %q: unknown ascii type %q", f.Name, f.Type)
		}
		if cfg.Format == FormatBinary {
			if f.Type == "string" {
				if f.Length <= 0 {
					f.Length = defaultStringLength
				}
			} else if size, ok := binarySizes[f.Type]; ok {
				f.Length = size
			} else {
				return nil, fmt.Errorf("generic parser: field %q: unknown binary type %q", f.Name, f.Type)
			}
		}
		fields[i] = f
	}
	cfg.Fields = fields
	return &GenericParser{cfg: cfg}, nil
}

func (*GenericParser) Protocol() Protocol { return ProtocolGeneric }

func (*GenericParser) Validate(rec *Record) bool { return ValidateRecord(rec) }

func (p *GenericParser) Parse(buf []byte) (*Frame, error) {
	var (
		values map[string]any
		raw    []byte
		err    error
	)
	if p.cfg.Format == FormatBinary {
		values, raw, err = p.parseBinary(buf)
	} else {
		values, raw, err = p.parseASCII(buf)
	}
	if err != nil {
		return nil, err
	}
	frame := &Frame{
		Protocol:   ProtocolGeneric,
		Type:       MessageData,
		Attributes: values,
		RawData:    hexUpper(raw),
	}
	if err := applyWellKnown(frame, values); err != nil {
		return nil, err
	}
	return frame, nil
}

func (p *GenericParser) Acknowledge(f *Frame) []byte {
	if f == nil || p.cfg.Acknowledgement == "" {
		return nil
	}
	return []byte(strings.ReplaceAll(p.cfg.Acknowledgement, "{id}", f.DeviceID))
}

func (p *GenericParser) parseASCII(buf []byte) (map[string]any, []byte, error) {
	text := strings.TrimSpace(string(buf))
	if text == "" {
		return nil, nil, ErrIncomplete
	}
	if m := p.cfg.StartMarker; m != "" && !strings.HasPrefix(text, m) {
		if strings.HasPrefix(m, text) {
			return nil, nil, ErrIncomplete
		}
		return nil, nil, ErrMalformed
	}
	if m := p.cfg.EndMarker; m != "" && !strings.HasSuffix(text, m) {
		return nil, nil, ErrIncomplete
	}
	body := strings.TrimPrefix(text, p.cfg.StartMarker)
	body = strings.TrimSuffix(body, p.cfg.EndMarker)
	parts := strings.Split(body, p.cfg.Delimiter)

	values := make(map[string]any, len(p.cfg.Fields))
	for i, f := range p.cfg.Fields {
		if i >= len(parts) {
			break
		}
		v, err := convertASCII(strings.TrimSpace(parts[i]), f.Type)
		if err != nil {
			return nil, nil, ErrMalformed
		}
		values[f.Name] = v
	}
	return values, []byte(text), nil
}

func convertASCII(s, typ string) (any, error) {
	switch typ {
	case "int", "integer":
		return strconv.ParseInt(s, 10, 64)
	case "float", "double", "number":
		return strconv.ParseFloat(s, 64)
	case "bool", "boolean":
		return s == "1" || strings.EqualFold(s, "true"), nil
	case "hex":
		return strconv.ParseInt(s, 16, 64)
	default:
		return s, nil
	}
}

func (p *GenericParser) parseBinary(buf []byte) (map[string]any, []byte, error) {
	size := 0
	for _, f := range p.cfg.Fields {
		size += f.Length
	}
	if size == 0 {
		return nil, nil, ErrMalformed
	}
	if len(buf) < size {
		return nil, nil, ErrIncomplete
	}
	values := make(map[string]any, len(p.cfg.Fields))
	offset := 0
	for _, f := range p.cfg.Fields {
		v, err := readBinary(buf[offset:offset+f.Length], f.Type)
		if err != nil {
			return nil, nil, ErrMalformed
		}
		values[f.Name] = v
		offset += f.Length
	}
	return values, buf[:size], nil
}

func readBinary(data []byte, typ string) (any, error) {
	switch typ {
	case "uint8":
		v, err := streamToNumber[uint8](data)
		return int64(v), err
	case "int8":
		v, err := streamToNumber[int8](data)
		return int64(v), err
	case "uint16":
		v, err := streamToNumber[uint16](data)
		return int64(v), err
	case "int16":
		v, err := streamToNumber[int16](data)
		return int64(v), err
	case "uint32":
		v, err := streamToNumber[uint32](data)
		return int64(v), err
	case "int32":
		v, err := streamToNumber[int32](data)
		return int64(v), err
	case "float":
		v, err := streamToNumber[float32](data)
		return float64(v), err
	case "double":
		return streamToNumber[float64](data)
	default:
		return strings.TrimSpace(strings.TrimRight(string(data), "\x00")), nil
	}
}

// applyWellKnown maps conventional field names onto the frame.
func applyWellKnown(frame *Frame, values map[string]any) error {
	for _, key := range []string{"imei", "deviceId", "device_id", "id"} {
		if v, ok := values[key]; ok {
			switch id := v.(type) {
			case string:
				frame.DeviceID = id
			case int64:
				frame.DeviceID = strconv.FormatInt(id, 10)
			}
			if frame.DeviceID != "" {
				break
			}
		}
	}
	if v, ok := lookupBool(values, "ignition", "acc"); ok {
		frame.Ignition = boolPtr(v)
	}

	lat, okLat := lookupFloat(values, "lat", "latitude")
	lon, okLon := lookupFloat(values, "lon", "lng", "longitude")
	if !okLat || !okLon {
		return nil
	}
	pos := &Position{Latitude: lat, Longitude: lon, Valid: true}
	if v, ok := lookupFloat(values, "speed", "spd"); ok {
		if v < 0 {
			return ErrMalformed
		}
		pos.Speed = v
	}
	if v, ok := lookupFloat(values, "heading", "dir", "course"); ok {
		pos.Heading = intPtr(int(v))
	}
	if v, ok := lookupFloat(values, "altitude", "alt"); ok {
		pos.Altitude = floatPtr(v)
	}
	if v, ok := lookupFloat(values, "satellites", "sats"); ok {
		pos.Satellites = int(v)
	}
	if v, ok := lookupFloat(values, "hdop"); ok {
		pos.HDOP = floatPtr(v)
	}
	if v, ok := lookupBool(values, "gps_valid", "valid"); ok {
		pos.Valid = v
	}
	if v, ok := lookupFloat(values, "timestamp", "time"); ok && v > 0 {
		ts := int64(v)
		if ts > 1e11 {
			pos.Time = time.UnixMilli(ts).UTC()
		} else {
			pos.Time = time.Unix(ts, 0).UTC()
		}
	}
	frame.Position = pos
	return nil
}

func lookupFloat(values map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := values[key].(type) {
		case float64:
			if finite(v) {
				return v, true
			}
		case int64:
			return float64(v), true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil && finite(f) {
				return f, true
			}
		}
	}
	return 0, false
}

func lookupBool(values map[string]any, keys ...string) (bool, bool) {
	for _, key := range keys {
		switch v := values[key].(type) {
		case bool:
			return v, true
		case int64:
			return v != 0, true
		case float64:
			return v != 0, true
		}
	}
	return false, false
}
