package pushserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/beingmushfiq/Track-R/parser"
	"github.com/go-playground/validator/v10"
)

const (
	msgIMEIRequired        = "IMEI is required"
	msgCoordinatesRequired = "Latitude and longitude are required"
	msgInvalidLatitude     = "Invalid latitude"
	msgInvalidLongitude    = "Invalid longitude"
	msgInvalidAlarmType    = "Invalid alarm type"
)

// PushRequest is one position submitted over HTTP.
type PushRequest struct {
	IMEI           string         `json:"imei" validate:"required"`
	Latitude       *float64       `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude      *float64       `json:"longitude" validate:"required,gte=-180,lte=180"`
	Altitude       *float64       `json:"altitude"`
	Speed          *float64       `json:"speed" validate:"omitempty,gte=0"`
	Heading        *int           `json:"heading"`
	Satellites     *int           `json:"satellites"`
	HDOP           *float64       `json:"hdop"`
	Ignition       *bool          `json:"ignition"`
	GPSValid       *bool          `json:"gps_valid"`
	BatteryVoltage *float64       `json:"battery_voltage"`
	AlarmType      string         `json:"alarmType" validate:"omitempty,oneof=normal sos power_cut vibration enter_fence exit_fence overspeed moving unknown"`
	Timestamp      *DeviceTime    `json:"timestamp"`
	Attributes     map[string]any `json:"attributes"`
}

// DeviceTime accepts unix seconds, unix milliseconds or an RFC 3339 string.
type DeviceTime struct {
	time.Time
}

func (t *DeviceTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		t.Time = parsed.UTC()
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, err := n.Float64()
	if err != nil {
		return err
	}
	if v > 1e11 {
		t.Time = time.UnixMilli(int64(v)).UTC()
	} else {
		t.Time = time.Unix(int64(v), 0).UTC()
	}
	return nil
}

// validationMessage turns the first validation failure into the message
// reported to the client. Missing fields are reported before range errors.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	for _, fe := range verrs {
		if fe.Field() == "IMEI" {
			return msgIMEIRequired
		}
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return msgCoordinatesRequired
		}
	}
	switch verrs[0].Field() {
	case "Latitude":
		return msgInvalidLatitude
	case "Longitude":
		return msgInvalidLongitude
	case "AlarmType":
		return msgInvalidAlarmType
	}
	return "Invalid " + verrs[0].Field()
}

// toRecord converts a validated request.
func (r *PushRequest) toRecord(protocol parser.Protocol, now time.Time, sourceIP string) *parser.Record {
	rec := &parser.Record{
		DeviceID:       r.IMEI,
		Latitude:       *r.Latitude,
		Longitude:      *r.Longitude,
		Altitude:       r.Altitude,
		Heading:        r.Heading,
		HDOP:           r.HDOP,
		Ignition:       r.Ignition,
		GPSValid:       true,
		BatteryVoltage: r.BatteryVoltage,
		AlarmType:      parser.AlarmType(r.AlarmType),
		Protocol:       protocol,
		DeviceTime:     now,
		ServerTime:     now,
		SourceAddress:  sourceIP,
		Attributes:     r.Attributes,
	}
	if r.Speed != nil {
		rec.Speed = *r.Speed
	}
	if r.Satellites != nil {
		rec.Satellites = *r.Satellites
	}
	if r.GPSValid != nil {
		rec.GPSValid = *r.GPSValid
	}
	if rec.AlarmType == "" {
		rec.AlarmType = parser.AlarmNormal
	}
	if r.Timestamp != nil && !r.Timestamp.IsZero() {
		rec.DeviceTime = r.Timestamp.Time
	}
	if !parser.ValidateRecord(rec) {
		return nil
	}
	return rec
}
