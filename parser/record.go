package parser

import (
	"encoding/json"
	"time"
)

type AlarmType string

const (
	AlarmNormal     AlarmType = "normal"
	AlarmSOS        AlarmType = "sos"
	AlarmPowerCut   AlarmType = "power_cut"
	AlarmVibration  AlarmType = "vibration"
	AlarmEnterFence AlarmType = "enter_fence"
	AlarmExitFence  AlarmType = "exit_fence"
	AlarmOverspeed  AlarmType = "overspeed"
	AlarmMoving     AlarmType = "moving"
	AlarmUnknown    AlarmType = "unknown"
)

// Position is the GPS part of a frame.
type Position struct {
	Time       time.Time
	Latitude   float64
	Longitude  float64
	Altitude   *float64
	Speed      float64
	Heading    *int
	Satellites int
	HDOP       *float64
	Valid      bool
}

// Record is the normalized position sample handed to the downstream queue.
type Record struct {
	DeviceID       string         `json:"imei"`
	Latitude       float64        `json:"latitude"`
	Longitude      float64        `json:"longitude"`
	Altitude       *float64       `json:"altitude"`
	Speed          float64        `json:"speed"`
	Heading        *int           `json:"heading"`
	Satellites     int            `json:"satellites"`
	HDOP           *float64       `json:"hdop"`
	Ignition       *bool          `json:"ignition"`
	GPSValid       bool           `json:"gps_valid"`
	BatteryVoltage *float64       `json:"battery_voltage,omitempty"`
	AlarmType      AlarmType      `json:"alarmType"`
	Protocol       Protocol       `json:"protocol"`
	Sequence       uint16         `json:"serialNumber"`
	DeviceTime     time.Time      `json:"gpsTime"`
	ServerTime     time.Time      `json:"serverTime"`
	RawData        string         `json:"rawData,omitempty"`
	ConnectionID   string         `json:"connectionId,omitempty"`
	SourceAddress  string         `json:"sourceAddress,omitempty"`
	SourcePort     int            `json:"sourcePort,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

// MarshalJSON adds the device time as unix milliseconds under "timestamp".
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	var ts int64
	if !r.DeviceTime.IsZero() {
		ts = r.DeviceTime.UnixMilli()
	}
	return json.Marshal(struct {
		plain
		Timestamp int64 `json:"timestamp"`
	}{plain: plain(r), Timestamp: ts})
}

func boolPtr(b bool) *bool { return &b }

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }
