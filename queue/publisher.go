package queue

import (
	"context"
	"errors"
	"time"

	"github.com/beingmushfiq/Track-R/parser"
)

const (
	DefaultGpsQueue    = "gps:data:incoming"
	DefaultStatusQueue = "device:status:updates"
)

var (
	ErrQueueFull = errors.New("queue buffer full")
	ErrClosed    = errors.New("queue closed")
)

type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
)

// DeviceStatusEvent reports a device binding to or leaving a connection.
type DeviceStatusEvent struct {
	DeviceID     string          `json:"imei"`
	Status       DeviceStatus    `json:"status"`
	ConnectionID string          `json:"connectionId"`
	Protocol     parser.Protocol `json:"protocol,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

//go:generate mockgen -source=$GOFILE -destination=mock_queue/publisher.go -package=mock_queue
type Publisher interface {
	PushGpsData(ctx context.Context, rec *parser.Record) error
	PushDeviceStatus(ctx context.Context, ev *DeviceStatusEvent) error
	Close() error
}
