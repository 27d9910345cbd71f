package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beingmushfiq/Track-R/parser"
	"github.com/nats-io/nats.go"
)

const flushTimeout = 5 * time.Second

// NatsPublisher publishes the same JSON documents as RedisPublisher on NATS
// subjects named after the queues.
type NatsPublisher struct {
	conn          *nats.Conn
	gpsSubject    string
	statusSubject string
}

var _ Publisher = &NatsPublisher{}

func NewNatsPublisher(url, gpsSubject, statusSubject string, opts ...nats.Option) (*NatsPublisher, error) {
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	if gpsSubject == "" {
		gpsSubject = DefaultGpsQueue
	}
	if statusSubject == "" {
		statusSubject = DefaultStatusQueue
	}
	return &NatsPublisher{
		conn:          conn,
		gpsSubject:    gpsSubject,
		statusSubject: statusSubject,
	}, nil
}

func (p *NatsPublisher) PushGpsData(ctx context.Context, rec *parser.Record) error {
	return p.publish(ctx, p.gpsSubject, rec)
}

func (p *NatsPublisher) PushDeviceStatus(ctx context.Context, ev *DeviceStatusEvent) error {
	return p.publish(ctx, p.statusSubject, ev)
}

func (p *NatsPublisher) publish(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s item: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close waits until the server has received every published message, then
// closes the connection.
func (p *NatsPublisher) Close() error {
	defer p.conn.Close()
	if err := p.conn.FlushTimeout(flushTimeout); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}
