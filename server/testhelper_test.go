package server

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/beingmushfiq/Track-R/parser"
	"github.com/beingmushfiq/Track-R/queue"
	"go.uber.org/zap/zaptest"
	"gotest.tools/v3/assert"
)

type recordingPublisher struct {
	mu       sync.Mutex
	records  []*parser.Record
	statuses []*queue.DeviceStatusEvent
	recordCh chan *parser.Record
	statusCh chan *queue.DeviceStatusEvent
}

var _ queue.Publisher = &recordingPublisher{}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{
		recordCh: make(chan *parser.Record, 64),
		statusCh: make(chan *queue.DeviceStatusEvent, 64),
	}
}

func (p *recordingPublisher) PushGpsData(_ context.Context, rec *parser.Record) error {
	p.mu.Lock()
	p.records = append(p.records, rec)
	p.mu.Unlock()
	select {
	case p.recordCh <- rec:
	default:
	}
	return nil
}

func (p *recordingPublisher) PushDeviceStatus(_ context.Context, ev *queue.DeviceStatusEvent) error {
	p.mu.Lock()
	p.statuses = append(p.statuses, ev)
	p.mu.Unlock()
	select {
	case p.statusCh <- ev:
	default:
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Records() []*parser.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*parser.Record(nil), p.records...)
}

func (p *recordingPublisher) Statuses() []*queue.DeviceStatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*queue.DeviceStatusEvent(nil), p.statuses...)
}

func (p *recordingPublisher) waitRecord(t *testing.T) *parser.Record {
	t.Helper()
	select {
	case rec := <-p.recordCh:
		return rec
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a record")
	}
	return nil
}

func (p *recordingPublisher) waitStatus(t *testing.T) *queue.DeviceStatusEvent {
	t.Helper()
	select {
	case ev := <-p.statusCh:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a status event")
	}
	return nil
}

// fakeConn records writes and never yields data.
type fakeConn struct {
	net.Conn
	mu      sync.Mutex
	written [][]byte
	closed  bool
	remote  net.Addr
}

func newFakeConn() *fakeConn {
	return &fakeConn{remote: &net.TCPAddr{IP: net.IPv4(10, 1, 2, 3), Port: 40001}}
}

func (c *fakeConn) Read([]byte) (int, error) { return 0, io.EOF }

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr { return c.remote }

func (c *fakeConn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

func newTestServer(t *testing.T, idle time.Duration, parsers ...parser.Parser) (*TrackingServer, *recordingPublisher) {
	t.Helper()
	pub := newRecordingPublisher()
	bindings := make([]Binding, 0, len(parsers))
	for _, p := range parsers {
		bindings = append(bindings, Binding{Port: 0, Parser: p})
	}
	ts := NewServer(Config{
		Host:        "127.0.0.1",
		Bindings:    bindings,
		IdleTimeout: idle,
	}, pub, zaptest.NewLogger(t))
	return ts, pub
}

// newTestSession registers a session over a fakeConn without a listener.
func newTestSession(ts *TrackingServer, p parser.Parser) (*Session, *fakeConn) {
	conn := newFakeConn()
	sess := newSession(conn, p, ts.now())
	ts.sessions.Add(sess)
	return sess, conn
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	assert.NilError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeAndReadAck(t *testing.T, conn net.Conn, frame []byte, ackSize int) []byte {
	t.Helper()
	_, err := conn.Write(frame)
	assert.NilError(t, err)
	assert.NilError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	ack := make([]byte, ackSize)
	_, err = io.ReadFull(conn, ack)
	assert.NilError(t, err)
	return ack
}
