package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/beingmushfiq/Track-R/parser"
	"go.uber.org/zap"
)

// TrackerDevice emulates a single tracker speaking GT06, Concox or HT02 over
// TCP.
type TrackerDevice struct {
	serverAddr, imei string
	protocol         parser.Protocol
	conn             net.Conn
	seq              uint16
	rnd              *rand.Rand
	point            Point
	interval         time.Duration
	stopOnce         sync.Once
	log              *zap.Logger
}

type TrackerInterface interface {
	Connect() error
	Stop()
	Login() error
	SendPoint(p Point) error
	SendRandomPoints(ctx context.Context) error
}

var (
	_ TrackerInterface = &TrackerDevice{}
)

type Option func(*TrackerDevice)

// WithInterval sets the delay between two positions.
func WithInterval(d time.Duration) Option {
	return func(td *TrackerDevice) { td.interval = d }
}

// WithStart sets where the random walk begins.
func WithStart(lat, lon float64) Option {
	return func(td *TrackerDevice) {
		td.point.Latitude = lat
		td.point.Longitude = lon
	}
}

func WithSeed(seed int64) Option {
	return func(td *TrackerDevice) { td.rnd = rand.New(rand.NewSource(seed)) }
}

func NewTrackerDevice(serverAddr, imei string, protocol parser.Protocol, logger *zap.Logger, opts ...Option) (*TrackerDevice, error) {
	switch protocol {
	case parser.ProtocolGT06, parser.ProtocolConcox, parser.ProtocolHT02:
	default:
		return nil, fmt.Errorf("simulator: protocol %q not supported", protocol)
	}
	td := &TrackerDevice{
		serverAddr: serverAddr,
		imei:       imei,
		protocol:   protocol,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		point:      Point{Latitude: 23.8103, Longitude: 90.4125, Valid: true, Satellites: 9},
		interval:   3 * time.Second,
		log:        logger.With(zap.String("imei", imei), zap.String("protocol", string(protocol))),
	}
	for _, opt := range opts {
		opt(td)
	}
	return td, nil
}

func (td *TrackerDevice) Connect() error {
	conn, err := net.DialTimeout("tcp", td.serverAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to dial server: %w", err)
	}
	td.conn = conn
	td.log.Info("connected", zap.String("server", td.serverAddr))
	return nil
}

func (td *TrackerDevice) Stop() {
	td.stopOnce.Do(func() {
		if td.conn != nil {
			_ = td.conn.Close()
		}
		td.log.Info("stop tracker simulator")
	})
}

func (td *TrackerDevice) nextSeq() uint16 {
	td.seq++
	return td.seq
}
