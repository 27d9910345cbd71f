package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/beingmushfiq/Track-R/metrics"
	"github.com/beingmushfiq/Track-R/parser"
	"github.com/beingmushfiq/Track-R/queue"
	"go.uber.org/zap"
)

const datagramBufferSize = 64 * 1024

// UDPServer decodes every datagram on its own. It keeps no sessions, so
// frames that carry no device identifier never produce a record.
type UDPServer struct {
	host      string
	bindings  []Binding
	publisher queue.Publisher
	log       *zap.Logger

	mu    sync.Mutex
	conns []*net.UDPConn
	bound []BindingInfo

	quitChan chan Empty
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
}

func NewUDPServer(host string, bindings []Binding, publisher queue.Publisher, logger *zap.Logger) *UDPServer {
	return &UDPServer{
		host:      host,
		bindings:  bindings,
		publisher: publisher,
		log:       logger,
		quitChan:  make(chan Empty),
		now:       time.Now,
	}
}

func (us *UDPServer) Start() error {
	for _, b := range us.bindings {
		addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(us.host, strconv.Itoa(b.Port)))
		if err != nil {
			us.closeConns()
			return fmt.Errorf("resolve udp port %d: %w", b.Port, err)
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			us.closeConns()
			return fmt.Errorf("listen udp %s (%s): %w", addr, b.Parser.Protocol(), err)
		}
		us.mu.Lock()
		us.conns = append(us.conns, conn)
		us.bound = append(us.bound, BindingInfo{
			Transport: "udp",
			Port:      conn.LocalAddr().(*net.UDPAddr).Port,
			Protocol:  b.Parser.Protocol(),
		})
		us.mu.Unlock()

		us.wg.Add(1)
		go us.serve(conn, b.Parser)
		us.log.Info("udp server started",
			zap.String("ListenAddress", conn.LocalAddr().String()),
			zap.String("protocol", string(b.Parser.Protocol())),
		)
	}
	return nil
}

func (us *UDPServer) serve(conn *net.UDPConn, p parser.Parser) {
	defer us.wg.Done()
	buf := make([]byte, datagramBufferSize)
	for {
		size, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-us.quitChan:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			us.log.Error("udp read failed", zap.Error(err))
			continue
		}
		us.handleDatagram(conn, p, buf[:size], addr)
	}
}

func (us *UDPServer) handleDatagram(conn *net.UDPConn, p parser.Parser, data []byte, addr *net.UDPAddr) {
	protocol := string(p.Protocol())
	metrics.Datagrams.WithLabelValues(protocol).Inc()
	log := us.log.With(zap.String("source", addr.String()), zap.String("protocol", protocol))

	start := time.Now()
	frame, err := p.Parse(data)
	metrics.ObserveParseLatency(protocol, start)
	if err != nil {
		metrics.DecodeFailures.WithLabelValues(protocol).Inc()
		log.Debug("datagram dropped", zap.Error(err), zap.Int("size", len(data)))
		return
	}
	metrics.FramesDecoded.WithLabelValues(protocol, string(frame.Type)).Inc()

	if rec := parser.Build(p, frame, ""); rec != nil {
		rec.ServerTime = us.now()
		rec.ConnectionID = addr.String()
		rec.SourceAddress = addr.IP.String()
		rec.SourcePort = addr.Port
		if err := us.publisher.PushGpsData(context.Background(), rec); err != nil {
			log.Warn("queue gps data failed", zap.Error(err))
		}
	}

	if ack := p.Acknowledge(frame); len(ack) > 0 {
		if _, err := conn.WriteToUDP(ack, addr); err != nil {
			log.Error("write acknowledgement failed", zap.Error(err))
		}
	}
}

func (us *UDPServer) Addrs() []net.Addr {
	us.mu.Lock()
	defer us.mu.Unlock()
	addrs := make([]net.Addr, 0, len(us.conns))
	for _, c := range us.conns {
		addrs = append(addrs, c.LocalAddr())
	}
	return addrs
}

func (us *UDPServer) Bindings() []BindingInfo {
	us.mu.Lock()
	defer us.mu.Unlock()
	return append([]BindingInfo(nil), us.bound...)
}

func (us *UDPServer) closeConns() {
	us.mu.Lock()
	defer us.mu.Unlock()
	for _, c := range us.conns {
		if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			us.log.Error("close udp socket failed", zap.Error(err))
		}
	}
}

func (us *UDPServer) Stop() {
	us.stopOnce.Do(func() {
		close(us.quitChan)
		us.closeConns()
		us.wg.Wait()
		us.log.Info("stop udp server")
	})
}
