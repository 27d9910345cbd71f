package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/beingmushfiq/Track-R/parser"
	"github.com/beingmushfiq/Track-R/queue"
	proxyproto "github.com/pires/go-proxyproto"
	"go.uber.org/zap"
)

type Empty struct{}

const (
	readBufferSize = 2048
	maxBufferSize  = 4096

	DefaultIdleTimeout = 5 * time.Minute
)

// Binding ties a listening port to the decoder used for everything received
// on it.
type Binding struct {
	Port   int
	Parser parser.Parser
}

type BindingInfo struct {
	Transport string          `json:"transport"`
	Port      int             `json:"port"`
	Protocol  parser.Protocol `json:"protocol"`
}

type Config struct {
	Host          string
	Bindings      []Binding
	IdleTimeout   time.Duration
	ProxyProtocol bool
}

type Stats struct {
	ActiveConnections int           `json:"activeConnections"`
	Bindings          []BindingInfo `json:"bindings"`
	Sessions          []SessionInfo `json:"sessions"`
}

// StatsFunc adapts a function to a stats source.
type StatsFunc func() Stats

func (f StatsFunc) Stats() Stats { return f() }

type TcpServerInterface interface {
	Start() error
	Stop()
	// Errors reports failures the process cannot recover from.
	Errors() <-chan error
	Stats() Stats
}

type TrackingServer struct {
	cfg       Config
	publisher queue.Publisher
	log       *zap.Logger

	mu        sync.Mutex
	listeners []net.Listener
	bound     []BindingInfo

	sessions *Registry
	quitChan chan Empty
	stopOnce sync.Once
	wg       sync.WaitGroup
	errChan  chan error
	now      func() time.Time
}

var (
	_ TcpServerInterface = &TrackingServer{}
)

func NewServer(cfg Config, publisher queue.Publisher, logger *zap.Logger) *TrackingServer {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &TrackingServer{
		cfg:       cfg,
		publisher: publisher,
		log:       logger,
		sessions:  NewRegistry(),
		quitChan:  make(chan Empty),
		errChan:   make(chan error, 1),
		now:       time.Now,
	}
}

// Start binds every configured port and begins accepting connections. If any
// port cannot be bound, the ones already bound are released.
func (ts *TrackingServer) Start() error {
	for _, b := range ts.cfg.Bindings {
		addr := net.JoinHostPort(ts.cfg.Host, strconv.Itoa(b.Port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			ts.closeListeners()
			return fmt.Errorf("listen %s (%s): %w", addr, b.Parser.Protocol(), err)
		}
		if ts.cfg.ProxyProtocol {
			ln = &proxyproto.Listener{Listener: ln}
		}
		ts.mu.Lock()
		ts.listeners = append(ts.listeners, ln)
		ts.bound = append(ts.bound, BindingInfo{
			Transport: "tcp",
			Port:      ln.Addr().(*net.TCPAddr).Port,
			Protocol:  b.Parser.Protocol(),
		})
		ts.mu.Unlock()

		ts.wg.Add(1)
		go ts.acceptConnections(ln, b.Parser)
		ts.log.Info("tcp server started",
			zap.String("ListenAddress", ln.Addr().String()),
			zap.String("protocol", string(b.Parser.Protocol())),
		)
	}
	return nil
}

func (ts *TrackingServer) acceptConnections(ln net.Listener, p parser.Parser) {
	defer ts.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ts.quitChan:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			ts.log.Error("accept connection error", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ts.wg.Add(1)
		go ts.HandleConnection(conn, p)
	}
}

// Addrs returns the bound listener addresses in binding order.
func (ts *TrackingServer) Addrs() []net.Addr {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	addrs := make([]net.Addr, 0, len(ts.listeners))
	for _, ln := range ts.listeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

func (ts *TrackingServer) Errors() <-chan error {
	return ts.errChan
}

func (ts *TrackingServer) Stats() Stats {
	ts.mu.Lock()
	bound := append([]BindingInfo(nil), ts.bound...)
	ts.mu.Unlock()
	sessions := ts.sessions.Snapshot()
	return Stats{
		ActiveConnections: len(sessions),
		Bindings:          bound,
		Sessions:          sessions,
	}
}

func (ts *TrackingServer) Sessions() *Registry {
	return ts.sessions
}

func (ts *TrackingServer) fatal(err error) {
	select {
	case ts.errChan <- err:
	default:
	}
}

func (ts *TrackingServer) closeListeners() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, ln := range ts.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			ts.log.Error("close listener failed", zap.Error(err))
		}
	}
}

// Stop closes the listeners and every live session, then waits for the
// connection handlers to emit their offline events and exit.
func (ts *TrackingServer) Stop() {
	ts.stopOnce.Do(func() {
		close(ts.quitChan)
		ts.closeListeners()
		for _, s := range ts.sessions.All() {
			_ = s.conn.Close()
		}
		ts.wg.Wait()
		ts.log.Info("stop server")
	})
}
