package main

import (
	"context"
	"fmt"
	"time"

	"github.com/beingmushfiq/Track-R/envconfig"
	"github.com/beingmushfiq/Track-R/pushserver"
	"github.com/beingmushfiq/Track-R/queue"
	"github.com/beingmushfiq/Track-R/server"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type udpListener interface {
	Start() error
	Stop()
	Bindings() []server.BindingInfo
}

type httpListener interface {
	Start() error
	Shutdown(ctx context.Context) error
	Errors() <-chan error
}

var (
	_ udpListener  = &server.UDPServer{}
	_ httpListener = &pushserver.PushServer{}
)

type service struct {
	cfg      *envconfig.DeviceServiceEnvConfig
	log      *zap.Logger
	dispatch queue.Publisher
	tcp      server.TcpServerInterface
	udp      udpListener
	http     httpListener
}

// newService connects the queue backend and binds every listener. On failure
// whatever was already started is torn down again.
func newService(ctx context.Context, cfg *envconfig.DeviceServiceEnvConfig, logger *zap.Logger) (*service, error) {
	generic, err := envconfig.LoadGenericConfig(cfg.GenericParserConfig)
	if err != nil {
		return nil, err
	}
	tcpBindings, err := cfg.TCPBindings(generic)
	if err != nil {
		return nil, err
	}
	udpBindings, err := cfg.UDPBindings(generic)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("queue connected", zap.String("backend", cfg.QueueBackend))

	svc := &service{
		cfg:      cfg,
		log:      logger,
		dispatch: queue.NewAsync(backend, cfg.QueueBufferSize, logger.Named("queue")),
	}
	svc.tcp = server.NewServer(server.Config{
		Host:          cfg.Host,
		Bindings:      tcpBindings,
		IdleTimeout:   cfg.ConnectionTimeout,
		ProxyProtocol: cfg.ProxyProtocol,
	}, svc.dispatch, logger.Named("tcp"))
	svc.udp = server.NewUDPServer(cfg.Host, udpBindings, svc.dispatch, logger.Named("udp"))
	// http pushes go straight to the backend
	svc.http = pushserver.NewPushServer(pushserver.Config{Addr: cfg.HTTPAddr()},
		backend, server.StatsFunc(svc.stats), logger.Named("http"))

	if err := svc.tcp.Start(); err != nil {
		svc.shutdown()
		return nil, err
	}
	if err := svc.udp.Start(); err != nil {
		svc.shutdown()
		return nil, err
	}
	if err := svc.http.Start(); err != nil {
		svc.shutdown()
		return nil, fmt.Errorf("http push server: %w", err)
	}
	return svc, nil
}

func newBackend(ctx context.Context, cfg *envconfig.DeviceServiceEnvConfig) (queue.Publisher, error) {
	if cfg.QueueBackend == envconfig.BackendNats {
		return queue.NewNatsPublisher(cfg.NatsConn, cfg.GpsQueue, cfg.StatusQueue)
	}
	return queue.NewRedisPublisher(ctx, cfg.Redis())
}

func (s *service) stats() server.Stats {
	st := s.tcp.Stats()
	st.Bindings = append(st.Bindings, s.udp.Bindings()...)
	return st
}

// run blocks until a signal arrives or a component reports a fatal error.
func (s *service) run(ctx context.Context) error {
	sigs := waitForSignal(ctx)
	ticker := time.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()

	var fatal error
loop:
	for {
		select {
		case sig := <-sigs:
			s.log.Info("received signal", zap.String("signal", sig.String()))
			break loop
		case <-ctx.Done():
			break loop
		case err := <-s.tcp.Errors():
			fatal = err
			break loop
		case err := <-s.http.Errors():
			fatal = err
			break loop
		case <-ticker.C:
			st := s.stats()
			s.log.Info("server stats",
				zap.Int("activeConnections", st.ActiveConnections),
				zap.Int("bindings", len(st.Bindings)),
			)
		}
	}
	if fatal != nil {
		s.log.Error("fatal error, shutting down", zap.Error(fatal))
	}
	s.shutdown()
	return fatal
}

// shutdown stops intake, then the sessions, then drains the queue. Offline
// events of closed sessions are queued before the drain.
func (s *service) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			s.log.Warn("http shutdown", zap.Error(err))
		}
	}
	if s.udp != nil {
		s.udp.Stop()
	}
	if s.tcp != nil {
		s.tcp.Stop()
	}
	if err := s.dispatch.Close(); err != nil {
		s.log.Warn("close queue", zap.Error(err))
	}
	s.log.Info("service stopped")
}
