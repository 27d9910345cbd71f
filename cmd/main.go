package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/beingmushfiq/Track-R/envconfig"
	"github.com/beingmushfiq/Track-R/parser"
	"github.com/beingmushfiq/Track-R/simulator"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	HostAddress       string
	HTTPPort          int
	QueueBackend      string
	NatsAddr          string
	GenericConfigPath string
	LogLevel          string

	SimulatorHostAddr string
	TrackerIMEI       string
	TrackerProtocol   string
	SendInterval      time.Duration
)

func main() {
	randomIMEI := generateRandomIMEI()
	app := &cli.App{
		Name:  "trackr",
		Usage: "gps tracker ingestion server",
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "starts tcp, udp and http ingestion servers",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "host",
						Usage:       "host address",
						Value:       "0.0.0.0",
						DefaultText: "0.0.0.0",
						Destination: &HostAddress,
						EnvVars:     []string{"HOST"},
					},
					&cli.IntFlag{
						Name:        "port",
						Usage:       "http push server port number",
						Value:       3000,
						DefaultText: "3000",
						Aliases:     []string{"p"},
						Destination: &HTTPPort,
						EnvVars:     []string{"PORT"},
					},
					&cli.StringFlag{
						Name:        "queue",
						Usage:       "queue backend, redis or nats",
						Value:       envconfig.BackendRedis,
						DefaultText: envconfig.BackendRedis,
						Destination: &QueueBackend,
						EnvVars:     []string{"QUEUE_BACKEND"},
					},
					&cli.StringFlag{
						Name:        "nats",
						Usage:       "nats Address",
						Value:       "nats://127.0.0.1:4222",
						DefaultText: "nats://127.0.0.1:4222",
						Destination: &NatsAddr,
						EnvVars:     []string{"NATS"},
					},
					&cli.StringFlag{
						Name:        "generic-config",
						Usage:       "generic decoder definition file (yaml, json or toml)",
						Destination: &GenericConfigPath,
						EnvVars:     []string{"GENERIC_PARSER_CONFIG"},
					},
					&cli.StringFlag{
						Name:        "log-level",
						Usage:       "debug, info, warn or error",
						Value:       "info",
						DefaultText: "info",
						Destination: &LogLevel,
						EnvVars:     []string{"LOG_LEVEL"},
					},
				},
				Action: func(ctx *cli.Context) error {
					cfg, err := envconfig.ReadDeviceServiceEnv()
					if err != nil {
						return err
					}
					cfg.Host = HostAddress
					cfg.HTTPPort = HTTPPort
					cfg.QueueBackend = QueueBackend
					cfg.NatsConn = NatsAddr
					cfg.GenericParserConfig = GenericConfigPath
					cfg.LogLevel = LogLevel
					if err := cfg.Validate(); err != nil {
						return err
					}

					logger, err := newLogger(cfg.LogLevel)
					if err != nil {
						return err
					}
					defer logger.Sync()

					svc, err := newService(ctx.Context, cfg, logger)
					if err != nil {
						logger.Error("failed to start service", zap.Error(err))
						return err
					}
					return svc.run(ctx.Context)
				},
			},
			{
				Name:  "simulator",
				Usage: "starts tracker simulator",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "host",
						Usage:       "server address to connect to, host:port",
						Destination: &SimulatorHostAddr,
						Required:    true,
					},
					&cli.StringFlag{
						Name:        "imei",
						Usage:       "device imei",
						Value:       randomIMEI,
						DefaultText: randomIMEI,
						Destination: &TrackerIMEI,
						Required:    false,
					},
					&cli.StringFlag{
						Name:        "protocol",
						Usage:       "GT06, Concox or HT02",
						Value:       string(parser.ProtocolGT06),
						DefaultText: string(parser.ProtocolGT06),
						Destination: &TrackerProtocol,
					},
					&cli.DurationFlag{
						Name:        "interval",
						Usage:       "delay between positions",
						Value:       3 * time.Second,
						DefaultText: "3s",
						Destination: &SendInterval,
					},
				},
				Action: func(ctx *cli.Context) error {
					logger, err := zap.NewProduction()
					if err != nil {
						return err
					}
					defer logger.Sync()
					tracker, err := simulator.NewTrackerDevice(SimulatorHostAddr, TrackerIMEI,
						parser.Protocol(TrackerProtocol), logger.Named("simulator"),
						simulator.WithInterval(SendInterval))
					if err != nil {
						return err
					}
					if e := tracker.Connect(); e != nil {
						return e
					}

					sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
					defer stop()
					return tracker.SendRandomPoints(sigCtx)
				},
			},
		},
	}

	if e := app.Run(os.Args); e != nil {
		log.Printf("failed to run app: %v", e)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return cfg.Build()
}

func generateRandomIMEI() string {
	randomizer := rand.New(rand.NewSource(time.Now().UnixNano()))
	imei := "35"
	for i := 0; i < 13; i++ {
		digit := randomizer.Intn(10)
		imei += strconv.Itoa(digit)
	}
	return imei
}

func waitForSignal(ctx context.Context) <-chan os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		signal.Stop(sigs)
	}()
	return sigs
}
