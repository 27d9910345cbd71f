package envconfig

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/beingmushfiq/Track-R/parser"
	"github.com/beingmushfiq/Track-R/queue"
	"github.com/beingmushfiq/Track-R/server"
	"github.com/caarlos0/env/v6"
	"github.com/spf13/viper"
)

const (
	BackendRedis = "redis"
	BackendNats  = "nats"
)

// DeviceServiceEnvConfig holds the ingestion tier settings. A port of 0
// leaves that listener disabled.
type DeviceServiceEnvConfig struct {
	Host     string `env:"HOST" envDefault:"0.0.0.0"`
	HTTPPort int    `env:"PORT" envDefault:"3000"`

	TCPPortHT02    int `env:"TCP_PORT_HT02" envDefault:"5000"`
	TCPPortGT06    int `env:"TCP_PORT_GT06" envDefault:"5001"`
	TCPPortConcox  int `env:"TCP_PORT_CONCOX" envDefault:"5002"`
	TCPPortGeneric int `env:"TCP_PORT_GENERIC" envDefault:"5005"`
	UDPPortHT02    int `env:"UDP_PORT_HT02" envDefault:"0"`
	UDPPortGT06    int `env:"UDP_PORT_GT06" envDefault:"0"`
	UDPPortConcox  int `env:"UDP_PORT_CONCOX" envDefault:"0"`
	UDPPortGeneric int `env:"UDP_PORT_GENERIC" envDefault:"6001"`

	ConnectionTimeout time.Duration `env:"CONNECTION_TIMEOUT" envDefault:"5m"`
	ProxyProtocol     bool          `env:"TCP_PROXY_PROTOCOL" envDefault:"false"`

	QueueBackend    string `env:"QUEUE_BACKEND" envDefault:"redis"`
	RedisHost       string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort       int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	NatsConn        string `env:"NATS" envDefault:"nats://127.0.0.1:4222"`
	GpsQueue        string `env:"QUEUE_GPS_DATA" envDefault:"gps:data:incoming"`
	StatusQueue     string `env:"QUEUE_DEVICE_STATUS" envDefault:"device:status:updates"`
	QueueBufferSize int    `env:"QUEUE_BUFFER_SIZE" envDefault:"1024"`

	GenericParserConfig string        `env:"GENERIC_PARSER_CONFIG"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	StatsInterval       time.Duration `env:"STATS_INTERVAL" envDefault:"5m"`
}

func ReadDeviceServiceEnv() (*DeviceServiceEnvConfig, error) {
	cfg := &DeviceServiceEnvConfig{}
	err := env.Parse(cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *DeviceServiceEnvConfig) Validate() error {
	switch c.QueueBackend {
	case BackendRedis, BackendNats:
	default:
		return fmt.Errorf("QUEUE_BACKEND: unknown backend %q", c.QueueBackend)
	}
	if c.QueueBufferSize <= 0 {
		return errors.New("QUEUE_BUFFER_SIZE must be positive")
	}
	if c.ConnectionTimeout <= 0 {
		return errors.New("CONNECTION_TIMEOUT must be positive")
	}
	if c.StatsInterval <= 0 {
		return errors.New("STATS_INTERVAL must be positive")
	}
	ports := map[string]int{
		"PORT":             c.HTTPPort,
		"TCP_PORT_HT02":    c.TCPPortHT02,
		"TCP_PORT_GT06":    c.TCPPortGT06,
		"TCP_PORT_CONCOX":  c.TCPPortConcox,
		"TCP_PORT_GENERIC": c.TCPPortGeneric,
		"UDP_PORT_HT02":    c.UDPPortHT02,
		"UDP_PORT_GT06":    c.UDPPortGT06,
		"UDP_PORT_CONCOX":  c.UDPPortConcox,
		"UDP_PORT_GENERIC": c.UDPPortGeneric,
	}
	for name, p := range ports {
		if p < 0 || p > 65535 {
			return fmt.Errorf("%s: port %d out of range", name, p)
		}
	}
	if err := unique("tcp", c.HTTPPort, c.TCPPortHT02, c.TCPPortGT06, c.TCPPortConcox, c.TCPPortGeneric); err != nil {
		return err
	}
	return unique("udp", c.UDPPortHT02, c.UDPPortGT06, c.UDPPortConcox, c.UDPPortGeneric)
}

func unique(transport string, ports ...int) error {
	seen := make(map[int]bool, len(ports))
	for _, p := range ports {
		if p == 0 {
			continue
		}
		if seen[p] {
			return fmt.Errorf("%s port %d configured twice", transport, p)
		}
		seen[p] = true
	}
	return nil
}

func (c *DeviceServiceEnvConfig) HTTPAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPPort))
}

func (c *DeviceServiceEnvConfig) Redis() queue.RedisConfig {
	return queue.RedisConfig{
		Addr:        net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort)),
		Password:    c.RedisPassword,
		DB:          c.RedisDB,
		GpsQueue:    c.GpsQueue,
		StatusQueue: c.StatusQueue,
	}
}

// TCPBindings pairs each enabled TCP port with a fresh decoder.
func (c *DeviceServiceEnvConfig) TCPBindings(generic parser.GenericConfig) ([]server.Binding, error) {
	return bindings(generic, []portDecoder{
		{c.TCPPortHT02, parser.ProtocolHT02},
		{c.TCPPortGT06, parser.ProtocolGT06},
		{c.TCPPortConcox, parser.ProtocolConcox},
		{c.TCPPortGeneric, parser.ProtocolGeneric},
	})
}

func (c *DeviceServiceEnvConfig) UDPBindings(generic parser.GenericConfig) ([]server.Binding, error) {
	return bindings(generic, []portDecoder{
		{c.UDPPortHT02, parser.ProtocolHT02},
		{c.UDPPortGT06, parser.ProtocolGT06},
		{c.UDPPortConcox, parser.ProtocolConcox},
		{c.UDPPortGeneric, parser.ProtocolGeneric},
	})
}

type portDecoder struct {
	port     int
	protocol parser.Protocol
}

func bindings(generic parser.GenericConfig, ports []portDecoder) ([]server.Binding, error) {
	var out []server.Binding
	for _, pd := range ports {
		if pd.port == 0 {
			continue
		}
		p, err := NewParser(pd.protocol, generic)
		if err != nil {
			return nil, err
		}
		out = append(out, server.Binding{Port: pd.port, Parser: p})
	}
	return out, nil
}

func NewParser(protocol parser.Protocol, generic parser.GenericConfig) (parser.Parser, error) {
	switch protocol {
	case parser.ProtocolHT02:
		return parser.NewHT02Parser(), nil
	case parser.ProtocolGT06:
		return parser.NewGT06Parser(), nil
	case parser.ProtocolConcox:
		return parser.NewConcoxParser(), nil
	case parser.ProtocolGeneric:
		return parser.NewGenericParser(generic)
	}
	return nil, fmt.Errorf("no decoder for protocol %q", protocol)
}

// LoadGenericConfig reads a generic decoder definition from a yaml, json or
// toml file. An empty path yields the default comma separated layout.
func LoadGenericConfig(path string) (parser.GenericConfig, error) {
	cfg := parser.DefaultGenericConfig()
	if path == "" {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("format", cfg.Format)
	v.SetDefault("delimiter", cfg.Delimiter)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read generic parser config %s: %w", path, err)
	}
	var loaded parser.GenericConfig
	if err := v.Unmarshal(&loaded); err != nil {
		return cfg, fmt.Errorf("decode generic parser config %s: %w", path, err)
	}
	if len(loaded.Fields) == 0 {
		loaded.Fields = cfg.Fields
	}
	if _, err := parser.NewGenericParser(loaded); err != nil {
		return cfg, err
	}
	return loaded, nil
}
