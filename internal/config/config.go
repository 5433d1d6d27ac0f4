package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	modbusIface "github.com/tetragramaton/smh-node/internal/interface/modbus"
	"github.com/tetragramaton/smh-node/internal/node"
)

const envPrefix = "SMH_"

const (
	SourceSerial = "serial"
	SourceModbus = "modbus"
)

type Config struct {
	Node      NodeConfig      `yaml:"node"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Payload   PayloadConfig   `yaml:"payload"`
	Source    SourceConfig    `yaml:"source"`
	Network   NetworkConfig   `yaml:"network"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type NodeConfig struct {
	SessionID   string `yaml:"session_id"`
	EventType   string `yaml:"event_type"`
	CommandType string `yaml:"command_type"`
}

type MQTTConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	TLS             bool          `yaml:"tls"`
	TLSInsecure     bool          `yaml:"tls_insecure"`
	PublishTopic    string        `yaml:"publish_topic"`
	SubscribeTopic  string        `yaml:"subscribe_topic"`
	PublishInterval time.Duration `yaml:"publish_interval"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	PingTimeout     time.Duration `yaml:"ping_timeout"`
}

type LifecycleConfig struct {
	StatePollInterval time.Duration `yaml:"state_poll_interval"`
	NetPollInterval   time.Duration `yaml:"net_poll_interval"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	StableTime        time.Duration `yaml:"stable_time"`
	// MaxAttempts of 0 retries forever.
	MaxAttempts     int  `yaml:"max_attempts"`
	MaxBackoffShift uint `yaml:"max_backoff_shift"`
	LineQueue       int  `yaml:"line_queue"`
}

type PayloadConfig struct {
	Capacity         int    `yaml:"capacity"`
	IdentityCapacity int    `yaml:"identity_capacity"`
	OverflowPolicy   string `yaml:"overflow_policy"`
}

type SourceConfig struct {
	Kind   string       `yaml:"kind"`
	Serial SerialConfig `yaml:"serial"`
	Modbus ModbusConfig `yaml:"modbus"`
}

type SerialConfig struct {
	Port     string        `yaml:"port"`
	Baud     int           `yaml:"baud"`
	DataBits int           `yaml:"data_bits"`
	StopBits int           `yaml:"stop_bits"`
	Parity   string        `yaml:"parity"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxLine  int           `yaml:"max_line"`
	GateHold time.Duration `yaml:"gate_hold"`
}

type ModbusConfig struct {
	Mode      string                      `yaml:"mode"`
	Port      string                      `yaml:"port"`
	Baud      int                         `yaml:"baud"`
	DataBits  int                         `yaml:"data_bits"`
	Parity    string                      `yaml:"parity"`
	StopBits  int                         `yaml:"stop_bits"`
	SlaveID   int                         `yaml:"slave_id"`
	Timeout   time.Duration               `yaml:"timeout"`
	TCPAddr   string                      `yaml:"tcp_addr"`
	Interval  time.Duration               `yaml:"interval"`
	Registers []modbusIface.RegisterParam `yaml:"registers"`
}

type NetworkConfig struct {
	Interface    string `yaml:"interface"`
	HardwareAddr string `yaml:"hardware_addr"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // "console" or "json"
	Dir      string `yaml:"dir"`
	MaxFiles int    `yaml:"max_files"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load builds the configuration from defaults, the YAML file at path, the
// dotenv file at envFile and SMH_* environment variables, in that order.
// Either path may be empty.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	d := node.DefaultClientConfig()
	return &Config{
		Node: NodeConfig{
			SessionID:   d.SessionID,
			EventType:   d.EventTypeID,
			CommandType: d.SubscribeCommandType,
		},
		MQTT: MQTTConfig{
			Host:            d.BrokerAddress,
			Port:            int(d.BrokerPort),
			PublishTopic:    d.PublishTopic,
			SubscribeTopic:  d.SubscribeTopic,
			PublishInterval: d.PublishInterval,
			ConnectTimeout:  5 * time.Second,
			PingTimeout:     3 * time.Second,
		},
		Lifecycle: LifecycleConfig{
			StatePollInterval: d.StatePollInterval,
			NetPollInterval:   d.NetPollInterval,
			ReconnectInterval: d.ReconnectInterval,
			StableTime:        d.StableTime,
			MaxAttempts:       d.MaxAttempts,
			MaxBackoffShift:   d.MaxBackoffShift,
			LineQueue:         64,
		},
		Payload: PayloadConfig{
			Capacity:         d.PayloadCapacity,
			IdentityCapacity: d.IdentityCapacity,
			OverflowPolicy:   string(d.OverflowPolicy),
		},
		Source: SourceConfig{
			Kind: SourceSerial,
			Serial: SerialConfig{
				Port:     "/dev/ttyUSB0",
				Baud:     115200,
				DataBits: 8,
				StopBits: 1,
				Parity:   "N",
				Timeout:  500 * time.Millisecond,
				MaxLine:  d.PayloadCapacity,
				GateHold: 250 * time.Millisecond,
			},
			Modbus: ModbusConfig{
				Mode:     "rtu",
				Port:     "/dev/ttyUSB0",
				Baud:     9600,
				DataBits: 8,
				Parity:   "N",
				StopBits: 1,
				SlaveID:  1,
				Timeout:  500 * time.Millisecond,
				Interval: time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "console",
			MaxFiles: 5,
		},
		Metrics: MetricsConfig{
			Listen: ":9102",
		},
	}
}

// ClientConfig maps the file sections onto the lifecycle configuration.
func (c *Config) ClientConfig() (node.ClientConfig, error) {
	policy, err := node.ParseOverflowPolicy(c.Payload.OverflowPolicy)
	if err != nil {
		return node.ClientConfig{}, err
	}
	return node.ClientConfig{
		SessionID:            c.Node.SessionID,
		EventTypeID:          c.Node.EventType,
		BrokerAddress:        c.MQTT.Host,
		BrokerPort:           uint16(c.MQTT.Port),
		SubscribeCommandType: c.Node.CommandType,
		PublishInterval:      c.MQTT.PublishInterval,
		PublishTopic:         c.MQTT.PublishTopic,
		SubscribeTopic:       c.MQTT.SubscribeTopic,
		Username:             c.MQTT.Username,
		Password:             c.MQTT.Password,
		StatePollInterval:    c.Lifecycle.StatePollInterval,
		NetPollInterval:      c.Lifecycle.NetPollInterval,
		ReconnectInterval:    c.Lifecycle.ReconnectInterval,
		StableTime:           c.Lifecycle.StableTime,
		MaxAttempts:          c.Lifecycle.MaxAttempts,
		MaxBackoffShift:      c.Lifecycle.MaxBackoffShift,
		PayloadCapacity:      c.Payload.Capacity,
		IdentityCapacity:     c.Payload.IdentityCapacity,
		OverflowPolicy:       policy,
	}, nil
}

// Validate reports every problem at once. Identity field sizes are not
// checked here; the lifecycle reports them as a configuration error state.
func (c *Config) Validate() error {
	var errs []string

	if c.Node.SessionID == "" {
		errs = append(errs, "node.session_id is required")
	}

	if c.MQTT.Host == "" {
		errs = append(errs, "mqtt.host is required")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, "mqtt.port must be between 1 and 65535")
	}
	if c.MQTT.PublishTopic == "" {
		errs = append(errs, "mqtt.publish_topic is required")
	}
	if c.MQTT.SubscribeTopic == "" {
		errs = append(errs, "mqtt.subscribe_topic is required")
	}
	if c.MQTT.PublishInterval <= 0 {
		errs = append(errs, "mqtt.publish_interval must be positive")
	}

	if c.Lifecycle.MaxAttempts < 0 {
		errs = append(errs, "lifecycle.max_attempts must not be negative")
	}
	if c.Lifecycle.MaxBackoffShift > 16 {
		errs = append(errs, "lifecycle.max_backoff_shift must be at most 16")
	}

	if c.Payload.Capacity <= 0 {
		errs = append(errs, "payload.capacity must be positive")
	}
	if _, err := node.ParseOverflowPolicy(c.Payload.OverflowPolicy); err != nil {
		errs = append(errs, "payload.overflow_policy must be drop, reset or fatal")
	}

	switch c.Source.Kind {
	case SourceSerial:
		if c.Source.Serial.Port == "" {
			errs = append(errs, "source.serial.port is required")
		}
	case SourceModbus:
		if len(c.Source.Modbus.Registers) == 0 {
			errs = append(errs, "source.modbus.registers must not be empty")
		}
	default:
		errs = append(errs, "source.kind must be serial or modbus")
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, "logging.level is not a valid level")
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		errs = append(errs, "logging.format must be console or json")
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	var errs []error

	str := func(key string, dst *string) {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(envPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(envPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(envPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("SESSION_ID", &cfg.Node.SessionID)
	str("MQTT_HOST", &cfg.MQTT.Host)
	num("MQTT_PORT", &cfg.MQTT.Port)
	str("MQTT_USERNAME", &cfg.MQTT.Username)
	str("MQTT_PASSWORD", &cfg.MQTT.Password)
	flag("MQTT_TLS", &cfg.MQTT.TLS)
	dur("PUBLISH_INTERVAL", &cfg.MQTT.PublishInterval)
	num("MAX_ATTEMPTS", &cfg.Lifecycle.MaxAttempts)
	str("OVERFLOW_POLICY", &cfg.Payload.OverflowPolicy)
	str("SOURCE", &cfg.Source.Kind)
	str("SERIAL_PORT", &cfg.Source.Serial.Port)
	num("SERIAL_BAUD", &cfg.Source.Serial.Baud)
	str("MODBUS_MODE", &cfg.Source.Modbus.Mode)
	str("MODBUS_TCP_ADDR", &cfg.Source.Modbus.TCPAddr)
	str("NET_INTERFACE", &cfg.Network.Interface)
	str("HW_ADDR", &cfg.Network.HardwareAddr)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_DIR", &cfg.Logging.Dir)
	flag("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_LISTEN", &cfg.Metrics.Listen)

	return errors.Join(errs...)
}
