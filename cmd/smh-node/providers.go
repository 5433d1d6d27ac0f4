package main

import (
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	modbusClient "github.com/tetragramaton/smh-node/internal/client/modbus"
	mqttClient "github.com/tetragramaton/smh-node/internal/client/mqtt"
	networkClient "github.com/tetragramaton/smh-node/internal/client/network"
	serialClient "github.com/tetragramaton/smh-node/internal/client/serial"
	"github.com/tetragramaton/smh-node/internal/config"
	"github.com/tetragramaton/smh-node/internal/dispatch"
	mqttIface "github.com/tetragramaton/smh-node/internal/interface/mqtt"
	serialIface "github.com/tetragramaton/smh-node/internal/interface/serial"
	"github.com/tetragramaton/smh-node/internal/logging"
	"github.com/tetragramaton/smh-node/internal/metrics"
	"github.com/tetragramaton/smh-node/internal/node"
)

// Options are the command line inputs to the injector.
type Options struct {
	ConfigPath string
	EnvFile    string
	Debug      bool
}

func ProvideConfig(opts Options) (*config.Config, error) {
	return config.Load(opts.ConfigPath, opts.EnvFile)
}

func ProvideLogger(cfg *config.Config, opts Options) (*zap.Logger, error) {
	l, err := logging.New(logging.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Dir:      cfg.Logging.Dir,
		MaxFiles: cfg.Logging.MaxFiles,
		Debug:    opts.Debug,
	})
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(l)
	return l, nil
}

func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideCollector(reg *prometheus.Registry) *metrics.Collector {
	return metrics.NewCollector(reg)
}

func ProvideMetricsServer(cfg *config.Config, reg *prometheus.Registry, log *zap.Logger) *metrics.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.NewServer(cfg.Metrics.Listen, reg, log)
}

func ProvideDispatcher(cfg *config.Config, log *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(cfg.Lifecycle.LineQueue, log)
}

func ProvideSession(cfg *config.Config, d *dispatch.Dispatcher, log *zap.Logger) *mqttClient.Session {
	mc := mqttClient.DefaultConfig()
	mc.TLS = cfg.MQTT.TLS
	mc.TLSInsecure = cfg.MQTT.TLSInsecure
	if cfg.MQTT.ConnectTimeout > 0 {
		mc.ConnectTimeout = cfg.MQTT.ConnectTimeout
	}
	if cfg.MQTT.PingTimeout > 0 {
		mc.PingTimeout = cfg.MQTT.PingTimeout
	}
	return mqttClient.NewSession(mc, d.Sink(), log)
}

func ProvideHost(cfg *config.Config, log *zap.Logger) *networkClient.Host {
	return networkClient.NewHost(networkClient.Config{
		Interface:    cfg.Network.Interface,
		HardwareAddr: cfg.Network.HardwareAddr,
	}, log)
}

// ProvideHardwareAddr never fails: a missing address leaves the identity
// unbuildable and the lifecycle reports it as a configuration error.
func ProvideHardwareAddr(h *networkClient.Host, log *zap.Logger) net.HardwareAddr {
	hw, err := h.HardwareAddr()
	if err != nil {
		log.Error("reading hardware address", zap.Error(err))
		return nil
	}
	return hw
}

func ProvideLineSource(cfg *config.Config, log *zap.Logger) (serialIface.LineSource, error) {
	switch cfg.Source.Kind {
	case config.SourceModbus:
		m := cfg.Source.Modbus
		mc := modbusClient.Config{
			Mode:      m.Mode,
			Port:      m.Port,
			Baud:      m.Baud,
			DataBits:  m.DataBits,
			Parity:    m.Parity,
			StopBits:  m.StopBits,
			SlaveID:   m.SlaveID,
			Timeout:   m.Timeout,
			TCPAddr:   m.TCPAddr,
			Interval:  m.Interval,
			Registers: m.Registers,
		}
		if err := mc.Validate(); err != nil {
			return nil, fmt.Errorf("modbus source: %w", err)
		}
		return modbusClient.NewPoller(mc, log), nil
	case config.SourceSerial:
		s := cfg.Source.Serial
		return serialClient.NewSource(serialClient.Config{
			Address:  s.Port,
			BaudRate: s.Baud,
			DataBits: s.DataBits,
			StopBits: s.StopBits,
			Parity:   s.Parity,
			Timeout:  s.Timeout,
			MaxLine:  s.MaxLine,
			GateHold: s.GateHold,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

func ProvideClientConfig(cfg *config.Config) (node.ClientConfig, error) {
	return cfg.ClientConfig()
}

func ProvideMachine(
	cc node.ClientConfig,
	hw net.HardwareAddr,
	session *mqttClient.Session,
	host *networkClient.Host,
	d *dispatch.Dispatcher,
	collector *metrics.Collector,
	source serialIface.LineSource,
	log *zap.Logger,
) *node.Machine {
	return node.NewMachine(cc, hw, session, host, d,
		node.WithLogger(log.Named("machine")),
		node.WithObserver(collector),
		node.WithLineGate(source),
		node.WithIncomingHandler(func(msg mqttIface.Message) {
			log.Info("command received",
				zap.String("topic", msg.Topic),
				zap.Int("bytes", len(msg.Payload)))
		}),
		node.WithSignal(func(s node.Signal) {
			log.Debug("status signal", zap.String("signal", string(s)))
		}),
	)
}
