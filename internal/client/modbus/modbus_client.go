package modbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"

	modbusIface "github.com/tetragramaton/smh-node/internal/interface/modbus"
	serialIface "github.com/tetragramaton/smh-node/internal/interface/serial"
)

type Config struct {
	Mode string // "rtu" or "tcp"

	// RTU
	Port     string
	Baud     int
	DataBits int
	Parity   string // "N","E","O"
	StopBits int
	SlaveID  int
	Timeout  time.Duration

	// TCP
	TCPAddr string // "192.168.1.10:502"

	Interval  time.Duration
	Registers []modbusIface.RegisterParam
}

func DefaultConfig() Config {
	return Config{
		Mode:     "rtu",
		Port:     "/dev/ttyUSB0",
		Baud:     9600,
		DataBits: 8,
		Parity:   "N",
		StopBits: 1,
		SlaveID:  1,
		Timeout:  500 * time.Millisecond,
		Interval: time.Second,
	}
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "tcp":
		if c.TCPAddr == "" {
			return errors.New("missing tcp address for tcp mode")
		}
	case "rtu":
		if c.Port == "" {
			return errors.New("missing port for rtu mode")
		}
	default:
		return fmt.Errorf("mode must be 'rtu' or 'tcp', got %q", c.Mode)
	}
	if len(c.Registers) == 0 {
		return errors.New("no registers configured")
	}
	for _, r := range c.Registers {
		if r.Name == "" {
			return fmt.Errorf("register at %d has no name", r.Addr)
		}
		if r.Scale == 0 {
			return fmt.Errorf("register %q has zero scale", r.Name)
		}
	}
	return nil
}

type handler struct {
	modbusIface.API
	closeFn func() error
}

func NewHandler(cfg Config) (modbusIface.Client, error) {
	if strings.ToLower(cfg.Mode) == "tcp" {
		th := modbus.NewTCPClientHandler(cfg.TCPAddr)
		th.Timeout = cfg.Timeout
		th.SlaveId = byte(cfg.SlaveID)
		if err := th.Connect(); err != nil {
			return nil, err
		}
		return &handler{
			API:     modbus.NewClient(th),
			closeFn: th.Close,
		}, nil
	}

	rh := modbus.NewRTUClientHandler(cfg.Port)
	rh.BaudRate = cfg.Baud
	rh.DataBits = cfg.DataBits
	rh.Parity = cfg.Parity
	rh.StopBits = cfg.StopBits
	rh.SlaveId = byte(cfg.SlaveID)
	rh.Timeout = cfg.Timeout
	if err := rh.Connect(); err != nil {
		return nil, err
	}

	return &handler{
		API:     modbus.NewClient(rh),
		closeFn: rh.Close,
	}, nil
}

func (h *handler) ReadFloat(param modbusIface.RegisterParam) (float64, error) {
	var res []byte
	var err error
	if param.Holding {
		res, err = h.API.ReadHoldingRegisters(param.Addr, 1)
	} else {
		res, err = h.API.ReadInputRegisters(param.Addr, 1)
	}
	if err != nil {
		return 0, err
	}
	// 16-bit register
	if len(res) < 2 {
		return 0, fmt.Errorf("short response")
	}
	raw := uint16(res[0])<<8 | uint16(res[1])
	return float64(int16(raw)) / param.Scale, nil
}

func (h *handler) Close() error {
	if h.closeFn == nil {
		return nil
	}
	return h.closeFn()
}

// Poller samples the configured registers every Interval and emits one JSON
// object per sample as an input line.
type Poller struct {
	cfg  Config
	log  *zap.Logger
	dial func(Config) (modbusIface.Client, error)
	now  func() time.Time

	enabled atomic.Bool

	mu     sync.Mutex
	client modbusIface.Client
}

var _ serialIface.LineSource = (*Poller)(nil)

func NewPoller(cfg Config, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Poller{
		cfg:  cfg,
		log:  log.Named("modbus"),
		dial: NewHandler,
		now:  time.Now,
	}
}

func (p *Poller) Enable()  { p.enabled.Store(true) }
func (p *Poller) Disable() { p.enabled.Store(false) }

func (p *Poller) Run(ctx context.Context, deliver func(line []byte)) error {
	c, err := p.dial(p.cfg)
	if err != nil {
		return fmt.Errorf("modbus connect: %w", err)
	}
	p.mu.Lock()
	p.client = c
	p.mu.Unlock()
	defer p.Close()

	p.log.Info("polling registers",
		zap.String("mode", p.cfg.Mode),
		zap.Int("registers", len(p.cfg.Registers)),
		zap.Duration("interval", p.cfg.Interval))

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !p.enabled.Load() {
				continue
			}
			line, err := p.Sample(c)
			if err != nil {
				p.log.Warn("sample failed", zap.Error(err))
				continue
			}
			deliver(line)
		}
	}
}

// Sample reads every register once. Registers that fail to read are left out
// of the line; an error is returned only if none could be read.
func (p *Poller) Sample(c modbusIface.Client) ([]byte, error) {
	values := make(map[string]any, len(p.cfg.Registers)+1)
	var errs []error
	for _, r := range p.cfg.Registers {
		v, err := c.ReadFloat(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
			continue
		}
		values[r.Name] = v
	}
	if len(values) == 0 {
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		p.log.Debug("register skipped", zap.Error(err))
	}
	values["ts"] = p.now().Unix()
	return json.Marshal(values)
}

func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}
