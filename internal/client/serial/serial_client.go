package serial

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/serial"
	"go.uber.org/zap"

	serialIface "github.com/tetragramaton/smh-node/internal/interface/serial"
)

const (
	DefaultMaxLine  = 512
	DefaultGateHold = 250 * time.Millisecond
)

type Config struct {
	Address  string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string // "N","E","O"
	Timeout  time.Duration
	// MaxLine bounds a line without its terminator.
	MaxLine int
	// GateHold is how long a line waits for a closed gate before it is
	// dropped. Negative drops immediately.
	GateHold time.Duration
}

func DefaultConfig() Config {
	return Config{
		Address:  "/dev/ttyUSB0",
		BaudRate: 115200,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  500 * time.Millisecond,
		MaxLine:  DefaultMaxLine,
		GateHold: DefaultGateHold,
	}
}

// Source reads newline framed records from a serial port. A line that
// arrives while the gate is closed waits up to GateHold for it to reopen and
// is then counted and dropped. Lines longer than MaxLine are skipped up to
// the next newline.
type Source struct {
	cfg  Config
	log  *zap.Logger
	open func(*serial.Config) (io.ReadWriteCloser, error)

	enabled   atomic.Bool
	opened    chan struct{}
	dropped   atomic.Uint64
	oversized atomic.Uint64

	mu   sync.Mutex
	port io.ReadWriteCloser
}

var _ serialIface.LineSource = (*Source)(nil)

func NewSource(cfg Config, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxLine <= 0 {
		cfg.MaxLine = DefaultMaxLine
	}
	if cfg.GateHold == 0 {
		cfg.GateHold = DefaultGateHold
	}
	return &Source{
		cfg:    cfg,
		log:    log.Named("serial"),
		opened: make(chan struct{}, 1),
		open: func(c *serial.Config) (io.ReadWriteCloser, error) {
			return serial.Open(c)
		},
	}
}

func (s *Source) Enable() {
	s.enabled.Store(true)
	select {
	case s.opened <- struct{}{}:
	default:
	}
}

func (s *Source) Disable() { s.enabled.Store(false) }

// Dropped is the number of lines discarded while the gate was closed.
func (s *Source) Dropped() uint64 { return s.dropped.Load() }

// Oversized is the number of lines skipped for exceeding MaxLine.
func (s *Source) Oversized() uint64 { return s.oversized.Load() }

func (s *Source) Run(ctx context.Context, deliver func(line []byte)) error {
	port, err := s.open(&serial.Config{
		Address:  s.cfg.Address,
		BaudRate: s.cfg.BaudRate,
		DataBits: s.cfg.DataBits,
		StopBits: s.cfg.StopBits,
		Parity:   s.cfg.Parity,
		Timeout:  s.cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", s.cfg.Address, err)
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	defer s.Close()

	s.log.Info("serial port open", zap.String("port", s.cfg.Address), zap.Int("baud", s.cfg.BaudRate))
	return s.scan(ctx, port, deliver)
}

func (s *Source) scan(ctx context.Context, r io.Reader, deliver func(line []byte)) error {
	// Room for the line plus a "\r\n" terminator.
	size := s.cfg.MaxLine + 2
	sc := bufio.NewScanner(&timeoutReader{ctx: ctx, r: r})
	sc.Buffer(make([]byte, 0, size), size)
	sc.Split(s.splitLines(s.cfg.MaxLine))

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if !s.waitGate(ctx) {
			s.dropped.Add(1)
			s.log.Debug("line dropped, input disabled", zap.Int("bytes", len(line)))
			continue
		}
		deliver(append([]byte(nil), line...))
	}

	err := sc.Err()
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	default:
		return fmt.Errorf("read %s: %w", s.cfg.Address, err)
	}
}

// splitLines is bufio.ScanLines with a length limit. A line longer than
// limit is consumed and discarded up to its newline instead of failing the
// scan.
func (s *Source) splitLines(limit int) bufio.SplitFunc {
	skipping := false
	skip := func() {
		skipping = false
		s.oversized.Add(1)
		s.log.Warn("line too long, skipped", zap.Int("max_line", limit))
	}

	return func(data []byte, atEOF bool) (int, []byte, error) {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line := bytes.TrimRight(data[:i], "\r")
			if skipping || len(line) > limit {
				skip()
				return i + 1, nil, nil
			}
			return i + 1, line, nil
		}
		if atEOF {
			if len(data) == 0 {
				if skipping {
					skip()
				}
				return 0, nil, nil
			}
			line := bytes.TrimRight(data, "\r")
			if skipping || len(line) > limit {
				skip()
				return len(data), nil, nil
			}
			return len(data), line, nil
		}
		// No terminator yet and already past limit plus a trailing '\r'.
		if skipping || len(data) > limit+1 {
			skipping = true
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
}

// waitGate reports whether the gate is open, waiting up to GateHold for a
// closed gate to reopen.
func (s *Source) waitGate(ctx context.Context) bool {
	if s.enabled.Load() {
		return true
	}
	if s.cfg.GateHold < 0 {
		return false
	}
	t := time.NewTimer(s.cfg.GateHold)
	defer t.Stop()
	for {
		select {
		case <-s.opened:
			if s.enabled.Load() {
				return true
			}
		case <-t.C:
			return s.enabled.Load()
		case <-ctx.Done():
			return false
		}
	}
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// timeoutReader turns read timeouts into a context check so an idle port
// neither ends the scan nor blocks shutdown.
type timeoutReader struct {
	ctx context.Context
	r   io.Reader
}

func (t *timeoutReader) Read(p []byte) (int, error) {
	for {
		if err := t.ctx.Err(); err != nil {
			return 0, err
		}
		n, err := t.r.Read(p)
		if n == 0 && errors.Is(err, serial.ErrTimeout) {
			continue
		}
		return n, err
	}
}
