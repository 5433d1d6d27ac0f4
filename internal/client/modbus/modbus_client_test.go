package modbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	modbusIface "github.com/tetragramaton/smh-node/internal/interface/modbus"
)

type fakeAPI struct {
	input   map[uint16][]byte
	holding map[uint16][]byte
}

func (f *fakeAPI) ReadHoldingRegisters(address, _ uint16) ([]byte, error) {
	if b, ok := f.holding[address]; ok {
		return b, nil
	}
	return nil, errors.New("illegal data address")
}

func (f *fakeAPI) ReadInputRegisters(address, _ uint16) ([]byte, error) {
	if b, ok := f.input[address]; ok {
		return b, nil
	}
	return nil, errors.New("illegal data address")
}

func testRegisters() []modbusIface.RegisterParam {
	return []modbusIface.RegisterParam{
		{Name: "frequency", Addr: 0x10, Scale: 100},
		{Name: "power", Addr: 0x20, Scale: 10, Holding: true},
	}
}

func TestHandler_ReadFloat(t *testing.T) {
	h := &handler{API: &fakeAPI{
		input:   map[uint16][]byte{0x10: {0x13, 0x89}, 0x11: {0xff, 0x9c}, 0x12: {0x01}},
		holding: map[uint16][]byte{0x20: {0x00, 0x64}},
	}}

	tests := []struct {
		name    string
		param   modbusIface.RegisterParam
		want    float64
		wantErr bool
	}{
		{"input scaled", modbusIface.RegisterParam{Addr: 0x10, Scale: 100}, 50.01, false},
		{"signed", modbusIface.RegisterParam{Addr: 0x11, Scale: 1}, -100, false},
		{"holding", modbusIface.RegisterParam{Addr: 0x20, Scale: 10, Holding: true}, 10, false},
		{"short response", modbusIface.RegisterParam{Addr: 0x12, Scale: 1}, 0, true},
		{"read error", modbusIface.RegisterParam{Addr: 0x99, Scale: 1}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.ReadFloat(tt.param)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func newTestPoller(t *testing.T, api *fakeAPI) *Poller {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Registers = testRegisters()
	cfg.Interval = time.Millisecond
	p := NewPoller(cfg, zaptest.NewLogger(t))
	p.dial = func(Config) (modbusIface.Client, error) { return &handler{API: api}, nil }
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	return p
}

func TestPoller_Sample(t *testing.T) {
	api := &fakeAPI{
		input:   map[uint16][]byte{0x10: {0x13, 0x88}},
		holding: map[uint16][]byte{0x20: {0x00, 0x64}},
	}
	p := newTestPoller(t, api)

	line, err := p.Sample(&handler{API: api})

	require.NoError(t, err)
	assert.JSONEq(t, `{"frequency":50,"power":10,"ts":1700000000}`, string(line))
}

func TestPoller_SamplePartialFailure(t *testing.T) {
	api := &fakeAPI{input: map[uint16][]byte{0x10: {0x13, 0x88}}}
	p := newTestPoller(t, api)

	line, err := p.Sample(&handler{API: api})

	require.NoError(t, err)
	assert.JSONEq(t, `{"frequency":50,"ts":1700000000}`, string(line))
}

func TestPoller_SampleAllFailed(t *testing.T) {
	api := &fakeAPI{}
	p := newTestPoller(t, api)

	_, err := p.Sample(&handler{API: api})

	assert.ErrorContains(t, err, "frequency")
	assert.ErrorContains(t, err, "power")
}

func TestPoller_RunDeliversWhenEnabled(t *testing.T) {
	api := &fakeAPI{
		input:   map[uint16][]byte{0x10: {0x13, 0x88}},
		holding: map[uint16][]byte{0x20: {0x00, 0x64}},
	}
	p := newTestPoller(t, api)
	p.Enable()

	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan []byte, 1)
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(line []byte) {
			select {
			case lines <- line:
			default:
			}
		})
	}()

	select {
	case line := <-lines:
		assert.Contains(t, string(line), `"frequency":50`)
	case <-time.After(time.Second):
		t.Fatal("no sample delivered")
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestConfig_Validate(t *testing.T) {
	ok := DefaultConfig()
	ok.Registers = testRegisters()
	assert.NoError(t, ok.Validate())

	tcp := ok
	tcp.Mode = "tcp"
	assert.Error(t, tcp.Validate())
	tcp.TCPAddr = "10.0.0.5:502"
	assert.NoError(t, tcp.Validate())

	bad := ok
	bad.Mode = "ascii"
	assert.Error(t, bad.Validate())

	noRegs := DefaultConfig()
	assert.Error(t, noRegs.Validate())

	zero := ok
	zero.Registers = []modbusIface.RegisterParam{{Name: "x", Scale: 0}}
	assert.Error(t, zero.Validate())
}
