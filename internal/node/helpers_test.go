package node

import (
	"net"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tetragramaton/smh-node/internal/mocks"
)

var testHW = net.HardwareAddr{0x00, 0x12, 0x4b, 0x01, 0x02, 0x03}

const testClientID = "d:00124b010203"

type fakeTimer struct {
	arms  []time.Duration
	stops int
}

func (t *fakeTimer) Arm(d time.Duration) { t.arms = append(t.arms, d) }

func (t *fakeTimer) Stop() { t.stops++ }

func (t *fakeTimer) last() time.Duration {
	if len(t.arms) == 0 {
		return -1
	}
	return t.arms[len(t.arms)-1]
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	m       *Machine
	cfg     ClientConfig
	session *mocks.MockSession
	network *mocks.MockReadiness
	timer   *fakeTimer
	clock   *fakeClock
}

func testConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.BrokerAddress = "fd00::1"
	cfg.PublishInterval = 10 * time.Second
	return cfg
}

func newHarness(t *testing.T, cfg ClientConfig, opts ...Option) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		cfg:     cfg,
		session: mocks.NewMockSession(ctrl),
		network: mocks.NewMockReadiness(ctrl),
		timer:   &fakeTimer{},
		clock:   &fakeClock{now: time.Unix(1700000000, 0)},
	}
	opts = append([]Option{WithClock(h.clock), WithLogger(zaptest.NewLogger(t))}, opts...)
	h.m = NewMachine(cfg, testHW, h.session, h.network, h.timer, opts...)
	return h
}

// force puts the machine into s with a built identity, as if the lifecycle
// had already reached it.
func (h *harness) force(t *testing.T, s State, attempt int) {
	t.Helper()
	id, err := BuildIdentity(h.m.cfg, testHW)
	require.NoError(t, err)
	h.m.identity = id
	h.m.state = s
	h.m.attempt = attempt
}
