package network

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	lo   = net.Interface{Index: 1, Name: "lo", Flags: net.FlagUp | net.FlagLoopback}
	eth0 = net.Interface{Index: 2, Name: "eth0", Flags: net.FlagUp, HardwareAddr: net.HardwareAddr{0x00, 0x12, 0x4b, 0x01, 0x02, 0x03}}
	wpan = net.Interface{Index: 3, Name: "wpan0", Flags: net.FlagUp, HardwareAddr: net.HardwareAddr{0x00, 0x12, 0x4b, 0xff, 0xfe, 0x0a, 0x0b, 0x0c}}
)

func ipNet(s string) net.Addr {
	ip, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	n.IP = ip
	return n
}

func newTestHost(t *testing.T, cfg Config, addrs map[string][]net.Addr) *Host {
	t.Helper()
	h := NewHost(cfg, zaptest.NewLogger(t))
	h.interfaces = func() ([]net.Interface, error) { return []net.Interface{lo, eth0, wpan}, nil }
	h.addrs = func(i net.Interface) ([]net.Addr, error) { return addrs[i.Name], nil }
	return h
}

func TestHost_HasUsableAddress(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		addrs map[string][]net.Addr
		want  bool
	}{
		{
			name:  "link local only",
			addrs: map[string][]net.Addr{"eth0": {ipNet("fe80::1/64")}, "lo": {ipNet("127.0.0.1/8")}},
			want:  false,
		},
		{
			name:  "global ipv6",
			addrs: map[string][]net.Addr{"eth0": {ipNet("fe80::1/64"), ipNet("fd00::12/64")}},
			want:  true,
		},
		{
			name:  "ipv4 lease",
			addrs: map[string][]net.Addr{"eth0": {ipNet("192.168.1.20/24")}},
			want:  true,
		},
		{
			name:  "pinned interface without address",
			cfg:   Config{Interface: "wpan0"},
			addrs: map[string][]net.Addr{"eth0": {ipNet("192.168.1.20/24")}},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHost(t, tt.cfg, tt.addrs)
			assert.Equal(t, tt.want, h.HasUsableAddress())
		})
	}
}

func TestHost_InterfaceListFailure(t *testing.T) {
	h := NewHost(Config{}, zaptest.NewLogger(t))
	h.interfaces = func() ([]net.Interface, error) { return nil, errors.New("netlink") }

	assert.False(t, h.HasUsableAddress())
	_, err := h.HardwareAddr()
	assert.Error(t, err)
}

func TestHost_HardwareAddr(t *testing.T) {
	h := newTestHost(t, Config{}, nil)
	hw, err := h.HardwareAddr()
	require.NoError(t, err)
	assert.Equal(t, eth0.HardwareAddr, hw)

	h = newTestHost(t, Config{Interface: "wpan0"}, nil)
	hw, err = h.HardwareAddr()
	require.NoError(t, err)
	assert.Len(t, hw, 8)

	h = newTestHost(t, Config{Interface: "lo"}, nil)
	_, err = h.HardwareAddr()
	assert.ErrorIs(t, err, ErrNoHardwareAddr)
}

func TestHost_HardwareAddrOverride(t *testing.T) {
	h := newTestHost(t, Config{HardwareAddr: "02:00:00:aa:bb:cc"}, nil)
	hw, err := h.HardwareAddr()
	require.NoError(t, err)
	assert.Equal(t, "02:00:00:aa:bb:cc", hw.String())

	h = newTestHost(t, Config{HardwareAddr: "nope"}, nil)
	_, err = h.HardwareAddr()
	assert.Error(t, err)
}
