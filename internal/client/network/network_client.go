package network

import (
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	netIface "github.com/tetragramaton/smh-node/internal/interface/network"
)

var ErrNoHardwareAddr = errors.New("network: no hardware address")

type Config struct {
	// Interface restricts both checks to one interface; empty means any
	// interface that is up and not a loopback.
	Interface string
	// HardwareAddr overrides the address read from the interface.
	HardwareAddr string
}

// Host answers readiness and identity from the host network stack.
type Host struct {
	cfg        Config
	log        *zap.Logger
	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
}

var (
	_ netIface.Readiness = (*Host)(nil)
	_ netIface.Identity  = (*Host)(nil)
)

func NewHost(cfg Config, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		cfg:        cfg,
		log:        log.Named("network"),
		interfaces: net.Interfaces,
		addrs:      func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
	}
}

// HasUsableAddress reports whether a candidate interface holds a global
// unicast address.
func (h *Host) HasUsableAddress() bool {
	ifs, err := h.candidates()
	if err != nil {
		h.log.Debug("listing interfaces", zap.Error(err))
		return false
	}
	for _, ifc := range ifs {
		addrs, err := h.addrs(ifc)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ip := addrIP(a); ip != nil && ip.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}

func (h *Host) HardwareAddr() (net.HardwareAddr, error) {
	if h.cfg.HardwareAddr != "" {
		hw, err := net.ParseMAC(h.cfg.HardwareAddr)
		if err != nil {
			return nil, fmt.Errorf("hardware address override: %w", err)
		}
		return hw, nil
	}
	ifs, err := h.candidates()
	if err != nil {
		return nil, err
	}
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) == 6 || len(ifc.HardwareAddr) == 8 {
			return ifc.HardwareAddr, nil
		}
	}
	return nil, ErrNoHardwareAddr
}

func (h *Host) candidates() ([]net.Interface, error) {
	all, err := h.interfaces()
	if err != nil {
		return nil, err
	}
	var out []net.Interface
	for _, ifc := range all {
		if h.cfg.Interface != "" {
			if ifc.Name == h.cfg.Interface {
				out = append(out, ifc)
			}
			continue
		}
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		out = append(out, ifc)
	}
	return out, nil
}

func addrIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}
