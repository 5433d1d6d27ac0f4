//go:generate mockgen -destination=../../mocks/mock_network.go -package=mocks github.com/tetragramaton/smh-node/internal/interface/network Readiness

package network

import "net"

// Readiness reports whether the node currently holds an address it can use
// to reach the broker. It is polled and has no side effects.
type Readiness interface {
	HasUsableAddress() bool
}

type Identity interface {
	HardwareAddr() (net.HardwareAddr, error)
}
