//go:generate mockgen -destination=../../mocks/mock_serial.go -package=mocks github.com/tetragramaton/smh-node/internal/interface/serial LineGate

package serial

import "context"

// LineGate switches line reception on and off.
type LineGate interface {
	Enable()
	Disable()
}

// LineSource delivers complete input lines, without their terminator, to
// the provided callback until ctx is done or the source fails.
type LineSource interface {
	LineGate
	Run(ctx context.Context, deliver func(line []byte)) error
	Close() error
}
