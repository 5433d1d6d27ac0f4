package node

import (
	"errors"
	"fmt"
)

// Error taxonomy of the connection lifecycle. None of these escape the
// Machine; they are logged and turned into transitions. Use errors.Is in
// tests and adapters.
var (
	// ErrConfiguration means the identity or a topic does not fit its
	// capacity. Terminal until Reconfigure.
	ErrConfiguration = errors.New("node: configuration error")

	// ErrTransientLink covers a missing network address or a broker
	// disconnect. Recovered through backoff.
	ErrTransientLink = errors.New("node: link unavailable")

	// ErrRetryExhausted is recorded when the retry cap is reached.
	ErrRetryExhausted = errors.New("node: reconnect attempts exhausted")

	// ErrBufferOverflow is returned by PayloadBuffer.AppendLine when the line
	// does not fit the remaining capacity.
	ErrBufferOverflow = errors.New("node: payload buffer overflow")
)

// OverflowError describes a rejected append.
type OverflowError struct {
	Need      int
	Remaining int
	Capacity  int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("%v: need %d bytes, %d of %d remaining", ErrBufferOverflow, e.Need, e.Remaining, e.Capacity)
}

func (e *OverflowError) Is(target error) bool { return target == ErrBufferOverflow }

// CapacityError describes an identity field that does not fit.
type CapacityError struct {
	Field    string
	Length   int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%v: %s too large: %d bytes, capacity %d", ErrConfiguration, e.Field, e.Length, e.Capacity)
}

func (e *CapacityError) Is(target error) bool { return target == ErrConfiguration }
