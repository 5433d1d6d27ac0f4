package node

import (
	"time"

	mqttIface "github.com/tetragramaton/smh-node/internal/interface/mqtt"
)

// Timer is the single periodic wakeup owned by a Machine. Arm replaces any
// pending wakeup; only the most recent Arm may fire.
type Timer interface {
	Arm(d time.Duration)
	Stop()
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Signal is a transient status indication (the LED blink of a real device).
type Signal string

const (
	SignalWaitingForNetwork Signal = "waiting_for_network"
	SignalConnecting        Signal = "connecting"
	SignalStillPublishing   Signal = "still_publishing"
	SignalPublishing        Signal = "publishing"
	SignalFault             Signal = "fault"
)

// Observer receives lifecycle notifications, typically for metrics.
type Observer interface {
	StateChanged(from, to State)
	AttemptChanged(attempt int)
	BackoffScheduled(delay time.Duration)
	Published(bytes int)
	Disconnected()
	LineAppended(bytes int)
	LineRejected()
}

// IncomingHandler receives publishes arriving on the subscribe topic.
type IncomingHandler func(msg mqttIface.Message)

type nopObserver struct{}

func (nopObserver) StateChanged(State, State)      {}
func (nopObserver) AttemptChanged(int)             {}
func (nopObserver) BackoffScheduled(time.Duration) {}
func (nopObserver) Published(int)                  {}
func (nopObserver) Disconnected()                  {}
func (nopObserver) LineAppended(int)               {}
func (nopObserver) LineRejected()                  {}

type nopGate struct{}

func (nopGate) Enable()  {}
func (nopGate) Disable() {}
