//go:generate mockgen -destination=../../mocks/mock_session.go -package=mocks github.com/tetragramaton/smh-node/internal/interface/mqtt Session

package mqtt

import (
	"errors"
	"fmt"
	"time"
)

// ErrBusy is returned when an operation is requested while a previous one
// for the same session is still outstanding.
var ErrBusy = errors.New("mqtt: operation already in flight")

// ErrNotRegistered is returned by Connect before Register was called.
var ErrNotRegistered = errors.New("mqtt: session not registered")

const (
	QoS0 byte = 0

	RetainOff = false
)

type Message struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
	QoS     byte   `json:"qos"`
	Retain  bool   `json:"retain"`
}

type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventSubscribed
	EventUnsubscribed
	EventPublishAck
	EventIncomingPublish
	EventUnhandled
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventSubscribed:
		return "subscribed"
	case EventUnsubscribed:
		return "unsubscribed"
	case EventPublishAck:
		return "puback"
	case EventIncomingPublish:
		return "publish"
	case EventUnhandled:
		return "unhandled"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is pushed by a Session to whoever drives the connection lifecycle.
// Reason is set for EventDisconnected, Message for EventIncomingPublish and
// Code for EventUnhandled.
type Event struct {
	Kind    EventKind
	Reason  error
	Message Message
	Code    int
}

// EventSink receives session events. Implementations must not block.
type EventSink func(Event)

// Session is the broker-protocol surface used by the node. None of its
// methods block on the network; completion is reported through events and
// IsSendInFlight.
type Session interface {
	Register(sessionID, clientID string) error
	SetCredentials(username, password string)
	Connect(address string, port uint16, keepAlive time.Duration) error
	Disconnect()
	Subscribe(topic string, qos byte) error
	Publish(topic string, payload []byte, qos byte, retain bool) error
	IsSendInFlight() bool
}
