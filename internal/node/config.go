package node

import (
	"fmt"
	"strings"
	"time"
)

// Lifecycle defaults.
const (
	DefaultStatePollInterval = 500 * time.Millisecond
	DefaultNetPollInterval   = 250 * time.Millisecond
	DefaultReconnectInterval = 2 * time.Second
	DefaultStableTime        = 5 * time.Second
	DefaultPublishInterval   = 30 * time.Second
	DefaultBrokerPort        = 1883
	DefaultIdentityCapacity  = 64

	// RetryForever disables the reconnect cap.
	RetryForever = 0

	keepAliveFactor = 3
)

// OverflowPolicy decides what happens to a line that does not fit.
type OverflowPolicy string

const (
	OverflowDrop  OverflowPolicy = "drop"
	OverflowReset OverflowPolicy = "reset"
	OverflowFatal OverflowPolicy = "fatal"
)

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", OverflowDrop:
		return OverflowDrop, nil
	case OverflowReset, OverflowFatal:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// ClientConfig is the immutable configuration of one node. A new value only
// takes effect through Machine.Reconfigure.
type ClientConfig struct {
	SessionID            string
	EventTypeID          string
	BrokerAddress        string
	BrokerPort           uint16
	SubscribeCommandType string
	PublishInterval      time.Duration

	// Topic templates; {client}, {event} and {cmd} are expanded.
	PublishTopic   string
	SubscribeTopic string
	Username       string
	Password       string

	StatePollInterval time.Duration
	NetPollInterval   time.Duration
	ReconnectInterval time.Duration
	StableTime        time.Duration
	MaxAttempts       int
	MaxBackoffShift   uint

	PayloadCapacity  int
	IdentityCapacity int
	OverflowPolicy   OverflowPolicy
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SessionID:            "smh-node",
		EventTypeID:          "status",
		BrokerAddress:        "localhost",
		BrokerPort:           DefaultBrokerPort,
		SubscribeCommandType: "+",
		PublishInterval:      DefaultPublishInterval,
		PublishTopic:         "smh/{client}/evt/{event}",
		SubscribeTopic:       "smh/{client}/cmd/{cmd}",
		StatePollInterval:    DefaultStatePollInterval,
		NetPollInterval:      DefaultNetPollInterval,
		ReconnectInterval:    DefaultReconnectInterval,
		StableTime:           DefaultStableTime,
		MaxAttempts:          RetryForever,
		MaxBackoffShift:      DefaultBackoffShift,
		PayloadCapacity:      DefaultPayloadCapacity,
		IdentityCapacity:     DefaultIdentityCapacity,
		OverflowPolicy:       OverflowDrop,
	}
}

// KeepAlive is the keep-alive hint passed to the broker on connect.
func (c ClientConfig) KeepAlive() time.Duration {
	return c.PublishInterval * keepAliveFactor
}

// RetryForever reports whether the reconnect cap is disabled.
func (c ClientConfig) RetryForever() bool {
	return c.MaxAttempts == RetryForever
}

// withDefaults fills zero timing and capacity fields so a partially
// populated config never arms a zero-length poll loop.
func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultClientConfig()
	if c.PublishInterval <= 0 {
		c.PublishInterval = d.PublishInterval
	}
	if c.StatePollInterval <= 0 {
		c.StatePollInterval = d.StatePollInterval
	}
	if c.NetPollInterval <= 0 {
		c.NetPollInterval = d.NetPollInterval
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = d.ReconnectInterval
	}
	if c.StableTime <= 0 {
		c.StableTime = d.StableTime
	}
	if c.PayloadCapacity <= 0 {
		c.PayloadCapacity = d.PayloadCapacity
	}
	if c.IdentityCapacity <= 0 {
		c.IdentityCapacity = d.IdentityCapacity
	}
	if c.OverflowPolicy == "" {
		c.OverflowPolicy = d.OverflowPolicy
	}
	if c.BrokerPort == 0 {
		c.BrokerPort = d.BrokerPort
	}
	return c
}
