package mqtt

import (
	"crypto/tls"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	mqttIface "github.com/tetragramaton/smh-node/internal/interface/mqtt"
)

// Config holds the transport settings that are not part of the node
// identity.
type Config struct {
	TLS            bool
	TLSInsecure    bool
	ConnectTimeout time.Duration
	PingTimeout    time.Duration
	Quiesce        time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		PingTimeout:    3 * time.Second,
		Quiesce:        250 * time.Millisecond,
	}
}

// Session is a mqttIface.Session backed by paho. Every request is
// non-blocking; completions are reported through the EventSink from paho's
// goroutines.
type Session struct {
	cfg       Config
	sink      mqttIface.EventSink
	log       *zap.Logger
	newClient func(*mqtt.ClientOptions) mqtt.Client

	// live is read by paho callbacks without taking mu, since paho may
	// wait for those callbacks while Disconnect runs under mu.
	live atomic.Value // liveClient

	mu        sync.Mutex
	sessionID string
	clientID  string
	username  string
	password  string
	client    mqtt.Client
	pending   mqtt.Token
}

var _ mqttIface.Session = (*Session)(nil)

type liveClient struct{ c mqtt.Client }

func NewSession(cfg Config, sink mqttIface.EventSink, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		cfg:       cfg,
		sink:      sink,
		log:       log.Named("mqtt"),
		newClient: mqtt.NewClient,
	}
}

func (s *Session) Register(sessionID, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if clientID == "" {
		return mqttIface.ErrNotRegistered
	}
	s.dropClientLocked()
	s.sessionID = sessionID
	s.clientID = clientID
	s.username, s.password = "", ""
	s.log.Debug("session registered", zap.String("session", sessionID), zap.String("client_id", clientID))
	return nil
}

func (s *Session) SetCredentials(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
	s.password = password
}

// BrokerURL formats address and port as a paho server URL. IPv6 literals
// are bracketed.
func BrokerURL(address string, port uint16, useTLS bool) string {
	scheme := "tcp"
	if useTLS {
		scheme = "ssl"
	}
	return scheme + "://" + net.JoinHostPort(address, strconv.Itoa(int(port)))
}

func (s *Session) Connect(address string, port uint16, keepAlive time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clientID == "" {
		return mqttIface.ErrNotRegistered
	}
	if s.inFlightLocked() {
		return mqttIface.ErrBusy
	}
	s.dropClientLocked()

	opts := mqtt.NewClientOptions().
		AddBroker(BrokerURL(address, port, s.cfg.TLS)).
		SetClientID(s.clientID).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetPingTimeout(s.cfg.PingTimeout).
		SetOrderMatters(false).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOnConnectHandler(func(c mqtt.Client) {
			s.emitFor(c, mqttIface.Event{Kind: mqttIface.EventConnected})
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			s.emitFor(c, mqttIface.Event{Kind: mqttIface.EventDisconnected, Reason: err})
		}).
		SetDefaultPublishHandler(func(c mqtt.Client, m mqtt.Message) {
			s.emitFor(c, mqttIface.Event{
				Kind: mqttIface.EventIncomingPublish,
				Message: mqttIface.Message{
					Topic:   m.Topic(),
					Payload: append([]byte(nil), m.Payload()...),
					QoS:     m.Qos(),
					Retain:  m.Retained(),
				},
			})
		})

	if s.username != "" {
		opts.SetUsername(s.username)
		opts.SetPassword(s.password)
	}
	if s.cfg.TLS {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: s.cfg.TLSInsecure})
	}

	client := s.newClient(opts)
	s.client = client
	s.live.Store(liveClient{client})
	t := client.Connect()
	s.pending = t

	s.watch(client, t, func(err error) {
		if err != nil {
			s.log.Warn("connect failed", zap.Error(err))
			s.emitFor(client, mqttIface.Event{Kind: mqttIface.EventDisconnected, Reason: err})
		}
	})
	return nil
}

func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropClientLocked()
}

func (s *Session) Subscribe(topic string, qos byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(); err != nil {
		return err
	}
	client := s.client
	t := client.Subscribe(topic, qos, nil)
	s.pending = t

	s.watch(client, t, func(err error) {
		if err != nil {
			s.log.Warn("subscribe failed", zap.String("topic", topic), zap.Error(err))
			return
		}
		s.emitFor(client, mqttIface.Event{Kind: mqttIface.EventSubscribed})
	})
	return nil
}

// Publish hands a copy of payload to paho; the caller may reuse its buffer
// as soon as Publish returns.
func (s *Session) Publish(topic string, payload []byte, qos byte, retain bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(); err != nil {
		return err
	}
	data := append([]byte(nil), payload...)
	client := s.client
	t := client.Publish(topic, qos, retain, data)
	s.pending = t

	s.watch(client, t, func(err error) {
		if err != nil {
			s.log.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
			return
		}
		s.emitFor(client, mqttIface.Event{Kind: mqttIface.EventPublishAck})
	})
	return nil
}

func (s *Session) IsSendInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlightLocked()
}

// Close releases the broker connection on shutdown.
func (s *Session) Close() error {
	s.Disconnect()
	return nil
}

func (s *Session) readyLocked() error {
	if s.client == nil {
		return mqttIface.ErrNotRegistered
	}
	if s.inFlightLocked() {
		return mqttIface.ErrBusy
	}
	return nil
}

func (s *Session) inFlightLocked() bool {
	if s.pending == nil {
		return false
	}
	select {
	case <-s.pending.Done():
		return false
	default:
		return true
	}
}

func (s *Session) dropClientLocked() {
	if s.client == nil {
		return
	}
	s.live.Store(liveClient{})
	// Disconnect also aborts a connect still in progress.
	s.client.Disconnect(uint(s.cfg.Quiesce / time.Millisecond))
	s.client = nil
	s.pending = nil
}

func (s *Session) watch(c mqtt.Client, t mqtt.Token, done func(error)) {
	go func() {
		<-t.Done()
		if s.isCurrent(c) {
			done(t.Error())
		}
	}()
}

// isCurrent reports whether c is still the live client. Callbacks from a
// dropped client are discarded.
func (s *Session) isCurrent(c mqtt.Client) bool {
	l, _ := s.live.Load().(liveClient)
	return l.c != nil && l.c == c
}

func (s *Session) emitFor(c mqtt.Client, ev mqttIface.Event) {
	if s.sink == nil || !s.isCurrent(c) {
		return
	}
	s.sink(ev)
}
