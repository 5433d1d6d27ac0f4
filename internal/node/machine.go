package node

import (
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	mqttIface "github.com/tetragramaton/smh-node/internal/interface/mqtt"
	netIface "github.com/tetragramaton/smh-node/internal/interface/network"
	serialIface "github.com/tetragramaton/smh-node/internal/interface/serial"
)

// maxImmediateSteps bounds the chain of transitions that run inside one
// evaluation without waiting for a new event.
const maxImmediateSteps = 4

type stepResult int

const (
	stepDefault stepResult = iota // arm the default state poll
	stepArmed                     // the step armed its own timer
	stepIdle                      // no timer
	stepAgain                     // evaluate the new state immediately
)

// Machine is the connection lifecycle of one node. It owns the state, the
// retry counter, the identity and the payload buffer. All methods must be
// called from a single goroutine (see dispatch.Dispatcher); a nested call
// made while another is running is logged and ignored.
type Machine struct {
	cfg      ClientConfig
	hw       net.HardwareAddr
	session  mqttIface.Session
	network  netIface.Readiness
	timer    Timer
	clock    Clock
	gate     serialIface.LineGate
	observer Observer
	incoming IncomingHandler
	signal   func(Signal)
	log      *zap.Logger

	state      State
	identity   Identity
	attempt    int
	linkStart  time.Time
	stableAt   time.Time
	subscribed bool
	buf        *PayloadBuffer
	busy       bool
}

type Option func(*Machine)

func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) { m.log = l }
}

func WithClock(c Clock) Option {
	return func(m *Machine) { m.clock = c }
}

func WithObserver(o Observer) Option {
	return func(m *Machine) { m.observer = o }
}

func WithLineGate(g serialIface.LineGate) Option {
	return func(m *Machine) { m.gate = g }
}

func WithIncomingHandler(h IncomingHandler) Option {
	return func(m *Machine) { m.incoming = h }
}

func WithSignal(fn func(Signal)) Option {
	return func(m *Machine) { m.signal = fn }
}

func NewMachine(cfg ClientConfig, hw net.HardwareAddr, session mqttIface.Session, network netIface.Readiness, timer Timer, opts ...Option) *Machine {
	m := &Machine{
		hw:       hw,
		session:  session,
		network:  network,
		timer:    timer,
		clock:    systemClock{},
		gate:     nopGate{},
		observer: nopObserver{},
		log:      zap.NewNop(),
		state:    StateInit,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cfg = cfg.withDefaults()
	m.buf = NewPayloadBuffer(m.cfg.PayloadCapacity)
	return m
}

// Start schedules the first evaluation as soon as possible.
func (m *Machine) Start() {
	m.timer.Arm(0)
}

func (m *Machine) State() State { return m.state }

func (m *Machine) Attempt() int { return m.attempt }

func (m *Machine) Identity() Identity { return m.identity }

// Buffered returns the number of payload bytes waiting to be published.
func (m *Machine) Buffered() int { return m.buf.Len() }

// LinkUptime is the time since the broker connection was established, or
// zero when no connection is up.
func (m *Machine) LinkUptime() time.Duration {
	if m.linkStart.IsZero() {
		return 0
	}
	return m.clock.Now().Sub(m.linkStart)
}

// Evaluate runs the lifecycle for one timer fire or poll. In Publishing an
// idle session gets the buffered payload through Session.Publish; an empty
// buffer is not published and the interval is re-armed all the same.
func (m *Machine) Evaluate() {
	if !m.enter("evaluate") {
		return
	}
	defer m.leave()
	m.evaluate()
}

// HandleEvent applies a protocol event. A broker disconnect is followed by
// an immediate evaluation.
func (m *Machine) HandleEvent(ev mqttIface.Event) {
	if !m.enter("event") {
		return
	}
	defer m.leave()
	if m.handleEvent(ev) {
		m.evaluate()
	}
}

// AppendLine adds one input line to the payload buffer. On success a
// publishing machine is polled so the data goes out without waiting for the
// next tick. On overflow the configured OverflowPolicy applies and the
// overflow error is returned unless the policy recovered the line.
func (m *Machine) AppendLine(line []byte) error {
	if !m.enter("append") {
		return fmt.Errorf("append: re-entrant call")
	}
	defer m.leave()

	m.gate.Disable()
	err := m.buf.AppendLine(line)
	if err != nil {
		err = m.handleOverflow(line, err)
	}
	m.reopenGate()
	if err != nil {
		return err
	}

	m.observer.LineAppended(len(line))
	if m.state == StatePublishing {
		m.evaluate()
	}
	return nil
}

// Reconfigure installs cfg and restarts the lifecycle from Init. It is the
// only way out of StateConfigError.
func (m *Machine) Reconfigure(cfg ClientConfig) {
	if !m.enter("reconfigure") {
		return
	}
	defer m.leave()

	if m.state.linked() || m.state == StateDisconnected {
		m.session.Disconnect()
	}
	m.cfg = cfg.withDefaults()
	m.buf = NewPayloadBuffer(m.cfg.PayloadCapacity)
	m.subscribed = false
	m.gate.Disable()
	m.linkStart, m.stableAt = time.Time{}, time.Time{}
	m.log.Info("configuration updated, restarting lifecycle")
	m.setState(StateInit)
	m.timer.Arm(0)
}

func (m *Machine) enter(op string) bool {
	if m.busy {
		m.log.Error("re-entrant call ignored", zap.String("op", op), zap.Stringer("state", m.state))
		return false
	}
	m.busy = true
	return true
}

func (m *Machine) leave() { m.busy = false }

func (m *Machine) evaluate() {
	for i := 0; i < maxImmediateSteps; i++ {
		switch m.step() {
		case stepAgain:
			continue
		case stepDefault:
			m.timer.Arm(m.cfg.StatePollInterval)
			return
		default:
			return
		}
	}
	m.log.Error("immediate re-evaluation limit reached", zap.Stringer("state", m.state))
	m.timer.Arm(m.cfg.StatePollInterval)
}

func (m *Machine) step() stepResult {
	switch m.state {
	case StateInit:
		return m.stepInit()
	case StateRegistered:
		return m.stepRegistered()
	case StateConnecting:
		m.emit(SignalConnecting)
		m.log.Debug("connecting", zap.Int("attempt", m.attempt))
		return stepDefault
	case StateConnected, StatePublishing:
		return m.stepLinked()
	case StateDisconnected:
		return m.stepDisconnected()
	case StateConfigError:
		m.log.Debug("bad configuration, waiting for reconfiguration")
		return stepIdle
	default:
		m.emit(SignalFault)
		m.log.Debug("terminal state", zap.Stringer("state", m.state))
		return stepIdle
	}
}

func (m *Machine) stepInit() stepResult {
	id, err := BuildIdentity(m.cfg, m.hw)
	if err != nil {
		m.log.Error("building identity", zap.Error(err))
		m.enterTerminal(StateConfigError)
		return stepIdle
	}
	if err := m.session.Register(m.cfg.SessionID, id.ClientID); err != nil {
		m.log.Error("registering session", zap.Error(err))
		m.enterTerminal(StateConfigError)
		return stepIdle
	}
	// Always pushed so a reconfigure without credentials clears the old ones.
	m.session.SetCredentials(id.Username, id.Password)
	m.identity = id
	m.subscribed = false
	m.setAttempt(1)
	m.log.Info("session registered",
		zap.String("client_id", id.ClientID),
		zap.String("publish_topic", id.PublishTopic),
		zap.String("subscribe_topic", id.SubscribeTopic))
	m.setState(StateRegistered)
	return stepAgain
}

func (m *Machine) stepRegistered() stepResult {
	if m.network.HasUsableAddress() {
		m.connect()
	} else {
		m.emit(SignalWaitingForNetwork)
		m.log.Debug("waiting for a usable network address", zap.Error(ErrTransientLink))
	}
	m.timer.Arm(m.cfg.NetPollInterval)
	return stepArmed
}

func (m *Machine) connect() {
	err := m.session.Connect(m.cfg.BrokerAddress, m.cfg.BrokerPort, m.cfg.KeepAlive())
	if errors.Is(err, mqttIface.ErrBusy) {
		m.log.Debug("connect deferred, session busy")
		return
	}
	if err != nil {
		m.log.Warn("connect request failed", zap.Error(err))
		return
	}
	m.log.Info("connecting to broker",
		zap.String("broker", m.cfg.BrokerAddress),
		zap.Uint16("port", m.cfg.BrokerPort),
		zap.Int("attempt", m.attempt))
	m.setState(StateConnecting)
}

func (m *Machine) stepLinked() stepResult {
	m.checkStable()

	if m.session.IsSendInFlight() {
		m.emit(SignalStillPublishing)
		m.log.Debug("send in flight, not issuing a new one", zap.Stringer("state", m.state))
		return stepDefault
	}

	if m.state == StateConnected {
		if err := m.session.Subscribe(m.identity.SubscribeTopic, mqttIface.QoS0); err != nil {
			m.log.Warn("subscribe request failed", zap.Error(err))
			return stepDefault
		}
		m.log.Info("subscribing", zap.String("topic", m.identity.SubscribeTopic))
		m.setState(StatePublishing)
	} else {
		m.publish()
	}
	m.timer.Arm(m.cfg.PublishInterval)
	return stepArmed
}

// publish hands the buffer to the session at most once per call. Empty
// buffers are skipped, so a fire with nothing buffered issues no Publish.
// A rejected publish keeps the payload for the next interval.
func (m *Machine) publish() {
	n := m.buf.Len()
	if n == 0 {
		m.log.Debug("payload buffer empty, nothing to publish")
		return
	}

	m.gate.Disable()
	defer m.reopenGate()

	err := m.session.Publish(m.identity.PublishTopic, m.buf.Bytes(), mqttIface.QoS0, mqttIface.RetainOff)
	if err != nil {
		m.log.Warn("publish request failed, keeping payload", zap.Error(err), zap.Int("bytes", n))
		return
	}
	m.buf.Reset()
	m.emit(SignalPublishing)
	m.observer.Published(n)
	m.log.Info("published", zap.String("topic", m.identity.PublishTopic), zap.Int("bytes", n))
}

func (m *Machine) stepDisconnected() stepResult {
	if m.cfg.RetryForever() || m.attempt < m.cfg.MaxAttempts {
		m.session.Disconnect()
		m.setAttempt(m.attempt + 1)
		delay := Backoff(m.attempt, m.cfg.ReconnectInterval, m.cfg.MaxBackoffShift)
		m.observer.BackoffScheduled(delay)
		m.log.Info("disconnected, backing off",
			zap.Int("attempt", m.attempt),
			zap.Duration("delay", delay))
		m.timer.Arm(delay)
		m.setState(StateRegistered)
		return stepArmed
	}

	m.log.Error("aborting connection",
		zap.Int("attempts", m.attempt),
		zap.Error(ErrRetryExhausted))
	m.enterTerminal(StateError)
	return stepIdle
}

func (m *Machine) handleEvent(ev mqttIface.Event) (poll bool) {
	switch ev.Kind {
	case mqttIface.EventConnected:
		if m.state != StateConnecting {
			m.log.Warn("unexpected connect event", zap.Stringer("state", m.state))
			return false
		}
		now := m.clock.Now()
		m.linkStart = now
		m.stableAt = now.Add(m.cfg.StableTime)
		m.log.Info("broker connection established")
		m.setState(StateConnected)

	case mqttIface.EventDisconnected:
		if !m.state.linked() {
			m.log.Debug("disconnect ignored", zap.Stringer("state", m.state))
			return false
		}
		m.checkStable()
		m.linkStart, m.stableAt = time.Time{}, time.Time{}
		m.subscribed = false
		m.gate.Disable()
		m.observer.Disconnected()
		m.log.Info("broker disconnected",
			zap.Stringer("state", m.state),
			zap.NamedError("reason", ev.Reason),
			zap.Error(ErrTransientLink))
		m.setState(StateDisconnected)
		return true

	case mqttIface.EventSubscribed:
		m.subscribed = true
		m.gate.Enable()
		m.log.Info("subscribed", zap.String("topic", m.identity.SubscribeTopic))

	case mqttIface.EventUnsubscribed:
		m.log.Info("unsubscribed", zap.String("topic", m.identity.SubscribeTopic))

	case mqttIface.EventPublishAck:
		m.log.Debug("publish complete")

	case mqttIface.EventIncomingPublish:
		if m.incoming != nil {
			m.incoming(ev.Message)
		}

	default:
		m.log.Warn("unhandled protocol event", zap.Stringer("kind", ev.Kind), zap.Int("code", ev.Code))
	}
	return false
}

func (m *Machine) handleOverflow(line []byte, err error) error {
	switch m.cfg.OverflowPolicy {
	case OverflowReset:
		m.log.Warn("payload buffer full, discarding unpublished data",
			zap.Int("discarded", m.buf.Len()), zap.Error(err))
		m.buf.Reset()
		if err := m.buf.AppendLine(line); err != nil {
			m.observer.LineRejected()
			return err
		}
		return nil
	case OverflowFatal:
		m.log.Error("payload buffer overflow", zap.Error(err))
		m.observer.LineRejected()
		m.session.Disconnect()
		m.enterTerminal(StateConfigError)
		return err
	default:
		m.log.Warn("line dropped", zap.Error(err))
		m.observer.LineRejected()
		return err
	}
}

// checkStable resets the retry counter once the current connection has
// outlived StableTime.
func (m *Machine) checkStable() {
	if m.stableAt.IsZero() || m.clock.Now().Before(m.stableAt) {
		return
	}
	if m.attempt != 0 {
		m.log.Debug("connection stable, retry counter reset", zap.Duration("uptime", m.LinkUptime()))
		m.setAttempt(0)
	}
}

func (m *Machine) enterTerminal(s State) {
	m.timer.Stop()
	m.gate.Disable()
	m.subscribed = false
	m.emit(SignalFault)
	m.setState(s)
}

func (m *Machine) reopenGate() {
	if m.subscribed {
		m.gate.Enable()
	}
}

func (m *Machine) setState(s State) {
	if s == m.state {
		return
	}
	from := m.state
	m.state = s
	m.observer.StateChanged(from, s)
	m.log.Debug("state transition", zap.Stringer("from", from), zap.Stringer("to", s))
}

func (m *Machine) setAttempt(n int) {
	m.attempt = n
	m.observer.AttemptChanged(n)
}

func (m *Machine) emit(s Signal) {
	if m.signal != nil {
		m.signal(s)
	}
}
