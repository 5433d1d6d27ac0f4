package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	mqttIface "github.com/tetragramaton/smh-node/internal/interface/mqtt"
	"github.com/tetragramaton/smh-node/internal/node"
)

const DefaultLineQueue = 64

// Machine is the part of node.Machine the dispatcher drives.
type Machine interface {
	Evaluate()
	HandleEvent(ev mqttIface.Event)
	AppendLine(line []byte) error
	Reconfigure(cfg node.ClientConfig)
}

// Dispatcher runs a Machine on one goroutine. Input lines are served before
// protocol events, protocol events before reconfiguration, and all of them
// before timer fires. It also implements node.Timer: only the most recent
// Arm can wake the loop.
type Dispatcher struct {
	log *zap.Logger

	lines     *queue[[]byte]
	events    *queue[mqttIface.Event]
	reconfigs *queue[node.ClientConfig]
	wake      chan struct{}
	dropped   atomic.Uint64

	mu    sync.Mutex
	gen   uint64
	due   bool
	timer *time.Timer
}

var _ node.Timer = (*Dispatcher)(nil)

func New(lineQueue int, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if lineQueue <= 0 {
		lineQueue = DefaultLineQueue
	}
	return &Dispatcher{
		log:       log.Named("dispatch"),
		lines:     newQueue[[]byte](lineQueue),
		events:    newQueue[mqttIface.Event](0),
		reconfigs: newQueue[node.ClientConfig](0),
		wake:      make(chan struct{}, 1),
	}
}

// SubmitLine queues an input line. It never blocks; a line that finds the
// queue full is dropped.
func (d *Dispatcher) SubmitLine(line []byte) {
	if !d.lines.push(line) {
		d.dropped.Add(1)
		d.log.Warn("line queue full, dropping line", zap.Int("bytes", len(line)))
	}
}

// Sink is the EventSink handed to the MQTT session.
func (d *Dispatcher) Sink() mqttIface.EventSink {
	return func(ev mqttIface.Event) { d.events.push(ev) }
}

func (d *Dispatcher) SubmitConfig(cfg node.ClientConfig) {
	d.reconfigs.push(cfg)
}

// Dropped is the number of lines lost to a full queue.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

func (d *Dispatcher) Arm(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	d.due = false
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.timer = time.AfterFunc(delay, func() { d.fire(gen) })
}

func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	d.due = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Dispatcher) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.due = true
	d.mu.Unlock()
	notify(d.wake)
}

func (d *Dispatcher) takeDue() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	due := d.due
	d.due = false
	return due
}

// Run serves m until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, m Machine) error {
	defer d.Stop()

	for {
		if line, ok := d.lines.pop(); ok {
			if err := m.AppendLine(line); err != nil {
				d.log.Debug("line not buffered", zap.Error(err))
			}
			continue
		}
		if ev, ok := d.events.pop(); ok {
			m.HandleEvent(ev)
			continue
		}
		if cfg, ok := d.reconfigs.pop(); ok {
			m.Reconfigure(cfg)
			continue
		}
		if d.takeDue() {
			m.Evaluate()
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-d.lines.ready:
		case <-d.events.ready:
		case <-d.reconfigs.ready:
		case <-d.wake:
		}
	}
}

// queue is a FIFO with a coalescing readiness signal. A limit <= 0 means
// unbounded.
type queue[T any] struct {
	mu    sync.Mutex
	items []T
	limit int
	ready chan struct{}
}

func newQueue[T any](limit int) *queue[T] {
	return &queue[T]{limit: limit, ready: make(chan struct{}, 1)}
}

func (q *queue[T]) push(v T) bool {
	q.mu.Lock()
	if q.limit > 0 && len(q.items) >= q.limit {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	notify(q.ready)
	return true
}

func (q *queue[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
