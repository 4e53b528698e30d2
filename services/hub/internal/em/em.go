// services/hub/internal/em/em.go
package em

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"sensorhub-go/bus"
	"sensorhub-go/errcode"
	"sensorhub-go/types"
)

// DefaultQueueLen is the event queue depth when none is configured.
const DefaultQueueLen = 10

type Config struct {
	QueueLen int
	Clock    clock.Clock
	Logger   *zap.Logger
	// Conn, if set, receives a copy of every dispatched event.
	Conn *bus.Connection
}

// Stats are cumulative counters.
type Stats struct {
	Posted     uint64
	Dropped    uint64 // post timed out on a full queue
	Delivered  uint64 // handed to the callback
	Discarded  uint64 // no callback registered
	QueueDepth int
}

// Manager is the single consumer of hub events. The callback only ever runs
// on the Run goroutine.
type Manager struct {
	clk  clock.Clock
	log  *zap.Logger
	conn *bus.Connection

	q   chan types.Event
	reg atomic.Pointer[registration]

	posted, dropped, delivered, discarded atomic.Uint64
}

type registration struct {
	cb  types.Callback
	ack *types.Ack
}

func New(cfg Config) *Manager {
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = DefaultQueueLen
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{
		clk:  cfg.Clock,
		log:  cfg.Logger,
		conn: cfg.Conn,
		q:    make(chan types.Event, cfg.QueueLen),
	}
}

// Register installs the callback and acknowledgment slot, replacing any
// previous pair as a unit.
func (m *Manager) Register(cb types.Callback, ack *types.Ack) error {
	if cb == nil || ack == nil {
		return errcode.Newf(errcode.InvalidParameters, "em.register", "callback and ack are required")
	}
	m.reg.Store(&registration{cb: cb, ack: ack})
	return nil
}

// Registered reports whether a callback is installed.
func (m *Manager) Registered() bool { return m.reg.Load() != nil }

// Post enqueues ev, waiting up to wait for room. On timeout the event is
// dropped and QueueFull returned.
func (m *Manager) Post(ev types.Event, wait time.Duration) error {
	if ev.TS.IsZero() {
		ev.TS = m.clk.Now()
	}
	select {
	case m.q <- ev:
		m.posted.Add(1)
		return nil
	default:
	}
	if wait > 0 {
		select {
		case m.q <- ev:
			m.posted.Add(1)
			return nil
		case <-m.clk.After(wait):
		}
	}
	m.dropped.Add(1)
	m.log.Warn("event dropped, queue full",
		zap.Uint8("sensor", uint8(ev.Sensor)),
		zap.Stringer("kind", ev.Kind),
		zap.Duration("wait", wait))
	return errcode.Newf(errcode.QueueFull, "em.post", "sensor %d %s", ev.Sensor, ev.Kind)
}

// Run dispatches events until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-m.q:
			m.dispatch(ev)
		}
	}
}

func (m *Manager) dispatch(ev types.Event) {
	m.mirror(ev)

	r := m.reg.Load()
	if r == nil {
		m.discarded.Add(1)
		return
	}
	r.cb(ev.Sensor, ev.Kind, ev.Data)
	r.ack.Store(ev.Sensor)
	m.delivered.Add(1)
}

// mirror publishes ev on the bus: every event under .../event, and the
// lifecycle state retained under .../state.
func (m *Manager) mirror(ev types.Event) {
	if m.conn == nil {
		return
	}
	id := int(ev.Sensor)
	msg := EventMessage{Sensor: ev.Sensor, Kind: ev.Kind.String(), TS: ev.TS}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	if g, ok := ev.Data.(*types.DataGroup); ok {
		msg.Samples = append([]types.Sample(nil), g.Valid()...)
	}
	m.conn.Publish(m.conn.NewMessage(bus.T("hub", "sensor", id, "event"), msg, false))

	switch ev.Kind {
	case types.EventStarted:
		m.conn.Publish(m.conn.NewMessage(bus.T("hub", "sensor", id, "state"), types.StatusStarted.String(), true))
	case types.EventStopped:
		m.conn.Publish(m.conn.NewMessage(bus.T("hub", "sensor", id, "state"), types.StatusStopped.String(), true))
	case types.EventDeleted:
		m.conn.Publish(m.conn.NewMessage(bus.T("hub", "sensor", id, "state"), nil, true))
	}
}

// EventMessage is the bus payload for a mirrored event.
type EventMessage struct {
	Sensor  types.SensorID `json:"sensor"`
	Kind    string         `json:"kind"`
	Error   string         `json:"error,omitempty"`
	Samples []types.Sample `json:"samples,omitempty"`
	TS      time.Time      `json:"ts"`
}

func (m *Manager) Stats() Stats {
	return Stats{
		Posted:     m.posted.Load(),
		Dropped:    m.dropped.Load(),
		Delivered:  m.delivered.Load(),
		Discarded:  m.discarded.Load(),
		QueueDepth: len(m.q),
	}
}
