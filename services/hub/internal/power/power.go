// services/hub/internal/power/power.go
package power

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"sensorhub-go/errcode"
)

// State is the system power state.
type State uint8

const (
	PS4   State = iota // active
	PS2                // low power, reduced clock
	Sleep              // sleep with wake sources armed
)

func (s State) String() string {
	switch s {
	case PS4:
		return "ps4"
	case PS2:
		return "ps2"
	case Sleep:
		return "sleep"
	}
	return "unknown"
}

// Transition is a requested state change.
type Transition uint8

const (
	None Transition = iota
	ToPS2
	ToPS4
	ToSleep
	Wakeup
)

func (t Transition) String() string {
	switch t {
	case ToPS2:
		return "ps4_to_ps2"
	case ToPS4:
		return "ps2_to_ps4"
	case ToSleep:
		return "sleep"
	case Wakeup:
		return "wakeup"
	}
	return "none"
}

// Controller applies a state to the platform.
type Controller interface {
	// ConfigureWakeSources arms the sources that may end s.
	ConfigureWakeSources(s State) error
	// SetAlarmPeriod retimes the periodic alarm for s.
	SetAlarmPeriod(d time.Duration) error
}

type Config struct {
	Controller Controller
	Logger     *zap.Logger
	// Alarm period per state; zero leaves the defaults.
	ActivePeriod   time.Duration
	LowPowerPeriod time.Duration
	SleepPeriod    time.Duration
}

// Task runs power transitions. Requests go through a binary semaphore: a
// request made while one is pending replaces it.
type Task struct {
	cfg Config
	log *zap.Logger

	sem     chan struct{}
	pending atomic.Uint32
	state   atomic.Uint32
	before  State // state to resume on wakeup; task goroutine only

	applied, rejected atomic.Uint64
}

func New(cfg Config) *Task {
	if cfg.ActivePeriod <= 0 {
		cfg.ActivePeriod = 10 * time.Millisecond
	}
	if cfg.LowPowerPeriod <= 0 {
		cfg.LowPowerPeriod = 4 * cfg.ActivePeriod
	}
	if cfg.SleepPeriod <= 0 {
		cfg.SleepPeriod = 100 * cfg.ActivePeriod
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Task{cfg: cfg, log: cfg.Logger, sem: make(chan struct{}, 1)}
}

// Request records tr and gives the semaphore. It never blocks.
func (t *Task) Request(tr Transition) error {
	if tr == None || tr > Wakeup {
		return errcode.Newf(errcode.InvalidParameters, "power.request", "transition %d", tr)
	}
	t.pending.Store(uint32(tr))
	select {
	case t.sem <- struct{}{}:
	default:
	}
	return nil
}

func (t *Task) State() State { return State(t.state.Load()) }

// Applied and Rejected count completed and refused transitions.
func (t *Task) Applied() uint64  { return t.applied.Load() }
func (t *Task) Rejected() uint64 { return t.rejected.Load() }

// Run takes the semaphore and applies the pending transition until ctx is
// cancelled.
func (t *Task) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.sem:
			tr := Transition(t.pending.Swap(uint32(None)))
			if tr == None {
				continue
			}
			t.apply(tr)
		}
	}
}

func (t *Task) apply(tr Transition) {
	cur := t.State()
	next, ok := t.target(cur, tr)
	if !ok {
		t.rejected.Add(1)
		t.log.Warn("power transition not valid from current state",
			zap.Stringer("state", cur), zap.Stringer("transition", tr))
		return
	}
	if c := t.cfg.Controller; c != nil {
		if err := c.ConfigureWakeSources(next); err != nil {
			t.rejected.Add(1)
			t.log.Error("configure wake sources", zap.Stringer("state", next), zap.Error(err))
			return
		}
		if err := c.SetAlarmPeriod(t.period(next)); err != nil {
			t.log.Error("set alarm period", zap.Stringer("state", next), zap.Error(err))
		}
	}
	if next == Sleep {
		t.before = cur
	}
	t.state.Store(uint32(next))
	t.applied.Add(1)
	t.log.Info("power state", zap.Stringer("from", cur), zap.Stringer("to", next))
}

func (t *Task) target(cur State, tr Transition) (State, bool) {
	switch {
	case tr == ToPS2 && cur == PS4:
		return PS2, true
	case tr == ToPS4 && cur == PS2:
		return PS4, true
	case tr == ToSleep && cur != Sleep:
		return Sleep, true
	case tr == Wakeup && cur == Sleep:
		return t.before, true
	}
	return cur, false
}

func (t *Task) period(s State) time.Duration {
	switch s {
	case PS2:
		return t.cfg.LowPowerPeriod
	case Sleep:
		return t.cfg.SleepPeriod
	}
	return t.cfg.ActivePeriod
}
