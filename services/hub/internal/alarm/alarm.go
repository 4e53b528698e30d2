// services/hub/internal/alarm/alarm.go
package alarm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"sensorhub-go/errcode"
)

// DefaultPeriod is the alarm tick when none is configured.
const DefaultPeriod = 10 * time.Millisecond

type Config struct {
	Clock  clock.Clock
	Period time.Duration
	Logger *zap.Logger
}

// Alarm is the periodic tick source. Software timers are checked against
// their deadlines on every tick, so a timer's resolution is the alarm period.
type Alarm struct {
	clk clock.Clock
	log *zap.Logger

	mu     sync.Mutex
	period time.Duration
	ticker *clock.Ticker
	timers []*Timer

	ticks atomic.Uint64
}

// New arms the ticker immediately; Run consumes it.
func New(cfg Config) *Alarm {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Alarm{
		clk:    cfg.Clock,
		log:    cfg.Logger,
		period: cfg.Period,
		ticker: cfg.Clock.Ticker(cfg.Period),
	}
}

func (a *Alarm) Period() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.period
}

// SetPeriod retimes the tick source. Armed timers keep their deadlines.
func (a *Alarm) SetPeriod(d time.Duration) error {
	if d <= 0 {
		return errcode.Newf(errcode.InvalidParameters, "alarm.set_period", "period %s", d)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if d == a.period {
		return nil
	}
	a.period = d
	a.ticker.Reset(d)
	a.log.Debug("alarm period changed", zap.Duration("period", d))
	return nil
}

// Ticks is the number of alarm callbacks serviced so far.
func (a *Alarm) Ticks() uint64 { return a.ticks.Load() }

// Run services ticks until ctx is cancelled.
func (a *Alarm) Run(ctx context.Context) error {
	defer a.ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.ticker.C:
			a.tick(a.clk.Now())
		}
	}
}

func (a *Alarm) tick(now time.Time) {
	a.ticks.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.timers {
		if !t.armed || now.Before(t.next) {
			continue
		}
		t.next = t.next.Add(t.period)
		if !t.next.After(now) {
			// Missed periods are collapsed into one expiry.
			t.next = now.Add(t.period)
		}
		t.fired++
		t.fn()
	}
}

// Armed returns how many timers are currently running.
func (a *Alarm) Armed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, t := range a.timers {
		if t.armed {
			n++
		}
	}
	return n
}

// Len returns how many timers exist, armed or not.
func (a *Alarm) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.timers)
}

// -----------------------------------------------------------------------------
// Software timers
// -----------------------------------------------------------------------------

// Timer is a periodic software timer driven by the alarm. fn runs on the alarm
// goroutine with the alarm lock held: it must not block and must not call back
// into the alarm.
type Timer struct {
	a      *Alarm
	period time.Duration
	fn     func()

	next    time.Time
	armed   bool
	deleted bool
	fired   uint64
}

// NewTimer creates a stopped periodic timer.
func (a *Alarm) NewTimer(period time.Duration, fn func()) (*Timer, error) {
	const op = "alarm.new_timer"
	if period <= 0 || fn == nil {
		return nil, errcode.Newf(errcode.TimerCreationFailed, op, "period %s", period)
	}
	t := &Timer{a: a, period: period, fn: fn}
	a.mu.Lock()
	a.timers = append(a.timers, t)
	a.mu.Unlock()
	return t, nil
}

// Start arms the timer; the first expiry is one period from now.
func (t *Timer) Start() error {
	t.a.mu.Lock()
	defer t.a.mu.Unlock()
	if t.deleted {
		return errcode.Newf(errcode.TimerStartFailed, "alarm.start", "timer deleted")
	}
	t.next = t.a.clk.Now().Add(t.period)
	t.armed = true
	return nil
}

// Stop disarms the timer. After Stop returns fn will not run again.
func (t *Timer) Stop() error {
	t.a.mu.Lock()
	defer t.a.mu.Unlock()
	if t.deleted {
		return errcode.Newf(errcode.TimerStopFailed, "alarm.stop", "timer deleted")
	}
	t.armed = false
	return nil
}

// Delete stops the timer and removes it from the alarm.
func (t *Timer) Delete() {
	a := t.a
	a.mu.Lock()
	defer a.mu.Unlock()
	t.armed = false
	t.deleted = true
	for i, x := range a.timers {
		if x == t {
			a.timers = append(a.timers[:i], a.timers[i+1:]...)
			break
		}
	}
}

func (t *Timer) Armed() bool {
	t.a.mu.Lock()
	defer t.a.mu.Unlock()
	return t.armed
}

// Fired returns how many times the timer has expired.
func (t *Timer) Fired() uint64 {
	t.a.mu.Lock()
	defer t.a.mu.Unlock()
	return t.fired
}
