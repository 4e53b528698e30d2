// Package hub is the sensor hub: sensor lifecycle, polling and interrupt
// sampling, delivery-mode evaluation and the event manager that hands data
// to one application callback.
//
// A Hub bundles all process-wide hub state. On embedded targets it is
// created once and never torn down; on hosts Start's context bounds its
// goroutines.
package hub

import (
	"context"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/spi"
	"tinygo.org/x/drivers"

	"sensorhub-go/bus"
	"sensorhub-go/errcode"
	"sensorhub-go/services/hub/internal/alarm"
	"sensorhub-go/services/hub/internal/em"
	"sensorhub-go/services/hub/internal/gpioirq"
	"sensorhub-go/services/hub/internal/halcore"
	"sensorhub-go/services/hub/internal/impl"
	"sensorhub-go/services/hub/internal/irqmap"
	"sensorhub-go/services/hub/internal/power"
	"sensorhub-go/services/hub/internal/registry"
	"sensorhub-go/types"
	"sensorhub-go/x/mathx"
)

// Driver contract and bus access, re-exported for backends and platforms.
type (
	Driver      = halcore.Driver
	Factory     = halcore.Factory
	FactoryFunc = halcore.FactoryFunc
	Buses       = halcore.Buses
	Provider    = halcore.Provider
	IRQPin      = halcore.IRQPin
	ImplTable   = impl.Table

	PowerState = power.State
	Transition = power.Transition
)

var (
	ErrUnsupported = halcore.ErrUnsupported
	ErrUnknownBus  = halcore.ErrUnknownBus
	ErrNotReady    = halcore.ErrNotReady
)

const (
	PS4   = power.PS4
	PS2   = power.PS2
	Sleep = power.Sleep

	ToPS2   = power.ToPS2
	ToPS4   = power.ToPS4
	ToSleep = power.ToSleep
	Wakeup  = power.Wakeup
)

// Register adds a backend to the process-wide implementation table. Device
// packages call it from init().
func Register(typ types.SensorType, f Factory) { impl.Register(typ, f) }

// NewImplTable returns an empty implementation table for Options.Impl.
func NewImplTable() *ImplTable { return impl.NewTable() }

// Options configures a Hub. Zero values select the defaults.
type Options struct {
	// Config is the static sensor configuration table.
	Config *types.HubConfig
	// Buses opens and serves the buses referenced by Config.
	Buses Provider
	// Impl maps sensor types to backends; defaults to the process-wide table.
	Impl *ImplTable

	MaxSensors   int           // registry slots, 1..32 (default 8)
	MaxLine      int           // highest routable interrupt line (default 31)
	EMQueueLen   int           // event queue depth (default 10)
	PostTimeout  time.Duration // bounded wait for a full event queue (default 10ms)
	LockTimeout  time.Duration // bounded wait for the lifecycle lock (default 100ms)
	MemoryBudget int           // bytes available for sample buffers (default 16 KiB)
	AlarmPeriod  time.Duration // polling tick (default Config.AlarmPeriod, then 10ms)

	// Power overrides the platform power controller.
	Power  power.Controller
	Clock  clock.Clock
	Logger *zap.Logger
	// Conn, if set, mirrors every event on the message bus.
	Conn *bus.Connection
}

const (
	defaultMaxSensors   = 8
	defaultMaxLine      = 31
	defaultPostTimeout  = 10 * time.Millisecond
	defaultLockTimeout  = 100 * time.Millisecond
	defaultMemoryBudget = 16 << 10
)

// sampleSize is the memory-budget charge per buffered sample.
var sampleSize = int(unsafe.Sizeof(types.Sample{}))

type Hub struct {
	opts  Options
	log   *zap.Logger
	slog  *zap.Logger // sensor task
	clk   clock.Clock
	cfg   *types.HubConfig
	buses Provider
	impls *ImplTable

	lock  *semaphore.Weighted // registry and interrupt map
	reg   *registry.Registry
	irqs  *irqmap.Map
	gpio  *gpioirq.Worker
	alarm *alarm.Alarm
	em    *em.Manager
	power *power.Task

	flags atomic.Uint32 // event-flag word, bit = registry index
	wake  chan struct{}

	inited  atomic.Bool
	running atomic.Bool
	g       *errgroup.Group

	memUsed     atomic.Int64
	live        atomic.Int32
	samples     atomic.Uint64
	deliveries  atomic.Uint64
	sampleFails atomic.Uint64
}

func New(opts Options) *Hub {
	if opts.Config == nil {
		opts.Config = &types.HubConfig{}
	}
	if opts.Buses == nil {
		opts.Buses = noBuses{}
	}
	if opts.Impl == nil {
		opts.Impl = impl.Default
	}
	if opts.MaxSensors <= 0 {
		opts.MaxSensors = defaultMaxSensors
	}
	opts.MaxSensors = mathx.Clamp(opts.MaxSensors, 1, registry.Limit)
	if opts.MaxLine <= 0 {
		opts.MaxLine = defaultMaxLine
	}
	if opts.EMQueueLen <= 0 {
		opts.EMQueueLen = em.DefaultQueueLen
	}
	if opts.PostTimeout <= 0 {
		opts.PostTimeout = defaultPostTimeout
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if opts.MemoryBudget <= 0 {
		opts.MemoryBudget = defaultMemoryBudget
	}
	if opts.AlarmPeriod <= 0 {
		opts.AlarmPeriod = opts.Config.AlarmPeriod
	}
	if opts.AlarmPeriod <= 0 {
		opts.AlarmPeriod = alarm.DefaultPeriod
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	h := &Hub{
		opts:  opts,
		log:   opts.Logger.Named("hub"),
		slog:  opts.Logger.Named("sensor"),
		clk:   opts.Clock,
		cfg:   opts.Config,
		buses: opts.Buses,
		impls: opts.Impl,
		lock:  semaphore.NewWeighted(1),
		reg:   registry.New(opts.MaxSensors),
		irqs:  irqmap.New(opts.MaxLine + 1),
		wake:  make(chan struct{}, 1),
	}
	h.gpio = gpioirq.New(h.signalLine)
	h.alarm = alarm.New(alarm.Config{
		Clock:  opts.Clock,
		Period: opts.AlarmPeriod,
		Logger: opts.Logger.Named("alarm"),
	})
	h.em = em.New(em.Config{
		QueueLen: opts.EMQueueLen,
		Clock:    opts.Clock,
		Logger:   opts.Logger.Named("em"),
		Conn:     opts.Conn,
	})
	ctl := opts.Power
	if ctl == nil {
		ctl = powerControl{h: h}
	}
	h.power = power.New(power.Config{
		Controller:   ctl,
		Logger:       opts.Logger.Named("power"),
		ActivePeriod: opts.AlarmPeriod,
	})
	return h
}

// Start launches the sensor, event manager, power and alarm goroutines. The
// alarm is already armed when Start returns.
func (h *Hub) Start(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return errcode.Newf(errcode.TaskCreationFailed, "start", "hub already running")
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.alarm.Run(gctx) })
	g.Go(func() error { return h.em.Run(gctx) })
	g.Go(func() error { return h.runSensorTask(gctx) })
	g.Go(func() error { return h.power.Run(gctx) })
	h.g = g
	h.log.Info("hub started",
		zap.Int("max_sensors", h.reg.Cap()),
		zap.Duration("alarm_period", h.opts.AlarmPeriod),
		zap.Int("em_queue", h.opts.EMQueueLen))
	return nil
}

// Wait blocks until every hub goroutine has returned.
func (h *Hub) Wait() error {
	if h.g == nil {
		return nil
	}
	return h.g.Wait()
}

// RequestPower asks the power task for a transition. It never blocks.
func (h *Hub) RequestPower(t Transition) error { return h.power.Request(t) }

func (h *Hub) PowerState() PowerState { return h.power.State() }

// Stats are cumulative hub counters.
type Stats struct {
	Sensors        int
	MemoryUsed     int
	Samples        uint64
	Deliveries     uint64
	SampleFailures uint64
	ISRFired       uint32
	ISRDrops       uint32
	AlarmTicks     uint64
	Power          PowerState
	Events         em.Stats
}

func (h *Hub) Stats() Stats {
	return Stats{
		Sensors:        int(h.live.Load()),
		MemoryUsed:     int(h.memUsed.Load()),
		Samples:        h.samples.Load(),
		Deliveries:     h.deliveries.Load(),
		SampleFailures: h.sampleFails.Load(),
		ISRFired:       h.gpio.ISRFired(),
		ISRDrops:       h.gpio.ISRDrops(),
		AlarmTicks:     h.alarm.Ticks(),
		Power:          h.power.State(),
		Events:         h.em.Stats(),
	}
}

// acquire takes the lifecycle lock with a bounded wait.
func (h *Hub) acquire(op string) (func(), error) {
	ctx, cancel := h.clk.WithTimeout(context.Background(), h.opts.LockTimeout)
	defer cancel()
	if err := h.lock.Acquire(ctx, 1); err != nil {
		return nil, errcode.New(errcode.MutexTimeout, op, err)
	}
	return func() { h.lock.Release(1) }, nil
}

// post hands a lifecycle or sampling event to the event manager.
func (h *Hub) post(id types.SensorID, kind types.EventKind, data any, err error) error {
	return h.em.Post(types.Event{Sensor: id, Kind: kind, Data: data, Err: err, TS: h.clk.Now()}, h.opts.PostTimeout)
}

// signal marks registry slots due and wakes the sensor task. Safe from
// interrupt and alarm context.
func (h *Hub) signal(bits uint32) {
	h.flags.Or(bits)
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// signalLine is the ISR path: resolve the line, then signal.
func (h *Hub) signalLine(line int) bool {
	idx, ok := h.irqs.Lookup(line)
	if !ok {
		return false
	}
	h.signal(1 << uint(idx))
	return true
}

// noBuses serves a hub built without a bus provider.
type noBuses struct{}

func (noBuses) I2C(string) (drivers.I2C, bool)              { return nil, false }
func (noBuses) SPI(string) (spi.Conn, bool)                 { return nil, false }
func (noBuses) ADC(string) (analog.PinADC, bool)            { return nil, false }
func (noBuses) Line(int) (IRQPin, bool)                     { return nil, false }
func (noBuses) I2CNames() []string                          { return nil }
func (noBuses) Open(context.Context, types.BusConfig) error { return nil }
func (noBuses) Close() error                                { return nil }
