package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/spi"
	"tinygo.org/x/drivers"

	"sensorhub-go/types"
)

// ---- driver ----

type fakeDriver struct {
	mu         sync.Mutex
	values     []float64 // consumed in order, the last one repeats
	n          int
	sampleErr  error
	controlErr error
	cmds       []types.Command
	deleted    bool
}

func (d *fakeDriver) Sample(_ context.Context, g *types.DataGroup) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sampleErr != nil {
		return d.sampleErr
	}
	v := float64(d.n + 1)
	if len(d.values) > 0 {
		v = d.values[min(d.n, len(d.values)-1)]
	}
	d.n++
	return g.Append(types.Sample{Kind: types.SampleTemperature, Celsius: v})
}

func (d *fakeDriver) Control(cmd types.Command, _ any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmds = append(d.cmds, cmd)
	if cmd == types.CmdEnableInterrupt || cmd == types.CmdDisableInterrupt {
		return ErrUnsupported
	}
	return d.controlErr
}

func (d *fakeDriver) Delete() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = true
	return nil
}

func (d *fakeDriver) setSampleErr(err error) {
	d.mu.Lock()
	d.sampleErr = err
	d.mu.Unlock()
}

// fakeImpl is the factory for SensorTemperature in tests.
type fakeImpl struct {
	mu        sync.Mutex
	createErr error
	values    []float64
	drivers   map[types.SensorID]*fakeDriver
}

func (f *fakeImpl) Create(_ Buses, info *types.SensorInfo) (Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	d := &fakeDriver{values: f.values}
	if f.drivers == nil {
		f.drivers = map[types.SensorID]*fakeDriver{}
	}
	f.drivers[info.ID] = d
	return d, nil
}

func (f *fakeImpl) driver(id types.SensorID) *fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drivers[id]
}

// ---- buses ----

type fakePin struct {
	n       int
	mu      sync.Mutex
	edge    types.Edge
	handler func()
	clrErr  error
}

func (p *fakePin) Number() int { return p.n }
func (p *fakePin) Get() bool   { return false }

func (p *fakePin) SetIRQ(edge types.Edge, handler func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edge, p.handler = edge, handler
	return nil
}

func (p *fakePin) ClearIRQ() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clrErr != nil {
		return p.clrErr
	}
	p.handler = nil
	return nil
}

func (p *fakePin) failClear(err error) {
	p.mu.Lock()
	p.clrErr = err
	p.mu.Unlock()
}

func (p *fakePin) armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler != nil
}

func (p *fakePin) fire() {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h()
	}
}

// fakeI2C acknowledges only the listed addresses.
type fakeI2C struct{ acks map[uint16]bool }

func (b *fakeI2C) Tx(addr uint16, _, _ []byte) error {
	if b.acks[addr] {
		return nil
	}
	return errors.New("nack")
}

type fakeBuses struct {
	pins    map[int]*fakePin
	i2c     map[string]*fakeI2C
	openErr error
}

func newFakeBuses() *fakeBuses {
	return &fakeBuses{pins: map[int]*fakePin{}, i2c: map[string]*fakeI2C{}}
}

func (b *fakeBuses) pin(n int) *fakePin {
	p, ok := b.pins[n]
	if !ok {
		p = &fakePin{n: n}
		b.pins[n] = p
	}
	return p
}

func (b *fakeBuses) I2C(name string) (drivers.I2C, bool) {
	bus, ok := b.i2c[name]
	return bus, ok
}

func (b *fakeBuses) SPI(string) (spi.Conn, bool)      { return nil, false }
func (b *fakeBuses) ADC(string) (analog.PinADC, bool) { return nil, false }

func (b *fakeBuses) Line(n int) (IRQPin, bool) {
	p, ok := b.pins[n]
	return p, ok
}

func (b *fakeBuses) I2CNames() []string {
	var out []string
	for _, n := range []string{"i2c0", "i2c1"} {
		if _, ok := b.i2c[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

func (b *fakeBuses) Open(context.Context, types.BusConfig) error { return b.openErr }
func (b *fakeBuses) Close() error                                { return nil }

// ---- callback recorder ----

type recorded struct {
	id   types.SensorID
	kind types.EventKind
	data any
}

type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) cb(id types.SensorID, kind types.EventKind, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{id, kind, data})
}

func (r *recorder) kinds() []types.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.kind)
	}
	return out
}

func (r *recorder) count(kind types.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) groups() []*types.DataGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.DataGroup
	for _, e := range r.events {
		if g, ok := e.data.(*types.DataGroup); ok && e.kind == types.EventDataReady {
			out = append(out, g)
		}
	}
	return out
}

// ---- harness ----

func tempSensor(id types.SensorID) types.SensorInfo {
	return types.SensorInfo{
		Name:       "temp",
		ID:         id,
		Type:       types.SensorTemperature,
		Bus:        types.BusI2C,
		BusName:    "i2c0",
		Address:    0x48,
		Mode:       types.ModePolling,
		Interval:   time.Second,
		MaxSamples: 4,
		Delivery:   types.Delivery{Mode: types.DeliveryTimeout, Timeout: time.Second},
	}
}

func irqSensor(id types.SensorID, line int) types.SensorInfo {
	s := tempSensor(id)
	s.Mode = types.ModeInterrupt
	s.Interval = 0
	s.IntPin = line
	s.IntEdge = types.EdgeFalling
	s.Delivery = types.Delivery{Mode: types.DeliveryCount, Count: 1}
	return s
}

type harness struct {
	hub   *Hub
	clk   *clock.Mock
	impl  *fakeImpl
	buses *fakeBuses
	rec   *recorder
	ack   *types.Ack
}

// newHarness builds and starts a hub on a mock clock with a registered
// callback. tweak may adjust the options before construction.
func newHarness(t *testing.T, tweak func(*Options), sensors ...types.SensorInfo) *harness {
	t.Helper()
	h := &harness{
		clk:   clock.NewMock(),
		impl:  &fakeImpl{},
		buses: newFakeBuses(),
		rec:   &recorder{},
		ack:   &types.Ack{},
	}
	table := NewImplTable()
	table.Register(types.SensorTemperature, h.impl)
	opts := Options{
		Config: &types.HubConfig{Board: "test", Sensors: sensors},
		Buses:  h.buses,
		Impl:   table,
		Clock:  h.clk,
		Logger: zaptest.NewLogger(t),
	}
	if tweak != nil {
		tweak(&opts)
	}
	h.hub = New(opts)
	test.That(t, h.hub.NotifyRegister(h.rec.cb, h.ack), test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	test.That(t, h.hub.Start(ctx), test.ShouldBeNil)
	t.Cleanup(func() {
		cancel()
		_ = h.hub.Wait()
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// advanceUntil moves the mock clock in steps until cond holds or limit of
// mock time has passed.
func (h *harness) advanceUntil(t *testing.T, what string, step, limit time.Duration, cond func() bool) {
	t.Helper()
	for elapsed := time.Duration(0); !cond(); elapsed += step {
		if elapsed > limit {
			t.Fatalf("%s not reached after %s", what, limit)
		}
		h.clk.Add(step)
		time.Sleep(time.Millisecond)
	}
}

// settle lets in-flight work drain without moving mock time.
func settle() { time.Sleep(20 * time.Millisecond) }
