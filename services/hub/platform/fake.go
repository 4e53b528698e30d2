package platform

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"tinygo.org/x/drivers"

	"sensorhub-go/services/hub"
	"sensorhub-go/types"
)

// Fake is an in-memory bus provider. Buses named by the configuration are
// created on Open; devices and channels are attached by the caller.
type Fake struct {
	mu      sync.Mutex
	i2c     map[string]*FakeI2C
	names   []string
	spi     map[string]spi.Conn
	adc     map[string]*FakeADC
	lines   map[int]*FakePin
	openErr map[string]error
}

func NewFake() *Fake {
	return &Fake{
		i2c:     make(map[string]*FakeI2C),
		spi:     make(map[string]spi.Conn),
		adc:     make(map[string]*FakeADC),
		lines:   make(map[int]*FakePin),
		openErr: make(map[string]error),
	}
}

// FailOpen makes Open report err for the named bus and leave it closed.
func (f *Fake) FailOpen(name string, err error) {
	f.mu.Lock()
	f.openErr[name] = err
	f.mu.Unlock()
}

// Bus returns the named I²C bus, creating it if needed.
func (f *Fake) Bus(name string) *FakeI2C {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busLocked(name)
}

func (f *Fake) busLocked(name string) *FakeI2C {
	b, ok := f.i2c[name]
	if !ok {
		b = &FakeI2C{devs: make(map[uint16]*FakeDevice)}
		f.i2c[name] = b
		f.names = append(f.names, name)
	}
	return b
}

// AttachSPI serves c as the named SPI bus.
func (f *Fake) AttachSPI(name string, c spi.Conn) {
	f.mu.Lock()
	f.spi[name] = c
	f.mu.Unlock()
}

// Channel returns the named ADC channel, creating it if needed.
func (f *Fake) Channel(name string) *FakeADC {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channelLocked(name)
}

func (f *Fake) channelLocked(name string) *FakeADC {
	a, ok := f.adc[name]
	if !ok {
		a = &FakeADC{name: name, max: 4095, ref: 3300 * physic.MilliVolt}
		f.adc[name] = a
	}
	return a
}

// Pin returns GPIO line n, creating it if needed.
func (f *Fake) Pin(n int) *FakePin {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pinLocked(n)
}

func (f *Fake) pinLocked(n int) *FakePin {
	p, ok := f.lines[n]
	if !ok {
		p = &FakePin{n: n}
		f.lines[n] = p
	}
	return p
}

func (f *Fake) Open(_ context.Context, cfg types.BusConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	fail := func(name string) bool {
		if e, ok := f.openErr[name]; ok {
			err = multierr.Append(err, errors.Wrapf(e, "open %s", name))
			return true
		}
		return false
	}
	for _, b := range cfg.I2C {
		if !fail(b.Name) {
			f.busLocked(b.Name)
		}
	}
	for _, b := range cfg.SPI {
		if fail(b.Name) {
			continue
		}
		if _, ok := f.spi[b.Name]; !ok {
			err = multierr.Append(err, errors.Errorf("open %s: no device attached", b.Name))
		}
	}
	for _, c := range cfg.ADC {
		if !fail(c.Name) {
			f.channelLocked(c.Name)
		}
	}
	for _, l := range cfg.GPIO {
		f.pinLocked(l.Line)
	}
	return err
}

func (f *Fake) Close() error { return nil }

func (f *Fake) I2C(name string) (drivers.I2C, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.i2c[name]
	return b, ok
}

func (f *Fake) SPI(name string) (spi.Conn, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.spi[name]
	return c, ok
}

func (f *Fake) ADC(name string) (analog.PinADC, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.adc[name]
	return a, ok
}

func (f *Fake) Line(n int) (hub.IRQPin, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.lines[n]
	return p, ok
}

func (f *Fake) I2CNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

// ---- I²C ----

// FakeI2C routes transfers to register-file devices by address. Addresses
// with no device NACK.
type FakeI2C struct {
	mu   sync.Mutex
	devs map[uint16]*FakeDevice
}

// Device returns the device at addr, creating it if needed.
func (b *FakeI2C) Device(addr uint16) *FakeDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devs[addr]
	if !ok {
		d = &FakeDevice{}
		b.devs[addr] = d
	}
	return d
}

// Remove detaches the device at addr.
func (b *FakeI2C) Remove(addr uint16) {
	b.mu.Lock()
	delete(b.devs, addr)
	b.mu.Unlock()
}

func (b *FakeI2C) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	d, ok := b.devs[addr]
	b.mu.Unlock()
	if !ok {
		return errors.Errorf("i2c: nack at %#02x", addr)
	}
	return d.tx(w, r)
}

// FakeDevice is a 256-byte register file with an auto-incrementing pointer.
// A write sets the pointer from w[0] and stores the rest; a read continues
// from the pointer.
type FakeDevice struct {
	mu   sync.Mutex
	regs [256]byte
	ptr  byte
	fail error
}

// Set stores data from reg onwards.
func (d *FakeDevice) Set(reg byte, data ...byte) {
	d.mu.Lock()
	for i, v := range data {
		d.regs[reg+byte(i)] = v
	}
	d.mu.Unlock()
}

func (d *FakeDevice) Reg(reg byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[reg]
}

// Fail makes every transfer return err until cleared with nil.
func (d *FakeDevice) Fail(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

func (d *FakeDevice) tx(w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	if len(w) > 0 {
		d.ptr = w[0]
		for i, v := range w[1:] {
			d.regs[d.ptr+byte(i)] = v
		}
	}
	for i := range r {
		r[i] = d.regs[d.ptr+byte(i)]
	}
	return nil
}

// ---- ADC ----

// FakeADC is a 12-bit channel with a 3.3 V reference.
type FakeADC struct {
	mu   sync.Mutex
	name string
	raw  int32
	max  int32
	ref  physic.ElectricPotential
	err  error
}

// Set changes the next conversion result. A non-nil err fails reads.
func (a *FakeADC) Set(raw int32, err error) {
	a.mu.Lock()
	a.raw, a.err = raw, err
	a.mu.Unlock()
}

func (a *FakeADC) String() string   { return a.name }
func (a *FakeADC) Name() string     { return a.name }
func (a *FakeADC) Number() int      { return -1 }
func (a *FakeADC) Function() string { return "ADC" }
func (a *FakeADC) Halt() error      { return nil }

func (a *FakeADC) Range() (analog.Sample, analog.Sample) {
	return analog.Sample{}, analog.Sample{V: a.ref, Raw: a.max}
}

func (a *FakeADC) Read() (analog.Sample, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return analog.Sample{}, a.err
	}
	return analog.Sample{V: a.ref * physic.ElectricPotential(a.raw) / physic.ElectricPotential(a.max), Raw: a.raw}, nil
}

// ---- GPIO ----

// FakePin is an interrupt line driven by Fire.
type FakePin struct {
	n       int
	mu      sync.Mutex
	level   bool
	edge    types.Edge
	handler func()
}

func (p *FakePin) Number() int { return p.n }

func (p *FakePin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *FakePin) SetIRQ(edge types.Edge, handler func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edge, p.handler = edge, handler
	return nil
}

func (p *FakePin) ClearIRQ() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edge, p.handler = types.EdgeNone, nil
	return nil
}

// Armed reports whether a handler is installed.
func (p *FakePin) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler != nil
}

// Fire toggles the level and runs the handler as an edge would.
func (p *FakePin) Fire() {
	p.mu.Lock()
	p.level = !p.level
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h()
	}
}
