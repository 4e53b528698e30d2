// Package platform provides the bus providers the hub runs on: Periph opens
// real host buses through periph.io, Fake serves in-memory devices.
package platform

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"sensorhub-go/services/hub"
	"sensorhub-go/types"
)

// edgePoll bounds each WaitForEdge so a cleared line's goroutine exits.
const edgePoll = 100 * time.Millisecond

// Periph opens host buses by periph registry name. Buses that fail to open
// are skipped; Open reports every failure.
//
// periph has no registry for analog converters, so ADC channels are served
// only when the board attaches a converter for them with AttachADC.
type Periph struct {
	log *zap.Logger

	mu       sync.RWMutex
	i2c      map[string]drivers.I2C
	names    []string
	spi      map[string]spi.Conn
	attached map[string]analog.PinADC
	adc      map[string]analog.PinADC
	lines    map[int]*periphLine
	closers  []io.Closer
}

func NewPeriph(log *zap.Logger) *Periph {
	if log == nil {
		log = zap.NewNop()
	}
	return &Periph{
		log:      log,
		i2c:      make(map[string]drivers.I2C),
		spi:      make(map[string]spi.Conn),
		attached: make(map[string]analog.PinADC),
		adc:      make(map[string]analog.PinADC),
		lines:    make(map[int]*periphLine),
	}
}

// AttachADC makes converter a available as the ADC channel name once a
// configuration naming it is opened.
func (p *Periph) AttachADC(name string, a analog.PinADC) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached[name] = a
}

func (p *Periph) Open(_ context.Context, cfg types.BusConfig) error {
	if _, err := host.Init(); err != nil {
		return errors.Wrap(err, "periph host init")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	err := multierr.Combine(
		p.openI2C(cfg.I2C),
		p.openSPI(cfg.SPI),
		p.openADC(cfg.ADC),
		p.openGPIO(cfg.GPIO),
	)
	p.log.Info("buses opened",
		zap.Strings("i2c", p.names),
		zap.Int("spi", len(p.spi)),
		zap.Int("adc", len(p.adc)),
		zap.Int("gpio", len(p.lines)),
	)
	return err
}

func (p *Periph) openI2C(buses []types.I2CBus) error {
	var err error
	for _, b := range buses {
		bus, e := i2creg.Open(b.Name)
		if e != nil {
			err = multierr.Append(err, errors.Wrapf(e, "open i2c %s", b.Name))
			continue
		}
		if b.SpeedHz > 0 {
			if e := bus.SetSpeed(physic.Frequency(b.SpeedHz) * physic.Hertz); e != nil {
				p.log.Warn("i2c speed not applied", zap.String("bus", b.Name), zap.Error(e))
			}
		}
		p.i2c[b.Name] = bus
		p.names = append(p.names, b.Name)
		p.closers = append(p.closers, bus)
	}
	return err
}

func (p *Periph) openSPI(buses []types.SPIBus) error {
	var err error
	for _, b := range buses {
		port, e := spireg.Open(b.Name)
		if e != nil {
			err = multierr.Append(err, errors.Wrapf(e, "open spi %s", b.Name))
			continue
		}
		bits := b.Bits
		if bits == 0 {
			bits = 8
		}
		conn, e := port.Connect(physic.Frequency(b.FrequencyHz)*physic.Hertz, spi.Mode(b.Mode), bits)
		if e != nil {
			err = multierr.Append(err, errors.Wrapf(e, "connect spi %s", b.Name))
			_ = port.Close()
			continue
		}
		p.spi[b.Name] = conn
		p.closers = append(p.closers, port)
	}
	return err
}

func (p *Periph) openADC(chans []types.ADCChannel) error {
	var err error
	for _, c := range chans {
		a, ok := p.attached[c.Name]
		if !ok {
			err = multierr.Append(err, errors.Errorf("adc %s: no converter attached for pin %q", c.Name, c.Pin))
			continue
		}
		p.adc[c.Name] = a
	}
	return err
}

func (p *Periph) openGPIO(lines []types.GPIOLine) error {
	var err error
	for _, l := range lines {
		pin := gpioreg.ByName(l.Pin)
		if pin == nil {
			err = multierr.Append(err, errors.Errorf("gpio %d: no pin %q", l.Line, l.Pin))
			continue
		}
		pull, e := pullOf(l.Pull)
		if e != nil {
			err = multierr.Append(err, errors.Wrapf(e, "gpio %d", l.Line))
			continue
		}
		p.lines[l.Line] = &periphLine{n: l.Line, pin: pin, pull: pull}
	}
	return err
}

func (p *Periph) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	for _, l := range p.lines {
		err = multierr.Append(err, l.ClearIRQ())
	}
	for _, c := range p.closers {
		err = multierr.Append(err, c.Close())
	}
	p.closers = nil
	return err
}

func (p *Periph) I2C(name string) (drivers.I2C, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.i2c[name]
	return b, ok
}

func (p *Periph) SPI(name string) (spi.Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.spi[name]
	return c, ok
}

func (p *Periph) ADC(name string) (analog.PinADC, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.adc[name]
	return a, ok
}

func (p *Periph) Line(n int) (hub.IRQPin, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	l, ok := p.lines[n]
	return l, ok
}

func (p *Periph) I2CNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.names...)
}

func pullOf(s string) (gpio.Pull, error) {
	switch s {
	case "", "none":
		return gpio.Float, nil
	case "up":
		return gpio.PullUp, nil
	case "down":
		return gpio.PullDown, nil
	}
	return gpio.PullNoChange, errors.Errorf("pull %q", s)
}

func edgeOf(e types.Edge) (gpio.Edge, error) {
	switch e {
	case types.EdgeRising:
		return gpio.RisingEdge, nil
	case types.EdgeFalling:
		return gpio.FallingEdge, nil
	case types.EdgeBoth:
		return gpio.BothEdges, nil
	}
	return gpio.NoEdge, errors.Errorf("edge %s not supported on host gpio", e)
}

// periphLine turns WaitForEdge into a handler callback. A goroutine per
// armed line stands in for the interrupt vector.
type periphLine struct {
	n    int
	pin  gpio.PinIn
	pull gpio.Pull

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (l *periphLine) Number() int { return l.n }
func (l *periphLine) Get() bool   { return l.pin.Read() == gpio.High }

func (l *periphLine) SetIRQ(edge types.Edge, handler func()) error {
	ge, err := edgeOf(edge)
	if err != nil {
		return err
	}
	if err := l.ClearIRQ(); err != nil {
		return err
	}
	if err := l.pin.In(l.pull, ge); err != nil {
		return errors.Wrapf(err, "gpio %d", l.n)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	stop, done := make(chan struct{}), make(chan struct{})
	l.stop, l.done = stop, done
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if l.pin.WaitForEdge(edgePoll) {
				select {
				case <-stop:
					return
				default:
					handler()
				}
			}
		}
	}()
	return nil
}

func (l *periphLine) ClearIRQ() error {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return errors.Wrapf(l.pin.In(l.pull, gpio.NoEdge), "gpio %d", l.n)
}
