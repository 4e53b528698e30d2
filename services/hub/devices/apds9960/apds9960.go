// Package apds9960 backs gesture sensors with an APDS-9960, which also
// measures proximity and RGB/clear light. One engine runs at a time.
package apds9960

import (
	"context"

	"github.com/pkg/errors"
	"tinygo.org/x/drivers/apds9960"

	"sensorhub-go/errcode"
	"sensorhub-go/services/hub"
	"sensorhub-go/services/hub/devices/internal/drvshim"
	"sensorhub-go/types"
)

func init() { hub.Register(types.SensorGesture, hub.FactoryFunc(New)) }

// Function selects the active engine; pass it with CmdSetFunction.
type Function uint8

const (
	Proximity Function = iota
	Color
	Gesture
)

type Driver struct {
	i2c *drvshim.I2C
	dev apds9960.Device
	fn  Function
	on  bool // an engine is running; the chip reads zeros otherwise
}

// New checks the device ID and starts the proximity engine.
func New(b hub.Buses, info *types.SensorInfo) (hub.Driver, error) {
	if info.Bus != types.BusI2C {
		return nil, errcode.Newf(errcode.InvalidParameters, "apds9960", "bus %s", info.Bus)
	}
	bus, ok := b.I2C(info.BusName)
	if !ok {
		return nil, errors.Wrapf(hub.ErrUnknownBus, "apds9960: i2c %q", info.BusName)
	}
	d := &Driver{i2c: drvshim.NewI2C(bus)}
	d.dev = apds9960.New(d.i2c)
	if info.Address != 0 {
		d.dev.Address = uint8(info.Address)
	}
	if !d.dev.Connected() {
		err := d.i2c.Err()
		if err == nil {
			err = errors.New("unexpected device id")
		}
		return nil, errors.Wrapf(err, "apds9960 at %#02x", d.dev.Address)
	}
	d.dev.Configure(apds9960.Configuration{})
	if err := d.enable(Proximity); err != nil {
		return nil, errors.Wrap(err, "apds9960: configure")
	}
	return d, nil
}

func (d *Driver) enable(fn Function) error {
	switch fn {
	case Proximity:
		d.dev.EnableProximity()
	case Color:
		d.dev.EnableColor()
	case Gesture:
		d.dev.EnableGesture()
	default:
		return errcode.Newf(errcode.InvalidParameters, "apds9960", "function %d", fn)
	}
	if err := d.i2c.Err(); err != nil {
		d.on = false
		return err
	}
	d.fn, d.on = fn, true
	return nil
}

func (d *Driver) disable() error {
	d.dev.DisableAll()
	d.on = false
	return d.i2c.Err()
}

// Sample reads the active engine. It returns hub.ErrNotReady while powered
// off, and in gesture mode until a gesture has been recognised.
func (d *Driver) Sample(_ context.Context, g *types.DataGroup) error {
	if !d.on {
		return hub.ErrNotReady
	}
	var s types.Sample
	switch d.fn {
	case Proximity:
		s = types.Sample{Kind: types.SampleProximity, Proximity: d.dev.ReadProximity()}
	case Color:
		r, gr, b, c := d.dev.ReadColor()
		s = types.Sample{Kind: types.SampleRGBW, RGBW: types.RGBW{R: r, G: gr, B: b, W: c}}
	case Gesture:
		ok := d.dev.GestureAvailable()
		if err := d.i2c.Err(); err != nil {
			return errors.Wrap(err, "apds9960: gesture")
		}
		if !ok {
			return hub.ErrNotReady
		}
		s = types.Sample{Kind: types.SampleGesture, Gesture: d.dev.ReadGesture()}
	}
	if err := d.i2c.Err(); err != nil {
		return errors.Wrap(err, "apds9960: read")
	}
	return g.Append(s)
}

// Control supports power and CmdSetFunction with a Function.
func (d *Driver) Control(cmd types.Command, arg any) error {
	switch cmd {
	case types.CmdPowerOn, types.CmdReset:
		return d.enable(d.fn)
	case types.CmdPowerOff:
		return d.disable()
	case types.CmdSetFunction:
		fn, ok := arg.(Function)
		if !ok {
			return errcode.Newf(errcode.InvalidParameters, "apds9960", "function arg %T", arg)
		}
		return d.enable(fn)
	}
	return hub.ErrUnsupported
}

func (d *Driver) Delete() error { return d.disable() }
