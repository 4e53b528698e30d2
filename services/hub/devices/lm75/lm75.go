// Package lm75 backs temperature sensors with an LM75 on I²C.
package lm75

import (
	"context"

	"github.com/pkg/errors"

	"sensorhub-go/drivers/lm75"
	"sensorhub-go/errcode"
	"sensorhub-go/services/hub"
	"sensorhub-go/types"
)

func init() { hub.Register(types.SensorTemperature, hub.FactoryFunc(New)) }

// Limits is the CmdSetRange argument: the over-temperature trip point and
// its hysteresis, in milli-°C.
type Limits struct {
	High int32
	Hyst int32
}

type Driver struct {
	dev lm75.Device
	cfg lm75.Config
}

// New configures the OS output (interrupt mode for interrupt-mode sensors)
// and reads the configuration back as the probe.
func New(b hub.Buses, info *types.SensorInfo) (hub.Driver, error) {
	if info.Bus != types.BusI2C {
		return nil, errcode.Newf(errcode.InvalidParameters, "lm75", "bus %s", info.Bus)
	}
	bus, ok := b.I2C(info.BusName)
	if !ok {
		return nil, errors.Wrapf(hub.ErrUnknownBus, "lm75: i2c %q", info.BusName)
	}
	d := &Driver{
		dev: lm75.New(bus),
		cfg: lm75.Config{
			Address:   info.Address,
			Interrupt: info.Mode == types.ModeInterrupt,
		},
	}
	if err := d.dev.Configure(d.cfg); err != nil {
		return nil, errors.Wrap(err, "lm75: configure")
	}
	if !d.dev.Connected() {
		return nil, errors.Errorf("lm75: no device at %#02x", d.dev.Address)
	}
	return d, nil
}

func (d *Driver) Sample(_ context.Context, g *types.DataGroup) error {
	t, err := d.dev.Sense()
	if err != nil {
		return errors.Wrap(err, "lm75: read")
	}
	return g.Append(types.Sample{Kind: types.SampleTemperature, Celsius: t.Celsius()})
}

func (d *Driver) Control(cmd types.Command, arg any) error {
	switch cmd {
	case types.CmdPowerOn:
		return d.dev.Shutdown(false)
	case types.CmdPowerOff:
		return d.dev.Shutdown(true)
	case types.CmdReset:
		return d.dev.Configure(d.cfg)
	case types.CmdSetRange:
		l, ok := arg.(Limits)
		if !ok {
			return errcode.Newf(errcode.InvalidParameters, "lm75", "limits arg %T", arg)
		}
		return d.dev.SetLimits(l.High, l.Hyst)
	case types.CmdEnableInterrupt, types.CmdDisableInterrupt:
		c := d.cfg
		c.Interrupt = cmd == types.CmdEnableInterrupt
		if err := d.dev.Configure(c); err != nil {
			return err
		}
		d.cfg = c
		return nil
	}
	return hub.ErrUnsupported
}

func (d *Driver) Delete() error { return d.dev.Shutdown(true) }
