// Package bh1750 backs ambient-light sensors with a BH1750 on I²C.
package bh1750

import (
	"context"

	"github.com/pkg/errors"
	"tinygo.org/x/drivers/bh1750"

	"sensorhub-go/errcode"
	"sensorhub-go/services/hub"
	"sensorhub-go/services/hub/devices/internal/drvshim"
	"sensorhub-go/types"
)

func init() { hub.Register(types.SensorLight, hub.FactoryFunc(New)) }

type Driver struct {
	i2c *drvshim.I2C
	dev bh1750.Device
}

// New powers the device on in continuous high-resolution mode. The BH1750
// has no identification register; a failed power-on command is the probe.
func New(b hub.Buses, info *types.SensorInfo) (hub.Driver, error) {
	if info.Bus != types.BusI2C {
		return nil, errcode.Newf(errcode.InvalidParameters, "bh1750", "bus %s", info.Bus)
	}
	bus, ok := b.I2C(info.BusName)
	if !ok {
		return nil, errors.Wrapf(hub.ErrUnknownBus, "bh1750: i2c %q", info.BusName)
	}
	d := &Driver{i2c: drvshim.NewI2C(bus)}
	d.dev = bh1750.New(d.i2c)
	if info.Address != 0 {
		d.dev.Address = info.Address
	}
	d.dev.Configure()
	if err := d.i2c.Err(); err != nil {
		return nil, errors.Wrap(err, "bh1750: configure")
	}
	return d, nil
}

// Sample reads illuminance in lux.
func (d *Driver) Sample(_ context.Context, g *types.DataGroup) error {
	mlx := d.dev.Illuminance()
	if err := d.i2c.Err(); err != nil {
		return errors.Wrap(err, "bh1750: read")
	}
	return g.Append(types.Sample{Kind: types.SampleLight, Lux: float64(mlx) / 1000})
}

// Control supports power, reset and CmdSetFunction with a bh1750.SamplingMode.
func (d *Driver) Control(cmd types.Command, arg any) error {
	switch cmd {
	case types.CmdPowerOn:
		return d.command(bh1750.POWER_ON)
	case types.CmdPowerOff:
		return d.command(bh1750.POWER_DOWN)
	case types.CmdReset:
		return d.command(bh1750.RESET)
	case types.CmdSetFunction:
		m, ok := arg.(bh1750.SamplingMode)
		if !ok {
			return errcode.Newf(errcode.InvalidParameters, "bh1750", "mode arg %T", arg)
		}
		d.dev.SetMode(m)
		return d.i2c.Err()
	}
	return hub.ErrUnsupported
}

func (d *Driver) Delete() error { return d.command(bh1750.POWER_DOWN) }

func (d *Driver) command(op byte) error {
	_ = d.i2c.Tx(d.dev.Address, []byte{op}, nil)
	return d.i2c.Err()
}
