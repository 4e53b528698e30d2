// Package adxl345 backs accelerometer sensors with an ADXL345 on I²C or SPI.
package adxl345

import (
	"context"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/spi"
	"tinygo.org/x/drivers/adxl345"

	"sensorhub-go/errcode"
	"sensorhub-go/services/hub"
	"sensorhub-go/services/hub/devices/internal/drvshim"
	"sensorhub-go/types"
)

func init() { hub.Register(types.SensorAccelerometer, hub.FactoryFunc(New)) }

const (
	regDevID      = 0x00
	regBWRate     = 0x2C
	regPowerCtl   = 0x2D
	regIntEnable  = 0x2E
	regIntMap     = 0x2F
	regDataFormat = 0x31
	regDataX0     = 0x32

	devID        = 0xE5
	powerMeasure = 0x08
	intDataReady = 0x80

	spiRead  = 0x80
	spiMulti = 0x40
)

// Driver is one ADXL345. Exactly one of i2c and spi is set.
type Driver struct {
	addr uint16
	rng  adxl345.Range

	i2c *drvshim.I2C
	dev adxl345.Device

	spi spi.Conn
	buf [7]byte
}

// New probes the device ID, then configures measurement mode and range.
func New(b hub.Buses, info *types.SensorInfo) (hub.Driver, error) {
	rng, err := rangeOf(info.Range)
	if err != nil {
		return nil, err
	}
	d := &Driver{rng: rng}
	switch info.Bus {
	case types.BusI2C:
		bus, ok := b.I2C(info.BusName)
		if !ok {
			return nil, errors.Wrapf(hub.ErrUnknownBus, "adxl345: i2c %q", info.BusName)
		}
		d.addr = info.Address
		if d.addr == 0 {
			d.addr = adxl345.AddressLow
		}
		if err := drvshim.Probe(bus, d.addr, regDevID, devID); err != nil {
			return nil, errors.Wrap(err, "adxl345")
		}
		d.i2c = drvshim.NewI2C(bus)
		d.dev = adxl345.New(d.i2c)
		d.dev.Address = d.addr
	case types.BusSPI:
		conn, ok := b.SPI(info.BusName)
		if !ok {
			return nil, errors.Wrapf(hub.ErrUnknownBus, "adxl345: spi %q", info.BusName)
		}
		d.spi = conn
		id, err := d.spiRead(regDevID, 1)
		if err != nil {
			return nil, errors.Wrap(err, "adxl345: probe")
		}
		if id[0] != devID {
			return nil, errors.Errorf("adxl345: id %#02x, want %#02x", id[0], devID)
		}
	default:
		return nil, errcode.Newf(errcode.InvalidParameters, "adxl345", "bus %s", info.Bus)
	}
	if err := d.configure(); err != nil {
		return nil, err
	}
	return d, nil
}

func rangeOf(g uint16) (adxl345.Range, error) {
	switch g {
	case 0, 2:
		return adxl345.RANGE_2G, nil
	case 4:
		return adxl345.RANGE_4G, nil
	case 8:
		return adxl345.RANGE_8G, nil
	case 16:
		return adxl345.RANGE_16G, nil
	}
	return 0, errcode.Newf(errcode.InvalidParameters, "adxl345", "range %dg", g)
}

func (d *Driver) configure() error {
	if d.i2c != nil {
		d.dev.Configure()
		if d.rng != adxl345.RANGE_2G {
			d.dev.SetRange(d.rng)
		}
		return errors.Wrap(d.i2c.Err(), "adxl345: configure")
	}
	for _, w := range [][2]byte{
		{regBWRate, byte(adxl345.RATE_100HZ)},
		{regPowerCtl, powerMeasure},
		{regDataFormat, byte(d.rng)},
	} {
		if err := d.write(w[0], w[1]); err != nil {
			return errors.Wrap(err, "adxl345: configure")
		}
	}
	return nil
}

// Sample reads the three axes in milli-g.
func (d *Driver) Sample(_ context.Context, g *types.DataGroup) error {
	var a types.Accel
	if d.i2c != nil {
		x, y, z, _ := d.dev.ReadAcceleration()
		if err := d.i2c.Err(); err != nil {
			return errors.Wrap(err, "adxl345: read")
		}
		a = types.Accel{X: x, Y: y, Z: z}
	} else {
		raw, err := d.spiRead(regDataX0, 6)
		if err != nil {
			return errors.Wrap(err, "adxl345: read")
		}
		scale := int32(4) << d.rng
		a = types.Accel{
			X: int32(int16(uint16(raw[0])|uint16(raw[1])<<8)) * scale,
			Y: int32(int16(uint16(raw[2])|uint16(raw[3])<<8)) * scale,
			Z: int32(int16(uint16(raw[4])|uint16(raw[5])<<8)) * scale,
		}
	}
	return g.Append(types.Sample{Kind: types.SampleAccel, Accel: a})
}

// Control supports power, reset, range (uint16 g), rate (adxl345.Rate) and
// the data-ready interrupt on INT1.
func (d *Driver) Control(cmd types.Command, arg any) error {
	switch cmd {
	case types.CmdPowerOn:
		return d.write(regPowerCtl, powerMeasure)
	case types.CmdPowerOff:
		return d.write(regPowerCtl, 0)
	case types.CmdReset:
		return d.configure()
	case types.CmdSetRange:
		g, ok := arg.(uint16)
		if !ok {
			return errcode.Newf(errcode.InvalidParameters, "adxl345", "range arg %T", arg)
		}
		rng, err := rangeOf(g)
		if err != nil {
			return err
		}
		if d.i2c != nil {
			// The driver scales readings by its own copy of the range.
			d.dev.SetRange(rng)
			if err := d.i2c.Err(); err != nil {
				return err
			}
		} else if err := d.write(regDataFormat, byte(rng)); err != nil {
			return err
		}
		d.rng = rng
		return nil
	case types.CmdSetRate:
		r, ok := arg.(adxl345.Rate)
		if !ok {
			return errcode.Newf(errcode.InvalidParameters, "adxl345", "rate arg %T", arg)
		}
		return d.write(regBWRate, byte(r&0x0F))
	case types.CmdEnableInterrupt:
		if err := d.write(regIntMap, 0); err != nil {
			return err
		}
		return d.write(regIntEnable, intDataReady)
	case types.CmdDisableInterrupt:
		return d.write(regIntEnable, 0)
	}
	return hub.ErrUnsupported
}

// Delete leaves the device in standby.
func (d *Driver) Delete() error {
	return d.write(regPowerCtl, 0)
}

func (d *Driver) write(reg, v byte) error {
	if d.i2c != nil {
		_ = drvshim.WriteReg(d.i2c, d.addr, reg, v)
		return d.i2c.Err()
	}
	return d.spi.Tx([]byte{reg, v}, nil)
}

// spiRead clocks out a read of n registers from reg.
func (d *Driver) spiRead(reg byte, n int) ([]byte, error) {
	w := d.buf[:n+1]
	for i := range w {
		w[i] = 0
	}
	w[0] = spiRead | reg
	if n > 1 {
		w[0] |= spiMulti
	}
	r := make([]byte, n+1)
	if err := d.spi.Tx(w, r); err != nil {
		return nil, err
	}
	return r[1:], nil
}
