// Package lm75 provides a driver for the LM75/LM75A digital temperature
// sensor and watchdog.
//
//	d := lm75.New(bus)
//	err := d.Configure(lm75.Config{})
//	mc, err := d.ReadTemperature() // milli-degrees Celsius
//
// The temperature register is read as an 11-bit two's complement value
// (0.125 °C/LSB). Plain LM75 parts only drive the upper 9 bits; the extra
// bits read as zero, so the same decoding serves both.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided, without releasing the bus.
package lm75

import (
	"errors"

	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

// Address is the default I2C address (A2..A0 low).
const Address = 0x48

// Register pointers.
const (
	regTemp   = 0x00
	regConfig = 0x01
	regTHyst  = 0x02
	regTOS    = 0x03
)

// Configuration register bits.
const (
	cfgShutdown  = 0x01
	cfgIntMode   = 0x02
	cfgOSPolHigh = 0x04
	cfgFaultMask = 0x18
)

// Errors returned by the driver.
var ErrRange = errors.New("lm75: limit out of range")

// Config controls the over-temperature output. All fields are optional.
type Config struct {
	// Address defaults to 0x48 if zero.
	Address uint16
	// Interrupt selects interrupt mode for OS; comparator mode otherwise.
	Interrupt bool
	// OSActiveHigh drives OS high when asserted.
	OSActiveHigh bool
	// FaultQueue is the number of consecutive faults before OS trips: 1, 2, 4 or 6.
	FaultQueue uint8
}

// Device wraps an I2C connection to an LM75 device.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg  byte
	buf  [2]byte
	last int32 // last reading in milli-°C
}

// New creates a new LM75 connection. The I2C bus must already be configured.
// This function only creates the Device object; it does not touch the device.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address}
}

// Configure writes the configuration register and leaves the device running.
func (d *Device) Configure(c Config) error {
	if c.Address != 0 {
		d.Address = c.Address
	}
	var v byte
	if c.Interrupt {
		v |= cfgIntMode
	}
	if c.OSActiveHigh {
		v |= cfgOSPolHigh
	}
	switch c.FaultQueue {
	case 0, 1:
	case 2:
		v |= 0x08
	case 4:
		v |= 0x10
	case 6:
		v |= 0x18
	default:
		return ErrRange
	}
	if err := d.bus.Tx(d.Address, []byte{regConfig, v}, nil); err != nil {
		return err
	}
	d.cfg = v
	return nil
}

// Connected reads the configuration register back and compares it with the
// last value written.
func (d *Device) Connected() bool {
	r := d.buf[:1]
	if err := d.bus.Tx(d.Address, []byte{regConfig}, r); err != nil {
		return false
	}
	return r[0]&(cfgIntMode|cfgOSPolHigh|cfgFaultMask) == d.cfg&(cfgIntMode|cfgOSPolHigh|cfgFaultMask)
}

// Shutdown puts the device in (or takes it out of) low-power shutdown.
func (d *Device) Shutdown(on bool) error {
	v := d.cfg &^ cfgShutdown
	if on {
		v |= cfgShutdown
	}
	if err := d.bus.Tx(d.Address, []byte{regConfig, v}, nil); err != nil {
		return err
	}
	d.cfg = v
	return nil
}

// ReadTemperature returns the current temperature in milli-degrees Celsius.
func (d *Device) ReadTemperature() (int32, error) {
	r := d.buf[:]
	if err := d.bus.Tx(d.Address, []byte{regTemp}, r); err != nil {
		return 0, err
	}
	d.last = decode(r[0], r[1])
	return d.last, nil
}

// Sense reads the temperature as a physic.Temperature.
func (d *Device) Sense() (physic.Temperature, error) {
	mc, err := d.ReadTemperature()
	if err != nil {
		return 0, err
	}
	return physic.ZeroCelsius + physic.Temperature(mc)*physic.MilliKelvin, nil
}

// SetLimits programs the over-temperature shutdown (tos) and hysteresis
// (thyst) thresholds, both in milli-°C. The device stores 0.5 °C steps.
func (d *Device) SetLimits(tos, thyst int32) error {
	if thyst > tos {
		return ErrRange
	}
	for _, l := range []struct {
		reg byte
		v   int32
	}{{regTOS, tos}, {regTHyst, thyst}} {
		hi, lo, err := encodeLimit(l.v)
		if err != nil {
			return err
		}
		if err := d.bus.Tx(d.Address, []byte{l.reg, hi, lo}, nil); err != nil {
			return err
		}
	}
	return nil
}

// Last returns the most recent reading in milli-°C.
func (d *Device) Last() int32 { return d.last }

// decode converts the two temperature register bytes to milli-°C.
func decode(msb, lsb byte) int32 {
	raw := int16(uint16(msb)<<8|uint16(lsb)) >> 5
	return int32(raw) * 125
}

func encodeLimit(mc int32) (byte, byte, error) {
	if mc < -55000 || mc > 125000 {
		return 0, 0, ErrRange
	}
	half := mc / 500 // 0.5 °C steps, 9-bit
	raw := uint16(int16(half) << 7)
	return byte(raw >> 8), byte(raw), nil
}
