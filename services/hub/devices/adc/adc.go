// Package adc backs ADC sensors with an analog input channel.
package adc

import (
	"context"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/physic"

	"sensorhub-go/errcode"
	"sensorhub-go/services/hub"
	"sensorhub-go/types"
	"sensorhub-go/x/mathx"
)

func init() { hub.Register(types.SensorADC, hub.FactoryFunc(New)) }

type Driver struct {
	pin      analog.PinADC
	min, max analog.Sample
}

func New(b hub.Buses, info *types.SensorInfo) (hub.Driver, error) {
	if info.Bus != types.BusADC {
		return nil, errcode.Newf(errcode.InvalidParameters, "adc", "bus %s", info.Bus)
	}
	pin, ok := b.ADC(info.BusName)
	if !ok {
		return nil, errors.Wrapf(hub.ErrUnknownBus, "adc: channel %q", info.BusName)
	}
	d := &Driver{pin: pin}
	d.min, d.max = pin.Range()
	return d, nil
}

// Sample converts once. Readings outside the channel range are rejected.
func (d *Driver) Sample(_ context.Context, g *types.DataGroup) error {
	s, err := d.pin.Read()
	if err != nil {
		return errors.Wrapf(err, "adc: read %s", d.pin.Name())
	}
	if !mathx.Between(s.Raw, d.min.Raw, d.max.Raw) {
		return errors.Errorf("adc: %s raw %d outside [%d, %d]", d.pin.Name(), s.Raw, d.min.Raw, d.max.Raw)
	}
	return g.Append(types.Sample{
		Kind: types.SampleADC,
		ADC:  types.ADCReading{Raw: s.Raw, MilliVolts: int32(s.V / physic.MilliVolt)},
	})
}

func (d *Driver) Control(cmd types.Command, _ any) error {
	if cmd == types.CmdPowerOff {
		return d.pin.Halt()
	}
	return hub.ErrUnsupported
}

func (d *Driver) Delete() error { return d.pin.Halt() }
