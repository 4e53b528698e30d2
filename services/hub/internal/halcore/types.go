// services/hub/internal/halcore/types.go
package halcore

import (
	"context"
	"errors"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/spi"
	"tinygo.org/x/drivers"

	"sensorhub-go/types"
)

// Driver is the uniform per-chip contract. Create is the Factory.
// Implementations must not own goroutines or publish events.
type Driver interface {
	// Sample appends exactly one reading to g.
	Sample(ctx context.Context, g *types.DataGroup) error
	// Control passes a device command through; arg is command specific.
	Control(cmd types.Command, arg any) error
	// Delete releases the device. The driver is unusable afterwards.
	Delete() error
}

// Factory builds a Driver for one configured sensor.
type Factory interface {
	Create(b Buses, info *types.SensorInfo) (Driver, error)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func(b Buses, info *types.SensorInfo) (Driver, error)

func (f FactoryFunc) Create(b Buses, info *types.SensorInfo) (Driver, error) { return f(b, info) }

var (
	// ErrUnsupported for Control commands a driver does not implement.
	ErrUnsupported = errors.New("unsupported")
	// ErrUnknownBus when a sensor references a bus the platform does not have.
	ErrUnknownBus = errors.New("unknown_bus")
	// ErrNotReady when a device has no new data for this cycle.
	ErrNotReady = errors.New("not ready")
)

// ---- Buses ----

// Buses gives drivers access to opened bus handles by configured name.
// I²C uses the TinyGo drivers.I2C interface so the same backends build on MCU
// targets.
type Buses interface {
	I2C(name string) (drivers.I2C, bool)
	SPI(name string) (spi.Conn, bool)
	ADC(name string) (analog.PinADC, bool)
	Line(n int) (IRQPin, bool)
	// I2CNames lists opened I²C buses in a stable order.
	I2CNames() []string
}

// Provider opens the buses named in a board configuration.
type Provider interface {
	Buses
	Open(ctx context.Context, cfg types.BusConfig) error
	Close() error
}

// ---- GPIO abstractions ----

// IRQPin is an interrupt-capable input line. The handler runs in interrupt
// context on MCU targets and must not block.
type IRQPin interface {
	Number() int
	Get() bool
	SetIRQ(edge types.Edge, handler func()) error
	ClearIRQ() error
}
