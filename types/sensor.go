package types

import (
	"strings"
	"time"

	"sensorhub-go/errcode"
)

// SensorID identifies a configured sensor.
type SensorID uint8

// SensorType selects the driver implementation for a sensor.
type SensorType uint8

const (
	SensorNone SensorType = iota
	SensorAccelerometer
	SensorLight
	SensorTemperature
	SensorGesture // gesture / proximity / RGB
	SensorADC
	SensorUV
)

var sensorTypeNames = map[SensorType]string{
	SensorNone:          "none",
	SensorAccelerometer: "accelerometer",
	SensorLight:         "light",
	SensorTemperature:   "temperature",
	SensorGesture:       "gesture",
	SensorADC:           "adc",
	SensorUV:            "uv",
}

func (t SensorType) String() string { return nameOf(sensorTypeNames, t) }

func (t *SensorType) UnmarshalText(b []byte) error {
	return parseName(sensorTypeNames, string(b), t, errcode.InvalidParameters)
}

// BusType is the physical bus a sensor hangs off.
type BusType uint8

const (
	BusNone BusType = iota
	BusI2C
	BusSPI
	BusADC
	BusGPIO
)

var busTypeNames = map[BusType]string{
	BusNone: "none",
	BusI2C:  "i2c",
	BusSPI:  "spi",
	BusADC:  "adc",
	BusGPIO: "gpio",
}

func (b BusType) String() string { return nameOf(busTypeNames, b) }

func (b *BusType) UnmarshalText(s []byte) error {
	return parseName(busTypeNames, string(s), b, errcode.InvalidParameters)
}

// Mode is how a sensor is sampled.
type Mode uint8

const (
	ModeNone Mode = iota
	ModePolling
	ModeInterrupt
)

var modeNames = map[Mode]string{
	ModeNone:      "none",
	ModePolling:   "polling",
	ModeInterrupt: "interrupt",
}

func (m Mode) String() string { return nameOf(modeNames, m) }

func (m *Mode) UnmarshalText(b []byte) error {
	return parseName(modeNames, string(b), m, errcode.InvalidMode)
}

// Edge selects interrupt detection on a GPIO line.
type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
	EdgeLevelHigh
	EdgeLevelLow
)

var edgeNames = map[Edge]string{
	EdgeNone:      "none",
	EdgeRising:    "rising",
	EdgeFalling:   "falling",
	EdgeBoth:      "both",
	EdgeLevelHigh: "high",
	EdgeLevelLow:  "low",
}

func (e Edge) String() string { return nameOf(edgeNames, e) }

func (e *Edge) UnmarshalText(b []byte) error {
	return parseName(edgeNames, string(b), e, errcode.InvalidParameters)
}

// DeliveryMode governs when accumulated samples are handed to the application.
type DeliveryMode uint8

const (
	DeliveryNone DeliveryMode = iota
	DeliveryThreshold
	DeliveryTimeout
	DeliveryCount
)

var deliveryNames = map[DeliveryMode]string{
	DeliveryNone:      "none",
	DeliveryThreshold: "threshold",
	DeliveryTimeout:   "timeout",
	DeliveryCount:     "count",
}

func (d DeliveryMode) String() string { return nameOf(deliveryNames, d) }

func (d *DeliveryMode) UnmarshalText(b []byte) error {
	return parseName(deliveryNames, string(b), d, errcode.InvalidDeliveryMode)
}

// Delivery is the data-delivery descriptor. Only the field matching Mode is used.
type Delivery struct {
	Mode      DeliveryMode  `json:"mode" mapstructure:"mode"`
	Threshold float64       `json:"threshold,omitempty" mapstructure:"threshold"`
	Timeout   time.Duration `json:"timeout,omitempty" mapstructure:"timeout"`
	Count     int           `json:"count,omitempty" mapstructure:"count"`
}

// SensorInfo is the per-sensor configuration descriptor. It is read-only once
// a sensor has been created from it.
type SensorInfo struct {
	Name       string        `json:"name" mapstructure:"name"`
	ID         SensorID      `json:"id" mapstructure:"id"`
	Type       SensorType    `json:"type" mapstructure:"type"`
	Bus        BusType       `json:"bus" mapstructure:"bus"`
	BusName    string        `json:"bus_name,omitempty" mapstructure:"bus_name"`
	Address    uint16        `json:"address,omitempty" mapstructure:"address"`
	IntPin     int           `json:"int_pin,omitempty" mapstructure:"int_pin"`
	IntEdge    Edge          `json:"int_edge,omitempty" mapstructure:"int_edge"`
	Interval   time.Duration `json:"interval,omitempty" mapstructure:"interval"`
	Mode       Mode          `json:"mode" mapstructure:"mode"`
	Range      uint16        `json:"range,omitempty" mapstructure:"range"`
	MaxSamples int           `json:"max_samples,omitempty" mapstructure:"max_samples"`
	Delivery   Delivery      `json:"delivery" mapstructure:"delivery"`
}

// Validate checks the descriptor. maxLine is the highest interrupt line the
// platform can route.
func (s *SensorInfo) Validate(maxLine int) error {
	const op = "validate"
	if s.Type == SensorNone {
		return errcode.Newf(errcode.InvalidParameters, op, "sensor %d has no type", s.ID)
	}
	if s.MaxSamples <= 0 {
		return errcode.Newf(errcode.InvalidParameters, op, "sensor %d max_samples %d", s.ID, s.MaxSamples)
	}
	switch s.Bus {
	case BusI2C:
		if s.Address == 0 || s.Address > 0x7F {
			return errcode.Newf(errcode.InvalidAddress, op, "sensor %d i2c address %#x", s.ID, s.Address)
		}
	case BusSPI, BusADC, BusGPIO:
	default:
		return errcode.Newf(errcode.InvalidParameters, op, "sensor %d bus %s", s.ID, s.Bus)
	}
	switch s.Mode {
	case ModePolling:
		if s.Interval <= 0 {
			return errcode.Newf(errcode.InvalidParameters, op, "sensor %d polling interval %s", s.ID, s.Interval)
		}
	case ModeInterrupt:
		if s.IntPin < 0 || s.IntPin > maxLine {
			return errcode.Newf(errcode.GPIOOutOfRange, op, "sensor %d int_pin %d", s.ID, s.IntPin)
		}
		if s.IntEdge == EdgeNone {
			return errcode.Newf(errcode.InvalidMode, op, "sensor %d interrupt mode without edge", s.ID)
		}
	default:
		return errcode.Newf(errcode.InvalidMode, op, "sensor %d mode %s", s.ID, s.Mode)
	}
	switch s.Delivery.Mode {
	case DeliveryThreshold:
	case DeliveryTimeout:
		if s.Delivery.Timeout <= 0 {
			return errcode.Newf(errcode.InvalidDeliveryMode, op, "sensor %d timeout %s", s.ID, s.Delivery.Timeout)
		}
	case DeliveryCount:
		if s.Delivery.Count <= 0 || s.Delivery.Count > s.MaxSamples {
			return errcode.Newf(errcode.InvalidDeliveryMode, op, "sensor %d count %d of %d", s.ID, s.Delivery.Count, s.MaxSamples)
		}
	default:
		return errcode.Newf(errcode.InvalidDeliveryMode, op, "sensor %d delivery %s", s.ID, s.Delivery.Mode)
	}
	return nil
}

func nameOf[K comparable](m map[K]string, k K) string {
	if s, ok := m[k]; ok {
		return s
	}
	return "unknown"
}

func parseName[K comparable](m map[K]string, s string, dst *K, c errcode.Code) error {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range m {
		if name == s {
			*dst = k
			return nil
		}
	}
	return errcode.Newf(c, "parse", "unknown value %q", s)
}
