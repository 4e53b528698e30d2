package types

import "time"

// Bus configuration blocks are populated by board setup and are read-only to
// the hub.

type I2CBus struct {
	Name    string `json:"name" mapstructure:"name"`
	SpeedHz int64  `json:"speed_hz,omitempty" mapstructure:"speed_hz"`
}

type SPIBus struct {
	Name        string `json:"name" mapstructure:"name"`
	FrequencyHz int64  `json:"frequency_hz,omitempty" mapstructure:"frequency_hz"`
	Mode        int    `json:"mode,omitempty" mapstructure:"mode"`
	Bits        int    `json:"bits,omitempty" mapstructure:"bits"`
}

type ADCChannel struct {
	Name string `json:"name" mapstructure:"name"`
	Pin  string `json:"pin" mapstructure:"pin"`
}

type GPIOLine struct {
	Line int    `json:"line" mapstructure:"line"`
	Pin  string `json:"pin" mapstructure:"pin"`
	Pull string `json:"pull,omitempty" mapstructure:"pull"` // "up" | "down" | "none"
}

type BusConfig struct {
	I2C  []I2CBus     `json:"i2c,omitempty" mapstructure:"i2c"`
	SPI  []SPIBus     `json:"spi,omitempty" mapstructure:"spi"`
	ADC  []ADCChannel `json:"adc,omitempty" mapstructure:"adc"`
	GPIO []GPIOLine   `json:"gpio,omitempty" mapstructure:"gpio"`
}

// HubConfig is the static sensor configuration table for one board.
type HubConfig struct {
	Board       string        `json:"board" mapstructure:"board"`
	AlarmPeriod time.Duration `json:"alarm_period,omitempty" mapstructure:"alarm_period"`
	Heartbeat   time.Duration `json:"heartbeat,omitempty" mapstructure:"heartbeat"`
	Buses       BusConfig     `json:"buses" mapstructure:"buses"`
	Sensors     []SensorInfo  `json:"sensors" mapstructure:"sensors"`
}

// Sensor returns the descriptor for id.
func (c *HubConfig) Sensor(id SensorID) (*SensorInfo, bool) {
	for i := range c.Sensors {
		if c.Sensors[i].ID == id {
			return &c.Sensors[i], true
		}
	}
	return nil, false
}
