// Package setups links the device backends a board needs into the binary and
// describes what a fake provider must present to stand in for the board.
package setups

import (
	_ "sensorhub-go/services/hub/devices/adc"
	_ "sensorhub-go/services/hub/devices/adxl345"
	_ "sensorhub-go/services/hub/devices/apds9960"
	_ "sensorhub-go/services/hub/devices/bh1750"
	_ "sensorhub-go/services/hub/devices/lm75"

	"sensorhub-go/services/hub/platform"
)

// SI917DevKit names the embedded configuration for the dev kit.
const SI917DevKit = "si917-devkit"

// SeedSI917DevKit attaches simulated parts matching the dev kit's sensor
// table: ADXL345 lying flat, BH1750 at 240 lx, LM75 at 25 °C, an
// APDS-9960 seeing an object close by and a 12-bit ADC at half scale.
func SeedSI917DevKit(f *platform.Fake) {
	i2c := f.Bus("i2c0")

	accel := i2c.Device(0x53)
	accel.Set(0x00, 0xE5)
	accel.Set(0x32, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01)

	i2c.Device(0x23).Set(0x10, 0x01, 0x20)

	i2c.Device(0x48).Set(0x00, 0x19, 0x00)

	prox := i2c.Device(0x39)
	prox.Set(0x92, 0xAB)
	prox.Set(0x9C, 0x10)

	f.Channel("adc0").Set(2048, nil)
	f.Pin(2)
}
