package config

// Embedded board descriptions, keyed by board name.

const cfgSI917DevKit = `{
  "board": "si917-devkit",
  "alarm_period": "10ms",
  "heartbeat": "5s",
  "buses": {
    "i2c": [
      {"name": "i2c0", "speed_hz": 400000}
    ],
    "spi": [],
    "adc": [
      {"name": "adc0", "pin": "ULP_GPIO_1"}
    ],
    "gpio": [
      {"line": 2, "pin": "ULP_GPIO_2", "pull": "up"}
    ]
  },
  "sensors": [
    {
      "name": "accel", "id": 1, "type": "accelerometer",
      "bus": "i2c", "bus_name": "i2c0", "address": "0x53",
      "mode": "polling", "interval": "100ms", "range": 2,
      "max_samples": 10,
      "delivery": {"mode": "count", "count": 10}
    },
    {
      "name": "light", "id": 2, "type": "light",
      "bus": "i2c", "bus_name": "i2c0", "address": "0x23",
      "mode": "polling", "interval": "500ms",
      "max_samples": 8,
      "delivery": {"mode": "timeout", "timeout": "2s"}
    },
    {
      "name": "temp", "id": 3, "type": "temperature",
      "bus": "i2c", "bus_name": "i2c0", "address": "0x48",
      "mode": "interrupt", "int_pin": 2, "int_edge": "falling",
      "max_samples": 4,
      "delivery": {"mode": "count", "count": 1}
    },
    {
      "name": "gesture", "id": 4, "type": "gesture",
      "bus": "i2c", "bus_name": "i2c0", "address": "0x39",
      "mode": "polling", "interval": "200ms",
      "max_samples": 4,
      "delivery": {"mode": "threshold", "threshold": 50}
    },
    {
      "name": "battery", "id": 5, "type": "adc",
      "bus": "adc", "bus_name": "adc0",
      "mode": "polling", "interval": "1s",
      "max_samples": 4,
      "delivery": {"mode": "count", "count": 4}
    }
  ]
}`

var embeddedConfigs = map[string][]byte{
	"si917-devkit": []byte(cfgSI917DevKit),
}
