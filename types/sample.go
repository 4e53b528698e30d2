package types

import (
	"math"
	"time"

	"sensorhub-go/errcode"
)

// SampleKind tags the active member of Sample.
type SampleKind uint8

const (
	SampleNone SampleKind = iota
	SampleAccel
	SampleRGBW
	SampleTemperature
	SampleLight
	SampleUV
	SampleProximity
	SampleGesture
	SampleADC
)

// Accel is an axis triple in milli-g.
type Accel struct {
	X, Y, Z int32
}

// RGBW holds raw colour channel counts; W is the clear channel.
type RGBW struct {
	R, G, B, W int32
}

// ADCReading is one conversion of an ADC channel.
type ADCReading struct {
	Raw        int32
	MilliVolts int32
}

// Sample is a tagged union of one sensor reading. Only the member selected by
// Kind is meaningful.
type Sample struct {
	Kind SampleKind
	TS   time.Time

	Accel     Accel
	RGBW      RGBW
	Celsius   float64
	Lux       float64
	UVIndex   float64
	Proximity int32
	Gesture   int32
	ADC       ADCReading
}

// Magnitude reduces a sample to one comparable value for threshold delivery:
//
//	accel       Euclidean norm of the axes (milli-g)
//	rgbw        clear channel count
//	temperature degrees Celsius
//	light       lux
//	uv          UV index
//	proximity   proximity count
//	gesture     gesture code
//	adc         millivolts
func (s Sample) Magnitude() float64 {
	switch s.Kind {
	case SampleAccel:
		x, y, z := float64(s.Accel.X), float64(s.Accel.Y), float64(s.Accel.Z)
		return math.Sqrt(x*x + y*y + z*z)
	case SampleRGBW:
		return float64(s.RGBW.W)
	case SampleTemperature:
		return s.Celsius
	case SampleLight:
		return s.Lux
	case SampleUV:
		return s.UVIndex
	case SampleProximity:
		return float64(s.Proximity)
	case SampleGesture:
		return float64(s.Gesture)
	case SampleADC:
		return float64(s.ADC.MilliVolts)
	}
	return 0
}

// DataGroup is a capped buffer of samples filled incrementally by a driver.
type DataGroup struct {
	Samples  []Sample
	Count    int
	MinDelay time.Duration // minimum inter-sample delay hint
}

// NewDataGroup allocates a group able to hold capacity samples.
func NewDataGroup(capacity int) *DataGroup {
	return &DataGroup{Samples: make([]Sample, capacity)}
}

// Append stores s after the last valid entry.
func (g *DataGroup) Append(s Sample) error {
	if g.Count >= len(g.Samples) {
		return errcode.Newf(errcode.MemoryLimitExceeded, "append", "group full at %d", g.Count)
	}
	g.Samples[g.Count] = s
	g.Count++
	return nil
}

func (g *DataGroup) Cap() int   { return len(g.Samples) }
func (g *DataGroup) Full() bool { return g.Count >= len(g.Samples) }

// Latest returns the most recently appended sample.
func (g *DataGroup) Latest() (Sample, bool) {
	if g.Count == 0 {
		return Sample{}, false
	}
	return g.Samples[g.Count-1], true
}

// Valid returns the filled prefix of the buffer.
func (g *DataGroup) Valid() []Sample { return g.Samples[:g.Count] }

func (g *DataGroup) Reset() { g.Count = 0 }

// Snapshot copies the valid entries into a new, exactly sized group.
func (g *DataGroup) Snapshot() *DataGroup {
	out := &DataGroup{
		Samples:  make([]Sample, g.Count),
		Count:    g.Count,
		MinDelay: g.MinDelay,
	}
	copy(out.Samples, g.Samples[:g.Count])
	return out
}
