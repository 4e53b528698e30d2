package setups

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"sensorhub-go/services/config"
	"sensorhub-go/services/hub"
	"sensorhub-go/services/hub/platform"
	"sensorhub-go/types"
)

type latest struct {
	mu     sync.Mutex
	groups map[types.SensorID]*types.DataGroup
	kinds  map[types.EventKind]int
}

func (l *latest) cb(id types.SensorID, kind types.EventKind, data any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kinds[kind]++
	if g, ok := data.(*types.DataGroup); ok && kind == types.EventDataReady {
		l.groups[id] = g
	}
}

func (l *latest) sample(id types.SensorID) (types.Sample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.groups[id]
	if !ok {
		return types.Sample{}, false
	}
	return g.Latest()
}

func (l *latest) all(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.groups) == n
}

func TestDevKitOnFakeBuses(t *testing.T) {
	cfg, err := config.Load(SI917DevKit)
	test.That(t, err, test.ShouldBeNil)

	f := platform.NewFake()
	SeedSI917DevKit(f)
	clk := clock.NewMock()
	rec := &latest{groups: map[types.SensorID]*types.DataGroup{}, kinds: map[types.EventKind]int{}}

	h := hub.New(hub.Options{Config: cfg, Buses: f, Clock: clk, Logger: zaptest.NewLogger(t)})
	test.That(t, h.NotifyRegister(rec.cb, &types.Ack{}), test.ShouldBeNil)
	ctx, cancel := context.WithCancel(context.Background())
	test.That(t, h.Start(ctx), test.ShouldBeNil)
	t.Cleanup(func() {
		cancel()
		_ = h.Wait()
	})
	test.That(t, h.Init(ctx), test.ShouldBeNil)

	found, err := h.DetectSensors(8)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldResemble, []hub.Detected{
		{Bus: "i2c0", Address: 0x23, Sensor: 2, Known: true},
		{Bus: "i2c0", Address: 0x39, Sensor: 4, Known: true},
		{Bus: "i2c0", Address: 0x48, Sensor: 3, Known: true},
		{Bus: "i2c0", Address: 0x53, Sensor: 1, Known: true},
	})

	for _, s := range cfg.Sensors {
		test.That(t, h.CreateSensor(s.ID), test.ShouldBeNil)
		test.That(t, h.StartSensor(s.ID), test.ShouldBeNil)
	}
	test.That(t, f.Pin(2).Armed(), test.ShouldBeTrue)
	f.Pin(2).Fire()

	for elapsed := time.Duration(0); !rec.all(len(cfg.Sensors)); elapsed += 10 * time.Millisecond {
		if elapsed > 6*time.Second {
			t.Fatal("not every sensor delivered")
		}
		clk.Add(10 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}

	s, _ := rec.sample(1)
	test.That(t, s.Accel, test.ShouldResemble, types.Accel{X: 0, Y: 0, Z: 1024})
	s, _ = rec.sample(2)
	test.That(t, s.Lux, test.ShouldEqual, 240.0)
	s, _ = rec.sample(3)
	test.That(t, s.Celsius, test.ShouldEqual, 25.0)
	s, _ = rec.sample(4)
	test.That(t, s.Proximity, test.ShouldEqual, int32(239))
	s, _ = rec.sample(5)
	test.That(t, s.ADC, test.ShouldResemble, types.ADCReading{Raw: 2048, MilliVolts: 1650})

	for _, s := range cfg.Sensors {
		test.That(t, h.StopSensor(s.ID), test.ShouldBeNil)
		test.That(t, h.DeleteSensor(s.ID), test.ShouldBeNil)
	}
	test.That(t, f.Pin(2).Armed(), test.ShouldBeFalse)
	test.That(t, h.Stats().Sensors, test.ShouldEqual, 0)
	test.That(t, h.Stats().MemoryUsed, test.ShouldEqual, 0)
}

func TestDevKitMissingPart(t *testing.T) {
	cfg, err := config.Load(SI917DevKit)
	test.That(t, err, test.ShouldBeNil)

	f := platform.NewFake()
	SeedSI917DevKit(f)
	f.Bus("i2c0").Remove(0x53)

	h := hub.New(hub.Options{Config: cfg, Buses: f, Logger: zaptest.NewLogger(t)})
	test.That(t, h.Init(context.Background()), test.ShouldBeNil)
	err = h.CreateSensor(1)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "nack")
	test.That(t, h.CreateSensor(2), test.ShouldBeNil)
}
