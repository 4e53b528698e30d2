package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"sensorhub-go/errcode"
	"sensorhub-go/types"
)

func TestLifecycleTransitions(t *testing.T) {
	h := newHarness(t, nil, tempSensor(1))
	hub := h.hub

	st, err := hub.Status(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, st, test.ShouldEqual, types.StatusInvalid)

	test.That(t, hub.CreateSensor(1), test.ShouldBeNil)
	st, _ = hub.Status(1)
	test.That(t, st, test.ShouldEqual, types.StatusValid)
	test.That(t, errcode.Of(hub.CreateSensor(1)), test.ShouldEqual, errcode.SensorAlreadyCreated)
	test.That(t, errcode.Of(hub.StopSensor(1)), test.ShouldEqual, errcode.SensorNotStarted)

	test.That(t, hub.StartSensor(1), test.ShouldBeNil)
	st, _ = hub.Status(1)
	test.That(t, st, test.ShouldEqual, types.StatusStarted)
	test.That(t, hub.alarm.Len(), test.ShouldEqual, 1)
	test.That(t, errcode.Of(hub.StartSensor(1)), test.ShouldEqual, errcode.SensorAlreadyStarted)

	test.That(t, hub.StopSensor(1), test.ShouldBeNil)
	st, _ = hub.Status(1)
	test.That(t, st, test.ShouldEqual, types.StatusStopped)
	test.That(t, hub.alarm.Len(), test.ShouldEqual, 0)

	// A stopped sensor may be started again.
	test.That(t, hub.StartSensor(1), test.ShouldBeNil)
	test.That(t, hub.DeleteSensor(1), test.ShouldBeNil)
	st, _ = hub.Status(1)
	test.That(t, st, test.ShouldEqual, types.StatusInvalid)
	test.That(t, hub.alarm.Len(), test.ShouldEqual, 0)
	test.That(t, h.impl.driver(1).deleted, test.ShouldBeTrue)
	test.That(t, errcode.Of(hub.DeleteSensor(1)), test.ShouldEqual, errcode.SensorCreateFail)

	want := []types.EventKind{
		types.EventStarted, types.EventStopped,
		types.EventStarted, types.EventStopped, types.EventDeleted,
	}
	waitFor(t, "lifecycle events", func() bool { return len(h.rec.kinds()) == len(want) })
	test.That(t, h.rec.kinds(), test.ShouldResemble, want)
	test.That(t, h.ack.Last(), test.ShouldEqual, types.SensorID(1))
	test.That(t, h.ack.Count(), test.ShouldEqual, uint64(len(want)))
}

func TestUnknownAndNotCreated(t *testing.T) {
	h := newHarness(t, nil, tempSensor(1))
	hub := h.hub

	test.That(t, errcode.Of(hub.CreateSensor(99)), test.ShouldEqual, errcode.InvalidParameters)
	for _, id := range []types.SensorID{1, 99} {
		test.That(t, errcode.Of(hub.StartSensor(id)), test.ShouldEqual, errcode.SensorCreateFail)
		test.That(t, errcode.Of(hub.StopSensor(id)), test.ShouldEqual, errcode.SensorCreateFail)
		test.That(t, errcode.Of(hub.DeleteSensor(id)), test.ShouldEqual, errcode.SensorCreateFail)
	}
	test.That(t, h.hub.reg.Len(), test.ShouldEqual, 0)
	test.That(t, errcode.Of(hub.StartSensor(1)), test.ShouldEqual, errcode.SensorCreateFail)
	test.That(t, errcode.Of(hub.StopSensor(1)), test.ShouldEqual, errcode.SensorCreateFail)
	test.That(t, errcode.Of(hub.DeleteSensor(1)), test.ShouldEqual, errcode.SensorCreateFail)
	test.That(t, errcode.Of(hub.ControlSensor(1, types.CmdReset, nil)), test.ShouldEqual, errcode.SensorCreateFail)
}

func TestCreateFailuresLeaveRegistryUnchanged(t *testing.T) {
	badDelivery := tempSensor(2)
	badDelivery.Delivery = types.Delivery{Mode: types.DeliveryCount, Count: 9}
	noImpl := tempSensor(3)
	noImpl.Type = types.SensorUV

	h := newHarness(t, nil, tempSensor(1), badDelivery, noImpl)
	hub := h.hub

	test.That(t, errcode.Of(hub.CreateSensor(2)), test.ShouldEqual, errcode.InvalidDeliveryMode)
	test.That(t, errcode.Of(hub.CreateSensor(3)), test.ShouldEqual, errcode.SensorImplNotFound)

	h.impl.mu.Lock()
	h.impl.createErr = errors.New("no ack")
	h.impl.mu.Unlock()
	err := hub.CreateSensor(1)
	test.That(t, errcode.Of(err), test.ShouldEqual, errcode.HALCreationFailed)

	sensors, err := hub.Sensors()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sensors, test.ShouldBeEmpty)
	test.That(t, hub.Stats().MemoryUsed, test.ShouldEqual, 0)

	waitFor(t, "failure events", func() bool { return len(h.rec.kinds()) == 3 })
	test.That(t, h.rec.kinds(), test.ShouldResemble, []types.EventKind{
		types.EventConfigInvalid, types.EventCreateFailed, types.EventCreateFailed,
	})
}

func TestRegistryCapacity(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxSensors = 1 }, tempSensor(1), tempSensor(2))

	test.That(t, h.hub.CreateSensor(1), test.ShouldBeNil)
	test.That(t, errcode.Of(h.hub.CreateSensor(2)), test.ShouldEqual, errcode.MaxSensorsReached)
	test.That(t, h.hub.DeleteSensor(1), test.ShouldBeNil)
	test.That(t, h.hub.CreateSensor(2), test.ShouldBeNil)
	test.That(t, h.hub.Stats().Sensors, test.ShouldEqual, 1)
}

func TestMemoryBudget(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MemoryBudget = 4 * sampleSize }, tempSensor(1), tempSensor(2))

	test.That(t, h.hub.CreateSensor(1), test.ShouldBeNil)
	test.That(t, h.hub.Stats().MemoryUsed, test.ShouldEqual, 4*sampleSize)
	test.That(t, errcode.Of(h.hub.CreateSensor(2)), test.ShouldEqual, errcode.MemoryLimitExceeded)

	test.That(t, h.hub.DeleteSensor(1), test.ShouldBeNil)
	test.That(t, h.hub.Stats().MemoryUsed, test.ShouldEqual, 0)
	test.That(t, h.hub.CreateSensor(2), test.ShouldBeNil)
}

// A polling temperature sensor at 1000 ms with a 1000 ms delivery timeout
// delivers one sample per period and nothing after stop.
func TestPollingTimeoutDelivery(t *testing.T) {
	h := newHarness(t, nil, tempSensor(1))
	hub := h.hub

	test.That(t, hub.CreateSensor(1), test.ShouldBeNil)
	test.That(t, hub.StartSensor(1), test.ShouldBeNil)

	h.clk.Add(990 * time.Millisecond)
	settle()
	test.That(t, h.rec.count(types.EventDataReady), test.ShouldEqual, 0)

	h.advanceUntil(t, "first data ready", 10*time.Millisecond, 500*time.Millisecond, func() bool {
		return h.rec.count(types.EventDataReady) == 1
	})
	groups := h.rec.groups()
	test.That(t, groups, test.ShouldHaveLength, 1)
	test.That(t, groups[0].Count, test.ShouldEqual, 1)
	test.That(t, groups[0].Samples[0].Kind, test.ShouldEqual, types.SampleTemperature)
	test.That(t, groups[0].Samples[0].TS.IsZero(), test.ShouldBeFalse)

	test.That(t, hub.StopSensor(1), test.ShouldBeNil)
	for i := 0; i < 30; i++ {
		h.clk.Add(100 * time.Millisecond)
	}
	settle()
	test.That(t, h.rec.count(types.EventDataReady), test.ShouldEqual, 1)
	test.That(t, h.rec.kinds(), test.ShouldResemble, []types.EventKind{
		types.EventStarted, types.EventDataReady, types.EventStopped,
	})
	test.That(t, hub.Stats().Deliveries, test.ShouldEqual, uint64(1))
}

func TestCountDelivery(t *testing.T) {
	s := tempSensor(1)
	s.Interval = 100 * time.Millisecond
	s.Delivery = types.Delivery{Mode: types.DeliveryCount, Count: 3}
	h := newHarness(t, nil, s)
	h.impl.values = []float64{21.5, 22, 22.5}

	test.That(t, h.hub.CreateSensor(1), test.ShouldBeNil)
	test.That(t, h.hub.StartSensor(1), test.ShouldBeNil)
	h.advanceUntil(t, "count delivery", 10*time.Millisecond, 2*time.Second, func() bool {
		return h.rec.count(types.EventDataReady) == 1
	})

	g := h.rec.groups()[0]
	test.That(t, g.Count, test.ShouldEqual, 3)
	test.That(t, g.Samples[0].Celsius, test.ShouldEqual, 21.5)
	test.That(t, g.Samples[2].Celsius, test.ShouldEqual, 22.5)
	test.That(t, g.Samples[2].TS.After(g.Samples[0].TS), test.ShouldBeTrue)
}

func TestCountDeliveryCycles(t *testing.T) {
	const k = 3
	s := tempSensor(1)
	s.Interval = 100 * time.Millisecond
	s.MaxSamples = k
	s.Delivery = types.Delivery{Mode: types.DeliveryCount, Count: k}
	h := newHarness(t, nil, s)

	test.That(t, h.hub.CreateSensor(1), test.ShouldBeNil)
	test.That(t, h.hub.StartSensor(1), test.ShouldBeNil)
	for i := 1; i <= k*k; i++ {
		h.clk.Add(s.Interval)
		waitFor(t, "sample", func() bool { return h.hub.Stats().Samples == uint64(i) })
	}
	waitFor(t, "deliveries", func() bool { return h.rec.count(types.EventDataReady) == k })
	settle()

	groups := h.rec.groups()
	test.That(t, groups, test.ShouldHaveLength, k)
	for i, g := range groups {
		test.That(t, g.Count, test.ShouldEqual, k)
		for j := 0; j < k; j++ {
			test.That(t, g.Samples[j].Celsius, test.ShouldEqual, float64(i*k+j+1))
		}
	}
	test.That(t, h.hub.Stats().Deliveries, test.ShouldEqual, uint64(k))
}

func TestStopStartDoesNotLeak(t *testing.T) {
	h := newHarness(t, nil, tempSensor(1), irqSensor(2, 5))
	pin := h.buses.pin(5)
	test.That(t, h.hub.CreateSensor(1), test.ShouldBeNil)
	test.That(t, h.hub.CreateSensor(2), test.ShouldBeNil)

	for i := 0; i < 5; i++ {
		test.That(t, h.hub.StartSensor(1), test.ShouldBeNil)
		test.That(t, h.hub.StartSensor(2), test.ShouldBeNil)
		test.That(t, h.hub.alarm.Len(), test.ShouldEqual, 1)
		test.That(t, h.hub.irqs.Len(), test.ShouldEqual, 1)
		test.That(t, pin.armed(), test.ShouldBeTrue)

		test.That(t, h.hub.StopSensor(1), test.ShouldBeNil)
		test.That(t, h.hub.StopSensor(2), test.ShouldBeNil)
		test.That(t, h.hub.alarm.Len(), test.ShouldEqual, 0)
		test.That(t, h.hub.irqs.Len(), test.ShouldEqual, 0)
		test.That(t, pin.armed(), test.ShouldBeFalse)
	}

	test.That(t, h.hub.StartSensor(1), test.ShouldBeNil)
	test.That(t, h.hub.StartSensor(2), test.ShouldBeNil)
	test.That(t, h.hub.alarm.Len(), test.ShouldEqual, 1)
	test.That(t, h.hub.irqs.Len(), test.ShouldEqual, 1)
	test.That(t, h.hub.reg.Len(), test.ShouldEqual, 2)

	pin.fire()
	waitFor(t, "interrupt data ready", func() bool { return h.rec.count(types.EventDataReady) == 1 })
	test.That(t, h.rec.count(types.EventStarted), test.ShouldEqual, 12)
	test.That(t, h.rec.count(types.EventStopped), test.ShouldEqual, 10)
}

func TestThresholdDelivery(t *testing.T) {
	s := tempSensor(1)
	s.Interval = 100 * time.Millisecond
	s.MaxSamples = 8
	s.Delivery = types.Delivery{Mode: types.DeliveryThreshold, Threshold: 30}
	h := newHarness(t, nil, s)
	h.impl.values = []float64{10, 20, 35}

	test.That(t, h.hub.CreateSensor(1), test.ShouldBeNil)
	test.That(t, h.hub.StartSensor(1), test.ShouldBeNil)
	h.advanceUntil(t, "threshold delivery", 10*time.Millisecond, 2*time.Second, func() bool {
		return h.rec.count(types.EventDataReady) == 1
	})

	g := h.rec.groups()[0]
	test.That(t, g.Count, test.ShouldEqual, 3)
	last, _ := g.Latest()
	test.That(t, last.Celsius, test.ShouldEqual, 35.0)
}

func TestFullBufferForcesDelivery(t *testing.T) {
	s := tempSensor(1)
	s.Interval = 100 * time.Millisecond
	s.MaxSamples = 2
	s.Delivery = types.Delivery{Mode: types.DeliveryThreshold, Threshold: 1000}
	h := newHarness(t, nil, s)

	test.That(t, h.hub.CreateSensor(1), test.ShouldBeNil)
	test.That(t, h.hub.StartSensor(1), test.ShouldBeNil)
	h.advanceUntil(t, "forced delivery", 10*time.Millisecond, 2*time.Second, func() bool {
		return h.rec.count(types.EventDataReady) == 1
	})
	test.That(t, h.rec.groups()[0].Count, test.ShouldEqual, 2)
}

func TestSampleFailureKeepsSensorStarted(t *testing.T) {
	s := tempSensor(1)
	s.Interval = 100 * time.Millisecond
	h := newHarness(t, nil, s)

	test.That(t, h.hub.CreateSensor(1), test.ShouldBeNil)
	h.impl.driver(1).setSampleErr(errors.New("bus stuck"))
	test.That(t, h.hub.StartSensor(1), test.ShouldBeNil)

	h.advanceUntil(t, "sample failure", 10*time.Millisecond, time.Second, func() bool {
		return h.rec.count(types.EventSampleFailed) >= 1
	})
	st, _ := h.hub.Status(1)
	test.That(t, st, test.ShouldEqual, types.StatusStarted)
	test.That(t, h.hub.Stats().SampleFailures, test.ShouldBeGreaterThan, uint64(0))

	sensors, err := h.hub.Sensors()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sensors, test.ShouldHaveLength, 1)
	test.That(t, sensors[0].Failures, test.ShouldBeGreaterThan, uint64(0))
	test.That(t, sensors[0].Samples, test.ShouldEqual, uint64(0))
}

func TestInterruptSampling(t *testing.T) {
	h := newHarness(t, nil, irqSensor(1, 5), irqSensor(2, 5))
	pin := h.buses.pin(5)

	test.That(t, h.hub.CreateSensor(1), test.ShouldBeNil)
	test.That(t, h.hub.CreateSensor(2), test.ShouldBeNil)
	test.That(t, h.hub.StartSensor(1), test.ShouldBeNil)
	test.That(t, pin.armed(), test.ShouldBeTrue)
	test.That(t, h.hub.alarm.Len(), test.ShouldEqual, 0)

	// One line routes to one sensor.
	test.That(t, errcode.Of(h.hub.StartSensor(2)), test.ShouldEqual, errcode.IRQLineInUse)
	st, _ := h.hub.Status(2)
	test.That(t, st, test.ShouldEqual, types.StatusValid)

	pin.fire()
	waitFor(t, "interrupt data ready", func() bool { return h.rec.count(types.EventDataReady) == 1 })
	test.That(t, h.rec.groups()[0].Count, test.ShouldEqual, 1)
	test.That(t, h.hub.Stats().ISRFired, test.ShouldEqual, uint32(1))

	test.That(t, h.hub.StopSensor(1), test.ShouldBeNil)
	test.That(t, pin.armed(), test.ShouldBeFalse)
	pin.fire()
	settle()
	test.That(t, h.rec.count(types.EventDataReady), test.ShouldEqual, 1)

	// The line is free for the other sensor now.
	test.That(t, h.hub.StartSensor(2), test.ShouldBeNil)
	pin.fire()
	waitFor(t, "second sensor data ready", func() bool { return h.rec.count(types.EventDataReady) == 2 })
}

func TestInterruptDisableFailureKeepsSensorStarted(t *testing.T) {
	h := newHarness(t, nil, irqSensor(1, 5))
	pin := h.buses.pin(5)
	test.That(t, h.hub.CreateSensor(1), test.ShouldBeNil)
	test.That(t, h.hub.StartSensor(1), test.ShouldBeNil)

	pin.failClear(errors.New("pinctrl busy"))
	test.That(t, errcode.Of(h.hub.StopSensor(1)), test.ShouldEqual, errcode.HALControlFailed)
	st, _ := h.hub.Status(1)
	test.That(t, st, test.ShouldEqual, types.StatusStarted)
	test.That(t, h.hub.irqs.Len(), test.ShouldEqual, 1)
	test.That(t, pin.armed(), test.ShouldBeTrue)
	waitFor(t, "stop failed", func() bool { return h.rec.count(types.EventStopFailed) == 1 })

	// Still sampling on the line it could not release.
	pin.fire()
	waitFor(t, "data ready", func() bool { return h.rec.count(types.EventDataReady) == 1 })

	pin.failClear(nil)
	test.That(t, h.hub.StopSensor(1), test.ShouldBeNil)
	test.That(t, h.hub.irqs.Len(), test.ShouldEqual, 0)
	test.That(t, pin.armed(), test.ShouldBeFalse)
}

func TestInterruptLineUnavailable(t *testing.T) {
	h := newHarness(t, nil, irqSensor(1, 7))
	test.That(t, h.hub.CreateSensor(1), test.ShouldBeNil)
	test.That(t, errcode.Of(h.hub.StartSensor(1)), test.ShouldEqual, errcode.GPIOOutOfRange)
	waitFor(t, "start failed", func() bool { return h.rec.count(types.EventStartFailed) == 1 })
}

func TestControlSensor(t *testing.T) {
	h := newHarness(t, nil, tempSensor(1))
	test.That(t, h.hub.CreateSensor(1), test.ShouldBeNil)

	test.That(t, errcode.Of(h.hub.ControlSensor(1, types.CmdNone, nil)), test.ShouldEqual, errcode.InvalidParameters)
	test.That(t, h.hub.ControlSensor(1, types.CmdSetRange, uint16(4)), test.ShouldBeNil)

	d := h.impl.driver(1)
	d.mu.Lock()
	d.controlErr = errors.New("nack")
	d.mu.Unlock()
	test.That(t, errcode.Of(h.hub.ControlSensor(1, types.CmdReset, nil)), test.ShouldEqual, errcode.HALControlFailed)

	d.mu.Lock()
	test.That(t, d.cmds, test.ShouldResemble, []types.Command{types.CmdSetRange, types.CmdReset})
	d.mu.Unlock()
	waitFor(t, "control failed", func() bool { return h.rec.count(types.EventControlFailed) == 1 })
}

func TestNotifyRegisterRequiresBoth(t *testing.T) {
	hub := New(Options{Logger: zaptest.NewLogger(t)})
	test.That(t, errcode.Of(hub.NotifyRegister(nil, &types.Ack{})), test.ShouldEqual, errcode.InvalidParameters)
	test.That(t, errcode.Of(hub.NotifyRegister(func(types.SensorID, types.EventKind, any) {}, nil)),
		test.ShouldEqual, errcode.InvalidParameters)
}

func TestLockTimeout(t *testing.T) {
	hub := New(Options{
		Config:      &types.HubConfig{Sensors: []types.SensorInfo{tempSensor(1)}},
		LockTimeout: 20 * time.Millisecond,
		Logger:      zaptest.NewLogger(t),
	})
	test.That(t, hub.lock.Acquire(context.Background(), 1), test.ShouldBeNil)
	defer hub.lock.Release(1)

	test.That(t, errcode.Of(hub.CreateSensor(1)), test.ShouldEqual, errcode.MutexTimeout)
	_, err := hub.Status(1)
	test.That(t, errcode.Of(err), test.ShouldEqual, errcode.MutexTimeout)
}

func TestInit(t *testing.T) {
	cfg := &types.HubConfig{Buses: types.BusConfig{
		I2C:  []types.I2CBus{{Name: "i2c0"}, {Name: "i2c1"}},
		GPIO: []types.GPIOLine{{Line: 2, Pin: "GPIO2"}},
	}}
	newHub := func(buses *fakeBuses) *Hub {
		return New(Options{Config: cfg, Buses: buses, Logger: zaptest.NewLogger(t)})
	}

	// One bus missing is tolerated.
	buses := newFakeBuses()
	buses.i2c["i2c0"] = &fakeI2C{}
	buses.pin(2)
	buses.openErr = multierr.Combine(errors.New("i2c1: no such device"))
	test.That(t, newHub(buses).Init(context.Background()), test.ShouldBeNil)

	// Every bus failing individually.
	buses = newFakeBuses()
	buses.openErr = multierr.Combine(
		errors.New("i2c0: no such device"),
		errors.New("i2c1: no such device"),
		errors.New("gpio 2: no pin"),
	)
	test.That(t, errcode.Of(newHub(buses).Init(context.Background())), test.ShouldEqual, errcode.BusInitFailed)

	// A single host-level failure leaves nothing open.
	buses = newFakeBuses()
	buses.openErr = errors.New("periph host init: no drivers")
	h := newHub(buses)
	err := h.Init(context.Background())
	test.That(t, errcode.Of(err), test.ShouldEqual, errcode.BusInitFailed)
	test.That(t, err.Error(), test.ShouldContainSubstring, "periph host init")
	_, err = h.DetectSensors(4)
	test.That(t, errcode.Of(err), test.ShouldEqual, errcode.BusInitFailed)

	// No error reported, but nothing served either.
	test.That(t, errcode.Of(newHub(newFakeBuses()).Init(context.Background())), test.ShouldEqual, errcode.BusInitFailed)

	// Nothing configured is not a failure.
	empty := New(Options{Config: &types.HubConfig{}, Buses: newFakeBuses(), Logger: zaptest.NewLogger(t)})
	test.That(t, empty.Init(context.Background()), test.ShouldBeNil)
}

func TestDetectSensors(t *testing.T) {
	h := newHarness(t, nil, tempSensor(1))
	h.buses.i2c["i2c0"] = &fakeI2C{acks: map[uint16]bool{0x23: true, 0x48: true}}

	_, err := h.hub.DetectSensors(4)
	test.That(t, errcode.Of(err), test.ShouldEqual, errcode.BusInitFailed)
	test.That(t, h.hub.Init(context.Background()), test.ShouldBeNil)

	found, err := h.hub.DetectSensors(4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldResemble, []Detected{
		{Bus: "i2c0", Address: 0x23},
		{Bus: "i2c0", Address: 0x48, Sensor: 1, Known: true},
	})

	found, err = h.hub.DetectSensors(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldHaveLength, 1)

	_, err = h.hub.DetectSensors(0)
	test.That(t, errcode.Of(err), test.ShouldEqual, errcode.InvalidParameters)

	// Detection does not touch the registry.
	sensors, _ := h.hub.Sensors()
	test.That(t, sensors, test.ShouldBeEmpty)
}

func TestPowerRetimesAlarm(t *testing.T) {
	h := newHarness(t, nil)
	hub := h.hub
	test.That(t, hub.PowerState(), test.ShouldEqual, PS4)

	test.That(t, hub.RequestPower(ToPS2), test.ShouldBeNil)
	waitFor(t, "ps2", func() bool { return hub.PowerState() == PS2 })
	test.That(t, hub.alarm.Period(), test.ShouldEqual, 40*time.Millisecond)

	test.That(t, hub.RequestPower(ToSleep), test.ShouldBeNil)
	waitFor(t, "sleep", func() bool { return hub.PowerState() == Sleep })
	test.That(t, hub.alarm.Period(), test.ShouldEqual, time.Second)

	test.That(t, hub.RequestPower(Wakeup), test.ShouldBeNil)
	waitFor(t, "wakeup", func() bool { return hub.PowerState() == PS2 })
	test.That(t, hub.Stats().Power, test.ShouldEqual, PS2)
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t, nil)
	test.That(t, errcode.Of(h.hub.Start(context.Background())), test.ShouldEqual, errcode.TaskCreationFailed)
}
