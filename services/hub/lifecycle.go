package hub

import (
	"context"
	"errors"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sensorhub-go/errcode"
	"sensorhub-go/services/hub/internal/registry"
	"sensorhub-go/types"
)

// Init opens every configured bus. Individual bus failures are logged; the
// call fails with BusInitFailed only when no configured bus could be opened.
// What counts as opened is what the provider serves afterwards, not the
// number of errors it reported.
func (h *Hub) Init(ctx context.Context) error {
	const op = "init"
	bc := h.cfg.Buses
	total := len(bc.I2C) + len(bc.SPI) + len(bc.ADC) + len(bc.GPIO)

	err := h.buses.Open(ctx, bc)
	for _, e := range multierr.Errors(err) {
		h.log.Warn("bus init", zap.Error(e))
	}
	opened := h.served(bc)
	if total > 0 && opened == 0 {
		if err == nil {
			return errcode.Newf(errcode.BusInitFailed, op, "none of %d configured buses opened", total)
		}
		return errcode.New(errcode.BusInitFailed, op, err)
	}
	h.inited.Store(true)
	h.log.Info("buses ready",
		zap.Int("configured", total),
		zap.Int("opened", opened),
		zap.Strings("i2c", h.buses.I2CNames()))
	return nil
}

// served counts the configured buses the provider hands out.
func (h *Hub) served(bc types.BusConfig) int {
	n := 0
	for _, b := range bc.I2C {
		if _, ok := h.buses.I2C(b.Name); ok {
			n++
		}
	}
	for _, b := range bc.SPI {
		if _, ok := h.buses.SPI(b.Name); ok {
			n++
		}
	}
	for _, c := range bc.ADC {
		if _, ok := h.buses.ADC(c.Name); ok {
			n++
		}
	}
	for _, l := range bc.GPIO {
		if _, ok := h.buses.Line(l.Line); ok {
			n++
		}
	}
	return n
}

// Detected is one responding I²C address found by DetectSensors.
type Detected struct {
	Bus     string
	Address uint16
	// Sensor is the configured sensor at this address, if any.
	Sensor types.SensorID
	Known  bool
}

// Probe range for 7-bit addresses, excluding reserved blocks.
const (
	probeFirst = 0x08
	probeLast  = 0x77
)

// DetectSensors scans the opened I²C buses and reports up to max responding
// addresses. It has no effect on the registry.
func (h *Hub) DetectSensors(max int) ([]Detected, error) {
	const op = "detect"
	if max <= 0 {
		return nil, errcode.Newf(errcode.InvalidParameters, op, "max %d", max)
	}
	if !h.inited.Load() {
		return nil, errcode.Newf(errcode.BusInitFailed, op, "buses not initialised")
	}
	release, err := h.acquire(op)
	if err != nil {
		return nil, err
	}
	defer release()

	var out []Detected
	var rx [1]byte
	for _, name := range h.buses.I2CNames() {
		bus, ok := h.buses.I2C(name)
		if !ok {
			continue
		}
		for addr := uint16(probeFirst); addr <= probeLast; addr++ {
			if len(out) >= max {
				return out, nil
			}
			if bus.Tx(addr, nil, rx[:]) != nil {
				continue
			}
			d := Detected{Bus: name, Address: addr}
			for i := range h.cfg.Sensors {
				s := &h.cfg.Sensors[i]
				if s.Bus == types.BusI2C && s.BusName == name && s.Address == addr {
					d.Sensor, d.Known = s.ID, true
					break
				}
			}
			out = append(out, d)
		}
	}
	h.log.Debug("detect", zap.Int("found", len(out)))
	return out, nil
}

// CreateSensor builds the driver and sample buffer for a configured sensor
// and registers it with status valid. On error the registry is unchanged.
func (h *Hub) CreateSensor(id types.SensorID) error {
	const op = "create_sensor"
	release, err := h.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	info, ok := h.cfg.Sensor(id)
	if !ok {
		_ = h.post(id, types.EventConfigInvalid, nil, nil)
		return errcode.Newf(errcode.InvalidParameters, op, "sensor %d not configured", id)
	}
	if _, ok := h.reg.Find(id); ok {
		return errcode.Newf(errcode.SensorAlreadyCreated, op, "sensor %d", id)
	}
	if err := info.Validate(h.opts.MaxLine); err != nil {
		_ = h.post(id, types.EventConfigInvalid, nil, err)
		return err
	}
	f, ok := h.impls.Lookup(info.Type)
	if !ok {
		_ = h.post(id, types.EventCreateFailed, nil, nil)
		return errcode.Newf(errcode.SensorImplNotFound, op, "sensor %d type %s", id, info.Type)
	}
	if h.reg.Full() {
		_ = h.post(id, types.EventCreateFailed, nil, nil)
		return errcode.Newf(errcode.MaxSensorsReached, op, "%d slots", h.reg.Cap())
	}
	bytes := info.MaxSamples * sampleSize
	if used := int(h.memUsed.Load()); used+bytes > h.opts.MemoryBudget {
		_ = h.post(id, types.EventCreateFailed, nil, nil)
		return errcode.Newf(errcode.MemoryLimitExceeded, op, "sensor %d needs %d bytes, %d of %d in use",
			id, bytes, used, h.opts.MemoryBudget)
	}

	drv, err := f.Create(h.buses, info)
	if err != nil {
		err = errcode.New(errcode.HALCreationFailed, op, err)
		_ = h.post(id, types.EventCreateFailed, nil, err)
		return err
	}
	g := types.NewDataGroup(info.MaxSamples)
	if info.Mode == types.ModePolling {
		g.MinDelay = info.Interval
	}
	idx, err := h.reg.Alloc(info, f, drv, g)
	if err != nil {
		_ = drv.Delete()
		return err
	}
	h.reg.At(idx).Bytes = bytes
	h.memUsed.Add(int64(bytes))
	h.live.Add(1)
	h.log.Info("sensor created",
		zap.Uint8("id", uint8(id)),
		zap.String("name", info.Name),
		zap.Stringer("type", info.Type),
		zap.Stringer("mode", info.Mode),
		zap.Int("slot", idx))
	return nil
}

// StartSensor arms sampling: a periodic timer in polling mode, the interrupt
// route in interrupt mode.
func (h *Hub) StartSensor(id types.SensorID) error {
	const op = "start_sensor"
	release, err := h.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	hd, err := h.find(op, id)
	if err != nil {
		return err
	}
	if hd.Status == types.StatusStarted {
		return errcode.Newf(errcode.SensorAlreadyStarted, op, "sensor %d", id)
	}
	if err := h.arm(op, hd); err != nil {
		_ = h.post(id, types.EventStartFailed, nil, err)
		return err
	}
	hd.Group.Reset()
	hd.LastDelivery = h.clk.Now()
	hd.Status = types.StatusStarted
	_ = h.post(id, types.EventStarted, nil, nil)
	h.log.Info("sensor started", zap.Uint8("id", uint8(id)), zap.Stringer("mode", hd.Info.Mode))
	return nil
}

func (h *Hub) arm(op string, hd *registry.Handle) error {
	info := hd.Info
	switch info.Mode {
	case types.ModePolling:
		bit := hd.Bit
		tm, err := h.alarm.NewTimer(info.Interval, func() { h.signal(bit) })
		if err != nil {
			return err
		}
		if err := tm.Start(); err != nil {
			tm.Delete()
			return err
		}
		hd.Timer = tm
	case types.ModeInterrupt:
		line := info.IntPin
		pin, ok := h.buses.Line(line)
		if !ok {
			return errcode.Newf(errcode.GPIOOutOfRange, op, "line %d not available", line)
		}
		if err := h.irqs.Add(line, hd.Index); err != nil {
			return err
		}
		if err := h.gpio.Configure(pin, info.IntEdge); err != nil {
			h.irqs.Remove(line)
			return err
		}
		if err := h.gpio.Enable(line); err != nil {
			_ = h.gpio.Release(line)
			h.irqs.Remove(line)
			return err
		}
		hd.Line = line
		if err := hd.Driver.Control(types.CmdEnableInterrupt, nil); err != nil && !errors.Is(err, ErrUnsupported) {
			h.log.Warn("device interrupt enable", zap.Uint8("id", uint8(info.ID)), zap.Error(err))
		}
	default:
		return errcode.Newf(errcode.InvalidMode, op, "sensor %d mode %s", info.ID, info.Mode)
	}
	return nil
}

// StopSensor halts sampling. After it returns no further data-ready event is
// posted for the sensor until it is started again.
func (h *Hub) StopSensor(id types.SensorID) error {
	const op = "stop_sensor"
	release, err := h.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	hd, err := h.find(op, id)
	if err != nil {
		return err
	}
	return h.stopLocked(op, hd)
}

func (h *Hub) stopLocked(op string, hd *registry.Handle) error {
	id := hd.ID()
	if hd.Status != types.StatusStarted {
		return errcode.Newf(errcode.SensorNotStarted, op, "sensor %d is %s", id, hd.Status)
	}
	switch hd.Info.Mode {
	case types.ModePolling:
		if hd.Timer != nil {
			hd.Timer.Delete()
			hd.Timer = nil
		}
	case types.ModeInterrupt:
		if err := hd.Driver.Control(types.CmdDisableInterrupt, nil); err != nil && !errors.Is(err, ErrUnsupported) {
			h.log.Warn("device interrupt disable", zap.Uint8("id", uint8(id)), zap.Error(err))
		}
		if err := h.gpio.Disable(hd.Line); err != nil {
			err = errcode.New(errcode.HALControlFailed, op, err)
			_ = h.post(id, types.EventStopFailed, nil, err)
			return err
		}
		_ = h.gpio.Release(hd.Line)
		h.irqs.Remove(hd.Line)
		hd.Line = -1
	}
	h.flags.And(^hd.Bit)
	hd.Status = types.StatusStopped
	_ = h.post(id, types.EventStopped, nil, nil)
	h.log.Info("sensor stopped", zap.Uint8("id", uint8(id)))
	return nil
}

// DeleteSensor stops the sensor if needed, releases its driver and buffer and
// frees the registry slot.
func (h *Hub) DeleteSensor(id types.SensorID) error {
	const op = "delete_sensor"
	release, err := h.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	hd, err := h.find(op, id)
	if err != nil {
		return err
	}
	if hd.Status == types.StatusStarted {
		if err := h.stopLocked(op, hd); err != nil {
			_ = h.post(id, types.EventDeleteFailed, nil, err)
			return err
		}
	}
	if err := hd.Driver.Delete(); err != nil {
		err = errcode.New(errcode.HALDeletionFailed, op, err)
		_ = h.post(id, types.EventDeleteFailed, nil, err)
		return err
	}
	h.memUsed.Add(-int64(hd.Bytes))
	h.live.Add(-1)
	h.reg.Free(hd.Index)
	_ = h.post(id, types.EventDeleted, nil, nil)
	h.log.Info("sensor deleted", zap.Uint8("id", uint8(id)))
	return nil
}

// ControlSensor passes cmd through to the sensor's driver.
func (h *Hub) ControlSensor(id types.SensorID, cmd types.Command, arg any) error {
	const op = "control_sensor"
	if cmd == types.CmdNone {
		return errcode.Newf(errcode.InvalidParameters, op, "no command")
	}
	release, err := h.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	hd, err := h.find(op, id)
	if err != nil {
		return err
	}
	if err := hd.Driver.Control(cmd, arg); err != nil {
		err = errcode.New(errcode.HALControlFailed, op, err)
		_ = h.post(id, types.EventControlFailed, nil, err)
		return err
	}
	return nil
}

// NotifyRegister installs the application callback and acknowledgment slot.
func (h *Hub) NotifyRegister(cb types.Callback, ack *types.Ack) error {
	return h.em.Register(cb, ack)
}

// Status returns the lifecycle state of sensor id; invalid when it has not
// been created.
func (h *Hub) Status(id types.SensorID) (types.Status, error) {
	release, err := h.acquire("status")
	if err != nil {
		return types.StatusInvalid, err
	}
	defer release()
	idx, ok := h.reg.Find(id)
	if !ok {
		return types.StatusInvalid, nil
	}
	return h.reg.At(idx).Status, nil
}

// SensorState is a point-in-time view of one registered sensor.
type SensorState struct {
	ID         types.SensorID
	Name       string
	Type       types.SensorType
	Mode       types.Mode
	Status     types.Status
	Slot       int
	Line       int
	Pending    int
	Samples    uint64
	Deliveries uint64
	Failures   uint64
}

// Sensors lists registered sensors in slot order.
func (h *Hub) Sensors() ([]SensorState, error) {
	release, err := h.acquire("sensors")
	if err != nil {
		return nil, err
	}
	defer release()
	out := make([]SensorState, 0, h.reg.Len())
	h.reg.Each(func(hd *registry.Handle) bool {
		out = append(out, SensorState{
			ID:         hd.ID(),
			Name:       hd.Info.Name,
			Type:       hd.Info.Type,
			Mode:       hd.Info.Mode,
			Status:     hd.Status,
			Slot:       hd.Index,
			Line:       hd.Line,
			Pending:    hd.Group.Count,
			Samples:    hd.Samples,
			Deliveries: hd.Deliveries,
			Failures:   hd.Failures,
		})
		return true
	})
	return out, nil
}

// find resolves a created sensor. Any id without a registry slot, configured
// or not, is SensorCreateFail.
func (h *Hub) find(op string, id types.SensorID) (*registry.Handle, error) {
	if idx, ok := h.reg.Find(id); ok {
		return h.reg.At(idx), nil
	}
	if _, ok := h.cfg.Sensor(id); !ok {
		return nil, errcode.Newf(errcode.SensorCreateFail, op, "sensor %d not configured", id)
	}
	return nil, errcode.Newf(errcode.SensorCreateFail, op, "sensor %d not created", id)
}
