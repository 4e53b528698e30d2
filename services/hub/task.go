package hub

import (
	"context"
	"errors"
	"math/bits"
	"time"

	"go.uber.org/zap"

	"sensorhub-go/errcode"
	"sensorhub-go/services/hub/internal/power"
	"sensorhub-go/services/hub/internal/registry"
	"sensorhub-go/types"
)

// runSensorTask waits on the event-flag word and samples every flagged
// sensor. Sampling and delivery happen under the lifecycle lock, so a stop
// that has returned cannot be followed by a data-ready for that sensor.
func (h *Hub) runSensorTask(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.wake:
		}
		pending := h.flags.Swap(0)
		if pending == 0 {
			continue
		}
		if err := h.lock.Acquire(ctx, 1); err != nil {
			return nil
		}
		for pending != 0 {
			i := bits.TrailingZeros32(pending)
			pending &^= 1 << uint(i)
			hd := h.reg.At(i)
			if hd == nil || hd.Status != types.StatusStarted {
				continue
			}
			h.sample(ctx, hd)
		}
		h.lock.Release(1)
	}
}

// sample takes one reading from hd and delivers if the delivery condition
// holds. Caller holds the lifecycle lock.
func (h *Hub) sample(ctx context.Context, hd *registry.Handle) {
	id := hd.ID()
	g := hd.Group
	before := g.Count

	err := hd.Driver.Sample(ctx, g)
	if err == nil && g.Count != before+1 {
		err = errcode.Newf(errcode.HALSampleFailed, "sample", "driver appended %d samples", g.Count-before)
		g.Count = before
	}
	if errors.Is(err, ErrNotReady) {
		return
	}
	if err != nil {
		hd.Failures++
		h.sampleFails.Add(1)
		h.slog.Warn("sample failed", zap.Uint8("id", uint8(id)), zap.Error(err))
		_ = h.post(id, types.EventSampleFailed, nil, errcode.New(errcode.HALSampleFailed, "sample", err))
		return
	}

	now := h.clk.Now()
	if g.Samples[g.Count-1].TS.IsZero() {
		g.Samples[g.Count-1].TS = now
	}
	hd.Samples++
	h.samples.Add(1)

	if h.due(hd, now) {
		h.deliver(hd, now)
	}
}

// due evaluates the delivery condition. A full buffer always delivers.
func (h *Hub) due(hd *registry.Handle, now time.Time) bool {
	g := hd.Group
	if g.Full() {
		return true
	}
	d := hd.Info.Delivery
	switch d.Mode {
	case types.DeliveryThreshold:
		s, _ := g.Latest()
		return s.Magnitude() >= d.Threshold
	case types.DeliveryTimeout:
		return now.Sub(hd.LastDelivery) >= d.Timeout
	case types.DeliveryCount:
		return g.Count >= d.Count
	}
	return false
}

// deliver hands a copy of the buffer to the event manager and resets it. The
// buffer is reset even when the post is dropped.
func (h *Hub) deliver(hd *registry.Handle, now time.Time) {
	snap := hd.Group.Snapshot()
	hd.Group.Reset()
	hd.LastDelivery = now
	err := h.post(hd.ID(), types.EventDataReady, snap, nil)
	hd.Acked = err == nil
	if err != nil {
		h.slog.Warn("data ready dropped", zap.Uint8("id", uint8(hd.ID())), zap.Int("samples", snap.Count))
		return
	}
	hd.Deliveries++
	h.deliveries.Add(1)
}

// powerControl is the default platform hook for the power task: the alarm
// is retimed and enabled interrupt lines stay armed as wake sources.
type powerControl struct{ h *Hub }

func (c powerControl) ConfigureWakeSources(s power.State) error {
	c.h.log.Info("wake sources",
		zap.Stringer("state", s),
		zap.Ints("gpio", c.h.gpio.EnabledLines()),
		zap.Bool("alarm", true))
	return nil
}

func (c powerControl) SetAlarmPeriod(d time.Duration) error { return c.h.alarm.SetPeriod(d) }
