// services/hub/internal/registry/registry.go
package registry

import (
	"time"

	"sensorhub-go/errcode"
	"sensorhub-go/services/hub/internal/alarm"
	"sensorhub-go/services/hub/internal/halcore"
	"sensorhub-go/types"
)

// Limit is the largest registry the 32-bit event-flag word can address.
const Limit = 32

// Handle is the mutable runtime record of one sensor.
type Handle struct {
	Index   int
	Bit     uint32 // event-flag bit, 1 << Index
	Info    *types.SensorInfo
	Factory halcore.Factory
	Driver  halcore.Driver
	Status  types.Status

	MaxSamples int
	Group      *types.DataGroup
	Bytes      int // sample buffer charge against the memory budget

	Timer *alarm.Timer // polling mode only
	Line  int          // mapped interrupt line, -1 when not mapped

	LastDelivery time.Time
	Acked        bool // last data-ready reached the event queue
	Samples      uint64
	Deliveries   uint64
	Failures     uint64
}

// ID is a convenience for h.Info.ID.
func (h *Handle) ID() types.SensorID { return h.Info.ID }

// Registry is a fixed-capacity arena of handles. It is not safe for
// concurrent use; the hub serialises access with its lifecycle lock.
type Registry struct {
	slots []Handle
	live  int
}

// New builds a registry with max slots, clamped to 1..Limit.
func New(max int) *Registry {
	if max <= 0 {
		max = 8
	}
	if max > Limit {
		max = Limit
	}
	r := &Registry{slots: make([]Handle, max)}
	for i := range r.slots {
		r.slots[i] = Handle{Index: i, Bit: 1 << uint(i), Line: -1}
	}
	return r
}

func (r *Registry) Cap() int  { return len(r.slots) }
func (r *Registry) Len() int  { return r.live }
func (r *Registry) Full() bool { return r.live >= len(r.slots) }

// Alloc places a new sensor in the lowest free slot with status valid. It
// never evicts.
func (r *Registry) Alloc(info *types.SensorInfo, f halcore.Factory, d halcore.Driver, g *types.DataGroup) (int, error) {
	const op = "registry.alloc"
	if _, ok := r.Find(info.ID); ok {
		return 0, errcode.Newf(errcode.SensorAlreadyCreated, op, "sensor %d", info.ID)
	}
	for i := range r.slots {
		h := &r.slots[i]
		if h.Status != types.StatusInvalid {
			continue
		}
		*h = Handle{
			Index:      i,
			Bit:        1 << uint(i),
			Info:       info,
			Factory:    f,
			Driver:     d,
			Status:     types.StatusValid,
			MaxSamples: info.MaxSamples,
			Group:      g,
			Line:       -1,
		}
		r.live++
		return i, nil
	}
	return 0, errcode.Newf(errcode.MaxSensorsReached, op, "%d of %d slots in use", r.live, len(r.slots))
}

// Free resets slot idx to invalid.
func (r *Registry) Free(idx int) {
	if idx < 0 || idx >= len(r.slots) || r.slots[idx].Status == types.StatusInvalid {
		return
	}
	r.slots[idx] = Handle{Index: idx, Bit: 1 << uint(idx), Line: -1}
	r.live--
}

// Find returns the slot holding sensor id.
func (r *Registry) Find(id types.SensorID) (int, bool) {
	for i := range r.slots {
		h := &r.slots[i]
		if h.Status != types.StatusInvalid && h.Info.ID == id {
			return i, true
		}
	}
	return 0, false
}

// At returns the handle in slot idx, or nil if the slot is free.
func (r *Registry) At(idx int) *Handle {
	if idx < 0 || idx >= len(r.slots) || r.slots[idx].Status == types.StatusInvalid {
		return nil
	}
	return &r.slots[idx]
}

// Each visits live handles in ascending index order until fn returns false.
func (r *Registry) Each(fn func(h *Handle) bool) {
	for i := range r.slots {
		if r.slots[i].Status == types.StatusInvalid {
			continue
		}
		if !fn(&r.slots[i]) {
			return
		}
	}
}
