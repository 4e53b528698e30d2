// services/hub/internal/impl/impl.go
package impl

import (
	"fmt"
	"sort"
	"sync"

	"sensorhub-go/services/hub/internal/halcore"
	"sensorhub-go/types"
)

// Table maps a sensor type to the factory that builds its driver.
type Table struct {
	mu        sync.RWMutex
	factories map[types.SensorType]halcore.Factory
}

func NewTable() *Table {
	return &Table{factories: map[types.SensorType]halcore.Factory{}}
}

// Register adds f for typ. Registering a type twice is a programming error.
func (t *Table) Register(typ types.SensorType, f halcore.Factory) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f == nil {
		panic(fmt.Sprintf("nil sensor factory for type %q", typ))
	}
	if _, exists := t.factories[typ]; exists {
		panic(fmt.Sprintf("sensor factory already registered for type %q", typ))
	}
	t.factories[typ] = f
}

func (t *Table) Lookup(typ types.SensorType) (halcore.Factory, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.factories[typ]
	return f, ok
}

// Types lists registered sensor types in ascending order.
func (t *Table) Types() []types.SensorType {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.SensorType, 0, len(t.factories))
	for k := range t.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Default is the process-wide table that device packages populate from init().
var Default = NewTable()

func Register(typ types.SensorType, f halcore.Factory) { Default.Register(typ, f) }

func Lookup(typ types.SensorType) (halcore.Factory, bool) { return Default.Lookup(typ) }
