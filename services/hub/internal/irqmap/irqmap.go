// services/hub/internal/irqmap/irqmap.go
package irqmap

import (
	"sync"

	"sensorhub-go/errcode"
)

// Map correlates a physical interrupt line with a registry index. Lookup is
// called from interrupt context and only takes the read lock.
type Map struct {
	mu    sync.RWMutex
	slots []int16 // registry index, -1 when free
	n     int
}

// New builds a map for lines 0..lines-1.
func New(lines int) *Map {
	if lines <= 0 {
		lines = 32
	}
	m := &Map{slots: make([]int16, lines)}
	for i := range m.slots {
		m.slots[i] = -1
	}
	return m
}

// Add binds line to idx. A line holds at most one sensor.
func (m *Map) Add(line, idx int) error {
	const op = "irqmap.add"
	m.mu.Lock()
	defer m.mu.Unlock()
	if line < 0 || line >= len(m.slots) {
		return errcode.Newf(errcode.GPIOOutOfRange, op, "line %d", line)
	}
	if cur := m.slots[line]; cur >= 0 {
		return errcode.Newf(errcode.IRQLineInUse, op, "line %d mapped to index %d", line, cur)
	}
	m.slots[line] = int16(idx)
	m.n++
	return nil
}

// Remove clears line and reports whether it was mapped.
func (m *Map) Remove(line int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if line < 0 || line >= len(m.slots) || m.slots[line] < 0 {
		return false
	}
	m.slots[line] = -1
	m.n--
	return true
}

func (m *Map) Lookup(line int) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if line < 0 || line >= len(m.slots) || m.slots[line] < 0 {
		return 0, false
	}
	return int(m.slots[line]), true
}

// Len is the number of mapped lines.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.n
}

func (m *Map) Lines() int { return len(m.slots) }
