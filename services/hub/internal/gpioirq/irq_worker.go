// services/hub/internal/gpioirq/irq_worker.go
package gpioirq

import (
	"sort"
	"sync"
	"sync/atomic"

	"sensorhub-go/errcode"
	"sensorhub-go/services/hub/internal/halcore"
	"sensorhub-go/types"
)

// SignalFunc is called from interrupt context with the line that fired. It
// must only record the event and wake the consumer; false means the line
// could not be resolved and the interrupt was dropped.
type SignalFunc func(line int) bool

type Worker struct {
	signal SignalFunc

	mu    sync.RWMutex
	lines map[int]*line

	drops atomic.Uint32 // ISR drop counter
	fired atomic.Uint32
}

type line struct {
	pin     halcore.IRQPin
	edge    types.Edge
	enabled bool
}

func New(signal SignalFunc) *Worker {
	return &Worker{signal: signal, lines: map[int]*line{}}
}

// Configure records the detection edge for a line without enabling it.
// Reconfiguring an enabled line is rejected.
func (w *Worker) Configure(pin halcore.IRQPin, edge types.Edge) error {
	const op = "gpioirq.configure"
	if pin == nil {
		return errcode.Newf(errcode.GPIOOutOfRange, op, "nil pin")
	}
	if edge == types.EdgeNone {
		return errcode.Newf(errcode.InvalidMode, op, "line %d: no edge", pin.Number())
	}
	n := pin.Number()
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.lines[n]; ok && cur.enabled {
		return errcode.Newf(errcode.IRQLineInUse, op, "line %d enabled", n)
	}
	w.lines[n] = &line{pin: pin, edge: edge}
	return nil
}

// Enable installs the ISR on a configured line.
func (w *Worker) Enable(n int) error {
	const op = "gpioirq.enable"
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.lines[n]
	if !ok {
		return errcode.Newf(errcode.GPIOOutOfRange, op, "line %d not configured", n)
	}
	if l.enabled {
		return nil
	}
	// ISR handler: resolve and signal only.
	handler := func() {
		w.fired.Add(1)
		if !w.signal(n) {
			w.drops.Add(1)
		}
	}
	if err := l.pin.SetIRQ(l.edge, handler); err != nil {
		return errcode.New(errcode.Fail, op, err)
	}
	l.enabled = true
	return nil
}

// Disable removes the ISR. After a nil return the handler is not installed
// on the pin; on error the line is still reported enabled.
func (w *Worker) Disable(n int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.lines[n]
	if !ok || !l.enabled {
		return nil
	}
	if err := l.pin.ClearIRQ(); err != nil {
		return errcode.New(errcode.Fail, "gpioirq.disable", err)
	}
	l.enabled = false
	return nil
}

// Release disables and forgets a line.
func (w *Worker) Release(n int) error {
	err := w.Disable(n)
	w.mu.Lock()
	delete(w.lines, n)
	w.mu.Unlock()
	return err
}

func (w *Worker) Enabled(n int) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	l, ok := w.lines[n]
	return ok && l.enabled
}

// EnabledLines lists lines with an installed ISR in ascending order.
func (w *Worker) EnabledLines() []int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []int
	for n, l := range w.lines {
		if l.enabled {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func (w *Worker) ISRDrops() uint32 { return w.drops.Load() }
func (w *Worker) ISRFired() uint32 { return w.fired.Load() }
