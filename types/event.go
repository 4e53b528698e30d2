package types

import (
	"sync/atomic"
	"time"
)

// EventKind is what happened to a sensor.
type EventKind uint8

const (
	EventNone EventKind = iota
	EventCreateFailed
	EventStarted
	EventStopped
	EventDataReady
	EventConfigInvalid
	EventStartFailed
	EventStopFailed
	EventDeleteFailed
	EventDeleted
	EventSampleFailed
	EventControlFailed
)

var eventNames = map[EventKind]string{
	EventNone:          "none",
	EventCreateFailed:  "create_failed",
	EventStarted:       "started",
	EventStopped:       "stopped",
	EventDataReady:     "data_ready",
	EventConfigInvalid: "config_invalid",
	EventStartFailed:   "start_failed",
	EventStopFailed:    "stop_failed",
	EventDeleteFailed:  "delete_failed",
	EventDeleted:       "deleted",
	EventSampleFailed:  "sample_failed",
	EventControlFailed: "control_failed",
}

func (k EventKind) String() string { return nameOf(eventNames, k) }

// Event travels from producers to the event manager.
// For EventDataReady, Data is a *DataGroup owned by the callback for the
// duration of the call only.
type Event struct {
	Sensor SensorID
	Kind   EventKind
	Data   any
	Err    error
	TS     time.Time
}

// Callback is the application notification hook. It runs on the event
// manager goroutine only.
type Callback func(id SensorID, kind EventKind, data any)

// Ack is the acknowledgment slot written after each callback invocation.
type Ack struct {
	last atomic.Uint32
	n    atomic.Uint64
}

func (a *Ack) Store(id SensorID) {
	a.last.Store(uint32(id))
	a.n.Add(1)
}

// Last returns the sensor id of the most recently delivered event.
func (a *Ack) Last() SensorID { return SensorID(a.last.Load()) }

// Count returns how many events have been acknowledged.
func (a *Ack) Count() uint64 { return a.n.Load() }

// Command is a driver control request.
type Command uint8

const (
	CmdNone Command = iota
	CmdPowerOn
	CmdPowerOff
	CmdReset
	CmdSetRange
	CmdSetRate
	CmdEnableInterrupt
	CmdDisableInterrupt
	CmdSetFunction
)

var commandNames = map[Command]string{
	CmdNone:             "none",
	CmdPowerOn:          "power_on",
	CmdPowerOff:         "power_off",
	CmdReset:            "reset",
	CmdSetRange:         "set_range",
	CmdSetRate:          "set_rate",
	CmdEnableInterrupt:  "enable_interrupt",
	CmdDisableInterrupt: "disable_interrupt",
	CmdSetFunction:      "set_function",
}

func (c Command) String() string { return nameOf(commandNames, c) }

// Status is the lifecycle state of a registry slot.
type Status uint8

const (
	StatusInvalid Status = iota
	StatusValid
	StatusStarted
	StatusStopped
)

var statusNames = map[Status]string{
	StatusInvalid: "invalid",
	StatusValid:   "valid",
	StatusStarted: "started",
	StatusStopped: "stopped",
}

func (s Status) String() string { return nameOf(statusNames, s) }
