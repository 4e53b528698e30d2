package errcode

import "github.com/pkg/errors"

// Code is a stable status identifier returned by every hub operation.
// It is a small integer newtype, comparable, allocation-free, and implements error.
type Code uint8

// Canonical codes. Values are stable; append only.
const (
	OK Code = iota
	Fail
	InvalidParameters
	TimerCreationFailed
	TimerStartFailed
	TimerStopFailed
	SensorCreateFail // sensor not created
	SensorImplNotFound
	MaxSensorsReached
	MemoryLimitExceeded
	HALCreationFailed
	HALDeletionFailed
	HALSampleFailed
	HALControlFailed
	InvalidAddress
	InvalidMode
	InvalidDeliveryMode
	GPIOOutOfRange
	TaskCreationFailed
	BusInitFailed
	IRQLineInUse
	SensorAlreadyCreated
	SensorNotStarted
	SensorAlreadyStarted
	MutexTimeout
	QueueFull
)

var names = [...]string{
	OK:                   "ok",
	Fail:                 "fail",
	InvalidParameters:    "invalid_parameters",
	TimerCreationFailed:  "timer_creation_failed",
	TimerStartFailed:     "timer_start_failed",
	TimerStopFailed:      "timer_stop_failed",
	SensorCreateFail:     "sensor_not_created",
	SensorImplNotFound:   "sensor_implementation_not_found",
	MaxSensorsReached:    "max_sensors_reached",
	MemoryLimitExceeded:  "memory_limit_exceeded",
	HALCreationFailed:    "hal_creation_failed",
	HALDeletionFailed:    "hal_deletion_failed",
	HALSampleFailed:      "hal_sample_failed",
	HALControlFailed:     "hal_control_failed",
	InvalidAddress:       "invalid_address",
	InvalidMode:          "invalid_mode",
	InvalidDeliveryMode:  "invalid_delivery_mode",
	GPIOOutOfRange:       "gpio_out_of_range",
	TaskCreationFailed:   "task_creation_failed",
	BusInitFailed:        "bus_init_failed",
	IRQLineInUse:         "irq_line_in_use",
	SensorAlreadyCreated: "sensor_already_created",
	SensorNotStarted:     "sensor_not_started",
	SensorAlreadyStarted: "sensor_already_started",
	MutexTimeout:         "mutex_timeout",
	QueueFull:            "queue_full",
}

func (c Code) String() string {
	if int(c) < len(names) && names[c] != "" {
		return names[c]
	}
	return "unknown"
}

func (c Code) Error() string { return c.String() }

// E wraps a Code when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := e.C.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New builds an *E for op with an optional cause.
func New(c Code, op string, cause error) error {
	return &E{C: c, Op: op, Err: cause}
}

// Newf builds an *E with a formatted message.
func Newf(c Code, op string, format string, args ...any) error {
	return &E{C: c, Op: op, Msg: errors.Errorf(format, args...).Error()}
}

// Of extracts a Code from an error, defaulting to Fail.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	if c, ok := errors.Cause(err).(Code); ok {
		return c
	}
	return Fail
}

// Is reports whether err carries code c.
func Is(err error, c Code) bool { return Of(err) == c }
