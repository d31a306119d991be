package application

import "time"

// Metrics receives operational counters from the core services.
type Metrics interface {
	ProbeCompleted(online bool, elapsed time.Duration)
	ToggleCompleted(outcome string)
	AttributeHandled(action string, ok bool)
	FirmwareStep(step string, ok bool)
}

type NoopMetrics struct{}

func (NoopMetrics) ProbeCompleted(bool, time.Duration) {}
func (NoopMetrics) ToggleCompleted(string)             {}
func (NoopMetrics) AttributeHandled(string, bool)      {}
func (NoopMetrics) FirmwareStep(string, bool)          {}
