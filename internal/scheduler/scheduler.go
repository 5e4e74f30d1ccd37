// Package scheduler picks a device for a prompt and classifies its phase.
package scheduler

import "github.com/relayserve/relayserve/internal/device"

// Phase is the classical prefill/decode split of autoregressive inference.
type Phase string

const (
	// PhasePrefill marks the prompt-processing phase.
	PhasePrefill Phase = "prefill"
	// PhaseDecode marks the token-generation phase.
	PhaseDecode Phase = "decode"
)

// Decision is the outcome of scheduling a single request.
type Decision struct {
	Device device.Device
	Phase  Phase
}

// Scheduler ranks devices via the registry and classifies request phase.
type Scheduler struct {
	registry *device.Registry
}

// New returns a Scheduler backed by registry.
func New(registry *device.Registry) *Scheduler {
	return &Scheduler{registry: registry}
}

// Classify always returns PhasePrefill in this reference implementation;
// the interface exists so future schedulers may distinguish prefill-heavy
// from decode-heavy work.
func (s *Scheduler) Classify(prompt string) Phase {
	return PhasePrefill
}

// PickDevice selects the best available device for prompt. Returns false
// when the registry holds no devices.
func (s *Scheduler) PickDevice(prompt string) (Decision, bool) {
	d, ok := s.registry.BestDevice()
	if !ok {
		return Decision{}, false
	}
	return Decision{Device: d, Phase: s.Classify(prompt)}, true
}
