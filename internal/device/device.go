// Package device holds the probed compute devices available to the engine
// and ranks them by strength.
package device

// Device is an immutable record describing one probed compute device.
// Created once at startup by the probe collaborator; never mutated.
type Device struct {
	Name          string
	Backend       string
	VRAMGB        float64
	TFlops        float64
	BandwidthGBps float64
}

// StrengthScore weights compute, bandwidth, and memory into a single
// ranking value: 0.6*tflops + 0.3*bandwidth + 0.1*vram.
func (d Device) StrengthScore() float64 {
	return d.TFlops*0.6 + d.BandwidthGBps*0.3 + d.VRAMGB*0.1
}

// Label returns the "{backend}:{name}" placement identifier used in shard
// plans and metrics.
func (d Device) Label() string {
	return d.Backend + ":" + d.Name
}

// Registry is an ordered, insertion-order sequence of devices. It is
// constructed once at startup and never mutated afterward, so reads
// require no locking.
type Registry struct {
	devices []Device
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddAll appends devices to the registry in order.
func (r *Registry) AddAll(devices []Device) {
	r.devices = append(r.devices, devices...)
}

// List returns a stable snapshot copy of the registered devices.
func (r *Registry) List() []Device {
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Len reports the number of registered devices.
func (r *Registry) Len() int {
	return len(r.devices)
}

// BestDevice returns the device with the highest strength score, the
// first one found on ties. Returns false if the registry is empty.
func (r *Registry) BestDevice() (Device, bool) {
	if len(r.devices) == 0 {
		return Device{}, false
	}
	best := r.devices[0]
	bestScore := best.StrengthScore()
	for _, d := range r.devices[1:] {
		if s := d.StrengthScore(); s > bestScore {
			best = d
			bestScore = s
		}
	}
	return best, true
}
