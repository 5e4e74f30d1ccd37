// Package runner provides the trivial echo fallback used when no backend
// replies.
package runner

import "github.com/relayserve/relayserve/internal/device"

// Runner is the fallback inference runner: pure, total, side-effect-free.
type Runner struct{}

// New returns an echo Runner.
func New() *Runner {
	return &Runner{}
}

// Run echoes the prompt back. device is accepted for interface symmetry
// with real runners but is not consulted.
func (r *Runner) Run(d device.Device, prompt string) string {
	return "Echo: " + prompt
}
