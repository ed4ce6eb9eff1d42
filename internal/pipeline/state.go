// File: internal/pipeline/state.go
// Brief: Per-run mutable state shared between pipeline steps.

package pipeline

import "github.com/example/awsdeploy/internal/provision"

// State accumulates the outputs collected per stack during a single run. It
// is owned exclusively by the engine, mutated only between steps, and never
// persisted across runs.
type State struct {
	outputs map[string][]provision.Output
}

// NewState returns an empty run state.
func NewState() *State {
	return &State{outputs: make(map[string][]provision.Output)}
}

// RecordOutputs stores the outputs collected for a stack, replacing any
// previous record for the same name.
func (s *State) RecordOutputs(stack string, outputs []provision.Output) {
	s.outputs[stack] = outputs
}

// Outputs returns the outputs recorded for a stack, nil when none were
// recorded.
func (s *State) Outputs(stack string) []provision.Output {
	return s.outputs[stack]
}

// LookupOutput returns the value of the named output for a stack. When the
// provider returns duplicate keys the first match is authoritative.
func (s *State) LookupOutput(stack, key string) (string, bool) {
	for _, o := range s.outputs[stack] {
		if o.Key == key {
			return o.Value, true
		}
	}
	return "", false
}
