// Package effects implements the cross-cutting effect-policy evaluator of
// spec.md §4.7: a pure function of which output devices are live and which
// input streams request which effects, deciding whether DSP-offloaded
// input effects may be active. Grounded on
// teacher/client/internal/agc/agc.go's shape of a small stateless policy
// type wrapping a pure decision function, adapted from gain control to
// echo-cancellation/noise-cancellation admission policy.
package effects

import "audiorouted/internal/model"

// Evaluator tracks the two boolean inputs of spec.md §4.7 and derives
// dsp_input_effects_blocked from them. It owns no devices or streams;
// callers recompute its inputs from the registry/stream list and feed them
// in via Update.
type Evaluator struct {
	nonDSPAECEchoRefDevAlive bool
	aecOnDSPDisallowed       bool

	// NCStandaloneMode collapses the OR to only the first input, per
	// spec.md §4.7's parenthetical.
	NCStandaloneMode bool

	blocked bool
}

// New returns an evaluator with both inputs false (nothing blocked).
func New() *Evaluator { return &Evaluator{} }

// Blocked reports the current value of dsp_input_effects_blocked.
func (e *Evaluator) Blocked() bool { return e.blocked }

// Update recomputes the two inputs and returns whether the blocked flag
// changed as a result — callers use the return value to decide whether to
// republish the snapshot and fire exactly one nodes_changed notification,
// per spec.md §4.7 and invariant I8.
func (e *Evaluator) Update(nonDSPAECEchoRefDevAlive, aecOnDSPDisallowed bool) (changed bool) {
	e.nonDSPAECEchoRefDevAlive = nonDSPAECEchoRefDevAlive
	e.aecOnDSPDisallowed = aecOnDSPDisallowed

	var next bool
	if e.NCStandaloneMode {
		next = nonDSPAECEchoRefDevAlive
	} else {
		next = nonDSPAECEchoRefDevAlive || aecOnDSPDisallowed
	}
	changed = next != e.blocked
	e.blocked = next
	return changed
}

// NonDSPAECEchoRefDevAlive computes spec.md §4.7's first input: true iff
// any non-reserved output device with an active node that is not a
// DSP-AEC-capable speaker is currently enabled or open.
func NonDSPAECEchoRefDevAlive(outputs []*model.Device) bool {
	for _, d := range outputs {
		if model.IsReserved(d.Idx) {
			continue
		}
		if !d.IsEnabled && d.State == model.StateClosed {
			continue
		}
		if !d.IsAECCapableSpeaker() {
			return true
		}
	}
	return false
}

// AECOnDSPDisallowed implements spec.md §4.7's can-use-DSP-AEC predicate
// over the full input stream set: DSP AEC is disallowed for the whole
// system if any stream that isn't utility/don't-care is missing either
// apm_echo_cancellation or dsp_echo_cancellation_allowed.
func AECOnDSPDisallowed(inputs []*model.Stream) bool {
	for _, s := range inputs {
		if !s.CanUseDSPAEC() {
			return true
		}
	}
	return false
}

// DesiredNCProvider implements spec.md §4.8's "policy function that takes
// the node's nc_providers set, the engine's current dsp/ap NC allowances,
// and the current dsp_input_effects_blocked flag". dspAllowed/apAllowed
// model a deployment's global NC-provider enablement; the DSP provider is
// further gated by blocked.
func DesiredNCProvider(n *model.Node, dspAllowed, apAllowed, blocked bool) model.NCProvider {
	if !blocked && dspAllowed && n.HasNCProvider(model.NCProviderDSP) {
		return model.NCProviderDSP
	}
	if apAllowed && n.HasNCProvider(model.NCProviderAP) {
		return model.NCProviderAP
	}
	return model.NCProviderNone
}
