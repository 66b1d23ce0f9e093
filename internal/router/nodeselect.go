package router

import (
	"fmt"

	"audiorouted/internal/model"
)

// SelectNode implements spec.md §4.3.4's select_node: bridges through the
// direction's fallback, disables every enabled device outside the target's
// group, switches the backend's active node, and re-enables the target
// group.
func (r *Router) SelectNode(direction model.Direction, devIdx, nodeIdx int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selectNode(direction, devIdx, nodeIdx, true)
}

// AddActiveNode is select_node without the disable-others step (spec.md
// §4.3.4), used to bring a second concurrently-enabled device into
// service.
func (r *Router) AddActiveNode(direction model.Direction, devIdx, nodeIdx int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selectNode(direction, devIdx, nodeIdx, false)
}

func (r *Router) selectNode(direction model.Direction, devIdx, nodeIdx int, disableOthers bool) error {
	target := r.reg.FindByIdx(devIdx)
	if target == nil || target.Direction != direction {
		return nil // wrong direction or non-existent: no-op, client may have raced
	}

	if target.IsEnabled && target.ActiveNode == nodeIdx {
		return nil
	}

	fallback := r.fallbackFor(direction)
	bridged := false
	if fallback != nil && !fallback.IsEnabled {
		r.enableDevice(fallback)
		bridged = true
	}

	if disableOthers {
		for _, d := range r.reg.All(direction) {
			if fallback != nil && d.Idx == fallback.Idx {
				continue
			}
			if r.reg.InSameGroup(d, target) {
				continue
			}
			if d.IsEnabled {
				r.disableGroup(d)
			}
		}
	}

	target.ActiveNode = nodeIdx
	if err := r.backend.UpdateActiveNode(target, nodeIdx); err != nil {
		return err
	}

	if direction == model.Playback && r.streams != nil && r.hasOutputStreams() {
		r.worker.DevStartRamp(target, model.RampSwitchMute)
	}

	r.enableGroup(target)

	if bridged {
		r.closeDevice(fallback)
		r.disableDevice(fallback)
	}

	r.recomputeEffects()
	r.obs.ActiveNodeChanged(direction.String(), nodeID(devIdx, nodeIdx))
	return nil
}

// RmActiveNode disables the target's group while keeping its pinned
// streams attached, the inverse of select_node's enable step (spec.md
// §4.3.4).
func (r *Router) RmActiveNode(direction model.Direction, devIdx int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := r.reg.FindByIdx(devIdx)
	if target == nil || target.Direction != direction {
		return nil
	}
	r.disableGroup(target)
	r.recomputeEffects()
	return nil
}

// disableGroup disables every device in d's group in a single pass,
// keeping pinned streams attached, per SPEC_FULL.md's group-aware
// enable/disable supplement (grounded on
// original_source/cras/src/server/cras_iodev_list.c's
// cras_iodev_list_disable_dev group accounting).
func (r *Router) disableGroup(d *model.Device) {
	group, _ := r.reg.GroupOf(d)
	for _, dev := range group {
		r.disableDevice(dev)
		if dev.NumPinnedStreams == 0 {
			r.closeDevice(dev)
		}
	}
}

// enableGroup enables every device in d's group in one pass.
func (r *Router) enableGroup(d *model.Device) {
	group, _ := r.reg.GroupOf(d)
	for _, dev := range group {
		r.enableDevice(dev)
	}
}

func (r *Router) hasOutputStreams() bool {
	if r.streams == nil {
		return false
	}
	for _, s := range r.streams.Visible() {
		if s.Direction == model.Playback {
			return true
		}
	}
	return false
}

// nodeID formats the (dev_idx, node_idx) pair into the opaque node
// identifier string the observer contract's active_node_changed expects
// (spec.md §6).
func nodeID(devIdx, nodeIdx int) string {
	return fmt.Sprintf("%d:%d", devIdx, nodeIdx)
}
