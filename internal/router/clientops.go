// clientops.go implements the remaining entries of spec.md §6's
// client-control surface not already covered by nodeselect.go, suspend.go,
// hotword.go, and floop.go.
package router

import (
	"audiorouted/internal/model"
	"audiorouted/internal/rerr"
)

// NodeAttr names the settable node attributes of spec.md §6.
type NodeAttr int

const (
	AttrPlugged NodeAttr = iota
	AttrVolume
	AttrCaptureGain
	AttrDisplayRotation
	AttrSwapLeftRight
)

// SetNodeAttr implements spec.md §6's set_node_attr, with the value
// ranges spec.md §6 names: volume in [0,100] (B1), display_rotation in
// {0,90,180,270}.
func (r *Router) SetNodeAttr(devIdx, nodeIdx int, attr NodeAttr, value int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.reg.FindByIdx(devIdx)
	if d == nil {
		return rerr.NotFound("no such device")
	}
	var n *model.Node
	for _, cand := range d.Nodes {
		if cand.Idx == nodeIdx {
			n = cand
			break
		}
	}
	if n == nil {
		return rerr.NotFound("no such node")
	}

	switch attr {
	case AttrVolume:
		if value < 0 || value > 100 {
			return rerr.InvalidArg("volume out of range")
		}
		if n.Volume == value {
			r.obs.OutputNodeVolumeChanged(nodeID(devIdx, nodeIdx), value)
			return nil
		}
		n.Volume = value
		r.obs.OutputNodeVolumeChanged(nodeID(devIdx, nodeIdx), value)
	case AttrCaptureGain:
		n.CaptureGain = value
		r.obs.InputNodeGainChanged(nodeID(devIdx, nodeIdx), value)
	case AttrDisplayRotation:
		switch value {
		case 0, 90, 180, 270:
		default:
			return rerr.InvalidArg("display_rotation must be one of 0,90,180,270")
		}
		if err := r.backend.SetDisplayRotationForNode(n, value); err != nil {
			return err
		}
		n.DisplayRotation = value
	case AttrSwapLeftRight:
		swapped := value != 0
		if n.LeftRightSwapped == swapped {
			r.obs.NodeLeftRightSwappedChanged(nodeID(devIdx, nodeIdx), swapped)
			return nil
		}
		if err := r.backend.SetSwapModeForNode(n, swapped); err != nil {
			return err
		}
		n.LeftRightSwapped = swapped
		r.obs.NodeLeftRightSwappedChanged(nodeID(devIdx, nodeIdx), swapped)
	case AttrPlugged:
		n.Plugged = value != 0
	default:
		return rerr.InvalidArg("unknown node attribute")
	}

	r.obs.NodesChanged()
	return nil
}

// SetAecRef implements spec.md §6's set_aec_ref: point stream s's echo
// reference at devIdx, or clear it with model.NoDevice.
func (r *Router) SetAecRef(streamID uint64, devIdx int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.streams == nil {
		return rerr.NotFound("no such stream")
	}
	s := r.streams.Find(streamID)
	if s == nil {
		return rerr.NotFound("no such stream")
	}
	if devIdx != model.NoDevice && r.reg.FindByIdx(devIdx) == nil {
		return rerr.NotFound("no such device")
	}
	s.AecRefDev = devIdx
	return nil
}

// SuspendDev closes a single device and marks it disabled, without
// affecting the rest of the system (spec.md §6's suspend_dev).
func (r *Router) SuspendDev(devIdx int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.reg.FindByIdx(devIdx)
	if d == nil {
		return rerr.NotFound("no such device")
	}
	r.cancelRetry(devIdx)
	r.closeDevice(d)
	r.disableDevice(d)
	r.recomputeEffects()
	return nil
}

// ResumeDev re-enables devIdx; actual opening happens lazily the next time
// a stream attaches, per the router's normal attach path.
func (r *Router) ResumeDev(devIdx int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.reg.FindByIdx(devIdx)
	if d == nil {
		return rerr.NotFound("no such device")
	}
	r.enableDevice(d)
	r.recomputeEffects()
	return nil
}

// ListOutputs and ListInputs implement spec.md §6's read-only listing
// entries.
func (r *Router) ListOutputs() []*model.Device { return r.reg.All(model.Playback) }
func (r *Router) ListInputs() []*model.Device  { return r.reg.All(model.Capture) }

// GetHotwordModels and SetHotwordModel delegate to the device backend for
// the node's hotword model catalog (spec.md §6).
func (r *Router) GetHotwordModels(devIdx, nodeIdx int) ([]string, error) {
	d := r.reg.FindByIdx(devIdx)
	if d == nil {
		return nil, rerr.NotFound("no such device")
	}
	for _, n := range d.Nodes {
		if n.Idx == nodeIdx {
			return r.backend.GetHotwordModels(n)
		}
	}
	return nil, rerr.NotFound("no such node")
}

func (r *Router) SetHotwordModel(devIdx, nodeIdx int, name string) error {
	d := r.reg.FindByIdx(devIdx)
	if d == nil {
		return rerr.NotFound("no such device")
	}
	for _, n := range d.Nodes {
		if n.Idx == nodeIdx {
			if err := r.backend.SetHotwordModel(n, name); err != nil {
				return err
			}
			n.ActiveHotwordModel = name
			return nil
		}
	}
	return rerr.NotFound("no such node")
}
