package router

import (
	"log/slog"

	"audiorouted/internal/devstate"
	"audiorouted/internal/effects"
	"audiorouted/internal/model"
)

// initDevice implements spec.md §4.3.6: exits idle, opens the backend (a
// no-op if already open), records last_open_result, and hands the open
// device to the worker.
func (r *Router) initDevice(d *model.Device, s *model.Stream) error {
	if d.State != model.StateClosed {
		devstate.ClearIdle(d)
		return nil
	}

	devstate.ClearIdle(d)
	d.LastOpenResult = model.OpenResultSuccess

	if err := r.backend.Open(d, s.Format); err != nil {
		d.LastOpenResult = model.OpenResultFailure
		return err
	}
	d.Format = &model.Format{NumChannels: s.Format.NumChannels, Rate: s.Format.Rate, SampleType: s.Format.SampleType}
	if err := devstate.Transition(d, model.StateOpen); err != nil {
		return err
	}

	if err := r.worker.AddOpenDev(d); err != nil {
		r.closeDevice(d)
		return err
	}
	r.cancelRetry(d.Idx)

	if d.EchoReferenceDev != 0 && d.Direction == model.Playback {
		r.requestEchoRefStream(d)
	}

	r.recomputeEffects()
	return nil
}

// closeDevice implements spec.md §4.3.7.
func (r *Router) closeDevice(d *model.Device) {
	if d.State == model.StateClosed {
		return
	}

	if r.streams != nil {
		for _, s := range r.streams.Visible() {
			if _, ok := s.AttachedDevs[d.Idx]; !ok {
				continue
			}
			r.worker.DisconnectStream(d, s)
			delete(s.AttachedDevs, d.Idx)
		}
	}

	if !d.IsFloopMember {
		devstate.ClearIdle(d)
	}

	if d.EchoRefStreamID != 0 {
		r.destroyEchoRefStream(d)
	}

	if err := r.worker.RmOpenDev(d); err != nil {
		slog.Warn("router: rm_open_dev failed", "dev_idx", d.Idx, "err", err)
	}
	if err := r.backend.Close(d); err != nil {
		slog.Warn("router: backend close failed", "dev_idx", d.Idx, "err", err)
	}
	d.State = model.StateClosed
	d.Format = nil

	r.recomputeEffects()
}

// requestEchoRefStream creates the at-most-one server stream pinned to d's
// echo reference device (spec.md §4.3.6).
func (r *Router) requestEchoRefStream(d *model.Device) {
	refDev := r.reg.FindByIdx(d.EchoReferenceDev)
	if refDev == nil {
		return
	}
	if _, exists := r.echoRefStreams[refDev.Idx]; exists {
		return
	}
	r.nextStreamID++
	id := r.nextStreamID
	r.echoRefStreams[refDev.Idx] = id
	d.EchoRefStreamID = id
}

// destroyEchoRefStream tears down d's echo-ref server stream before
// worker.close, to avoid underrun in hardware, per spec.md §4.3.7.
func (r *Router) destroyEchoRefStream(d *model.Device) {
	delete(r.echoRefStreams, d.EchoReferenceDev)
	d.EchoRefStreamID = 0
}

// recomputeEffects updates the effect evaluator's
// non_dsp_aec_echo_ref_dev_alive input from the current output topology and
// republishes on change (invariant I8, spec.md §4.7).
func (r *Router) recomputeEffects() {
	changed := r.eff.Update(effects.NonDSPAECEchoRefDevAlive(r.reg.All(model.Playback)), r.aecDisallowed())
	if changed {
		r.obs.NodesChanged()
	}
}

func (r *Router) aecDisallowed() bool {
	if r.streams == nil {
		return false
	}
	var inputs []*model.Stream
	for _, s := range r.streams.Visible() {
		if s.Direction == model.Capture {
			inputs = append(inputs, s)
		}
	}
	return effects.AECOnDSPDisallowed(inputs)
}
