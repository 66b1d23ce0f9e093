package router

import "audiorouted/internal/model"

// SetHotwordDevices tells the router which device idx hosts the real
// hotword input and which is the reserved empty hotword device, per
// spec.md §4.6. Called once by the engine during Init.
func (r *Router) SetHotwordDevices(realDevIdx, emptyDevIdx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.realHotwordDevIdx = realDevIdx
	r.emptyHotwordDevIdx = emptyDevIdx
}

// SuspendHotwordStreams implements spec.md §4.6: move every hotword stream
// from the real device to the reserved empty device and close the real
// device.
func (r *Router) SuspendHotwordStreams() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspendHotwordLocked()
}

func (r *Router) suspendHotwordLocked() {
	if r.hotwordSuspended || r.streams == nil {
		return
	}
	real := r.reg.FindByIdx(r.realHotwordDevIdx)
	empty := r.reg.FindByIdx(r.emptyHotwordDevIdx)
	if real == nil || empty == nil {
		return
	}

	for _, s := range r.streams.Visible() {
		if !s.Flags.Has(model.FlagHotword) {
			continue
		}
		if _, ok := s.AttachedDevs[real.Idx]; !ok {
			continue
		}
		r.worker.DisconnectStream(real, s)
		delete(s.AttachedDevs, real.Idx)
		if err := r.initDevice(empty, s); err == nil {
			r.worker.AddStream(empty, s)
			s.AttachedDevs[empty.Idx] = struct{}{}
		}
	}
	r.closeDevice(real)
	r.hotwordSuspended = true
}

// ResumeHotwordStream implements spec.md §4.6's symmetric resume.
func (r *Router) ResumeHotwordStream() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumeHotwordLocked()
}

func (r *Router) resumeHotwordLocked() {
	if !r.hotwordSuspended || r.streams == nil {
		return
	}
	real := r.reg.FindByIdx(r.realHotwordDevIdx)
	empty := r.reg.FindByIdx(r.emptyHotwordDevIdx)
	if real == nil || empty == nil {
		return
	}

	for _, s := range r.streams.Visible() {
		if !s.Flags.Has(model.FlagHotword) {
			continue
		}
		if _, ok := s.AttachedDevs[empty.Idx]; !ok {
			continue
		}
		r.worker.DisconnectStream(empty, s)
		delete(s.AttachedDevs, empty.Idx)
		if err := r.initDevice(real, s); err == nil {
			r.worker.AddStream(real, s)
			s.AttachedDevs[real.Idx] = struct{}{}
		}
	}
	r.closeDevice(empty)
	r.hotwordSuspended = false
}
