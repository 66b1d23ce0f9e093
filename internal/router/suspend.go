package router

import "audiorouted/internal/model"

// Suspend implements spec.md §4.5: disconnect every stream, close every
// enabled device, and optionally suspend hotword streams.
func (r *Router) Suspend() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.suspended {
		return
	}

	if r.streams != nil {
		for _, s := range r.streams.Visible() {
			for idx := range s.AttachedDevs {
				d := r.reg.FindByIdx(idx)
				if d == nil {
					continue
				}
				r.worker.DisconnectStream(d, s)
				delete(s.AttachedDevs, idx)
				if s.IsPinned && !d.IsEnabled {
					r.closeDevice(d)
				}
			}
		}
	}

	r.suspended = true

	for _, direction := range []model.Direction{model.Playback, model.Capture} {
		for _, d := range r.reg.All(direction) {
			if d.IsEnabled {
				r.closeDevice(d)
			}
		}
	}

	if r.HotwordPauseAtSuspend {
		r.suspendHotwordLocked()
		r.autoResumeHotword = true
	}

	r.obs.SuspendChanged(true)
}

// Resume implements spec.md §4.5's resume sequence.
func (r *Router) Resume() {
	r.mu.Lock()
	r.suspended = false

	if r.autoResumeHotword {
		r.resumeHotwordLocked()
		r.autoResumeHotword = false
	}

	outputStreams := r.hasOutputStreams()
	if outputStreams {
		for _, d := range r.reg.All(model.Playback) {
			if d.IsEnabled {
				r.worker.DevStartRamp(d, model.RampResumeMute)
			}
		}
	}

	var toResume []*model.Stream
	if r.streams != nil {
		for _, s := range r.streams.Visible() {
			if !s.Flags.Has(model.FlagHotword) {
				toResume = append(toResume, s)
			}
		}
	}
	r.mu.Unlock()

	for _, s := range toResume {
		r.OnStreamAdded(s)
	}

	r.mu.Lock()
	r.obs.SuspendChanged(false)
	r.mu.Unlock()
}
