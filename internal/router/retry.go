package router

import (
	"log/slog"

	"audiorouted/internal/model"
)

// scheduleRetry implements spec.md §4.3.8: arm a one-shot timer that
// re-attempts init_and_attach_streams for d, cancelling any retry already
// scheduled for the same idx.
func (r *Router) scheduleRetry(d *model.Device) {
	r.cancelRetry(d.Idx)
	idx := d.Idx
	h := r.timers.After(InitRetryDelay, func() {
		r.retryOpen(idx)
	})
	r.retries[idx] = h
}

// cancelRetry cancels any pending retry for idx — spec.md §4.3.8 lists
// successful init, device removal, device suspend, and a new retry for the
// same idx as the cancellation triggers.
func (r *Router) cancelRetry(idx int) {
	if h, ok := r.retries[idx]; ok {
		r.timers.Cancel(h)
		delete(r.retries, idx)
	}
}

// CancelDeviceRetry cancels idx's pending retry, if any, so a device being
// removed performs no further open attempts (spec.md §4.3.8).
func (r *Router) CancelDeviceRetry(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelRetry(idx)
}

func (r *Router) retryOpen(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.retries, idx)
	d := r.reg.FindByIdx(idx)
	if d == nil || d.State != model.StateClosed {
		return
	}

	if err := r.initAndAttachStreams(d); err != nil {
		slog.Debug("router: retry init failed", "dev_idx", idx, "err", err)
		return
	}
	r.scheduleFallbackDisable(d.Direction)
}

// initAndAttachStreams opens d with the highest-channel-count attachable
// stream (possible thanks to I6's descending order) and attaches every
// stream the attach predicate currently selects for d.
func (r *Router) initAndAttachStreams(d *model.Device) error {
	if r.streams == nil {
		return nil
	}
	var best *model.Stream
	var applicable []*model.Stream
	for _, s := range r.streams.Visible() {
		if !r.shouldAttach(d, s) {
			continue
		}
		if s.IsPinned && !r.reg.GroupHasDev(d, s.PinnedDevID) {
			continue
		}
		applicable = append(applicable, s)
		if best == nil || s.Format.NumChannels > best.Format.NumChannels {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	if err := r.initDevice(d, best); err != nil {
		return err
	}
	for _, s := range applicable {
		if err := r.worker.AddStream(d, s); err != nil {
			slog.Warn("router: add_stream failed during reattach", "dev_idx", d.Idx, "stream_id", s.ID, "err", err)
			continue
		}
		s.AttachedDevs[d.Idx] = struct{}{}
	}
	return nil
}
