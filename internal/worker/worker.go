// Package worker defines the realtime audio worker facade of spec.md §6:
// the collaborator that actually mixes and pumps samples once a device is
// open and streams are attached. Sample mixing itself is out of scope
// (spec.md §1 Non-goals); this package only models the control surface the
// router drives and observes, the way teacher/server/room.go treats its
// DatagramSender as a thin injected edge rather than owning I/O.
package worker

import "audiorouted/internal/model"

// Worker is the realtime-thread control surface the router calls into. All
// methods are expected to be non-blocking from the router's point of view;
// a real implementation hands work to its own realtime thread and returns
// immediately.
type Worker interface {
	AddOpenDev(dev *model.Device) error
	RmOpenDev(dev *model.Device) error

	AddStream(dev *model.Device, s *model.Stream) error
	DisconnectStream(dev *model.Device, s *model.Stream) error

	// DrainStream reports how many milliseconds of buffered audio s still
	// has queued; the stream list polls this on a timer until it reports
	// zero, per spec.md §4.2's drain-before-destroy removal path.
	DrainStream(s *model.Stream) (msRemaining int)

	IsDevOpen(dev *model.Device) bool

	DevStartRamp(dev *model.Device, req model.RampRequest) error
}

// Fake is a deterministic in-memory Worker used by tests and the demo CLI.
// A stream may be attached to more than one device at once (spec.md §4.3.2
// transiently attaches a normal stream to both the fallback and a real
// device during hand-off), so each stream id maps to a set of device
// indices rather than a single one.
type Fake struct {
	openDevs map[int]bool
	streams  map[uint64]map[int]bool // stream id -> set of dev idx
	ramps    []RampCall

	// DrainDelays lets tests script a non-zero drain delay (ms) for a
	// stream id; absent entries drain instantly.
	DrainDelays map[uint64]int
}

// RampCall records one DevStartRamp invocation, for test assertions.
type RampCall struct {
	DevIdx int
	Req    model.RampRequest
}

// NewFake returns an empty Fake worker.
func NewFake() *Fake {
	return &Fake{
		openDevs:    make(map[int]bool),
		streams:     make(map[uint64]map[int]bool),
		DrainDelays: make(map[uint64]int),
	}
}

func (f *Fake) AddOpenDev(dev *model.Device) error {
	f.openDevs[dev.Idx] = true
	return nil
}

func (f *Fake) RmOpenDev(dev *model.Device) error {
	delete(f.openDevs, dev.Idx)
	return nil
}

func (f *Fake) AddStream(dev *model.Device, s *model.Stream) error {
	if f.streams[s.ID] == nil {
		f.streams[s.ID] = make(map[int]bool)
	}
	f.streams[s.ID][dev.Idx] = true
	return nil
}

// DisconnectStream detaches s from dev only; a stream attached to several
// devices at once stays attached to the others.
func (f *Fake) DisconnectStream(dev *model.Device, s *model.Stream) error {
	devs := f.streams[s.ID]
	delete(devs, dev.Idx)
	if len(devs) == 0 {
		delete(f.streams, s.ID)
	}
	return nil
}

// DrainStream reports the scripted delay for s.ID (see DrainDelays), or
// zero if none was scripted — the fake worker otherwise considers every
// stream drained instantly, since there is no real buffer to flush. A
// real worker's buffered-frame count decays with wall-clock time as the
// realtime thread keeps consuming it, so a single scripted delay must only
// ever be reported once: once drainPass has armed a timer for the
// reported delay and that timer fires, the buffer is by definition empty.
// DrainStream therefore consumes DrainDelays[s.ID] on read rather than
// returning the same value on every poll.
func (f *Fake) DrainStream(s *model.Stream) int {
	ms := f.DrainDelays[s.ID]
	if ms > 0 {
		f.DrainDelays[s.ID] = 0
	}
	return ms
}

func (f *Fake) IsDevOpen(dev *model.Device) bool { return f.openDevs[dev.Idx] }

func (f *Fake) DevStartRamp(dev *model.Device, req model.RampRequest) error {
	f.ramps = append(f.ramps, RampCall{DevIdx: dev.Idx, Req: req})
	return nil
}

// Ramps returns the ramp requests issued so far, for test assertions.
func (f *Fake) Ramps() []RampCall { return append([]RampCall(nil), f.ramps...) }

// StreamsOn returns the stream ids currently attached to devIdx.
func (f *Fake) StreamsOn(devIdx int) []uint64 {
	var ids []uint64
	for id, devs := range f.streams {
		if devs[devIdx] {
			ids = append(ids, id)
		}
	}
	return ids
}
