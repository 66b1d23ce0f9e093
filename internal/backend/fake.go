package backend

import "audiorouted/internal/model"

// Fake is a deterministic, in-memory Backend used by tests and by
// cmd/routerd's demo mode. It never touches real hardware; Open failures
// are scripted per device so tests can exercise the retry policy of
// spec.md §4.3.8 and the S3 scenario of §8.
type Fake struct {
	// OpenFailures maps a device idx to a queue of errors Open should
	// return before it starts succeeding. Each call to Open for that idx
	// pops one entry; an empty or exhausted queue means Open succeeds.
	OpenFailures map[int][]error

	// DSPAECDevs marks device indices IsDSPAECUseCase should report true
	// for.
	DSPAECDevs map[int]bool

	// NCSupport maps a node idx to the provider SupportsNoiseCancellation
	// should report; absent means unsupported.
	NCSupport map[int]model.NCProvider

	// Groups maps a device idx to the group id GetDevGroup should report.
	Groups map[int]string

	// Rejected marks (devIdx -> streamID -> true) pairs ShouldAttachStream
	// should veto.
	Rejected map[int]map[uint64]bool

	opened map[int]bool

	// OpenFormats records the format passed to the most recent successful
	// Open call per device idx, for tests that check a device's published
	// format matches what the backend actually opened with.
	OpenFormats map[int]model.Format
}

// NewFake returns an empty Fake backend that accepts everything by default.
func NewFake() *Fake {
	return &Fake{
		OpenFailures: make(map[int][]error),
		DSPAECDevs:   make(map[int]bool),
		NCSupport:    make(map[int]model.NCProvider),
		Groups:       make(map[int]string),
		Rejected:     make(map[int]map[uint64]bool),
		opened:       make(map[int]bool),
		OpenFormats:  make(map[int]model.Format),
	}
}

func (f *Fake) Open(dev *model.Device, format model.Format) error {
	if q := f.OpenFailures[dev.Idx]; len(q) > 0 {
		err := q[0]
		f.OpenFailures[dev.Idx] = q[1:]
		return err
	}
	f.opened[dev.Idx] = true
	f.OpenFormats[dev.Idx] = format
	return nil
}

func (f *Fake) Close(dev *model.Device) error {
	delete(f.opened, dev.Idx)
	return nil
}

func (f *Fake) IsOpen(devIdx int) bool { return f.opened[devIdx] }

func (f *Fake) SetVolume(dev *model.Device, vol int) error                    { return nil }
func (f *Fake) SetMute(dev *model.Device, muted bool) error                   { return nil }
func (f *Fake) UpdateActiveNode(dev *model.Device, nodeIdx int) error         { return nil }
func (f *Fake) SetSwapModeForNode(node *model.Node, swapped bool) error       { return nil }
func (f *Fake) SetDisplayRotationForNode(node *model.Node, rotation int) error {
	return nil
}

func (f *Fake) GetHotwordModels(node *model.Node) ([]string, error) {
	return []string{"okay_google"}, nil
}

func (f *Fake) SetHotwordModel(node *model.Node, modelName string) error { return nil }

func (f *Fake) ShouldAttachStream(dev *model.Device, s *model.Stream) bool {
	if byStream, ok := f.Rejected[dev.Idx]; ok && byStream[s.ID] {
		return false
	}
	return true
}

func (f *Fake) GetDevGroup(dev *model.Device) string { return f.Groups[dev.Idx] }

func (f *Fake) IsDSPAECUseCase(dev *model.Device) bool { return f.DSPAECDevs[dev.Idx] }

func (f *Fake) SupportsNoiseCancellation(node *model.Node) (model.NCProvider, bool) {
	p, ok := f.NCSupport[node.Idx]
	return p, ok
}
