// Package router_test exercises the quantified invariants and round-trip
// laws of spec.md §8 (P1-P9, R1-R2) against a fully wired Engine, using
// pgregory.net/rapid to generate the varying inputs, grounded on
// doismellburning-samoyed/src/fx25_send_test.go's rapid.Check + testify
// pairing. Lives as an external test package (router_test, not router) so
// it can import audiorouted and internal/streamlist the way a real caller
// would, without creating an import cycle back into internal/router.
package router_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"audiorouted"
	"audiorouted/internal/backend"
	"audiorouted/internal/effects"
	"audiorouted/internal/model"
	"audiorouted/internal/observer"
	"audiorouted/internal/router"
	"audiorouted/internal/worker"
)

func newEngine(t require.TestingT) (*audiorouted.Engine, *backend.Fake, *worker.Fake) {
	fb := backend.NewFake()
	fw := worker.NewFake()
	e, err := audiorouted.Init(audiorouted.Config{Backend: fb, Worker: fw, StableIDPath: ":memory:"})
	require.NoError(t, err)
	return e, fb, fw
}

func outputDevice(idx, maxCh int) *model.Device {
	return &model.Device{
		Idx: idx, Direction: model.Playback, MaxSupportedChannels: maxCh,
		Nodes: []*model.Node{{Idx: 1, Name: "N", Type: model.NodeTypeSpeaker}},
	}
}

// P1: an open device's format always matches the format it was actually
// opened with.
func TestInvariantOpenDeviceFormatMatchesBackend(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e, fb, _ := newEngine(t)
		defer e.Deinit()

		d := outputDevice(10, 8)
		_, err := e.AddOutput(d)
		require.NoError(t, err)
		require.NoError(t, e.SelectNode(model.Playback, 10, 1))

		n := rapid.IntRange(1, 8).Draw(t, "channels")
		s := &model.Stream{ID: 1, Direction: model.Playback, Format: model.Format{NumChannels: n, Rate: 48000, SampleType: "s16le"}}
		require.NoError(t, e.AddStream(s))

		if d.State == model.StateOpen || d.State == model.StateNormalRun || d.State == model.StateNoStreamRun {
			require.NotNil(t, d.Format)
			wantFmt := fb.OpenFormats[d.Idx]
			assert.Equal(t, wantFmt.NumChannels, d.Format.NumChannels)
			assert.Equal(t, wantFmt.Rate, d.Format.Rate)
		}
	})
}

// P3: every device a stream is attached to satisfies the attach predicate
// (matching direction, backend willing to attach).
func TestInvariantAttachedDevsSatisfyPredicate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e, fb, _ := newEngine(t)
		defer e.Deinit()

		d1 := outputDevice(10, 8)
		d2 := outputDevice(11, 8)
		require.NoError(t, must2(e.AddOutput(d1)))
		require.NoError(t, must2(e.AddOutput(d2)))
		require.NoError(t, e.SelectNode(model.Playback, 10, 1))
		require.NoError(t, e.AddActiveNode(model.Playback, 11, 1))

		n := rapid.IntRange(1, 6).Draw(t, "channels")
		s := &model.Stream{ID: 1, Direction: model.Playback, Format: model.Format{NumChannels: n, Rate: 48000, SampleType: "s16le"}}
		require.NoError(t, e.AddStream(s))

		got := e.Streams.Find(1)
		require.NotNil(t, got)
		for idx := range got.AttachedDevs {
			dev := e.Registry.FindByIdx(idx)
			require.NotNil(t, dev)
			assert.Equal(t, got.Direction, dev.Direction)
			assert.True(t, fb.ShouldAttachStream(dev, got))
		}
	})
}

// P4: the visible stream list stays in descending channel-count order
// (I6) no matter what order streams of varying channel counts arrive in.
func TestInvariantStreamListDescendingChannelOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e, _, _ := newEngine(t)
		defer e.Deinit()

		counts := rapid.SliceOfN(rapid.IntRange(1, 8), 1, 8).Draw(t, "counts")
		for i, n := range counts {
			s := &model.Stream{
				ID: uint64(i + 1), Direction: model.Playback,
				Format: model.Format{NumChannels: n, Rate: 48000, SampleType: "s16le"},
			}
			require.NoError(t, e.AddStream(s))

			visible := e.Streams.Visible()
			for j := 1; j < len(visible); j++ {
				assert.GreaterOrEqualf(t, visible[j-1].Format.NumChannels, visible[j].Format.NumChannels,
					"visible list out of order after inserting channel count %d", n)
			}
		}
	})
}

// P5: re-selecting the already-active (device, node) pair is a strict
// no-op: no observer events, no state change.
func TestInvariantSelectNodeIdempotent(t *testing.T) {
	e, _, _ := newEngine(t)
	defer e.Deinit()

	d := outputDevice(10, 8)
	_, err := e.AddOutput(d)
	require.NoError(t, err)
	require.NoError(t, e.SelectNode(model.Playback, 10, 1))

	wantEnabled, wantActive := d.IsEnabled, d.ActiveNode

	var events int
	unsub := e.Observer.Subscribe(&countingObserver{n: &events})
	defer unsub()

	require.NoError(t, e.SelectNode(model.Playback, 10, 1))

	assert.Equal(t, wantEnabled, d.IsEnabled)
	assert.Equal(t, wantActive, d.ActiveNode)
	assert.Zero(t, events, "idempotent select_node must emit no observer events")
}

// P6: suspend then resume restores the set of attached streams per device,
// modulo retries pending at suspend time (none here, since the device
// opens successfully).
func TestInvariantSuspendResumeSymmetry(t *testing.T) {
	e, fb, fw := newEngine(t)
	defer e.Deinit()

	d := outputDevice(10, 8)
	_, err := e.AddOutput(d)
	require.NoError(t, err)
	require.NoError(t, e.SelectNode(model.Playback, 10, 1))

	s := &model.Stream{ID: 1, Direction: model.Playback, Format: model.Format{NumChannels: 2, Rate: 48000, SampleType: "s16le"}}
	require.NoError(t, e.AddStream(s))
	before := fw.StreamsOn(10)
	require.NotEmpty(t, before)
	require.True(t, fb.IsOpen(10))

	e.Suspend()
	e.Resume()

	assert.ElementsMatch(t, before, fw.StreamsOn(10))
	assert.True(t, fb.IsOpen(10))
}

// P7: dsp_input_effects_blocked always equals its pure-function definition,
// recomputed independently from the registry and stream list.
func TestInvariantBlockedMatchesPureFunction(t *testing.T) {
	e, _, _ := newEngine(t)
	defer e.Deinit()

	spk := &model.Device{
		Idx: 10, Direction: model.Playback, MaxSupportedChannels: 2,
		Nodes: []*model.Node{{Idx: 1, Name: "Speaker", Type: model.NodeTypeSpeaker, AECCapableSpeaker: true}},
	}
	usb := &model.Device{
		Idx: 11, Direction: model.Playback, MaxSupportedChannels: 2,
		Nodes: []*model.Node{{Idx: 1, Name: "USB", Type: model.NodeTypeUSB}},
	}
	_, err := e.AddOutput(spk)
	require.NoError(t, err)
	_, err = e.AddOutput(usb)
	require.NoError(t, err)
	require.NoError(t, e.SelectNode(model.Playback, 10, 1))

	check := func() {
		want := effects.NonDSPAECEchoRefDevAlive(e.Registry.All(model.Playback)) ||
			effects.AECOnDSPDisallowed(captureStreams(e))
		assert.Equal(t, want, e.Effects.Blocked())
	}
	check()

	require.NoError(t, e.SelectNode(model.Playback, 11, 1))
	check()
	assert.True(t, e.Effects.Blocked(), "switching to the non-AEC-capable USB output should block DSP AEC")
}

func captureStreams(e *audiorouted.Engine) []*model.Stream {
	var out []*model.Stream
	for _, s := range e.Streams.Visible() {
		if s.Direction == model.Capture {
			out = append(out, s)
		}
	}
	return out
}

// P8: the sum of num_pinned_streams across devices at attach time equals
// the sum at remove time, for a pinned stream.
func TestInvariantPinnedStreamCountSymmetry(t *testing.T) {
	e, _, _ := newEngine(t)
	defer e.Deinit()

	d := outputDevice(10, 8)
	_, err := e.AddOutput(d)
	require.NoError(t, err)

	sumBefore := sumPinned(e)
	s := &model.Stream{ID: 1, Direction: model.Playback, IsPinned: true, PinnedDevID: 10,
		Format: model.Format{NumChannels: 2, Rate: 48000, SampleType: "s16le"}}
	require.NoError(t, e.AddStream(s))
	sumAfterAttach := sumPinned(e)
	assert.Greater(t, sumAfterAttach, sumBefore)

	require.NoError(t, e.RemoveStream(1))
	assert.Equal(t, sumBefore, sumPinned(e))
}

func sumPinned(e *audiorouted.Engine) int {
	n := 0
	for _, d := range e.Registry.All(model.Playback) {
		n += d.NumPinnedStreams
	}
	for _, d := range e.Registry.All(model.Capture) {
		n += d.NumPinnedStreams
	}
	return n
}

// P9: once a device is removed, no observer event ever again references
// its idx.
func TestInvariantRemovedDeviceIdxNeverReferencedAgain(t *testing.T) {
	e, _, _ := newEngine(t)
	defer e.Deinit()

	d := outputDevice(10, 8)
	_, err := e.AddOutput(d)
	require.NoError(t, err)
	require.NoError(t, e.RemoveDevice(10))

	var seen []string
	unsub := e.Observer.Subscribe(&testObserver{activeNode: func(_, id string) { seen = append(seen, id) }})
	defer unsub()

	d2 := outputDevice(20, 8)
	_, err = e.AddOutput(d2)
	require.NoError(t, err)
	require.NoError(t, e.SelectNode(model.Playback, 20, 1))

	for _, id := range seen {
		assert.NotEqual(t, "10:1", id, "observer referenced a removed device's idx")
	}
}

// R1: add_output(d); rm_output(d) when d is closed touches no observable
// state except the monotonic index counter.
func TestRoundTripAddRemoveOutputNoop(t *testing.T) {
	e, _, _ := newEngine(t)
	defer e.Deinit()

	before := idxSet(e.Registry.All(model.Playback))

	d := outputDevice(10, 8)
	_, err := e.AddOutput(d)
	require.NoError(t, err)
	require.NoError(t, e.RemoveDevice(10))

	assert.ElementsMatch(t, before, idxSet(e.Registry.All(model.Playback)))

	next, err := e.AddOutput(&model.Device{Direction: model.Playback, MaxSupportedChannels: 2})
	require.NoError(t, err)
	assert.Greater(t, next, 10, "the monotonic idx counter must have advanced past the removed device's idx")
}

func idxSet(devs []*model.Device) []int {
	out := make([]int, len(devs))
	for i, d := range devs {
		out[i] = d.Idx
	}
	return out
}

// R2: setting a node attribute to its current value emits exactly one
// corresponding observer event.
func TestRoundTripSetNodeAttrIdempotent(t *testing.T) {
	e, _, _ := newEngine(t)
	defer e.Deinit()

	d := outputDevice(10, 8)
	_, err := e.AddOutput(d)
	require.NoError(t, err)

	require.NoError(t, e.SetNodeAttr(10, 1, router.AttrVolume, 42))

	var volumeEvents, nodesChanged int
	unsub := e.Observer.Subscribe(&countingVolumeObserver{vol: &volumeEvents, nodes: &nodesChanged})
	require.NoError(t, e.SetNodeAttr(10, 1, router.AttrVolume, 42))
	unsub()

	assert.Equal(t, 1, volumeEvents, "re-setting volume to its current value must emit exactly one volume event")
	assert.Zero(t, nodesChanged, "an idempotent attr set must not also fire nodes_changed")
}

func must2(_ int, err error) error { return err }

// countingObserver counts NodesChanged calls only.
type countingObserver struct {
	observer.NoOp
	n *int
}

func (o *countingObserver) NodesChanged() { *o.n++ }
func (o *countingObserver) ActiveNodeChanged(direction, nodeID string) { *o.n++ }

type countingVolumeObserver struct {
	observer.NoOp
	vol   *int
	nodes *int
}

func (o *countingVolumeObserver) OutputNodeVolumeChanged(nodeID string, volume int) { *o.vol++ }
func (o *countingVolumeObserver) NodesChanged()                                     { *o.nodes++ }

type testObserver struct {
	observer.NoOp
	activeNode func(direction, nodeID string)
}

func (o *testObserver) ActiveNodeChanged(direction, nodeID string) {
	if o.activeNode != nil {
		o.activeNode(direction, nodeID)
	}
}
