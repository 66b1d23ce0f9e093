package router_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiorouted/internal/model"
	"audiorouted/internal/observer"
	"audiorouted/internal/rerr"
)

type muteObserver struct {
	observer.NoOp
	outputVol    []int
	outputMute   []bool
	captureMute  []bool
	activeCounts map[string][]int
}

func (o *muteObserver) OutputVolumeChanged(vol int) { o.outputVol = append(o.outputVol, vol) }
func (o *muteObserver) OutputMuteChanged(muted, _, _ bool) {
	o.outputMute = append(o.outputMute, muted)
}
func (o *muteObserver) CaptureMuteChanged(muted, _ bool) {
	o.captureMute = append(o.captureMute, muted)
}
func (o *muteObserver) NumActiveStreamsChanged(direction string, count int) {
	if o.activeCounts == nil {
		o.activeCounts = map[string][]int{}
	}
	o.activeCounts[direction] = append(o.activeCounts[direction], count)
}

// SetOutputVolume/SetOutputMute/SetCaptureMute exercise spec.md §4.4's
// master ramp coordination, which previously sat unwired behind
// devstate.Machine.Mute/Unmute/StartVolumeRamp.
func TestOutputVolumeAndMuteFireObserverEvents(t *testing.T) {
	e, _, _ := newEngine(t)
	defer e.Deinit()

	d := outputDevice(10, 2)
	_, err := e.AddOutput(d)
	require.NoError(t, err)
	require.NoError(t, e.SelectNode(model.Playback, 10, 1))

	obs := &muteObserver{}
	unsub := e.Observer.Subscribe(obs)
	defer unsub()

	require.NoError(t, e.SetOutputVolume(42))
	assert.Equal(t, []int{42}, obs.outputVol)

	e.SetOutputMute(true, true, false)
	assert.Equal(t, []bool{true}, obs.outputMute)

	e.SetOutputMute(false, false, false)
	assert.Equal(t, []bool{true, false}, obs.outputMute)

	err = e.SetOutputVolume(150)
	require.Error(t, err)
	assert.Equal(t, rerr.KindInvalidArg, rerr.KindOf(err))
	assert.Equal(t, []int{42}, obs.outputVol, "an out-of-range volume must not fire output_volume_changed")
}

func TestCaptureMuteFiresObserverEvent(t *testing.T) {
	e, _, _ := newEngine(t)
	defer e.Deinit()

	obs := &muteObserver{}
	unsub := e.Observer.Subscribe(obs)
	defer unsub()

	e.SetCaptureMute(true, false)
	assert.Equal(t, []bool{true}, obs.captureMute)
}

// NumActiveStreamsChanged fires once per direction whenever the visible
// stream count for that direction actually changes.
func TestNumActiveStreamsChangedOnAddRemove(t *testing.T) {
	e, _, _ := newEngine(t)
	defer e.Deinit()

	d := outputDevice(10, 2)
	_, err := e.AddOutput(d)
	require.NoError(t, err)
	require.NoError(t, e.SelectNode(model.Playback, 10, 1))

	obs := &muteObserver{}
	unsub := e.Observer.Subscribe(obs)
	defer unsub()

	s := &model.Stream{ID: 1, Direction: model.Playback, Format: model.Format{NumChannels: 2, Rate: 48000, SampleType: "s16le"}}
	require.NoError(t, e.AddStream(s))
	assert.Equal(t, []int{1}, obs.activeCounts["playback"])

	require.NoError(t, e.RemoveStream(1))
	assert.Equal(t, []int{1, 0}, obs.activeCounts["playback"])
}
