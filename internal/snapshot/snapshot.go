// Package snapshot implements the snapshot publisher of spec.md §4.8: a
// prepare/commit pair that serializes the current devices/nodes into a
// shared, versioned view for clients, decoupled from the mutex-guarded
// live topology so readers never observe a half-built update. Grounded on
// teacher/server/room.go's pattern of building a fully-formed broadcast
// payload before sending it, rather than streaming partial state.
package snapshot

import (
	"sync"
	"time"

	"audiorouted/internal/model"
)

// MaxDevices and MaxNodes cap the published arrays, per spec.md §4.8
// ("fills device arrays and node arrays up to a fixed maximum").
const (
	MaxDevices = 64
	MaxNodes   = 256
)

// AudioEffect bits compose a node's published audio_effect bitmask.
type AudioEffect uint32

const (
	AudioEffectNoiseCancellation AudioEffect = 1 << iota
	AudioEffectSuperResolutionBT
)

// NodeInfo is one published node entry (spec.md §4.8's field list).
type NodeInfo struct {
	IODevIdx          int
	NodeIdx           int
	Plugged           bool
	PluggedTime       time.Time
	Active            bool
	Volume            int
	CaptureGain       int
	UIGainScaler      float64
	LeftRightSwapped  bool
	DisplayRotation   int
	StableID          string
	Name              string
	ActiveHotwordModel string
	Type              model.NodeType
	NumVolumeSteps    int
	AudioEffect       AudioEffect
}

// DeviceInfo is one published device entry.
type DeviceInfo struct {
	Idx       int
	Direction model.Direction
	Enabled   bool
	State     model.DeviceState
}

// View is the immutable, versioned published snapshot.
type View struct {
	Version uint64
	Devices []DeviceInfo
	Nodes   []NodeInfo
}

// Publisher holds the currently-committed View behind a mutex so readers
// (including, conceptually, other threads sharing memory per spec.md §5)
// never see a partially built update.
type Publisher struct {
	mu      sync.RWMutex
	current View
	version uint64
}

// New returns a publisher with an empty initial view at version 0.
func New() *Publisher { return &Publisher{} }

// Current returns the most recently committed view.
func (p *Publisher) Current() View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Builder accumulates a new view; call Commit to publish it atomically.
type Builder struct {
	devices []DeviceInfo
	nodes   []NodeInfo
}

// Prepare begins building the next view.
func (p *Publisher) Prepare() *Builder { return &Builder{} }

// AddDevice appends one device entry, silently dropping entries beyond
// MaxDevices (spec.md §4.8's "fixed maximum").
func (b *Builder) AddDevice(d DeviceInfo) {
	if len(b.devices) >= MaxDevices {
		return
	}
	b.devices = append(b.devices, d)
}

// AddNode appends one node entry, silently dropping entries beyond
// MaxNodes.
func (b *Builder) AddNode(n NodeInfo) {
	if len(b.nodes) >= MaxNodes {
		return
	}
	b.nodes = append(b.nodes, n)
}

// Commit atomically replaces the published view with the builder's
// contents and bumps the version counter.
func (p *Publisher) Commit(b *Builder) View {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.version++
	p.current = View{
		Version: p.version,
		Devices: append([]DeviceInfo(nil), b.devices...),
		Nodes:   append([]NodeInfo(nil), b.nodes...),
	}
	return p.current
}

// ComputeAudioEffect derives the audio_effect bitmask from a node's desired
// NC provider and optional super-resolution-for-BT support, per spec.md
// §4.8.
func ComputeAudioEffect(n *model.Node, superResolutionBT bool) AudioEffect {
	var e AudioEffect
	if n.DesiredNCProvider != model.NCProviderNone {
		e |= AudioEffectNoiseCancellation
	}
	if superResolutionBT {
		e |= AudioEffectSuperResolutionBT
	}
	return e
}
