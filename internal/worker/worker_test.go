package worker

import (
	"testing"

	"audiorouted/internal/model"
)

func TestFakeOpenCloseDevTracksState(t *testing.T) {
	f := NewFake()
	dev := &model.Device{Idx: 1}

	if f.IsDevOpen(dev) {
		t.Fatal("expected device not open initially")
	}
	if err := f.AddOpenDev(dev); err != nil {
		t.Fatalf("AddOpenDev: %v", err)
	}
	if !f.IsDevOpen(dev) {
		t.Fatal("expected device open after AddOpenDev")
	}
	if err := f.RmOpenDev(dev); err != nil {
		t.Fatalf("RmOpenDev: %v", err)
	}
	if f.IsDevOpen(dev) {
		t.Fatal("expected device closed after RmOpenDev")
	}
}

func TestFakeStreamAttachDetach(t *testing.T) {
	f := NewFake()
	dev := &model.Device{Idx: 7}
	s := &model.Stream{ID: 100}

	if err := f.AddStream(dev, s); err != nil {
		t.Fatalf("AddStream: %v", err)
	}
	if got := f.StreamsOn(7); len(got) != 1 || got[0] != 100 {
		t.Fatalf("expected stream 100 on dev 7, got %v", got)
	}

	if err := f.DisconnectStream(dev, s); err != nil {
		t.Fatalf("DisconnectStream: %v", err)
	}
	if got := f.StreamsOn(7); len(got) != 0 {
		t.Fatalf("expected no streams on dev 7 after disconnect, got %v", got)
	}
}

func TestFakeDrainStreamReportsScriptedDelay(t *testing.T) {
	f := NewFake()
	if ms := f.DrainStream(&model.Stream{ID: 1}); ms != 0 {
		t.Fatalf("expected an unscripted stream to drain instantly, got %dms", ms)
	}
	f.DrainDelays[2] = 30
	if ms := f.DrainStream(&model.Stream{ID: 2}); ms != 30 {
		t.Fatalf("expected the scripted 30ms delay, got %dms", ms)
	}
	if ms := f.DrainStream(&model.Stream{ID: 2}); ms != 0 {
		t.Fatalf("expected the scripted delay to decay to 0 once reported, got %dms", ms)
	}
}

func TestFakeRecordsRampCalls(t *testing.T) {
	f := NewFake()
	dev := &model.Device{Idx: 3}
	if err := f.DevStartRamp(dev, model.RampUpUnmute); err != nil {
		t.Fatalf("DevStartRamp: %v", err)
	}
	ramps := f.Ramps()
	if len(ramps) != 1 || ramps[0].DevIdx != 3 || ramps[0].Req != model.RampUpUnmute {
		t.Fatalf("unexpected ramps recorded: %v", ramps)
	}
}
