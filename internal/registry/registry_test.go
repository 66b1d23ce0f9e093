package registry

import (
	"testing"

	"audiorouted/internal/model"
)

func TestAddOutputAssignsMonotonicIdx(t *testing.T) {
	r := New()
	d1 := &model.Device{}
	d2 := &model.Device{}

	idx1, err := r.AddOutput(d1)
	if err != nil {
		t.Fatalf("add d1: %v", err)
	}
	idx2, err := r.AddOutput(d2)
	if err != nil {
		t.Fatalf("add d2: %v", err)
	}
	if idx1 < model.ReservedMax || idx2 < model.ReservedMax {
		t.Fatalf("expected idx above reserved range, got %d, %d", idx1, idx2)
	}
	if idx1 == idx2 {
		t.Fatal("expected distinct idx values")
	}
}

func TestAddOutputRejectsWrongDirection(t *testing.T) {
	r := New()
	d := &model.Device{Direction: model.Capture}
	if _, err := r.AddOutput(d); err == nil {
		t.Fatal("expected an error adding a capture device as output")
	}
}

func TestAddOutputRejectsDuplicateIdx(t *testing.T) {
	r := New()
	d1 := &model.Device{Idx: 10}
	if _, err := r.AddOutput(d1); err != nil {
		t.Fatalf("add d1: %v", err)
	}
	d2 := &model.Device{Idx: 10}
	if _, err := r.AddOutput(d2); err == nil {
		t.Fatal("expected duplicate idx to be rejected")
	}
}

func TestRemoveBusyDeviceFails(t *testing.T) {
	r := New()
	d := &model.Device{State: model.StateOpen}
	idx, _ := r.AddOutput(d)
	if err := r.Remove(idx); err == nil {
		t.Fatal("expected remove of an open device to fail")
	}
	if r.FindByIdx(idx) == nil {
		t.Fatal("device should remain registered after a failed remove")
	}
}

func TestRemoveThenAddNeverReusesIdx(t *testing.T) {
	r := New()
	d1 := &model.Device{State: model.StateClosed}
	idx1, _ := r.AddOutput(d1)
	if err := r.Remove(idx1); err != nil {
		t.Fatalf("remove: %v", err)
	}

	d2 := &model.Device{State: model.StateClosed}
	idx2, _ := r.AddOutput(d2)
	if idx2 == idx1 {
		t.Fatal("expected idx never to be reused")
	}
}

func TestFindFirstEnabledSkipsDisabled(t *testing.T) {
	r := New()
	d1 := &model.Device{IsEnabled: false}
	d2 := &model.Device{IsEnabled: true}
	r.AddOutput(d1)
	idx2, _ := r.AddOutput(d2)

	got := r.FindFirstEnabled(model.Playback)
	if got == nil || got.Idx != idx2 {
		t.Fatalf("expected to find the enabled device %d, got %v", idx2, got)
	}
}

func TestGroupOfGroupsByGroupID(t *testing.T) {
	r := New()
	a := &model.Device{GroupID: "card0"}
	b := &model.Device{GroupID: "card0"}
	c := &model.Device{GroupID: ""}
	r.AddOutput(a)
	r.AddOutput(b)
	r.AddOutput(c)

	group, size := r.GroupOf(a)
	if size != 2 {
		t.Fatalf("expected group size 2, got %d", size)
	}
	found := false
	for _, d := range group {
		if d == b {
			found = true
		}
	}
	if !found {
		t.Fatal("expected b in a's group")
	}

	soloGroup, soloSize := r.GroupOf(c)
	if soloSize != 1 || soloGroup[0] != c {
		t.Fatalf("expected a singleton group for an ungrouped device, got %v", soloGroup)
	}
}

func TestGroupHasOpenReflectsAnyMember(t *testing.T) {
	r := New()
	a := &model.Device{GroupID: "g", State: model.StateClosed}
	b := &model.Device{GroupID: "g", State: model.StateOpen}
	r.AddOutput(a)
	r.AddOutput(b)

	if !r.GroupHasOpen(a) {
		t.Fatal("expected group to report open since b is open")
	}
}

func TestGetSCOPCMIoDevFindsFlaggedNode(t *testing.T) {
	r := New()
	plain := &model.Device{
		Nodes:      []*model.Node{{Idx: 1, DevIdx: 0}},
		ActiveNode: 1,
	}
	sco := &model.Device{
		Nodes:      []*model.Node{{Idx: 2, DevIdx: 0, SCOOffload: true}},
		ActiveNode: 2,
	}
	r.AddInput(plain)
	idx, _ := r.AddInput(sco)

	got := r.GetSCOPCMIoDev(model.Capture)
	if got == nil || got.Idx != idx {
		t.Fatalf("expected to find the sco-offload device, got %v", got)
	}
}

func TestOnChangedFiresOnAdd(t *testing.T) {
	r := New()
	fired := 0
	r.OnChanged(func() { fired++ })
	r.AddOutput(&model.Device{})
	if fired != 1 {
		t.Fatalf("expected OnChanged to fire once, got %d", fired)
	}
}
