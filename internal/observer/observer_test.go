package observer

import "testing"

type recordingObserver struct {
	NoOp
	name  string
	calls *[]string
}

func (r recordingObserver) NodesChanged() {
	*r.calls = append(*r.calls, r.name)
}

func TestNotifyInRegistrationOrder(t *testing.T) {
	var calls []string
	reg := New()
	reg.Subscribe(recordingObserver{name: "a", calls: &calls})
	reg.Subscribe(recordingObserver{name: "b", calls: &calls})
	reg.Subscribe(recordingObserver{name: "c", calls: &calls})

	reg.NodesChanged()

	want := []string{"a", "b", "c"}
	if len(calls) != len(want) {
		t.Fatalf("got %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("got %v, want %v", calls, want)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	var calls []string
	reg := New()
	unsub := reg.Subscribe(recordingObserver{name: "a", calls: &calls})
	reg.Subscribe(recordingObserver{name: "b", calls: &calls})

	unsub()
	reg.NodesChanged()

	if len(calls) != 1 || calls[0] != "b" {
		t.Fatalf("expected only b to fire, got %v", calls)
	}
}

// reentrantObserver calls back into the registry from within its own
// callback, simulating a subscriber that reacts to one notification by
// triggering another. The deferred-dispatch guard must deliver the
// re-entrant notification only after the outer one finishes fanning out.
type reentrantObserver struct {
	NoOp
	reg   *Registry
	calls *[]string
}

func (r reentrantObserver) NodesChanged() {
	*r.calls = append(*r.calls, "outer:nodes_changed")
	r.reg.Underrun()
}

type plainObserver struct {
	NoOp
	calls *[]string
}

func (p plainObserver) NodesChanged() {
	*p.calls = append(*p.calls, "plain:nodes_changed")
}

func (p plainObserver) Underrun() {
	*p.calls = append(*p.calls, "plain:underrun")
}

func TestReentrantNotifyIsDeferred(t *testing.T) {
	var calls []string
	reg := New()
	reg.Subscribe(reentrantObserver{reg: reg, calls: &calls})
	reg.Subscribe(plainObserver{calls: &calls})

	reg.NodesChanged()

	want := []string{"outer:nodes_changed", "plain:nodes_changed", "plain:underrun"}
	if len(calls) != len(want) {
		t.Fatalf("got %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("got %v, want %v", calls, want)
		}
	}
}

// panickingObserver verifies a misbehaving subscriber cannot prevent
// delivery to the observers registered after it.
type panickingObserver struct{ NoOp }

func (panickingObserver) NodesChanged() { panic("boom") }

func TestPanickingObserverDoesNotBlockOthers(t *testing.T) {
	var calls []string
	reg := New()
	reg.Subscribe(panickingObserver{})
	reg.Subscribe(recordingObserver{name: "after", calls: &calls})

	reg.NodesChanged()

	if len(calls) != 1 || calls[0] != "after" {
		t.Fatalf("expected observer after the panicking one to still run, got %v", calls)
	}
}
