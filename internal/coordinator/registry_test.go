package coordinator

import (
	"context"
	"testing"
	"time"
)

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	c, _ := newTestCoordinator(&fakeClient{}, "ov1")

	if err := r.Add(&Entry{Account: "home", Coordinator: c}); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(&Entry{Account: "home", Coordinator: c}); err == nil {
		t.Error("duplicate account accepted")
	}

	e, ok := r.Get("home")
	if !ok || e.Coordinator != c {
		t.Fatal("entry not found after Add")
	}

	if _, ok := r.ByOven("ov1"); !ok {
		t.Error("ByOven failed to find entry")
	}
	if _, ok := r.ByOven("nope"); ok {
		t.Error("ByOven found a nonexistent oven")
	}

	r.Remove("home")
	if _, ok := r.Get("home"); ok {
		t.Error("entry still present after Remove")
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		c, _ := newTestCoordinator(&fakeClient{}, "")
		if err := r.Add(&Entry{Account: name, Coordinator: c}); err != nil {
			t.Fatal(err)
		}
	}

	got := r.List()
	want := []string{"alpha", "mid", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("entries = %d, want %d", len(got), len(want))
	}
	for i, e := range got {
		if e.Account != want[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Account, want[i])
		}
	}
}

func TestRegistryStopAllStopsPollers(t *testing.T) {
	r := NewRegistry()
	client := &fakeClient{payloads: []map[string]any{idle()}}
	c, _ := newTestCoordinator(client, "ov1")
	p := StartPoller(context.Background(), c, 10*time.Millisecond, newTestLogger())
	if err := r.Add(&Entry{Account: "home", Coordinator: c, Poller: p}); err != nil {
		t.Fatal(err)
	}

	r.StopAll()

	calls := client.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if client.calls.Load() != calls {
		t.Error("poller still running after StopAll")
	}
	if len(r.List()) != 0 {
		t.Error("registry not empty after StopAll")
	}
}
