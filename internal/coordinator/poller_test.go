package coordinator

import (
	"context"
	"testing"
	"time"
)

func TestPollerRefreshesOnInterval(t *testing.T) {
	client := &fakeClient{payloads: []map[string]any{cookingIn(60)}}
	c, _ := newTestCoordinator(client, "ov1")

	p := StartPoller(context.Background(), c, 10*time.Millisecond, newTestLogger())
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for client.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, want >= 3", client.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, ok := c.Last(); !ok {
		t.Error("no successful snapshot published")
	}
}

func TestPollerStopHaltsCycles(t *testing.T) {
	client := &fakeClient{payloads: []map[string]any{idle()}}
	c, _ := newTestCoordinator(client, "ov1")

	p := StartPoller(context.Background(), c, 10*time.Millisecond, newTestLogger())
	p.Stop()

	calls := client.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if client.calls.Load() != calls {
		t.Error("refresh ran after Stop")
	}
}

func TestPollerContextCancel(t *testing.T) {
	client := &fakeClient{payloads: []map[string]any{idle()}}
	c, _ := newTestCoordinator(client, "ov1")

	ctx, cancel := context.WithCancel(context.Background())
	p := StartPoller(ctx, c, 10*time.Millisecond, newTestLogger())
	cancel()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after context cancel")
	}
}
