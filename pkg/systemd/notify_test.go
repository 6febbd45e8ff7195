package systemd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	states []string
	err    error
}

func (r *recorder) send(state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func TestNotifierStates(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	n := &Notifier{send: r.send}

	n.Ready()
	n.Status("polling")
	n.Watchdog()
	n.Stopping()

	want := []string{"READY=1", "STATUS=polling", "WATCHDOG=1", "STOPPING=1"}
	if len(r.states) != len(want) {
		t.Fatalf("states = %v", r.states)
	}
	for i := range want {
		if r.states[i] != want[i] {
			t.Fatalf("states[%d] = %q, want %q", i, r.states[i], want[i])
		}
	}
}

func TestNotifierSendError(t *testing.T) {
	t.Parallel()
	n := &Notifier{send: (&recorder{err: errors.New("socket gone")}).send}
	if n.Ready() {
		t.Fatal("Ready() = true on send error")
	}
}

func TestRunWatchdog(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	n := &Notifier{send: r.send}

	n.RunWatchdog(context.Background(), 0) // returns at once

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.RunWatchdog(ctx, 5*time.Millisecond)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for r.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
	if r.count() < 2 {
		t.Fatalf("watchdog pings = %d", r.count())
	}
}
