package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"hwbot/internal/eventbus"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
	logx "hwbot/pkg/logx"
)

func TestObservePollAndNotifyEvents(t *testing.T) {
	t.Parallel()
	c := NewCollectors()
	at := time.Unix(1700000000, 0)

	c.Observe(eventbus.Event{Type: eventbus.TypePollSucceeded, Time: at, Data: poller.Result{
		Outcome: poller.OutcomeSent, Cursor: 1234, Duration: 20 * time.Millisecond,
	}})
	c.Observe(eventbus.Event{Type: eventbus.TypePollFailed, Time: at.Add(time.Minute), Data: poller.Result{
		Outcome: poller.OutcomeFetchError, Cursor: 1234, Err: errors.New("boom"),
	}})
	c.Observe(eventbus.Event{Type: eventbus.TypeNotifySent, Data: notifier.NotificationEvent{Kind: notifier.KindVerdict}})
	c.Observe(eventbus.Event{Type: eventbus.TypeNotifyDeduped, Data: notifier.NotificationEvent{Kind: notifier.KindError}})
	c.Observe(eventbus.Event{Type: eventbus.TypeConfigReloaded})
	c.Observe(eventbus.Event{Type: eventbus.TypePollSucceeded, Data: "not a result"})

	if got := testutil.ToFloat64(c.polls.WithLabelValues("sent")); got != 1 {
		t.Fatalf("polls{sent} = %v", got)
	}
	if got := testutil.ToFloat64(c.polls.WithLabelValues("fetch_error")); got != 1 {
		t.Fatalf("polls{fetch_error} = %v", got)
	}
	if got := testutil.ToFloat64(c.cursor); got != 1234 {
		t.Fatalf("cursor = %v", got)
	}
	if got := testutil.ToFloat64(c.lastSuccess); got != float64(at.Unix()) {
		t.Fatalf("last success = %v", got)
	}
	if got := testutil.ToFloat64(c.notifications.WithLabelValues("verdict", "sent")); got != 1 {
		t.Fatalf("notifications{verdict,sent} = %v", got)
	}
	if got := testutil.ToFloat64(c.notifications.WithLabelValues("error", "deduped")); got != 1 {
		t.Fatalf("notifications{error,deduped} = %v", got)
	}
}

func TestHandlerServesMetricsWithToken(t *testing.T) {
	t.Parallel()
	c := NewCollectors()
	c.Observe(eventbus.Event{Type: eventbus.TypePollSucceeded, Time: time.Now(), Data: poller.Result{Outcome: poller.OutcomeNoChanges}})
	s := NewServer(Config{}, c, nil, logx.Nop())

	ts := httptest.NewServer(s.Handler(Config{Token: "secret"}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/metrics", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `hwbot_polls_total{result="no_changes"} 1`) {
		t.Fatalf("metrics body missing poll counter:\n%s", body)
	}
}

func TestHealthzReflectsHealthFunc(t *testing.T) {
	t.Parallel()
	var stale atomic.Bool
	s := NewServer(Config{}, NewCollectors(), func() error {
		if stale.Load() {
			return errors.New("stale")
		}
		return nil
	}, logx.Nop())
	ts := httptest.NewServer(s.Handler(Config{}))
	defer ts.Close()

	get := func() int {
		resp, err := http.Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if code := get(); code != http.StatusOK {
		t.Fatalf("healthy status = %d", code)
	}
	stale.Store(true)
	if code := get(); code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy status = %d", code)
	}
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()
	s := NewServer(Config{}, NewCollectors(), nil, logx.Nop())
	ctx := context.Background()
	s.Apply(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("server did not start")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s.Apply(stopCtx, Config{})
	if s.Addr() != "" {
		t.Fatalf("addr still set after stop: %s", s.Addr())
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"127.0.0.1:9108": true,
		"localhost:9108": true,
		"[::1]:9108":     true,
		":9108":          false,
		"0.0.0.0:9108":   false,
		"10.0.0.5:9108":  false,
		"garbage":        false,
	}
	for addr, want := range tests {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
