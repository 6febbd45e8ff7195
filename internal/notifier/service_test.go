package notifier

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hwbot/internal/eventbus"
	"hwbot/internal/storage"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	to   []int64
	err  error
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.sent = append(f.sent, text)
	f.to = append(f.to, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestService(t *testing.T, cfg Config, sender kit.Sender, bus eventbus.Bus, st storage.Store) (*Service, *time.Time) {
	t.Helper()
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 1000
	}
	s := New(cfg, sender, logx.Nop(), bus, st)
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestNotifySendsToConfiguredChat(t *testing.T) {
	t.Parallel()
	f := &fakeSender{}
	s, _ := newTestService(t, Config{ChatID: 99}, f, nil, nil)

	if err := s.Notify(context.Background(), Message{Kind: KindVerdict, Text: "hello"}); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if f.count() != 1 || f.to[0] != 99 {
		t.Fatalf("sent = %v to %v", f.sent, f.to)
	}
	h := s.History()
	if len(h) != 1 || h[0].Kind != KindVerdict || h[0].Text != "hello" {
		t.Fatalf("history = %+v", h)
	}
}

func TestNotifyRejectsEmptyText(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t, Config{ChatID: 1}, &fakeSender{}, nil, nil)
	if err := s.Notify(context.Background(), Message{Text: "  "}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("Notify() = %v, want ErrEmptyText", err)
	}
}

func TestNotifyReturnsSendError(t *testing.T) {
	t.Parallel()
	boom := errors.New("telegram down")
	f := &fakeSender{err: boom}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	s, _ := newTestService(t, Config{ChatID: 1}, f, bus, nil)

	err := s.Notify(context.Background(), Message{Kind: KindVerdict, Text: "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("Notify() = %v, want %v", err, boom)
	}
	e := <-events
	if e.Type != eventbus.TypeNotifyFailed {
		t.Fatalf("event = %q", e.Type)
	}
	if h := s.History(); len(h) != 1 || h[0].Error == "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestErrorRelaysAreDeduplicated(t *testing.T) {
	t.Parallel()
	f := &fakeSender{}
	s, now := newTestService(t, Config{ChatID: 1, DedupWindow: time.Hour}, f, nil, nil)
	ctx := context.Background()

	relay := Message{Kind: KindError, Text: "Сбой в работе программы: boom"}
	for i := 0; i < 3; i++ {
		if err := s.Notify(ctx, relay); err != nil {
			t.Fatalf("Notify() error: %v", err)
		}
	}
	if f.count() != 1 {
		t.Fatalf("sent %d relays inside window, want 1", f.count())
	}

	*now = now.Add(time.Hour + time.Second)
	if err := s.Notify(ctx, relay); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if f.count() != 2 {
		t.Fatalf("sent %d relays after window, want 2", f.count())
	}
}

func TestVerdictsAreNeverDeduplicated(t *testing.T) {
	t.Parallel()
	f := &fakeSender{}
	s, _ := newTestService(t, Config{ChatID: 1, DedupWindow: time.Hour}, f, nil, nil)
	for i := 0; i < 3; i++ {
		if err := s.Notify(context.Background(), Message{Kind: KindVerdict, Text: "same verdict"}); err != nil {
			t.Fatalf("Notify() error: %v", err)
		}
	}
	if f.count() != 3 {
		t.Fatalf("sent %d verdicts, want 3", f.count())
	}
}

func TestFailedRelayIsRetriedNextTime(t *testing.T) {
	t.Parallel()
	f := &fakeSender{err: errors.New("down")}
	s, _ := newTestService(t, Config{ChatID: 1, DedupWindow: time.Hour}, f, nil, nil)
	ctx := context.Background()
	relay := Message{Kind: KindError, Text: "boom"}

	if err := s.Notify(ctx, relay); err == nil {
		t.Fatal("expected send error")
	}
	f.mu.Lock()
	f.err = nil
	f.mu.Unlock()
	if err := s.Notify(ctx, relay); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if f.count() != 1 {
		t.Fatalf("sent %d, want 1", f.count())
	}
}

func TestPersistentDedupSurvivesRestart(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "hwbot")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open() error: %v", err)
	}
	defer st.Close()

	cfg := Config{ChatID: 1, DedupWindow: time.Hour, PersistDedup: true}
	relay := Message{Kind: KindError, Text: "boom"}
	ctx := context.Background()

	first := &fakeSender{}
	s1 := New(cfg, first, logx.Nop(), nil, st)
	if err := s1.Notify(ctx, relay); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	second := &fakeSender{}
	s2 := New(cfg, second, logx.Nop(), nil, st)
	if err := s2.Notify(ctx, relay); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if first.count() != 1 || second.count() != 0 {
		t.Fatalf("sent first=%d second=%d, want 1 and 0", first.count(), second.count())
	}
}

func TestDedupCapEvictsEarliest(t *testing.T) {
	t.Parallel()
	f := &fakeSender{}
	s, now := newTestService(t, Config{ChatID: 1, DedupWindow: time.Hour, DedupMaxEntries: 2}, f, nil, nil)
	ctx := context.Background()

	for _, txt := range []string{"a", "b", "c"} {
		_ = s.Notify(ctx, Message{Kind: KindError, Text: txt})
		*now = now.Add(time.Second)
	}
	s.dmu.Lock()
	n := len(s.dedup)
	_, hasA := s.dedup[dedupKey(1, "a")]
	s.dmu.Unlock()
	if n != 2 || hasA {
		t.Fatalf("dedup size=%d hasA=%v, want 2 and false", n, hasA)
	}
}
