package poller

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hwbot/internal/eventbus"
	"hwbot/internal/homework"
	"hwbot/internal/notifier"
	"hwbot/internal/storage"
	logx "hwbot/pkg/logx"
)

type fetchStep struct {
	resp *homework.Response
	err  error
}

type fakeFetcher struct {
	mu    sync.Mutex
	steps []fetchStep
	froms []int64
}

func (f *fakeFetcher) Fetch(ctx context.Context, from int64) (*homework.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.froms = append(f.froms, from)
	if len(f.steps) == 0 {
		return &homework.Response{CurrentDate: from}, nil
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	return s.resp, s.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notifier.Message
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, m notifier.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil && m.Kind == notifier.KindVerdict {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeNotifier) byKind(k notifier.Kind) []notifier.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notifier.Message
	for _, m := range f.msgs {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

func hw(name, status string) homework.Homework {
	return homework.Homework{Name: name, Status: status, HasName: true, HasStatus: true}
}

func resp(current int64, hws ...homework.Homework) *homework.Response {
	return &homework.Response{Homeworks: hws, CurrentDate: current}
}

func newPoller(t *testing.T, f Fetcher, n Notifier, st storage.Store) *Poller {
	t.Helper()
	sched, err := ParseSchedule("5m")
	if err != nil {
		t.Fatal(err)
	}
	p := New(f, n, Options{Schedule: sched, RelayErrors: true, Store: st, Log: logx.Nop()})
	p.SetCursor(100)
	return p
}

func TestKnownStatusSendsExactVerdict(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{steps: []fetchStep{{resp: resp(200, hw("hw_api", homework.StatusApproved))}}}
	n := &fakeNotifier{}
	p := newPoller(t, f, n, nil)

	res := p.RunOnce(context.Background())
	if res.Outcome != OutcomeSent {
		t.Fatalf("outcome = %s (%v)", res.Outcome, res.Err)
	}
	verdicts := n.byKind(notifier.KindVerdict)
	want := `Изменился статус проверки работы "hw_api". Работа проверена: ревьюеру всё понравилось. Ура!`
	if len(verdicts) != 1 || verdicts[0].Text != want {
		t.Fatalf("verdicts = %+v", verdicts)
	}
	if p.Cursor() != 200 {
		t.Fatalf("cursor = %d, want 200", p.Cursor())
	}
	if f.froms[0] != 100 {
		t.Fatalf("fetched from %d, want 100", f.froms[0])
	}
}

func TestOnlyLatestHomeworkIsReported(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{steps: []fetchStep{{resp: resp(200,
		hw("newest", homework.StatusRejected),
		hw("older", homework.StatusApproved),
	)}}}
	n := &fakeNotifier{}
	p := newPoller(t, f, n, nil)
	p.RunOnce(context.Background())

	verdicts := n.byKind(notifier.KindVerdict)
	if len(verdicts) != 1 || !strings.Contains(verdicts[0].Text, `"newest"`) {
		t.Fatalf("verdicts = %+v", verdicts)
	}
}

func TestUnknownStatusRelaysAndAdvances(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{steps: []fetchStep{{resp: resp(200, hw("hw", "lost"))}}}
	n := &fakeNotifier{}
	p := newPoller(t, f, n, nil)

	res := p.RunOnce(context.Background())
	if res.Outcome != OutcomeFormatError || !errors.Is(res.Err, homework.ErrUnknownStatus) {
		t.Fatalf("result = %+v", res)
	}
	if len(n.byKind(notifier.KindVerdict)) != 0 {
		t.Fatal("verdict sent for unknown status")
	}
	relays := n.byKind(notifier.KindError)
	if len(relays) != 1 || !strings.HasPrefix(relays[0].Text, RelayPrefix) {
		t.Fatalf("relays = %+v", relays)
	}
	if p.Cursor() != 200 {
		t.Fatalf("cursor = %d, want 200", p.Cursor())
	}
}

func TestFetchErrorKeepsCursorAndContinues(t *testing.T) {
	t.Parallel()
	apiErr := &homework.StatusError{Code: 500, Reason: "Internal Server Error"}
	f := &fakeFetcher{steps: []fetchStep{
		{err: apiErr},
		{resp: resp(300, hw("hw", homework.StatusReviewing))},
	}}
	n := &fakeNotifier{}
	p := newPoller(t, f, n, nil)

	res := p.RunOnce(context.Background())
	if res.Outcome != OutcomeFetchError || !errors.Is(res.Err, homework.ErrBadStatus) {
		t.Fatalf("result = %+v", res)
	}
	if p.Cursor() != 100 {
		t.Fatalf("cursor moved to %d on fetch error", p.Cursor())
	}

	res = p.RunOnce(context.Background())
	if res.Outcome != OutcomeSent || p.Cursor() != 300 {
		t.Fatalf("second cycle = %+v cursor %d", res, p.Cursor())
	}
	if f.froms[1] != 100 {
		t.Fatalf("second fetch from %d, want 100", f.froms[1])
	}
	snap := p.Snapshot()
	if snap.Cycles != 2 || snap.Failures != 1 || snap.Sent != 1 || snap.LastError != "" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func decoded(body string) fetchStep {
	r, err := homework.DecodeResponse([]byte(body))
	return fetchStep{resp: r, err: err}
}

func TestNullCurrentDateKeepsCursor(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{steps: []fetchStep{
		decoded(`{"homeworks":[],"current_date":null}`),
		decoded(`{"homeworks":[],"current_date":0}`),
	}}
	n := &fakeNotifier{}
	p := newPoller(t, f, n, nil)

	for i := 0; i < 2; i++ {
		res := p.RunOnce(context.Background())
		if res.Outcome != OutcomeFetchError || !errors.Is(res.Err, homework.ErrMalformedJSON) {
			t.Fatalf("cycle %d result = %+v", i, res)
		}
		if p.Cursor() != 100 {
			t.Fatalf("cycle %d moved cursor to %d", i, p.Cursor())
		}
	}
	if got := len(n.byKind(notifier.KindError)); got != 2 {
		t.Fatalf("relayed errors = %d, want 2", got)
	}
}

func TestInvalidRecordRelaysAndAdvances(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{steps: []fetchStep{decoded(`{"homeworks":[1],"current_date":400}`)}}
	n := &fakeNotifier{}
	p := newPoller(t, f, n, nil)

	res := p.RunOnce(context.Background())
	if res.Outcome != OutcomeFormatError || !errors.Is(res.Err, homework.ErrMalformedJSON) {
		t.Fatalf("result = %+v", res)
	}
	if p.Cursor() != 400 {
		t.Fatalf("cursor = %d, want 400", p.Cursor())
	}
	relayed := n.byKind(notifier.KindError)
	if len(relayed) != 1 || !strings.HasPrefix(relayed[0].Text, RelayPrefix) {
		t.Fatalf("relayed = %+v", relayed)
	}
	if len(n.byKind(notifier.KindVerdict)) != 0 {
		t.Fatal("verdict sent for invalid record")
	}
}

func TestEmptyListSendsNothingAndAdvances(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{steps: []fetchStep{{resp: resp(250)}}}
	n := &fakeNotifier{}
	p := newPoller(t, f, n, nil)

	res := p.RunOnce(context.Background())
	if res.Outcome != OutcomeNoChanges {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if len(n.msgs) != 0 {
		t.Fatalf("messages = %+v", n.msgs)
	}
	if p.Cursor() != 250 {
		t.Fatalf("cursor = %d, want 250", p.Cursor())
	}
}

func TestFailedVerdictSendKeepsCursor(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{steps: []fetchStep{{resp: resp(200, hw("hw", homework.StatusApproved))}}}
	n := &fakeNotifier{err: errors.New("telegram down")}
	p := newPoller(t, f, n, nil)

	res := p.RunOnce(context.Background())
	if res.Outcome != OutcomeSendError {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if p.Cursor() != 100 || res.Cursor != 100 {
		t.Fatalf("cursor = %d (result %d), want 100", p.Cursor(), res.Cursor)
	}
}

func TestRelayDisabled(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{steps: []fetchStep{{err: homework.ErrEndpoint}}}
	n := &fakeNotifier{}
	p := newPoller(t, f, n, nil)
	sched, _ := ParseSchedule("1m")
	p.Apply(sched, false)

	p.RunOnce(context.Background())
	if len(n.msgs) != 0 {
		t.Fatalf("relay sent while disabled: %+v", n.msgs)
	}
	if got := p.Snapshot().Schedule; got != "1m" {
		t.Fatalf("schedule = %q", got)
	}
}

func TestStorePersistsCursorAndHistory(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "hwbot")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open() error: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	f := &fakeFetcher{steps: []fetchStep{{resp: resp(500, hw("hw", homework.StatusRejected))}}}
	p := newPoller(t, f, &fakeNotifier{}, st)
	p.RunOnce(ctx)

	cursor, ok, err := st.LoadCursor(ctx)
	if err != nil || !ok || cursor != 500 {
		t.Fatalf("stored cursor = %d, %v, %v", cursor, ok, err)
	}
	recs, err := st.RecentStatuses(ctx, 5)
	if err != nil || len(recs) != 1 || recs[0].Status != homework.StatusRejected {
		t.Fatalf("history = %+v, %v", recs, err)
	}

	// a fresh poller resumes from the stored cursor
	p2 := New(&fakeFetcher{}, &fakeNotifier{}, Options{Store: st, Log: logx.Nop()})
	if err := p2.Init(ctx); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if p2.Cursor() != 500 {
		t.Fatalf("resumed cursor = %d, want 500", p2.Cursor())
	}
}

func TestInitWithoutStoreUsesNow(t *testing.T) {
	t.Parallel()
	now := time.Unix(1700000000, 0)
	p := New(&fakeFetcher{}, &fakeNotifier{}, Options{Now: func() time.Time { return now }})
	if err := p.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.Cursor() != now.Unix() {
		t.Fatalf("cursor = %d", p.Cursor())
	}
}

func TestRunPollsAgainOnTrigger(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	sched, _ := ParseSchedule("1h")
	p := New(f, &fakeNotifier{}, Options{Schedule: sched, Bus: bus, Log: logx.Nop()})
	p.SetCursor(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitCycle := func() {
		t.Helper()
		select {
		case e := <-events:
			if e.Type != eventbus.TypePollSucceeded {
				t.Fatalf("event = %q", e.Type)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no cycle finished")
		}
	}
	waitCycle()
	for !p.Trigger() {
		time.Sleep(time.Millisecond)
	}
	waitCycle()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if got := p.Snapshot().Cycles; got < 2 {
		t.Fatalf("cycles = %d, want >= 2", got)
	}
}
