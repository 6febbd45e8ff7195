package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hwbot/internal/eventbus"
	"hwbot/internal/homework"
	"hwbot/internal/notifier"
	"hwbot/internal/storage"
	logx "hwbot/pkg/logx"
)

// RelayPrefix starts every error message relayed to the chat.
const RelayPrefix = "Сбой в работе программы: "

// Fetcher returns statuses changed since from.
type Fetcher interface {
	Fetch(ctx context.Context, from int64) (*homework.Response, error)
}

// Notifier delivers one message.
type Notifier interface {
	Notify(ctx context.Context, m notifier.Message) error
}

// Outcome is the result class of one cycle.
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeNoChanges   Outcome = "no_changes"
	OutcomeFetchError  Outcome = "fetch_error"
	OutcomeFormatError Outcome = "format_error"
	OutcomeSendError   Outcome = "send_error"
)

// Result describes one cycle.
type Result struct {
	Outcome  Outcome
	Cursor   int64 // cursor after the cycle
	Advanced bool
	Message  string
	Homework *homework.Homework
	Err      error
	Duration time.Duration
}

// Snapshot is a copy of the poller state for status reporting.
type Snapshot struct {
	Cursor        int64
	Schedule      string
	NextRun       time.Time
	LastRun       time.Time
	LastSuccess   time.Time
	LastOutcome   Outcome
	LastError     string
	LastVerdict   string
	LastVerdictAt time.Time
	Cycles        uint64
	Failures      uint64
	Sent          uint64
}

type Options struct {
	Schedule    Schedule
	RelayErrors bool
	// Store is optional.
	Store storage.Store
	Bus   eventbus.Bus
	Log   logx.Logger
	Now   func() time.Time
}

// Poller runs the poll cycle. Only the goroutine running RunOnce/Run
// changes the cursor.
type Poller struct {
	fetch  Fetcher
	notify Notifier
	store  storage.Store
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time

	trigger chan struct{}
	applied chan struct{}

	mu          sync.Mutex
	schedule    Schedule
	relayErrors bool
	cursor      int64
	snap        Snapshot
}

func New(fetch Fetcher, notify Notifier, opts Options) *Poller {
	p := &Poller{
		fetch:       fetch,
		notify:      notify,
		store:       opts.Store,
		bus:         opts.Bus,
		log:         opts.Log,
		now:         opts.Now,
		trigger:     make(chan struct{}, 1),
		applied:     make(chan struct{}, 1),
		schedule:    opts.Schedule,
		relayErrors: opts.RelayErrors,
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Init sets the starting cursor: the stored one when available, else now.
func (p *Poller) Init(ctx context.Context) error {
	cursor := p.now().Unix()
	source := "now"
	if p.store != nil {
		c, ok, err := p.store.LoadCursor(ctx)
		if err != nil {
			return fmt.Errorf("load cursor: %w", err)
		}
		if ok {
			cursor, source = c, "storage"
		}
	}
	p.SetCursor(cursor)
	p.log.Info("cursor initialized", logx.Int64("from_date", cursor), logx.String("source", source))
	return nil
}

func (p *Poller) SetCursor(c int64) {
	p.mu.Lock()
	p.cursor = c
	p.snap.Cursor = c
	p.mu.Unlock()
}

func (p *Poller) Cursor() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Apply hot-swaps the schedule and the relay flag. A running loop
// recomputes its next tick.
func (p *Poller) Apply(s Schedule, relayErrors bool) {
	p.mu.Lock()
	p.schedule = s
	p.relayErrors = relayErrors
	p.mu.Unlock()
	select {
	case p.applied <- struct{}{}:
	default:
	}
}

// Trigger asks a running loop to poll now. It never blocks.
func (p *Poller) Trigger() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.snap
	s.Cursor = p.cursor
	s.Schedule = p.schedule.String()
	return s
}

// RunOnce executes one cycle: fetch, format the latest homework, send it,
// and advance the cursor.
func (p *Poller) RunOnce(ctx context.Context) Result {
	start := p.now()
	p.mu.Lock()
	from := p.cursor
	relay := p.relayErrors
	p.mu.Unlock()

	res := p.cycle(ctx, from, relay)
	res.Duration = p.now().Sub(start)
	if res.Advanced {
		p.SetCursor(res.Cursor)
	} else {
		res.Cursor = from
	}
	p.record(start, res)
	return res
}

func (p *Poller) cycle(ctx context.Context, from int64, relay bool) Result {
	resp, err := p.fetch.Fetch(ctx, from)
	if err != nil {
		p.log.Error("homework api request failed", logx.Int64("from_date", from), logx.Err(err))
		p.relay(ctx, relay, err)
		return Result{Outcome: OutcomeFetchError, Err: err}
	}

	hw, ok := resp.Latest()
	if !ok {
		p.log.Debug("no new statuses", logx.Int64("from_date", from), logx.Int64("current_date", resp.CurrentDate))
		p.persistCursor(ctx, resp.CurrentDate)
		return Result{Outcome: OutcomeNoChanges, Cursor: resp.CurrentDate, Advanced: true}
	}

	msg, err := homework.FormatVerdict(hw)
	if err != nil {
		p.log.Error("cannot format homework status", logx.String("homework", hw.Name), logx.String("status", hw.Status), logx.Err(err))
		p.relay(ctx, relay, err)
		// the same payload would fail again; move past it
		p.persistCursor(ctx, resp.CurrentDate)
		return Result{Outcome: OutcomeFormatError, Cursor: resp.CurrentDate, Advanced: true, Homework: &hw, Err: err}
	}

	if err := p.notify.Notify(ctx, notifier.Message{Kind: notifier.KindVerdict, Text: msg}); err != nil {
		p.log.Error("verdict not delivered; will retry next cycle", logx.String("homework", hw.Name), logx.Err(err))
		return Result{Outcome: OutcomeSendError, Message: msg, Homework: &hw, Err: err}
	}

	p.persistCursor(ctx, resp.CurrentDate)
	if p.store != nil {
		rec := storage.StatusRecord{
			At:           p.now(),
			HomeworkID:   hw.ID,
			HomeworkName: hw.Name,
			Status:       hw.Status,
			Message:      msg,
		}
		if err := p.store.AppendStatus(ctx, rec); err != nil {
			p.log.Warn("status history append failed", logx.Err(err))
		}
	}
	p.log.Info("status change delivered", logx.String("homework", hw.Name), logx.String("status", hw.Status))
	eventbus.Publish(p.bus, eventbus.TypeStatusChanged, hw)
	return Result{Outcome: OutcomeSent, Cursor: resp.CurrentDate, Advanced: true, Message: msg, Homework: &hw}
}

func (p *Poller) relay(ctx context.Context, enabled bool, cause error) {
	if !enabled || cause == nil {
		return
	}
	err := p.notify.Notify(ctx, notifier.Message{Kind: notifier.KindError, Text: RelayPrefix + cause.Error()})
	if err != nil && !errors.Is(err, context.Canceled) {
		p.log.Warn("error relay failed", logx.Err(err))
	}
}

func (p *Poller) persistCursor(ctx context.Context, cursor int64) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveCursor(ctx, cursor); err != nil {
		p.log.Warn("cursor persist failed", logx.Int64("from_date", cursor), logx.Err(err))
	}
}

func (p *Poller) record(at time.Time, res Result) {
	p.mu.Lock()
	p.snap.Cycles++
	p.snap.LastRun = at
	p.snap.LastOutcome = res.Outcome
	if res.Err != nil {
		p.snap.Failures++
		p.snap.LastError = res.Err.Error()
	} else {
		p.snap.LastSuccess = at
		p.snap.LastError = ""
	}
	if res.Outcome == OutcomeSent {
		p.snap.Sent++
		p.snap.LastVerdict = res.Message
		p.snap.LastVerdictAt = at
	}
	p.mu.Unlock()

	typ := eventbus.TypePollSucceeded
	if res.Err != nil {
		typ = eventbus.TypePollFailed
	}
	eventbus.Publish(p.bus, typ, res)
}

// Run polls until ctx is canceled: a cycle, then a wait for the next
// scheduled tick or a Trigger.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poll loop started", logx.String("schedule", p.Snapshot().Schedule))
	defer p.log.Info("poll loop stopped")
	for {
		if ctx.Err() != nil {
			return nil
		}
		res := p.RunOnce(ctx)
		p.log.Debug("cycle finished", logx.String("outcome", string(res.Outcome)), logx.Duration("took", res.Duration))

		if !p.wait(ctx) {
			return nil
		}
	}
}

// wait blocks until the next tick. It returns false once ctx is done.
func (p *Poller) wait(ctx context.Context) bool {
	for {
		p.mu.Lock()
		next := p.schedule.Next(p.now())
		p.snap.NextRun = next
		p.mu.Unlock()

		d := next.Sub(p.now())
		if d < 0 {
			d = 0
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
			return true
		case <-p.trigger:
			t.Stop()
			p.log.Info("poll triggered manually")
			return true
		case <-p.applied:
			t.Stop()
			// schedule changed; compute a fresh deadline
		}
	}
}
