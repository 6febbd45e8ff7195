package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"hwbot/internal/eventbus"
	"hwbot/internal/storage"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

var (
	ErrNoSender  = errors.New("notifier has no sender")
	ErrEmptyText = errors.New("notification text is empty")
)

const historyCap = 50

// Service sends messages to one chat. It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus
	store  storage.Store

	// key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem

	now func() time.Time
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:    log,
		sender: sender,
		bus:    bus,
		store:  store,
		dedup:  map[string]time.Time{},
		now:    time.Now,
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 500
	}
	if s.limiter == nil || s.cfg.RatePerSec != cfg.RatePerSec {
		// burst = rate so a short spike is not throttled
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	s.cfg = cfg
}

// Notify sends m once. A suppressed duplicate error relay returns nil.
func (s *Service) Notify(ctx context.Context, m Message) error {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return ErrEmptyText
	}
	if m.Kind == "" {
		m.Kind = KindVerdict
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if s.sender == nil {
		return ErrNoSender
	}

	var key string
	if m.Kind == KindError && cfg.DedupWindow > 0 {
		key = dedupKey(cfg.ChatID, text)
		if !s.dedupAllow(ctx, key, cfg) {
			s.log.Debug("error relay suppressed", logx.String("key", key))
			s.publish(eventbus.TypeNotifyDeduped, NotificationEvent{Kind: m.Kind, ChatID: cfg.ChatID, Key: key}, nil)
			return nil
		}
	}

	if err := lim.Wait(ctx); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	_, err := s.sender.SendText(callCtx, kit.ChatTarget{ChatID: cfg.ChatID}, text, &kit.SendOptions{DisablePreview: true})
	cancel()

	s.appendHistory(m.Kind, text, err)
	ev := NotificationEvent{Kind: m.Kind, ChatID: cfg.ChatID, Key: key}
	if err != nil {
		if key != "" {
			// let the next cycle retry the relay
			s.forget(ctx, key, cfg)
		}
		s.publish(eventbus.TypeNotifyFailed, ev, err)
		return fmt.Errorf("send %s message: %w", m.Kind, err)
	}
	s.log.Info("message sent", logx.String("kind", string(m.Kind)), logx.Int("runes", len([]rune(text))))
	s.publish(eventbus.TypeNotifySent, ev, nil)
	return nil
}

func (s *Service) publish(typ string, ev NotificationEvent, err error) {
	if s.bus == nil {
		return
	}
	ev.At = s.now()
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// History returns recent send attempts, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(kind Kind, text string, err error) {
	it := HistoryItem{At: s.now(), Kind: kind, Text: text}
	if err != nil {
		it.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}

func (s *Service) forget(ctx context.Context, key string, cfg Config) {
	s.dmu.Lock()
	delete(s.dedup, key)
	s.dmu.Unlock()
	if cfg.PersistDedup && s.store != nil {
		cctx, cancel := context.WithTimeout(ctx, time.Second)
		_ = s.store.PutDedup(cctx, key, s.now())
		cancel()
	}
}

func dedupKey(chatID int64, text string) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d|", chatID)
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("relay:%x", h.Sum64())
}

// dedupAllow reports whether key may be sent now and, if so, opens a new
// suppression window for it.
func (s *Service) dedupAllow(ctx context.Context, key string, cfg Config) bool {
	now := s.now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	if cfg.PersistDedup && s.store != nil {
		cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		until, ok, err := s.store.GetDedup(cctx, key)
		cancel()
		if err != nil {
			s.log.Debug("dedup lookup failed", logx.Err(err))
		} else if ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	until := now.Add(cfg.DedupWindow)
	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	// evict earliest expiries above the cap
	for len(s.dedup) > cfg.DedupMaxEntries {
		var (
			minKey string
			minT   time.Time
		)
		for k, t := range s.dedup {
			if minKey == "" || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(s.dedup, minKey)
	}
	s.dmu.Unlock()

	if cfg.PersistDedup && s.store != nil {
		cctx, cancel := context.WithTimeout(ctx, time.Second)
		if err := s.store.PutDedup(cctx, key, until); err != nil {
			s.log.Debug("dedup persist failed", logx.Err(err))
		}
		cancel()
	}
	return true
}
