package poller

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpecKind is the normalized kind of a schedule string.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// Schedule is a parsed poll.schedule value.
//
// Supported forms:
//   - Interval duration: "5m", "2h30m"
//   - Interval HH:MM: "00:05" (5 minutes)
//   - Cron: "*/10 * * * *", "0 */5 * * * *" (with seconds), "@hourly", "@every 5m"
//
// The prefixes "cron:", "interval:" and "every:" force a form.
type Schedule struct {
	Kind   SpecKind
	Raw    string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"

	sched cron.Schedule
}

// Next returns the next poll time after t.
func (s Schedule) Next(t time.Time) time.Time {
	if s.sched == nil {
		return t.Add(DefaultInterval)
	}
	return s.sched.Next(t)
}

func (s Schedule) String() string { return s.Raw }

// DefaultInterval is used when no schedule is configured.
const DefaultInterval = 5 * time.Minute

var (
	reHHMM     = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	}

	// whitespace or a leading '@' means cron
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	if out, err := parseInterval(s); err == nil {
		return out, nil
	}
	return Schedule{}, fmt.Errorf(
		"invalid schedule %q (use a duration like '5m', HH:MM like '00:05', or cron like '*/5 * * * *')", raw)
}

func parseCron(expr string) (Schedule, error) {
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron schedule required")
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Schedule{Kind: SpecCron, Raw: expr, Source: "cron", sched: sched}, nil
}

func parseInterval(v string) (Schedule, error) {
	if v == "" {
		return Schedule{}, fmt.Errorf("interval required")
	}
	var (
		d   time.Duration
		src string
		err error
	)
	if reHHMM.MatchString(v) {
		d, err = parseHHMM(v)
		src = "hhmm"
	} else {
		d, err = time.ParseDuration(v)
		src = "duration"
	}
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid interval %q: %w", v, err)
	}
	if d < time.Second {
		return Schedule{}, fmt.Errorf("interval must be >= 1s")
	}
	return Schedule{Kind: SpecInterval, Raw: v, Every: d, Source: src, sched: cron.Every(d)}, nil
}

func parseHHMM(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}
