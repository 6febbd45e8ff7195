package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hwbot/internal/notifier"
	"hwbot/internal/transport/telegram/router"
)

const (
	historyLimit = 5
	timeLayout   = "2006-01-02 15:04:05 MST"
)

func (a *App) botCommands() []router.Command {
	return []router.Command{
		{Name: "status", Description: "состояние опроса", Handle: a.cmdStatus},
		{Name: "check", Description: "проверить статус сейчас", Handle: a.cmdCheck},
		{Name: "history", Description: "последние вердикты", Handle: a.cmdHistory},
		{Name: "help", Description: "список команд", Handle: a.cmdHelp},
	}
}

func (a *App) cmdStatus(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, a.statusText())
}

func (a *App) statusText() string {
	s := a.poller.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "Курсор: %d (%s)\n", s.Cursor, fmtTime(time.Unix(s.Cursor, 0)))
	fmt.Fprintf(&b, "Расписание: %s\n", s.Schedule)
	if !s.NextRun.IsZero() {
		fmt.Fprintf(&b, "Следующая проверка: %s\n", fmtTime(s.NextRun))
	}
	if s.LastRun.IsZero() {
		b.WriteString("Проверок ещё не было\n")
	} else {
		fmt.Fprintf(&b, "Последняя проверка: %s (%s)\n", fmtTime(s.LastRun), s.LastOutcome)
	}
	if s.LastVerdict != "" {
		fmt.Fprintf(&b, "Последний вердикт (%s): %s\n", fmtTime(s.LastVerdictAt), s.LastVerdict)
	}
	fmt.Fprintf(&b, "Циклов: %d, ошибок: %d, отправлено: %d", s.Cycles, s.Failures, s.Sent)
	if s.LastError != "" {
		fmt.Fprintf(&b, "\nПоследняя ошибка: %s", s.LastError)
	}
	return b.String()
}

func (a *App) cmdCheck(ctx context.Context, req *router.Request) error {
	if a.poller.Trigger() {
		return req.Reply(ctx, "Проверка запущена.")
	}
	return req.Reply(ctx, "Проверка уже запланирована.")
}

func (a *App) cmdHistory(ctx context.Context, req *router.Request) error {
	text, err := a.historyText(ctx)
	if err != nil {
		return err
	}
	return req.Reply(ctx, text)
}

func (a *App) historyText(ctx context.Context) (string, error) {
	var lines []string
	if a.store != nil {
		recs, err := a.store.RecentStatuses(ctx, historyLimit)
		if err != nil {
			return "", fmt.Errorf("history: %w", err)
		}
		for _, r := range recs {
			lines = append(lines, fmt.Sprintf("%s: %s (%s)", fmtTime(r.At), r.HomeworkName, r.Status))
		}
	} else {
		// without storage only this process's deliveries are known
		h := a.notif.History()
		for i := len(h) - 1; i >= 0 && len(lines) < historyLimit; i-- {
			if h[i].Kind != notifier.KindVerdict || h[i].Error != "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s", fmtTime(h[i].At), h[i].Text))
		}
	}
	if len(lines) == 0 {
		return "Вердиктов пока не было.", nil
	}
	return "Последние вердикты:\n" + strings.Join(lines, "\n"), nil
}

func (a *App) cmdHelp(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, a.router.HelpText())
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
