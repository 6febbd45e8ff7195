package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"hwbot/internal/config"
	"hwbot/internal/homework"
	"hwbot/internal/notifier"
	telegram "hwbot/internal/transport/telegram/adapter"
	logx "hwbot/pkg/logx"
)

// CheckOptions drive a single poll outside the service loop.
type CheckOptions struct {
	// From is the from_date; 0 means now.
	From int64
	// Send delivers the verdict to the configured chat.
	Send bool

	TelegramAPIURL string
	Offline        bool
}

// Check fetches statuses once and prints the latest verdict to out.
// It never touches the stored cursor.
func Check(ctx context.Context, cfg *config.Config, opts CheckOptions, out io.Writer, log logx.Logger) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Practicum.Token == "" {
		return &config.MissingSecretsError{Names: []string{config.EnvPracticumToken}}
	}
	copts, err := mapClientOptions(cfg, log)
	if err != nil {
		return err
	}
	client, err := homework.NewClient(copts)
	if err != nil {
		return err
	}
	resp, err := client.Fetch(ctx, opts.From)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "homeworks: %d\ncurrent_date: %d\n", len(resp.Homeworks), resp.CurrentDate)
	hw, ok := resp.Latest()
	if !ok {
		fmt.Fprintln(out, "no status changes")
		return nil
	}
	msg, err := homework.FormatVerdict(hw)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, msg)
	if !opts.Send {
		return nil
	}

	if err := config.RequireSecrets(cfg); err != nil {
		return err
	}
	acfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return err
	}
	acfg.APIURL = opts.TelegramAPIURL
	acfg.Offline = opts.Offline
	ad, err := telegram.New(acfg, log)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}
	if err := notifier.New(ncfg, ad, log, nil, nil).Notify(ctx, notifier.Message{Kind: notifier.KindVerdict, Text: msg}); err != nil {
		return err
	}
	fmt.Fprintln(out, "sent")
	return nil
}
