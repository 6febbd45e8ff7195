package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hwbot/internal/app"
	"hwbot/internal/config"
	logx "hwbot/pkg/logx"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start polling (default command)",
	RunE:  runService,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func loadEnv(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile == "" {
		return nil
	}
	return config.LoadDotEnv(envFile)
}

func runService(cmd *cobra.Command, args []string) error {
	log := logx.NewConsole("INFO").With(logx.String("comp", "main"))
	if err := loadEnv(cmd); err != nil {
		return err
	}
	cfgPath, _ := cmd.Flags().GetString("config")

	a, err := app.New(app.Options{ConfigPath: cfgPath})
	if err != nil {
		var mse *config.MissingSecretsError
		if errors.As(err, &mse) {
			log.Error("required environment variables are missing", logx.Any("missing", mse.Names))
		}
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return err
	}

	var reason app.StopReason
	select {
	case sig := <-sigs:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}
