// Package systemd reports service state to the systemd manager.
//
// Every call is a no-op when the process was not started by systemd
// (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "hwbot/pkg/logx"
)

// Notifier sends sd_notify messages. The zero value is usable.
type Notifier struct {
	Log logx.Logger

	// send is swapped in tests.
	send func(state string) (bool, error)
}

func (n *Notifier) notify(state string) bool {
	send := n.send
	if send == nil {
		send = func(state string) (bool, error) { return daemon.SdNotify(false, state) }
	}
	ok, err := send(state)
	if err != nil {
		n.Log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return ok
}

// Ready reports that startup finished.
func (n *Notifier) Ready() bool { return n.notify(daemon.SdNotifyReady) }

// Stopping reports that shutdown began.
func (n *Notifier) Stopping() bool { return n.notify(daemon.SdNotifyStopping) }

// Watchdog pings the watchdog timer.
func (n *Notifier) Watchdog() bool { return n.notify(daemon.SdNotifyWatchdog) }

// Status sets the free-form status line shown by systemctl.
func (n *Notifier) Status(s string) bool { return n.notify("STATUS=" + s) }

// WatchdogInterval returns half of WATCHDOG_USEC, or 0 when the watchdog
// is disabled.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// RunWatchdog pings the watchdog every interval until ctx is done.
// It returns immediately when interval <= 0.
func (n *Notifier) RunWatchdog(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n.Watchdog()
		}
	}
}
