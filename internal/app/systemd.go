package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "coderelay/pkg/logx"
)

// sdNotify is a no-op outside systemd (NOTIFY_SOCKET unset).
func sdNotify(log logx.Logger, state string) {
	ok, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
	case ok:
		log.Debug("systemd notified", logx.String("state", state))
	}
}

// NotifyReady tells systemd (Type=notify) that startup finished.
func (a *App) NotifyReady() { sdNotify(a.log, daemon.SdNotifyReady) }

// NotifyStopping tells systemd that shutdown began.
func (a *App) NotifyStopping() { sdNotify(a.log, daemon.SdNotifyStopping) }

// runWatchdog pings systemd at half the WatchdogSec interval while ctx is live.
func (a *App) runWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			// Skip pings once something fatal happened so systemd restarts us.
			if a.sup.Err() != nil {
				continue
			}
			sdNotify(a.log, daemon.SdNotifyWatchdog)
		}
	}
}
