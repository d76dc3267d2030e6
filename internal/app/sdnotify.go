package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "fisherbot/pkg/logx"
)

// sdNotify reports state to systemd. It is a no-op outside a notify unit.
func (a *App) sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		a.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// startWatchdog pings the systemd watchdog at half its interval while the app runs.
func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	every := max(interval/2, time.Second)
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				a.sdNotify(daemon.SdNotifyWatchdog)
			}
		}
	})
}
