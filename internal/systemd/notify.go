package systemd

import (
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
)

// NotifyReady tells systemd the service finished starting up.
// A no-op outside a systemd unit (NOTIFY_SOCKET unset).
func NotifyReady(logger zerolog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd READY notification")
		return
	}
	if sent {
		logger.Debug().Msg("Sent systemd READY notification")
	}
}

// NotifyWatchdog pings the systemd watchdog. Call once per successful poll
// when WatchdogSec is configured on the unit.
func NotifyWatchdog() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
}

// NotifyStopping tells systemd the service began shutting down.
func NotifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}
