// Package systemd reports daemon state to the service manager through sd_notify.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sys/unix"

	"github.com/smazurov/logwire/internal/logconfig"
)

// Notifier sends sd_notify messages. Outside systemd every call is a no-op.
type Notifier struct {
	logger *slog.Logger
	notify func(state string) (bool, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNotifier creates a notifier that writes to $NOTIFY_SOCKET.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger: logger,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify sent", "state", state)
	}
}

// Ready reports that startup or a reload finished.
func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

// Reloading reports that the logging document is being reapplied. The
// MONOTONIC_USEC field is what Type=notify-reload units wait for.
func (n *Notifier) Reloading() {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		n.send(daemon.SdNotifyReloading)
		return
	}
	usec := ts.Nano() / 1e3
	n.send(fmt.Sprintf("%s\nMONOTONIC_USEC=%d", daemon.SdNotifyReloading, usec))
}

// Stopping reports that shutdown began.
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) {
	n.send("STATUS=" + fmt.Sprintf(format, args...))
}

// Applied implements logconfig.Observer.
func (n *Notifier) Applied(source string, res *logconfig.Result) {
	n.Status("Applied %s: %d sinks, generation %d", source, len(res.SinkIDs), res.Generation)
}

// Failed implements logconfig.Observer.
func (n *Notifier) Failed(source string, err error) {
	if logconfig.IsPartial(err) {
		n.Status("Partially applied %s: %v", source, err)
		return
	}
	n.Status("Rejected %s: %v", source, err)
}

// StartWatchdog pings the watchdog at half the interval systemd asked for.
// It reports whether the watchdog is enabled for this process.
func (n *Notifier) StartWatchdog(ctx context.Context) bool {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("Invalid watchdog settings", "error", err)
		return false
	}
	if interval == 0 {
		return false
	}
	return n.startWatchdog(ctx, interval/2)
}

func (n *Notifier) startWatchdog(ctx context.Context, every time.Duration) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return true
	}
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.send(daemon.SdNotifyWatchdog)
			}
		}
	}(n.done)

	n.logger.Info("Watchdog enabled", "interval", every)
	return true
}

// Stop ends the watchdog loop.
func (n *Notifier) Stop() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
