// Package shutdown stops the server after a quiet period so scale-to-zero
// platforms can park the machine between visitors.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BusyCheck reports whether a background component still has work, such as
// queued notification deliveries.
type BusyCheck func() bool

// IdleMonitorConfig holds configuration for the idle monitor.
type IdleMonitorConfig struct {
	// Timeout is the quiet period before shutdown. 0 disables the monitor.
	Timeout time.Duration
	Logger  *slog.Logger
	// ExcludePaths are path prefixes that don't count as activity (probes).
	ExcludePaths []string
	// BusyChecks hold off shutdown while any reports work in progress.
	BusyChecks []BusyCheck
	// CheckInterval overrides the polling interval derived from Timeout.
	CheckInterval time.Duration
}

// IdleMonitor tracks visitor requests and closes Done once the server has been
// quiet for Timeout with no request in flight and no background work.
type IdleMonitor struct {
	cfg      IdleMonitorConfig
	inFlight atomic.Int64
	lastSeen atomic.Int64 // unix nanos
	now      func() time.Time

	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewIdleMonitor creates an idle monitor.
func NewIdleMonitor(cfg IdleMonitorConfig) *IdleMonitor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m := &IdleMonitor{
		cfg:  cfg,
		now:  time.Now,
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	m.touch()
	return m
}

// Enabled reports whether a timeout is configured.
func (m *IdleMonitor) Enabled() bool {
	return m.cfg.Timeout > 0
}

// Start begins polling. It is a no-op when the monitor is disabled.
func (m *IdleMonitor) Start() {
	if !m.Enabled() {
		m.cfg.Logger.Debug("idle shutdown disabled")
		return
	}
	m.cfg.Logger.Info("idle shutdown enabled", "timeout", m.cfg.Timeout, "exclude_paths", m.cfg.ExcludePaths)
	go m.run()
}

// Stop ends polling without signalling shutdown.
func (m *IdleMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Done is closed when the idle timeout is reached.
func (m *IdleMonitor) Done() <-chan struct{} {
	return m.done
}

// Middleware counts requests outside ExcludePaths as activity.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		m.inFlight.Add(1)
		m.touch()
		defer func() {
			m.inFlight.Add(-1)
			m.touch()
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) excluded(path string) bool {
	for _, prefix := range m.cfg.ExcludePaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (m *IdleMonitor) touch() {
	m.lastSeen.Store(m.now().UnixNano())
}

// busy reports whether any background component has work.
func (m *IdleMonitor) busy() bool {
	for _, check := range m.cfg.BusyChecks {
		if check() {
			return true
		}
	}
	return false
}

// idle evaluates one poll. Busy periods restart the quiet period so queued
// deliveries finish with a full grace window after them.
func (m *IdleMonitor) idle() (bool, time.Duration) {
	if m.inFlight.Load() > 0 || m.busy() {
		m.touch()
		return false, 0
	}
	quiet := m.now().Sub(time.Unix(0, m.lastSeen.Load()))
	return quiet >= m.cfg.Timeout, quiet
}

func (m *IdleMonitor) interval() time.Duration {
	if m.cfg.CheckInterval > 0 {
		return m.cfg.CheckInterval
	}
	iv := m.cfg.Timeout / 6
	if iv < 5*time.Second {
		iv = 5 * time.Second
	}
	if iv > 30*time.Second {
		iv = 30 * time.Second
	}
	return iv
}

func (m *IdleMonitor) run() {
	ticker := time.NewTicker(m.interval())
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			idle, quiet := m.idle()
			if idle {
				m.cfg.Logger.Info("idle timeout reached, shutting down", "quiet_for", quiet, "timeout", m.cfg.Timeout)
				close(m.done)
				return
			}
			m.cfg.Logger.Debug("idle check", "quiet_for", quiet, "in_flight", m.inFlight.Load())
		}
	}
}
