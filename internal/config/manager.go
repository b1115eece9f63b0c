package config

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager owns the active configuration snapshot and reloads it when the
// file changes. Readers call Current and get one consistent, immutable
// snapshot; a reload swaps the pointer atomically between cycles so a cycle
// in progress never observes a torn config.
type Manager struct {
	path          string
	checkInterval time.Duration
	current       atomic.Pointer[Config]
	lastModTime   time.Time
	callbacks     []func(*Config)
	logger        *logrus.Entry
}

// NewManager creates a configuration manager with the given initial snapshot
func NewManager(path string, initial *Config, checkInterval time.Duration, logger *logrus.Entry) *Manager {
	m := &Manager{
		path:          path,
		checkInterval: checkInterval,
		logger:        logger,
	}
	m.current.Store(initial)
	if stat, err := os.Stat(path); err == nil {
		m.lastModTime = stat.ModTime()
	}
	return m
}

// Current returns the active configuration snapshot. The returned value must
// be treated as read-only.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// OnReload registers a callback invoked with each successfully applied
// snapshot. Callbacks run on the watcher goroutine.
func (m *Manager) OnReload(fn func(*Config)) {
	m.callbacks = append(m.callbacks, fn)
}

// Watch polls the config file for changes until the context is cancelled
func (m *Manager) Watch(ctx context.Context) error {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.logger.WithField("path", m.path).Info("config watcher started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("config watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := m.checkAndReload(); err != nil {
				m.logger.WithError(err).Warn("config reload failed, keeping previous snapshot")
			}
		}
	}
}

// checkAndReload reloads the file if its mtime advanced past the last
// applied snapshot
func (m *Manager) checkAndReload() error {
	stat, err := os.Stat(m.path)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	modTime := stat.ModTime()
	if !modTime.After(m.lastModTime) {
		return nil
	}

	cfg, err := Load(m.path)
	if err != nil {
		// Remember the mtime so a broken file is not re-parsed every tick.
		m.lastModTime = modTime
		return err
	}

	m.lastModTime = modTime
	m.current.Store(cfg)
	m.logger.Info("configuration reloaded")

	for _, fn := range m.callbacks {
		fn(cfg)
	}
	return nil
}
