package sync

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// StartAutoSync schedules SyncAll every SyncInterval minutes.
// Calling it while a schedule is running is a no-op.
func (m *Manager) StartAutoSync() error {
	settings := m.Settings()
	if settings.SyncInterval <= 0 {
		return fmt.Errorf("invalid sync interval: %d", settings.SyncInterval)
	}

	m.cronMu.Lock()
	defer m.cronMu.Unlock()

	if m.cron != nil {
		return nil
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %dm", settings.SyncInterval)
	if _, err := c.AddFunc(spec, m.autoSyncTick); err != nil {
		return fmt.Errorf("failed to schedule auto-sync: %w", err)
	}
	c.Start()
	m.cron = c

	m.logger.Info("Auto-sync started", "interval_minutes", settings.SyncInterval)
	return nil
}

// StopAutoSync cancels the schedule and waits for a running tick to finish.
func (m *Manager) StopAutoSync() {
	m.cronMu.Lock()
	c := m.cron
	m.cron = nil
	m.cronMu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	m.logger.Info("Auto-sync stopped")
}

func (m *Manager) autoSyncRunning() bool {
	m.cronMu.Lock()
	defer m.cronMu.Unlock()
	return m.cron != nil
}

// autoSyncTick runs a pass when the device is online and no pass is running.
func (m *Manager) autoSyncTick() {
	if !m.Status().IsOnline || m.syncing.Load() {
		return
	}

	ctx := context.Background()
	if err := m.SyncAll(ctx); err != nil {
		m.logger.Warn("Auto-sync pass failed", "error", err)
	}
}

// Close stops the auto-sync schedule.
func (m *Manager) Close() {
	m.StopAutoSync()
}
