package sync

import (
	"github.com/google/uuid"

	"github.com/iudanet/worldkeeper/internal/models"
)

// ListenerToken identifies a registered status listener.
type ListenerToken uuid.UUID

// StatusListener receives a copy of the status. It is called synchronously on
// the goroutine that changed the status and must not block.
type StatusListener func(models.SyncStatus)

// AddStatusListener registers fn and immediately delivers the current status to it.
func (m *Manager) AddStatusListener(fn StatusListener) ListenerToken {
	token := ListenerToken(uuid.New())

	m.listenersMu.Lock()
	m.listeners[token] = fn
	m.listenersMu.Unlock()

	fn(m.Status())
	return token
}

// RemoveStatusListener unregisters a listener. It reports whether the token was registered.
func (m *Manager) RemoveStatusListener(token ListenerToken) bool {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	_, ok := m.listeners[token]
	delete(m.listeners, token)
	return ok
}

// Status returns a snapshot of the current sync status.
func (m *Manager) Status() models.SyncStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() models.SyncStatus {
	s := m.status
	if s.LastSyncTime != nil {
		t := *s.LastSyncTime
		s.LastSyncTime = &t
	}
	s.PendingChanges = len(m.queue)
	s.ConflictsCount = len(m.conflicts)
	s.SyncEnabled = m.settings.Enabled
	return s
}

// updateStatus mutates the status under the lock and notifies listeners.
func (m *Manager) updateStatus(fn func(s *models.SyncStatus)) {
	m.mu.Lock()
	if fn != nil {
		fn(&m.status)
	}
	snapshot := m.statusLocked()
	m.mu.Unlock()

	m.notify(snapshot)
}

func (m *Manager) notify(status models.SyncStatus) {
	m.listenersMu.Lock()
	listeners := make([]StatusListener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(status)
	}
}
