package handlers

import "sync"

// Notifier будит открытые watch-соединения пользователя после коммита.
type Notifier struct {
	subs map[string]map[chan struct{}]struct{}
	mu   sync.Mutex
}

// NewNotifier создает пустой Notifier
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe возвращает канал сигналов для userID и функцию отписки.
// Сигналы схлопываются: подписчик перечитывает ленту изменений сам.
func (n *Notifier) Subscribe(userID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.subs[userID] == nil {
		n.subs[userID] = make(map[chan struct{}]struct{})
	}
	n.subs[userID][ch] = struct{}{}
	n.mu.Unlock()

	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs[userID], ch)
		if len(n.subs[userID]) == 0 {
			delete(n.subs, userID)
		}
	}
}

// Publish сигнализирует всем подпискам userID
func (n *Notifier) Publish(userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs[userID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// subscribers возвращает число активных подписок userID
func (n *Notifier) subscribers(userID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[userID])
}
