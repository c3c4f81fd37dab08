package remote

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/worldkeeper/internal/models"
)

// ListenerID identifies a live subscription.
type ListenerID uuid.UUID

// String returns the textual form of the id.
func (id ListenerID) String() string {
	return uuid.UUID(id).String()
}

// subscriptions tracks the goroutines feeding live listeners.
type subscriptions struct {
	cancels map[ListenerID]context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
}

func newSubscriptions() *subscriptions {
	return &subscriptions{cancels: make(map[ListenerID]context.CancelFunc)}
}

// SubscribeToCollection delivers every change of collection to fn, starting
// with the current contents. The subscription lives until Unsubscribe or
// UnsubscribeAll; ctx only scopes the connectivity check.
func (a *Adapter) SubscribeToCollection(ctx context.Context, collection string, fn func(models.Change)) (ListenerID, error) {
	return a.subscribe(ctx, collection, "", fn)
}

// SubscribeToDocument delivers changes of a single document.
func (a *Adapter) SubscribeToDocument(ctx context.Context, collection, id string, fn func(models.Change)) (ListenerID, error) {
	return a.subscribe(ctx, collection, id, fn)
}

func (a *Adapter) subscribe(ctx context.Context, collection, docID string, fn func(models.Change)) (ListenerID, error) {
	if err := a.ensureOnline(ctx); err != nil {
		return ListenerID{}, err
	}

	id := ListenerID(uuid.New())
	subCtx, cancel := context.WithCancel(context.Background())

	a.subs.mu.Lock()
	a.subs.cancels[id] = cancel
	a.subs.wg.Add(1)
	a.subs.mu.Unlock()

	deliver := func(ch models.Change) {
		if docID != "" && ch.ID != docID {
			return
		}
		if ch.Document != nil {
			opened, err := a.open(ch.Document)
			if err != nil {
				a.logger.Error("Failed to open pushed document", "collection", collection, "id", ch.ID, "error", err)
				return
			}
			ch.Document = opened
		}
		fn(ch)
	}

	go func() {
		defer a.subs.wg.Done()
		a.feed(subCtx, collection, deliver)
	}()

	a.logger.Debug("Subscribed", "listener", id.String(), "collection", collection, "document", docID)
	return id, nil
}

// feed pushes changes until ctx is cancelled, preferring the backend's
// push stream and falling back to polling the change feed.
func (a *Adapter) feed(ctx context.Context, collection string, deliver func(models.Change)) {
	var cursor int64
	track := func(ch models.Change) {
		if ch.Seq > cursor {
			cursor = ch.Seq
		}
		deliver(ch)
	}

	watcher, canWatch := a.backend.(Watcher)
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		if canWatch {
			err := watcher.Watch(ctx, collection, cursor, track)
			if ctx.Err() != nil {
				return
			}
			a.logger.Warn("Watch stream ended, reconnecting", "collection", collection, "error", err)
		} else {
			set, err := a.backend.Changes(ctx, collection, cursor)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				a.logger.Warn("Failed to poll changes", "collection", collection, "error", err)
			} else {
				for _, ch := range set.Changes {
					track(ch)
				}
				if set.Cursor > cursor {
					cursor = set.Cursor
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Unsubscribe stops a listener. It reports whether the id was live.
func (a *Adapter) Unsubscribe(id ListenerID) bool {
	a.subs.mu.Lock()
	cancel, ok := a.subs.cancels[id]
	delete(a.subs.cancels, id)
	a.subs.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// UnsubscribeAll stops every listener and waits for their goroutines to exit.
func (a *Adapter) UnsubscribeAll() {
	a.subs.mu.Lock()
	for id, cancel := range a.subs.cancels {
		cancel()
		delete(a.subs.cancels, id)
	}
	a.subs.mu.Unlock()

	a.subs.wg.Wait()
}
