// Package remotetest provides an in-memory remote.Backend for tests.
package remotetest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iudanet/worldkeeper/internal/client/remote"
	"github.com/iudanet/worldkeeper/internal/crypto"
	"github.com/iudanet/worldkeeper/internal/models"
)

type stored struct {
	doc     *models.Document
	seq     int64
	deleted bool
}

// MemoryBackend is a goroutine-safe in-memory document store with the same
// commit semantics as the server: atomic writes, preconditions, tombstones.
type MemoryBackend struct {
	// BeforeCommit, when set, runs before every commit with the lock released.
	BeforeCommit func(writes []models.Write)

	now      func() time.Time
	docs     map[string]map[string]*stored
	blobs    map[string][]byte
	pingErr  error
	failures []error
	commits  int
	seq      int64
	mu       sync.Mutex
}

// NewMemoryBackend creates an empty store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		now:   time.Now,
		docs:  make(map[string]map[string]*stored),
		blobs: make(map[string][]byte),
	}
}

// SetPingError makes Ping fail with err (nil restores it).
func (m *MemoryBackend) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// FailCommits makes the next commits fail with the given errors, in order.
func (m *MemoryBackend) FailCommits(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Commits returns the number of commit calls, failed ones included.
func (m *MemoryBackend) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Put stores doc directly, bypassing preconditions and stamping.
func (m *MemoryBackend) Put(collection string, doc *models.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply(models.Write{Op: models.WriteSet, Collection: collection, ID: doc.ID(), Document: doc}, m.now())
}

// Doc returns a copy of a live document or nil.
func (m *MemoryBackend) Doc(collection, id string) *models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.docs[collection][id]
	if !ok || s.deleted {
		return nil
	}
	return s.doc.Clone()
}

// Ping implements remote.Backend
func (m *MemoryBackend) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

// GetDocument implements remote.Backend
func (m *MemoryBackend) GetDocument(ctx context.Context, collection, id string) (*models.Document, error) {
	if doc := m.Doc(collection, id); doc != nil {
		return doc, nil
	}
	return nil, remote.ErrDocumentNotFound
}

// QueryDocuments implements remote.Backend
func (m *MemoryBackend) QueryDocuments(ctx context.Context, q models.Query) ([]*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*models.Document{}
	for _, s := range m.docs[q.Collection] {
		if s.deleted || !Matches(s.doc.Entity, q.Filters) {
			continue
		}
		out = append(out, s.doc.Clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	if q.OrderBy != nil {
		field, desc := q.OrderBy.Field, q.OrderBy.Descending
		sort.SliceStable(out, func(i, j int) bool {
			c, _ := Compare(out[i].Entity[field], out[j].Entity[field])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}
	return out, nil
}

// Commit implements remote.Backend
func (m *MemoryBackend) Commit(ctx context.Context, writes []models.Write) (time.Time, error) {
	if hook := m.BeforeCommit; hook != nil {
		hook(writes)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		if err != nil {
			return time.Time{}, err
		}
	}

	for _, w := range writes {
		if w.Precondition == nil {
			continue
		}
		s, ok := m.docs[w.Collection][w.ID]
		exists := ok && !s.deleted
		if exists != w.Precondition.Exists || (exists && s.doc.Sync.Version != w.Precondition.Version) {
			return time.Time{}, fmt.Errorf("%s/%s: %w", w.Collection, w.ID, remote.ErrPreconditionFailed)
		}
	}

	now := m.now().UTC()
	for _, w := range writes {
		m.apply(w, now)
	}
	return now, nil
}

func (m *MemoryBackend) apply(w models.Write, now time.Time) {
	if m.docs[w.Collection] == nil {
		m.docs[w.Collection] = make(map[string]*stored)
	}
	m.seq++

	if w.Op == models.WriteDelete {
		if s, ok := m.docs[w.Collection][w.ID]; ok {
			s.deleted = true
			s.seq = m.seq
		}
		return
	}

	doc := w.Document.Clone()
	if w.ServerTimestamp {
		doc.Sync.LastModified = now
	}
	m.docs[w.Collection][w.ID] = &stored{doc: doc, seq: m.seq}
}

// Changes implements remote.Backend
func (m *MemoryBackend) Changes(ctx context.Context, collection string, since int64) (*models.ChangeSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := &models.ChangeSet{Changes: []models.Change{}, Cursor: since}
	for id, s := range m.docs[collection] {
		if s.seq <= since {
			continue
		}
		ch := models.Change{ID: id, Seq: s.seq, Deleted: s.deleted}
		if !s.deleted {
			ch.Document = s.doc.Clone()
		}
		set.Changes = append(set.Changes, ch)
		if s.seq > set.Cursor {
			set.Cursor = s.seq
		}
	}
	sort.Slice(set.Changes, func(i, j int) bool { return set.Changes[i].Seq < set.Changes[j].Seq })
	return set, nil
}

// PutBlob implements remote.Backend
func (m *MemoryBackend) PutBlob(ctx context.Context, name, contentType string, r io.Reader) (*models.Blob, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := crypto.ContentHash(data)
	m.blobs[id] = data
	return &models.Blob{ID: id, Name: name, ContentType: contentType, Size: int64(len(data)), CreatedAt: m.now()}, nil
}

// BlobURL implements remote.Backend
func (m *MemoryBackend) BlobURL(blob *models.Blob) string {
	return "mem://blobs/" + blob.ID
}

// Blob returns stored blob content.
func (m *MemoryBackend) Blob(id string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[strings.TrimPrefix(id, "mem://blobs/")]
	return data, ok
}
