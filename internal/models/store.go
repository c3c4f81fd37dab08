package models

import "time"

// FilterOp is a comparison operator supported by collection queries.
type FilterOp string

const (
	OpEqual          FilterOp = "=="
	OpNotEqual       FilterOp = "!="
	OpLess           FilterOp = "<"
	OpLessOrEqual    FilterOp = "<="
	OpGreater        FilterOp = ">"
	OpGreaterOrEqual FilterOp = ">="
)

// Valid reports whether op is supported.
func (op FilterOp) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
		return true
	}
	return false
}

// Filter is an equality or range condition on a top-level entity field.
type Filter struct {
	Value any      `json:"value"`
	Field string   `json:"field"`
	Op    FilterOp `json:"op"`
}

// OrderBy sorts query results by a top-level entity field.
type OrderBy struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// Query selects documents from one collection.
type Query struct {
	OrderBy    *OrderBy `json:"orderBy,omitempty"`
	Collection string   `json:"collection"`
	Filters    []Filter `json:"filters,omitempty"`
}

// WriteOp is the kind of a single write inside an atomic commit.
type WriteOp string

const (
	WriteSet    WriteOp = "set"
	WriteDelete WriteOp = "delete"
)

// Precondition guards a write inside a commit.
// Exists=false requires the document to be absent (or deleted);
// Exists=true requires it to be present with exactly Version.
type Precondition struct {
	Exists  bool  `json:"exists"`
	Version int64 `json:"version"`
}

// Write is one mutation of an atomic commit.
type Write struct {
	Document     *Document     `json:"document,omitempty"`
	Precondition *Precondition `json:"precondition,omitempty"`
	Op           WriteOp       `json:"op"`
	Collection   string        `json:"collection"`
	ID           string        `json:"id"`
	// ServerTimestamp asks the store to stamp Sync.LastModified with the commit time.
	ServerTimestamp bool `json:"serverTimestamp,omitempty"`
}

// Change is one entry of a collection change feed.
type Change struct {
	Document *Document `json:"document,omitempty"`
	ID       string    `json:"id"`
	Seq      int64     `json:"seq"`
	Deleted  bool      `json:"deleted"`
}

// ChangeSet is a page of the change feed plus the cursor to continue from.
type ChangeSet struct {
	Changes []Change `json:"changes"`
	Cursor  int64    `json:"cursor"`
}

// Blob describes a stored binary attachment.
type Blob struct {
	CreatedAt   time.Time `json:"createdAt"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
}
