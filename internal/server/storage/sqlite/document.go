package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/iudanet/worldkeeper/internal/models"
	"github.com/iudanet/worldkeeper/internal/server/storage"
)

// fieldPattern ограничивает имена полей в фильтрах: они попадают в JSON path
var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// DefaultChangesLimit bounds a change feed page when the caller passes no limit.
const DefaultChangesLimit = 500

func decodeDocument(body string) (*models.Document, error) {
	doc := &models.Document{}
	if err := json.Unmarshal([]byte(body), doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return doc, nil
}

// GetDocument retrieves a live document
func (s *Storage) GetDocument(ctx context.Context, userID, collection, id string) (*models.Document, error) {
	query := `
		SELECT body FROM documents
		WHERE user_id = ? AND collection = ? AND id = ? AND deleted = 0
	`

	var body string
	err := s.db.QueryRowContext(ctx, query, userID, collection, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, storage.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return decodeDocument(body)
}

var sqlOps = map[models.FilterOp]string{
	models.OpEqual:          "=",
	models.OpNotEqual:       "!=",
	models.OpLess:           "<",
	models.OpLessOrEqual:    "<=",
	models.OpGreater:        ">",
	models.OpGreaterOrEqual: ">=",
}

// filterArg converts a JSON filter value into something comparable with json_extract.
func filterArg(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, float64, int, int64:
		return val, nil
	case bool:
		// json_extract возвращает 1/0 для true/false
		if val {
			return 1, nil
		}
		return 0, nil
	}
	return nil, fmt.Errorf("%w: unsupported filter value %T", storage.ErrInvalidQuery, v)
}

// QueryDocuments returns live documents of a collection matching q
func (s *Storage) QueryDocuments(ctx context.Context, userID string, q models.Query) ([]*models.Document, error) {
	var (
		sb   strings.Builder
		args = []any{userID, q.Collection}
	)
	sb.WriteString(`SELECT body FROM documents WHERE user_id = ? AND collection = ? AND deleted = 0`)

	for _, f := range q.Filters {
		op, ok := sqlOps[f.Op]
		if !ok {
			return nil, fmt.Errorf("%w: operator %q", storage.ErrInvalidQuery, f.Op)
		}
		if !fieldPattern.MatchString(f.Field) {
			return nil, fmt.Errorf("%w: field %q", storage.ErrInvalidQuery, f.Field)
		}
		arg, err := filterArg(f.Value)
		if err != nil {
			return nil, err
		}

		if arg == nil {
			// сравнение с null имеет смысл только для == и !=
			switch f.Op {
			case models.OpEqual:
				fmt.Fprintf(&sb, ` AND json_extract(body, '$.%s') IS NULL`, f.Field)
			case models.OpNotEqual:
				fmt.Fprintf(&sb, ` AND json_extract(body, '$.%s') IS NOT NULL`, f.Field)
			default:
				return nil, fmt.Errorf("%w: %s null", storage.ErrInvalidQuery, f.Op)
			}
			continue
		}

		fmt.Fprintf(&sb, ` AND json_extract(body, '$.%s') %s ?`, f.Field, op)
		args = append(args, arg)
	}

	if q.OrderBy != nil {
		if !fieldPattern.MatchString(q.OrderBy.Field) {
			return nil, fmt.Errorf("%w: order field %q", storage.ErrInvalidQuery, q.OrderBy.Field)
		}
		dir := "ASC"
		if q.OrderBy.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, ` ORDER BY json_extract(body, '$.%s') %s, id`, q.OrderBy.Field, dir)
	} else {
		sb.WriteString(` ORDER BY id`)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []*models.Document{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeDocument(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return docs, nil
}

// Commit applies writes atomically
func (s *Storage) Commit(ctx context.Context, userID string, writes []models.Write) (time.Time, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // после Commit это no-op

	for _, w := range writes {
		if w.Precondition == nil {
			continue
		}
		if err := checkPrecondition(ctx, tx, userID, w); err != nil {
			return time.Time{}, err
		}
	}

	now := s.now().UTC()
	for _, w := range writes {
		seq, err := nextSeq(ctx, tx, userID)
		if err != nil {
			return time.Time{}, err
		}
		if err := applyWrite(ctx, tx, userID, w, seq, now); err != nil {
			return time.Time{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return now, nil
}

func checkPrecondition(ctx context.Context, tx *sql.Tx, userID string, w models.Write) error {
	var (
		version int64
		deleted int
	)
	err := tx.QueryRowContext(ctx,
		`SELECT version, deleted FROM documents WHERE user_id = ? AND collection = ? AND id = ?`,
		userID, w.Collection, w.ID,
	).Scan(&version, &deleted)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check precondition: %w", err)
	}

	exists := err == nil && deleted == 0
	if exists != w.Precondition.Exists || (exists && version != w.Precondition.Version) {
		return fmt.Errorf("%s/%s: %w", w.Collection, w.ID, storage.ErrPreconditionFailed)
	}
	return nil
}

func nextSeq(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO change_seq (user_id, seq) VALUES (?, 1)
		ON CONFLICT (user_id) DO UPDATE SET seq = seq + 1
		RETURNING seq
	`, userID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate change sequence: %w", err)
	}
	return seq, nil
}

func applyWrite(ctx context.Context, tx *sql.Tx, userID string, w models.Write, seq int64, now time.Time) error {
	switch w.Op {
	case models.WriteDelete:
		// удаление оставляет tombstone для ленты изменений
		_, err := tx.ExecContext(ctx, `
			UPDATE documents SET deleted = 1, seq = ?, updated_at = ?
			WHERE user_id = ? AND collection = ? AND id = ? AND deleted = 0
		`, seq, now.UnixNano(), userID, w.Collection, w.ID)
		if err != nil {
			return fmt.Errorf("failed to delete %s/%s: %w", w.Collection, w.ID, err)
		}
		return nil

	case models.WriteSet:
		if w.Document == nil {
			return fmt.Errorf("set %s/%s without document", w.Collection, w.ID)
		}
		doc := w.Document.Clone()
		if doc.Entity == nil {
			doc.Entity = models.Entity{}
		}
		doc.Entity[models.FieldID] = w.ID
		if w.ServerTimestamp {
			doc.Sync.LastModified = now
		}

		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (user_id, collection, id, body, version, seq, deleted, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?)
			ON CONFLICT (user_id, collection, id) DO UPDATE SET
				body = excluded.body,
				version = excluded.version,
				seq = excluded.seq,
				deleted = 0,
				updated_at = excluded.updated_at
		`, userID, w.Collection, w.ID, string(body), doc.Sync.Version, seq, now.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to write %s/%s: %w", w.Collection, w.ID, err)
		}
		return nil
	}

	return fmt.Errorf("unknown write op %q", w.Op)
}

// Changes returns a page of the change feed of one collection
func (s *Storage) Changes(ctx context.Context, userID, collection string, since int64, limit int) (*models.ChangeSet, error) {
	if limit <= 0 {
		limit = DefaultChangesLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, body, seq, deleted FROM documents
		WHERE user_id = ? AND collection = ? AND seq > ?
		ORDER BY seq
		LIMIT ?
	`, userID, collection, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	set := &models.ChangeSet{Changes: []models.Change{}, Cursor: since}
	for rows.Next() {
		var (
			ch      models.Change
			body    string
			deleted int
		)
		if err := rows.Scan(&ch.ID, &body, &ch.Seq, &deleted); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		ch.Deleted = deleted != 0
		if !ch.Deleted {
			if ch.Document, err = decodeDocument(body); err != nil {
				return nil, err
			}
		}
		set.Changes = append(set.Changes, ch)
		set.Cursor = ch.Seq
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changes: %w", err)
	}

	return set, nil
}
