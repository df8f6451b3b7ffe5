// Package store is the document store behind every entity kind: records
// are JSON bodies indexed by kind, id, owner, status and creation time.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

// tsLayout sorts lexically in chronological order.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Document is one stored record.
type Document struct {
	Kind      string
	ID        string
	OwnerID   string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
	Body      json.RawMessage
}

// Order selects creation-time ordering.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

// Query narrows a Find on indexed columns. Predicates over the body are
// applied by Collection.
type Query struct {
	Status  []string
	OwnerID string
	Order   Order
	Limit   int
}

// Store is the document-store collaborator.
type Store interface {
	FindByID(ctx context.Context, kind, id string) (Document, error)
	Find(ctx context.Context, kind string, q Query) ([]Document, error)
	Save(ctx context.Context, doc Document) (Document, error)
	Delete(ctx context.Context, kind, id string) error
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQL implements Store on SQLite.
type SQL struct {
	q querier
}

func New(db *sql.DB) SQL { return SQL{q: db} }

// WithTx returns a store bound to tx.
func (s SQL) WithTx(tx *sql.Tx) SQL { return SQL{q: tx} }

func (s SQL) FindByID(ctx context.Context, kind, id string) (Document, error) {
	if strings.TrimSpace(id) == "" {
		return Document{}, fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	row := s.q.QueryRowContext(ctx, `SELECT kind,id,owner_id,status,created_at,updated_at,body FROM documents WHERE kind=? AND id=?`, kind, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return doc, err
}

func (s SQL) Find(ctx context.Context, kind string, q Query) ([]Document, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT kind,id,owner_id,status,created_at,updated_at,body FROM documents WHERE kind=?`)
	args := []any{kind}
	if len(q.Status) > 0 {
		sb.WriteString(` AND status IN (?` + strings.Repeat(",?", len(q.Status)-1) + `)`)
		for _, st := range q.Status {
			args = append(args, st)
		}
	}
	if q.OwnerID != "" {
		sb.WriteString(` AND owner_id=?`)
		args = append(args, q.OwnerID)
	}
	if q.Order == OldestFirst {
		sb.WriteString(` ORDER BY created_at ASC, rowid ASC`)
	} else {
		sb.WriteString(` ORDER BY created_at DESC, rowid DESC`)
	}
	if q.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}
	rows, err := s.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s SQL) Save(ctx context.Context, doc Document) (Document, error) {
	if doc.Kind == "" || doc.ID == "" {
		return Document{}, errors.New("document kind and id are required")
	}
	if len(doc.Body) == 0 || !json.Valid(doc.Body) {
		return Document{}, fmt.Errorf("%s %s: body is not valid json", doc.Kind, doc.ID)
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO documents(kind,id,owner_id,status,created_at,updated_at,body) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(kind,id) DO UPDATE SET owner_id=excluded.owner_id, status=excluded.status, updated_at=excluded.updated_at, body=excluded.body`,
		doc.Kind, doc.ID, nullable(doc.OwnerID), doc.Status, formatTS(doc.CreatedAt), formatTS(doc.UpdatedAt), string(doc.Body))
	if err != nil {
		return Document{}, fmt.Errorf("save %s %s: %w", doc.Kind, doc.ID, err)
	}
	return doc, nil
}

func (s SQL) Delete(ctx context.Context, kind, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM documents WHERE kind=? AND id=?`, kind, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (Document, error) {
	var (
		doc              Document
		owner            sql.NullString
		created, updated string
		body             string
	)
	if err := row.Scan(&doc.Kind, &doc.ID, &owner, &doc.Status, &created, &updated, &body); err != nil {
		return Document{}, err
	}
	doc.OwnerID = owner.String
	var err error
	if doc.CreatedAt, err = time.Parse(tsLayout, created); err != nil {
		return Document{}, fmt.Errorf("parse created_at: %w", err)
	}
	if doc.UpdatedAt, err = time.Parse(tsLayout, updated); err != nil {
		return Document{}, fmt.Errorf("parse updated_at: %w", err)
	}
	doc.Body = json.RawMessage(body)
	return doc, nil
}

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
