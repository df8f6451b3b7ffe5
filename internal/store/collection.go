package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"crmline/internal/domain"
)

// Collection is a typed view over one kind in a Store.
type Collection[T any, P domain.Entity[T]] struct {
	Kind  string
	Store Store
}

// NewCollection binds kind to s.
func NewCollection[T any, P domain.Entity[T]](s Store, kind string) Collection[T, P] {
	return Collection[T, P]{Kind: kind, Store: s}
}

func (c Collection[T, P]) Get(ctx context.Context, id string) (P, error) {
	doc, err := c.Store.FindByID(ctx, c.Kind, id)
	if err != nil {
		return nil, err
	}
	return c.decode(doc)
}

// Find loads documents matching q, keeps those accepted by match and
// orders them with cmp. Both match and cmp may be nil.
func (c Collection[T, P]) Find(ctx context.Context, q Query, match func(P) bool, cmp func(a, b P) int) ([]P, error) {
	limit := q.Limit
	if match != nil {
		q.Limit = 0
	}
	docs, err := c.Store.Find(ctx, c.Kind, q)
	if err != nil {
		return nil, err
	}
	out := make([]P, 0, len(docs))
	for _, doc := range docs {
		rec, err := c.decode(doc)
		if err != nil {
			return nil, err
		}
		if match != nil && !match(rec) {
			continue
		}
		out = append(out, rec)
	}
	if cmp != nil {
		slices.SortStableFunc(out, cmp)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns how many records satisfy q and match.
func (c Collection[T, P]) Count(ctx context.Context, q Query, match func(P) bool) (int, error) {
	recs, err := c.Find(ctx, q, match, nil)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Latest returns the most recently created record, or nil when the kind
// is empty.
func (c Collection[T, P]) Latest(ctx context.Context) (P, error) {
	recs, err := c.Find(ctx, Query{Limit: 1}, nil, nil)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

func (c Collection[T, P]) Save(ctx context.Context, rec P) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.Kind, err)
	}
	meta := rec.Meta()
	_, err = c.Store.Save(ctx, Document{
		Kind:      c.Kind,
		ID:        meta.ID,
		OwnerID:   meta.OwnerID,
		Status:    string(rec.CurrentStatus()),
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
		Body:      body,
	})
	return err
}

func (c Collection[T, P]) Delete(ctx context.Context, id string) error {
	return c.Store.Delete(ctx, c.Kind, id)
}

func (c Collection[T, P]) decode(doc Document) (P, error) {
	rec := P(new(T))
	if err := json.Unmarshal(doc.Body, rec); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", c.Kind, doc.ID, err)
	}
	return rec, nil
}
