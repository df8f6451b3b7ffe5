package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/store"
)

type widget struct {
	domain.Record
	Name    string        `json:"name" validate:"required"`
	Status  domain.Status `json:"status"`
	Parts   []int         `json:"parts"`
	Total   int           `json:"total"`
	Stamped *time.Time    `json:"stamped,omitempty"`
	History []string      `json:"history"`
}

func (w *widget) CurrentStatus() domain.Status { return w.Status }
func (w *widget) SetStatus(s domain.Status)    { w.Status = s }

type memBackend struct {
	docs    map[string][]byte
	changes []Change
}

func newMemBackend() *memBackend { return &memBackend{docs: map[string][]byte{}} }

func (m *memBackend) Get(_ context.Context, id string) (*widget, error) {
	data, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("widget %s: %w", id, store.ErrNotFound)
	}
	var w widget
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (m *memBackend) Put(_ context.Context, w *widget, c Change) error {
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	m.docs[w.ID] = data
	m.changes = append(m.changes, c)
	return nil
}

func (m *memBackend) Remove(_ context.Context, w *widget, c Change) error {
	delete(m.docs, w.ID)
	m.changes = append(m.changes, c)
	return nil
}

const (
	wDraft  domain.Status = "draft"
	wLive   domain.Status = "live"
	wLocked domain.Status = "locked"
	wGone   domain.Status = "gone"
)

func widgetKind() Kind[widget, *widget] {
	return Kind[widget, *widget]{
		Table: Table{
			Kind:     "widget",
			Initial:  wDraft,
			Statuses: []domain.Status{wDraft, wLive, wLocked, wGone},
			Actions: map[Action]Rule{
				"launch": {From: []domain.Status{wDraft}, To: wLive},
				"lock":   {From: []domain.Status{wLive}, To: wLocked},
				"poke":   {},
				"set":    {From: []domain.Status{wDraft, wLive}, Free: true},
			},
			Reasons:       map[Action]map[domain.Status]string{"launch": {wLive: "already live"}},
			Edit:          auth.Owner,
			Act:           auth.Owner,
			Delete:        auth.Admin,
			EditBlocked:   []domain.Status{wLocked},
			DeleteBlocked: []domain.Status{wLive},
		},
		Require: map[Action]func(*widget, Input) error{
			"lock": func(w *widget, _ Input) error {
				if len(w.Parts) == 0 {
					return errors.New("widget has no parts")
				}
				return nil
			},
		},
		Effects: map[Action]func(*widget, Input) error{
			"launch": func(w *widget, in Input) error {
				w.Stamped = domain.Stamp(in.Now)
				return nil
			},
		},
		Derive: []Derivation[*widget]{{
			Name: "total",
			Apply: func(w *widget, _ time.Time) {
				w.Total = 0
				for _, p := range w.Parts {
					w.Total += p
				}
			},
		}},
		OnStatusChange: func(w *widget, from, to domain.Status, _ Input) {
			w.History = append([]string{string(from) + "->" + string(to)}, w.History...)
		},
	}
}

var (
	owner    = auth.Actor{ID: "owner", Role: auth.RoleUser}
	stranger = auth.Actor{ID: "stranger", Role: auth.RoleUser}
	admin    = auth.Actor{ID: "admin", Role: auth.RoleAdmin}
	clock    = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
)

func newGuard() (Guard[widget, *widget], *memBackend) {
	b := newMemBackend()
	return Guard[widget, *widget]{Kind: widgetKind(), Backend: b, Now: func() time.Time { return clock }}, b
}

func TestCreateSetsInitialStatusAndDerivedFields(t *testing.T) {
	g, b := newGuard()
	w, err := g.Create(context.Background(), owner, &widget{Name: "w", Parts: []int{2, 3}})
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, wDraft, w.Status)
	assert.Equal(t, 5, w.Total)
	assert.Equal(t, "owner", w.OwnerID)
	assert.Equal(t, clock, w.CreatedAt)
	require.Len(t, b.changes, 1)
	assert.Equal(t, ActionCreate, b.changes[0].Action)
}

func TestCreateValidation(t *testing.T) {
	g, b := newGuard()
	_, err := g.Create(context.Background(), owner, &widget{})
	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "required", ve.Fields["name"])
	assert.Empty(t, b.docs)
}

func TestIllegalTransitionLeavesRecordUntouched(t *testing.T) {
	g, b := newGuard()
	ctx := context.Background()
	w, err := g.Create(ctx, owner, &widget{Name: "w"})
	require.NoError(t, err)
	before := append([]byte(nil), b.docs[w.ID]...)

	_, err = g.Do(ctx, owner, w.ID, Request{Action: "lock"})
	var te InvalidTransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, wDraft, te.Status)
	assert.Contains(t, err.Error(), "lock")
	assert.Contains(t, err.Error(), "draft")
	assert.Equal(t, before, b.docs[w.ID])

	_, err = g.Do(ctx, owner, w.ID, Request{Action: "explode"})
	require.True(t, errors.As(err, &te))
	assert.Equal(t, before, b.docs[w.ID])
}

func TestTransitionAppliesEffectsInOrder(t *testing.T) {
	g, b := newGuard()
	ctx := context.Background()
	w, err := g.Create(ctx, owner, &widget{Name: "w", Parts: []int{1}})
	require.NoError(t, err)

	w, err = g.Do(ctx, owner, w.ID, Request{Action: "launch"})
	require.NoError(t, err)
	assert.Equal(t, wLive, w.Status)
	require.NotNil(t, w.Stamped)
	assert.Equal(t, []string{"draft->live"}, w.History)

	_, err = g.Do(ctx, owner, w.ID, Request{Action: "launch"})
	var te InvalidTransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "already live", te.Reason)
	assert.Equal(t, Change{Kind: "widget", Action: "launch", From: wDraft, To: wLive, ActorID: "owner"}, b.changes[1])
}

func TestPreconditionFailureWritesNothing(t *testing.T) {
	g, b := newGuard()
	ctx := context.Background()
	w, err := g.Create(ctx, owner, &widget{Name: "w"})
	require.NoError(t, err)
	_, err = g.Do(ctx, owner, w.ID, Request{Action: "launch"})
	require.NoError(t, err)
	before := append([]byte(nil), b.docs[w.ID]...)

	_, err = g.Do(ctx, owner, w.ID, Request{Action: "lock"})
	var pe PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "widget has no parts", pe.Reason)
	assert.Equal(t, before, b.docs[w.ID])

	_, err = g.Do(ctx, owner, w.ID, Request{Action: "poke", Check: func(context.Context) error {
		return errors.New("dependents exist")
	}})
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, before, b.docs[w.ID])
}

func TestFreeRuleRestrictsTargets(t *testing.T) {
	g, _ := newGuard()
	ctx := context.Background()
	w, err := g.Create(ctx, owner, &widget{Name: "w"})
	require.NoError(t, err)

	w, err = g.Do(ctx, owner, w.ID, Request{Action: "set", Target: wLocked})
	require.NoError(t, err)
	assert.Equal(t, wLocked, w.Status)

	_, err = g.Do(ctx, owner, w.ID, Request{Action: "set", Target: wDraft})
	var te InvalidTransitionError
	assert.True(t, errors.As(err, &te), "locked is not a source for set")

	w2, err := g.Create(ctx, owner, &widget{Name: "w2"})
	require.NoError(t, err)
	_, err = g.Do(ctx, owner, w2.ID, Request{Action: "set", Target: "bogus"})
	var ve ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestAuthorization(t *testing.T) {
	g, _ := newGuard()
	ctx := context.Background()
	w, err := g.Create(ctx, owner, &widget{Name: "w"})
	require.NoError(t, err)

	_, err = g.Do(ctx, stranger, w.ID, Request{Action: "launch"})
	var fe auth.ForbiddenError
	assert.True(t, errors.As(err, &fe))

	_, err = g.Update(ctx, stranger, w.ID, func(w *widget) error { w.Name = "x"; return nil })
	assert.True(t, errors.As(err, &fe))

	_, err = g.Delete(ctx, owner, w.ID, nil)
	assert.True(t, errors.As(err, &fe), "delete is admin only")

	_, err = g.Delete(ctx, admin, w.ID, nil)
	require.NoError(t, err)
	_, err = g.Do(ctx, owner, w.ID, Request{Action: "launch"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateRecomputesAndKeepsStatus(t *testing.T) {
	g, _ := newGuard()
	ctx := context.Background()
	w, err := g.Create(ctx, owner, &widget{Name: "w", Parts: []int{1}})
	require.NoError(t, err)
	id := w.ID

	w, err = g.Update(ctx, owner, id, func(w *widget) error {
		w.Parts = []int{4, 4}
		w.Status = wLocked
		w.ID = "hijack"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 8, w.Total)
	assert.Equal(t, wDraft, w.Status)
	assert.Equal(t, id, w.ID)
}

func TestUpdateAndDeleteBlockedStatuses(t *testing.T) {
	g, b := newGuard()
	ctx := context.Background()
	w, err := g.Create(ctx, owner, &widget{Name: "w", Parts: []int{1}})
	require.NoError(t, err)
	_, err = g.Do(ctx, owner, w.ID, Request{Action: "launch"})
	require.NoError(t, err)

	_, err = g.Delete(ctx, admin, w.ID, nil)
	var pe PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, b.docs, w.ID)

	_, err = g.Do(ctx, owner, w.ID, Request{Action: "lock"})
	require.NoError(t, err)
	_, err = g.Update(ctx, owner, w.ID, func(w *widget) error { w.Name = "new"; return nil })
	require.True(t, errors.As(err, &pe))
}

func TestSoftDelete(t *testing.T) {
	g, b := newGuard()
	g.Kind.SoftDelete = wGone
	ctx := context.Background()
	w, err := g.Create(ctx, owner, &widget{Name: "w"})
	require.NoError(t, err)
	w, err = g.Delete(ctx, admin, w.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, wGone, w.Status)
	assert.Contains(t, b.docs, w.ID)
}

func TestDerivationIdempotent(t *testing.T) {
	g, _ := newGuard()
	w := &widget{Name: "w", Parts: []int{5, 6}}
	g.Recompute(w, ActionUpdate)
	first := w.Total
	g.Recompute(w, ActionUpdate)
	assert.Equal(t, first, w.Total)
}

func TestTableActionsFrom(t *testing.T) {
	tbl := widgetKind().Table
	assert.Equal(t, []Action{"launch", "poke", "set"}, tbl.ActionsFrom(wDraft))
	assert.Equal(t, []Action{"poke"}, tbl.ActionsFrom(wLocked))
}

func TestCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Invalid("widget", "name", "required"), CodeValidation},
		{fmt.Errorf("wrapped: %w", InvalidTransitionError{Kind: "widget"}), CodeTransition},
		{Blocked("widget", ActionDelete, "locked"), CodePrecondition},
		{auth.ForbiddenError{Reason: "no"}, CodeForbidden},
		{fmt.Errorf("widget x: %w", store.ErrNotFound), CodeNotFound},
		{errors.New("disk full"), CodeInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Code(tc.err))
	}
}
