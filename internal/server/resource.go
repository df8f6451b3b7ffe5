package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/lifecycle"
)

// resource wires the create/get/update/transition/delete surface shared by
// every lifecycle kind. Nil operations are not registered.
type resource[T any, P domain.Entity[T], Patch any] struct {
	Path string // "/tickets"
	Name string // "ticket", used for operation ids
	Tag  string

	Create     func(ctx context.Context, actor auth.Actor, rec P) (P, error)
	Get        func(ctx context.Context, actor auth.Actor, id string) (P, error)
	Update     func(ctx context.Context, actor auth.Actor, id string, p Patch) (P, error)
	Transition func(ctx context.Context, actor auth.Actor, id string, req TransitionRequest) (P, error)
	Delete     func(ctx context.Context, actor auth.Actor, id string) error
}

func registerResource[T any, P domain.Entity[T], Patch any](api huma.API, r resource[T, P, Patch]) {
	item := r.Path + "/{id}"
	tags := []string{r.Tag}

	if r.Create != nil {
		huma.Register(api, huma.Operation{
			OperationID:   "create-" + r.Name,
			Method:        http.MethodPost,
			Path:          r.Path,
			Summary:       "Create " + r.Name,
			Tags:          tags,
			DefaultStatus: http.StatusCreated,
			Errors:        writeErrors,
		}, func(ctx context.Context, _ *struct{}) (*output[P], error) {
			actor, authErr := requireActor(ctx)
			if authErr != nil {
				return nil, authErr
			}
			rec := P(new(T))
			if err := decodeBody(ctx, rec); err != nil {
				return nil, err
			}
			scrubRecord(rec.Meta(), actor)
			created, err := r.Create(ctx, actor, rec)
			if err != nil {
				return nil, handleError(err)
			}
			return reply(created), nil
		})
	}

	if r.Get != nil {
		huma.Register(api, huma.Operation{
			OperationID: "get-" + r.Name,
			Method:      http.MethodGet,
			Path:        item,
			Summary:     "Get " + r.Name,
			Tags:        tags,
			Errors:      []int{http.StatusNotFound},
		}, func(ctx context.Context, input *idInput) (*output[P], error) {
			actor, authErr := requireActor(ctx)
			if authErr != nil {
				return nil, authErr
			}
			rec, err := r.Get(ctx, actor, input.ID)
			if err != nil {
				return nil, handleError(err)
			}
			return reply(rec), nil
		})
	}

	if r.Update != nil {
		huma.Register(api, huma.Operation{
			OperationID: "update-" + r.Name,
			Method:      http.MethodPatch,
			Path:        item,
			Summary:     "Update " + r.Name,
			Tags:        tags,
			Errors:      writeErrors,
		}, func(ctx context.Context, input *idInput) (*output[P], error) {
			actor, authErr := requireActor(ctx)
			if authErr != nil {
				return nil, authErr
			}
			var patch Patch
			if err := decodeBody(ctx, &patch); err != nil {
				return nil, err
			}
			rec, err := r.Update(ctx, actor, input.ID, patch)
			if err != nil {
				return nil, handleError(err)
			}
			return reply(rec), nil
		})
	}

	if r.Transition != nil {
		huma.Register(api, huma.Operation{
			OperationID: "transition-" + r.Name,
			Method:      http.MethodPost,
			Path:        item + "/transitions",
			Summary:     "Apply a lifecycle action to a " + r.Name,
			Tags:        tags,
			Errors:      writeErrors,
		}, func(ctx context.Context, input *struct {
			ID   string            `path:"id"`
			Body TransitionRequest `json:"body"`
		}) (*output[P], error) {
			actor, authErr := requireActor(ctx)
			if authErr != nil {
				return nil, authErr
			}
			rec, err := r.Transition(ctx, actor, input.ID, input.Body)
			if err != nil {
				return nil, handleError(err)
			}
			return reply(rec), nil
		})
	}

	if r.Delete != nil {
		huma.Register(api, huma.Operation{
			OperationID:   "delete-" + r.Name,
			Method:        http.MethodDelete,
			Path:          item,
			Summary:       "Delete " + r.Name,
			Tags:          tags,
			DefaultStatus: http.StatusNoContent,
			Errors:        writeErrors,
		}, func(ctx context.Context, input *idInput) (*struct{}, error) {
			actor, authErr := requireActor(ctx)
			if authErr != nil {
				return nil, authErr
			}
			if err := r.Delete(ctx, actor, input.ID); err != nil {
				return nil, handleError(err)
			}
			return &struct{}{}, nil
		})
	}
}

// action adapts the common TransitionX(ctx, actor, id, action) signature.
func action[P any](fn func(context.Context, auth.Actor, string, lifecycle.Action) (P, error)) func(context.Context, auth.Actor, string, TransitionRequest) (P, error) {
	return func(ctx context.Context, actor auth.Actor, id string, req TransitionRequest) (P, error) {
		return fn(ctx, actor, id, lifecycle.Action(req.Action))
	}
}

// softDelete adapts deletes that return the archived record.
func softDelete[P any](fn func(context.Context, auth.Actor, string) (P, error)) func(context.Context, auth.Actor, string) error {
	return func(ctx context.Context, actor auth.Actor, id string) error {
		_, err := fn(ctx, actor, id)
		return err
	}
}

// getter ignores the actor for kinds whose reads are open to any caller.
func getter[T any, P domain.Entity[T]](fn func(context.Context, string) (P, error)) func(context.Context, auth.Actor, string) (P, error) {
	return func(ctx context.Context, _ auth.Actor, id string) (P, error) {
		return fn(ctx, id)
	}
}
