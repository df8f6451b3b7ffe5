package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"crmline/internal/automation"
	"crmline/internal/domain"
	"crmline/internal/engine"
	"crmline/internal/events"
	"crmline/internal/lifecycle"
	"crmline/internal/report"
)

func registerAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange email and password for a JWT",
		Tags:        []string{"auth"},
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*output[LoginResponse], error) {
		actor, err := e.Authenticate(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, expires, err := signToken(authCfg.JWTSecret, actor, now(e), authCfg.ttl())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return reply(LoginResponse{Token: token, ExpiresAt: expires, User: whoAmI(actor)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current actor",
		Tags:        []string{"auth"},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[WhoAmIResponse], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return reply(whoAmI(actor)), nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	tags := []string{"users"}
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		Tags:          tags,
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*output[UserResponse], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateUser(ctx, actor, &domain.User{
			Email: input.Body.Email,
			Name:  input.Body.Name,
			Role:  input.Body.Role,
		}, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(userResponse(u)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Tags:        tags,
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*output[[]UserResponse], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListUsers(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(mapUsers(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-user",
		Method:      http.MethodPost,
		Path:        "/users/{id}/transitions",
		Summary:     "Activate or deactivate a user",
		Tags:        tags,
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body TransitionRequest `json:"body"`
	}) (*output[UserResponse], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.TransitionUser(ctx, actor, input.ID, lifecycle.Action(input.Body.Action))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(userResponse(u)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "set-user-password",
		Method:        http.MethodPut,
		Path:          "/users/{id}/password",
		Summary:       "Replace a password",
		Tags:          tags,
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body PasswordRequest `json:"body"`
	}) (*struct{}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetPassword(ctx, actor, input.ID, input.Body.Password); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Mint an API key",
		Description:   "The raw key is returned once and only its hash is stored.",
		Tags:          tags,
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*output[CreatedAPIKeyResponse], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		userID := input.Body.UserID
		if userID == "" {
			userID = actor.ID
		}
		raw, key, err := e.CreateAPIKey(ctx, actor, userID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(CreatedAPIKeyResponse{APIKeyResponse: apiKeyResponse(key), Key: raw}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
		Tags:        tags,
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id"`
	}) (*output[[]APIKeyResponse], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, actor, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(mapAPIKeys(keys)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{id}",
		Summary:       "Revoke an API key",
		Tags:          tags,
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden},
	}, func(ctx context.Context, input *idInput) (*struct{}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeAPIKey(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	tags := []string{"events"}
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Tags:        tags,
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type" example:"ticket.resolve"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		After      string `query:"after" doc:"Page forward from this event id, oldest first"`
	}) (*output[paginatedEvents], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var (
			items []domain.Event
			err   error
		)
		if input.After != "" {
			cursor, perr := strconv.ParseInt(input.After, 10, 64)
			if perr != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"after": input.After})
			}
			items, err = e.EventsAfter(ctx, actor, cursor, limit)
		} else {
			items, err = e.ListEvents(ctx, actor, events.Filter{
				EntityKind: input.EntityKind,
				EntityID:   input.EntityID,
				Type:       input.Type,
				Limit:      limit,
			})
		}
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: mapEvents(items)}
		if input.After != "" && len(items) == limit {
			resp.NextCursor = fmt.Sprintf("%d", items[len(items)-1].ID)
		}
		return reply(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "entity-history",
		Method:      http.MethodGet,
		Path:        "/history/{kind}/{id}",
		Summary:     "Audit trail of one record, newest first",
		Tags:        tags,
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Kind string `path:"kind" example:"ticket"`
		ID   string `path:"id"`
	}) (*output[[]EventResponse], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.History(ctx, actor, input.Kind, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(mapEvents(items)), nil
	})
}

func registerAutomation(api huma.API, r *automation.Runner) {
	huma.Register(api, huma.Operation{
		OperationID: "list-automation-jobs",
		Method:      http.MethodGet,
		Path:        "/automation/jobs",
		Summary:     "List automation jobs",
		Tags:        []string{"automation"},
	}, func(ctx context.Context, _ *struct{}) (*output[[]string], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		return reply(r.Jobs()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-automation-job",
		Method:      http.MethodPost,
		Path:        "/automation/jobs/{job}/run",
		Summary:     "Run one job, or all",
		Tags:        []string{"automation"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Job string `path:"job" example:"sla_sweep"`
	}) (*output[AutomationResponse], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Job != automation.JobAll && !slices.Contains(r.Jobs(), input.Job) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown automation job", map[string]any{"job": input.Job})
		}
		reports, err := r.Run(ctx, actor, input.Job)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(AutomationResponse{Reports: reports}), nil
	})
}

type xlsxOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func registerReports(api huma.API, e engine.Engine) {
	type reportInput struct {
		At string `query:"at" doc:"Any date in the reported month; defaults to today"`
	}
	build := func(ctx context.Context, input *reportInput) (report.Financial, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return report.Financial{}, authErr
		}
		at, perr := parseDate("at", input.At)
		if perr != nil {
			return report.Financial{}, perr
		}
		if at.IsZero() {
			at = now(e)
		}
		rep, err := report.BuildFinancial(ctx, e, actor, at)
		if err != nil {
			return report.Financial{}, handleError(err)
		}
		return rep, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "financial-report",
		Method:      http.MethodGet,
		Path:        "/reports/financial",
		Summary:     "Monthly revenue, expenses and balances",
		Tags:        []string{"reports"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *reportInput) (*output[report.Financial], error) {
		rep, err := build(ctx, input)
		if err != nil {
			return nil, err
		}
		return reply(rep), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "financial-report-xlsx",
		Method:      http.MethodGet,
		Path:        "/reports/financial.xlsx",
		Summary:     "Monthly financial report as a spreadsheet",
		Tags:        []string{"reports"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *reportInput) (*xlsxOutput, error) {
		rep, err := build(ctx, input)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := report.WriteXLSX(&buf, rep); err != nil {
			return nil, handleError(err)
		}
		return &xlsxOutput{
			ContentType:        "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			ContentDisposition: fmt.Sprintf("attachment; filename=financial-%s.xlsx", rep.PeriodStart.Format("2006-01")),
			Body:               buf.Bytes(),
		}, nil
	})
}
