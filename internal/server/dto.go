package server

import (
	"time"

	"crmline/internal/automation"
	"crmline/internal/domain"
	"crmline/internal/engine/auth"
)

// Request payloads

type TransitionRequest struct {
	Action string `json:"action" example:"resolve"`
	// Status is the target for free transitions such as ticket set_status.
	Status string `json:"status,omitempty"`
	Note   string `json:"note,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type CommentRequest struct {
	Text       string `json:"text"`
	IsInternal bool   `json:"is_internal,omitempty"`
}

type AssignRequest struct {
	AssignedTo string `json:"assigned_to"`
}

type CloseRequest struct {
	Note string `json:"note,omitempty"`
}

type ScheduleRequest struct {
	ScheduledTime time.Time `json:"scheduled_time"`
}

type FeedbackRequest struct {
	Helpful bool `json:"helpful"`
}

type MoveStageRequest struct {
	StageID string `json:"stage_id"`
}

type CreateUserRequest struct {
	Email    string `json:"email" format:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password" minLength:"8"`
}

type PasswordRequest struct {
	Password string `json:"password" minLength:"8"`
}

type CreateAPIKeyRequest struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Response payloads

type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      WhoAmIResponse `json:"user"`
}

type WhoAmIResponse struct {
	ID          string   `json:"id"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

type UserResponse struct {
	ID        string        `json:"id"`
	Email     string        `json:"email"`
	Name      string        `json:"name"`
	Role      string        `json:"role"`
	Status    domain.Status `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
}

type CreatedAPIKeyResponse struct {
	APIKeyResponse
	// Key is shown once.
	Key string `json:"key"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type AutomationResponse struct {
	Reports []automation.Report `json:"reports"`
}

type ConversionRateResponse struct {
	StageID string  `json:"stage_id"`
	Rate    float64 `json:"rate"`
}

type BalanceResponse struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Balance string    `json:"balance"`
}

// Mappers

func whoAmI(a auth.Actor) WhoAmIResponse {
	return WhoAmIResponse{
		ID:          a.ID,
		Email:       a.Email,
		Role:        a.Role,
		Permissions: nonNilSlice(a.Permissions),
	}
}

func userResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Status:    u.CurrentStatus(),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func mapUsers(items []*domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(items))
	for _, u := range items {
		out = append(out, userResponse(u))
	}
	return out
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, UserID: k.UserID, Name: k.Name, CreatedAt: k.CreatedAt}
}

func mapAPIKeys(items []domain.APIKey) []APIKeyResponse {
	out := make([]APIKeyResponse, 0, len(items))
	for _, k := range items {
		out = append(out, apiKeyResponse(k))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, eventResponse(e))
	}
	return out
}

func nonNilSlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
