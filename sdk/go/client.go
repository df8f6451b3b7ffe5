package crmlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal crmline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Ticket represents the API ticket model (partial).
type Ticket struct {
	ID           string    `json:"id"`
	TicketNumber string    `json:"ticket_number"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	Priority     string    `json:"priority"`
	Category     string    `json:"category"`
	Requester    Requester `json:"requester"`
	AssignedTo   string    `json:"assigned_to,omitempty"`
	Comments     []Comment `json:"comments"`
	SLA          struct {
		ResponseDeadline   time.Time `json:"response_deadline"`
		ResolutionDeadline time.Time `json:"resolution_deadline"`
		IsBreached         bool      `json:"is_breached"`
	} `json:"sla"`
}

type Requester struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type Comment struct {
	Text       string    `json:"text"`
	CreatedBy  string    `json:"created_by,omitempty"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewTicket is the create payload.
type NewTicket struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    string    `json:"priority,omitempty"`
	Category    string    `json:"category"`
	Requester   Requester `json:"requester"`
	Tags        []string  `json:"tags,omitempty"`
}

// Invoice represents the API invoice model (partial). Money is a decimal
// string.
type Invoice struct {
	ID            string    `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	Status        string    `json:"status"`
	DueDate       time.Time `json:"due_date"`
	Total         string    `json:"total"`
	Client        struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"client"`
}

// Lead represents the API lead model (partial).
type Lead struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
	Source  string `json:"source"`
	Score   int    `json:"score"`
	Status  string `json:"status"`
	StageID string `json:"stage_id,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    any    `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Session is the result of Login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

// ErrorBody is the API error envelope.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
	Err        ErrorBody
}

func (e *APIError) Error() string {
	if e.Err.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Err.Code, e.Err.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]string{"email": email, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// CreateTicket opens a ticket.
func (c *Client) CreateTicket(ctx context.Context, t NewTicket) (Ticket, error) {
	var resp Ticket
	err := c.do(ctx, http.MethodPost, "tickets", t, &resp)
	return resp, err
}

func (c *Client) GetTicket(ctx context.Context, id string) (Ticket, error) {
	var resp Ticket
	err := c.do(ctx, http.MethodGet, "tickets/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListTickets lists tickets, optionally filtered by comma separated statuses.
func (c *Client) ListTickets(ctx context.Context, status string) ([]Ticket, error) {
	endpoint := "tickets"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Ticket
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// TransitionTicket applies action ("start", "resolve", "close", ...).
func (c *Client) TransitionTicket(ctx context.Context, id, action, note string) (Ticket, error) {
	var resp Ticket
	err := c.transition(ctx, "tickets", id, action, note, &resp)
	return resp, err
}

func (c *Client) CommentTicket(ctx context.Context, id, text string, internal bool) (Ticket, error) {
	var resp Ticket
	body := map[string]any{"text": text, "is_internal": internal}
	err := c.do(ctx, http.MethodPost, "tickets/"+url.PathEscape(id)+"/comments", body, &resp)
	return resp, err
}

func (c *Client) SendInvoice(ctx context.Context, id string) (Invoice, error) {
	var resp Invoice
	err := c.do(ctx, http.MethodPost, "invoices/"+url.PathEscape(id)+"/send", nil, &resp)
	return resp, err
}

func (c *Client) TransitionInvoice(ctx context.Context, id, action string) (Invoice, error) {
	var resp Invoice
	err := c.transition(ctx, "invoices", id, action, "", &resp)
	return resp, err
}

func (c *Client) TransitionLead(ctx context.Context, id, action string) (Lead, error) {
	var resp Lead
	err := c.transition(ctx, "leads", id, action, "", &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage pages through the log oldest first after cursor, or returns the
// newest events when cursor is empty.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("after", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// History returns the audit trail of one record, newest first.
func (c *Client) History(ctx context.Context, kind, id string) ([]Event, error) {
	var resp []Event
	err := c.do(ctx, http.MethodGet, "history/"+url.PathEscape(kind)+"/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// RunAutomation runs a job by name, or "all".
func (c *Client) RunAutomation(ctx context.Context, job string) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.do(ctx, http.MethodPost, "automation/jobs/"+url.PathEscape(job)+"/run", nil, &resp)
	return resp, err
}

func (c *Client) transition(ctx context.Context, collection, id, action, note string, out any) error {
	body := map[string]string{"action": action}
	if note != "" {
		body["note"] = note
	}
	return c.do(ctx, http.MethodPost, collection+"/"+url.PathEscape(id)+"/transitions", body, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error ErrorBody `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Err = env.Error
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
