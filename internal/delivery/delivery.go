// Package delivery sends outbound email and social publishes, and streams
// the audit log to configured webhooks.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crmline/internal/config"
	"crmline/internal/metrics"
)

const (
	ChannelEmail  = "email"
	ChannelSocial = "social"

	defaultTimeout = 5 * time.Second
)

// Notification is one outbound message.
type Notification struct {
	Channel   string            `json:"channel"`
	To        string            `json:"to,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	Body      string            `json:"body"`
	Platform  string            `json:"platform,omitempty"`
	AccountID string            `json:"account_id,omitempty"`
	RefKind   string            `json:"ref_kind"`
	RefID     string            `json:"ref_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Result reports a send. Failed sends carry a code and message; nothing
// is retried.
type Result struct {
	OK         bool   `json:"ok"`
	ExternalID string `json:"id,omitempty"`
	URL        string `json:"url,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

func failed(code string, err error) Result {
	return Result{Code: code, Message: err.Error()}
}

// Sender is the delivery collaborator.
type Sender interface {
	Send(ctx context.Context, n Notification) Result
}

// New picks the sender for the configured mode.
func New(cfg config.DeliveryConfig, log *logrus.Logger) Sender {
	if cfg.Mode == "webhook" {
		timeout := defaultTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		return Webhook{URL: cfg.URL, Secret: cfg.Secret, Client: &http.Client{Timeout: timeout}}
	}
	return Log{Logger: log}
}

// Log records notifications without sending them.
type Log struct {
	Logger *logrus.Logger
}

func (l Log) Send(_ context.Context, n Notification) Result {
	id := uuid.NewString()
	if l.Logger != nil {
		l.Logger.WithFields(logrus.Fields{
			"channel": n.Channel,
			"to":      n.To,
			"ref":     n.RefKind + "/" + n.RefID,
			"id":      id,
		}).Info(n.Subject)
	}
	metrics.Delivery(n.Channel, true)
	return Result{OK: true, ExternalID: id}
}

// Webhook posts notifications as JSON to a relay endpoint.
type Webhook struct {
	URL    string
	Secret string
	Client *http.Client
}

func (w Webhook) Send(ctx context.Context, n Notification) Result {
	res := w.send(ctx, n)
	metrics.Delivery(n.Channel, res.OK)
	return res
}

func (w Webhook) send(ctx context.Context, n Notification) Result {
	data, err := json.Marshal(n)
	if err != nil {
		return failed("ENCODE_ERROR", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(data))
	if err != nil {
		return failed("DELIVERY_ERROR", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Crmline-Channel", n.Channel)
	if strings.TrimSpace(w.Secret) != "" {
		req.Header.Set("X-Crmline-Secret", w.Secret)
	}
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return failed("DELIVERY_ERROR", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failed("DELIVERY_ERROR", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	out := Result{OK: true}
	if len(bytes.TrimSpace(body)) > 0 {
		_ = json.Unmarshal(body, &out)
		out.OK = true
		out.Code, out.Message = "", ""
	}
	if out.ExternalID == "" {
		out.ExternalID = uuid.NewString()
	}
	return out
}
