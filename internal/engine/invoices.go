package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"crmline/internal/delivery"
	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/kinds"
	"crmline/internal/lifecycle"
	"crmline/internal/store"
)

func (e Engine) Invoices() Records[domain.Invoice, *domain.Invoice] {
	return records(e, kinds.Invoice)
}

func (e Engine) CreateInvoice(ctx context.Context, actor auth.Actor, inv *domain.Invoice) (*domain.Invoice, error) {
	if inv.IssueDate.IsZero() {
		inv.IssueDate = e.now()
	}
	inv.PaymentDetails = nil
	phone, err := e.normalizePhone(domain.KindInvoice, "client.phone", inv.Client.Phone)
	if err != nil {
		return nil, err
	}
	inv.Client.Phone = phone
	invoices := e.Invoices()
	inv.InvoiceNumber, err = nextNumber(ctx, invoices, e.Config.Numbering.Invoice, func(x *domain.Invoice) string { return x.InvoiceNumber })
	if err != nil {
		return nil, err
	}
	return invoices.Create(ctx, actor, inv)
}

type InvoicePatch struct {
	Client   *domain.InvoiceClient `json:"client,omitempty"`
	DueDate  *time.Time            `json:"due_date,omitempty"`
	Items    []domain.LineItem     `json:"items,omitempty"`
	TaxRate  *decimal.Decimal      `json:"tax_rate,omitempty"`
	Discount *decimal.Decimal      `json:"discount,omitempty"`
	Notes    *string               `json:"notes,omitempty"`
	Terms    *string               `json:"terms,omitempty"`
}

func (e Engine) UpdateInvoice(ctx context.Context, actor auth.Actor, id string, p InvoicePatch) (*domain.Invoice, error) {
	return e.Invoices().Update(ctx, actor, id, func(inv *domain.Invoice) error {
		if p.Client != nil {
			phone, err := e.normalizePhone(domain.KindInvoice, "client.phone", p.Client.Phone)
			if err != nil {
				return err
			}
			inv.Client = *p.Client
			inv.Client.Phone = phone
		}
		set(&inv.DueDate, p.DueDate)
		set(&inv.TaxRate, p.TaxRate)
		set(&inv.Discount, p.Discount)
		set(&inv.Notes, p.Notes)
		set(&inv.Terms, p.Terms)
		if p.Items != nil {
			inv.Items = p.Items
		}
		return nil
	})
}

// SendInvoice marks the invoice sent and emails it to the client. A
// failed email is logged; the invoice stays sent.
func (e Engine) SendInvoice(ctx context.Context, actor auth.Actor, id string) (*domain.Invoice, error) {
	inv, err := e.Invoices().Do(ctx, actor, id, lifecycle.Request{Action: kinds.Send})
	if err != nil {
		return nil, err
	}
	e.deliverInvoice(ctx, inv, "Invoice "+inv.InvoiceNumber, fmt.Sprintf("Invoice %s for %s is due on %s.",
		inv.InvoiceNumber, inv.Total.StringFixed(2), inv.DueDate.Format("2006-01-02")))
	return inv, nil
}

func (e Engine) deliverInvoice(ctx context.Context, inv *domain.Invoice, subject, body string) delivery.Result {
	res := e.Delivery.Send(ctx, delivery.Notification{
		Channel: delivery.ChannelEmail,
		To:      inv.Client.Email,
		Subject: subject,
		Body:    body,
		RefKind: domain.KindInvoice,
		RefID:   inv.ID,
	})
	if !res.OK {
		e.logFailure("deliverInvoice", subject, map[string]string{"invoice": inv.ID, "code": res.Code}, errors.New(res.Message))
	}
	return res
}

// RemindInvoice emails an overdue notice to the client.
func (e Engine) RemindInvoice(ctx context.Context, inv *domain.Invoice) delivery.Result {
	return e.deliverInvoice(ctx, inv, "Overdue: invoice "+inv.InvoiceNumber, fmt.Sprintf("Invoice %s for %s was due on %s and is now overdue.",
		inv.InvoiceNumber, inv.Total.StringFixed(2), inv.DueDate.Format("2006-01-02")))
}

// MarkInvoicePaid records payment. Nil details default to method "other"
// paid now.
func (e Engine) MarkInvoicePaid(ctx context.Context, actor auth.Actor, id string, pd *domain.PaymentDetails) (*domain.Invoice, error) {
	req := lifecycle.Request{Action: kinds.MarkPaid}
	if pd != nil {
		req.Data = *pd
	}
	return e.Invoices().Do(ctx, actor, id, req)
}

func (e Engine) TransitionInvoice(ctx context.Context, actor auth.Actor, id string, action lifecycle.Action) (*domain.Invoice, error) {
	if action == kinds.Send {
		return e.SendInvoice(ctx, actor, id)
	}
	return e.Invoices().Do(ctx, actor, id, lifecycle.Request{Action: action})
}

func (e Engine) DeleteInvoice(ctx context.Context, actor auth.Actor, id string) error {
	_, err := e.Invoices().Delete(ctx, actor, id, nil)
	return err
}

type InvoiceFilter struct {
	Status     []domain.Status
	ClientName string
	From, To   time.Time
	Limit      int
}

func (e Engine) ListInvoices(ctx context.Context, f InvoiceFilter) ([]*domain.Invoice, error) {
	return e.Invoices().List(ctx, store.Query{Status: statusStrings(f.Status), Limit: f.Limit}, func(inv *domain.Invoice) bool {
		if f.ClientName != "" && !containsFold(inv.Client.Name, f.ClientName) {
			return false
		}
		return inRange(inv.IssueDate, f.From, f.To)
	})
}

// OverdueInvoices lists unpaid, uncancelled invoices past their due date.
func (e Engine) OverdueInvoices(ctx context.Context) ([]*domain.Invoice, error) {
	now := e.now()
	q := store.Query{Status: []string{string(domain.InvoiceSent), string(domain.InvoiceOverdue), string(domain.InvoiceDraft)}, Order: store.OldestFirst}
	return e.Invoices().List(ctx, q, func(inv *domain.Invoice) bool {
		return inv.DueDate.Before(now)
	})
}
