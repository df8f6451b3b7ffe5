package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	InvoiceDraft     Status = "draft"
	InvoiceSent      Status = "sent"
	InvoicePaid      Status = "paid"
	InvoiceOverdue   Status = "overdue"
	InvoiceCancelled Status = "cancelled"
)

const (
	BudgetDraft  Status = "draft"
	BudgetActive Status = "active"
	BudgetClosed Status = "closed"
)

const (
	ExpensePending  Status = "pending"
	ExpenseApproved Status = "approved"
	ExpenseRejected Status = "rejected"
	ExpensePaid     Status = "paid"
)

// ExpenseCategory is shared by expenses and budget lines.
type ExpenseCategory string

const (
	CategoryOfficeSupplies       ExpenseCategory = "office_supplies"
	CategoryUtilities            ExpenseCategory = "utilities"
	CategoryRent                 ExpenseCategory = "rent"
	CategorySalaries             ExpenseCategory = "salaries"
	CategoryMarketing            ExpenseCategory = "marketing"
	CategoryTravel               ExpenseCategory = "travel"
	CategorySoftware             ExpenseCategory = "software"
	CategoryHardware             ExpenseCategory = "hardware"
	CategoryProfessionalServices ExpenseCategory = "professional_services"
	CategoryTaxes                ExpenseCategory = "taxes"
	CategoryInsurance            ExpenseCategory = "insurance"
	CategoryMaintenance          ExpenseCategory = "maintenance"
	CategoryOther                ExpenseCategory = "other"
)

// ExpenseCategories lists the closed category set in display order.
var ExpenseCategories = []ExpenseCategory{
	CategoryOfficeSupplies, CategoryUtilities, CategoryRent, CategorySalaries,
	CategoryMarketing, CategoryTravel, CategorySoftware, CategoryHardware,
	CategoryProfessionalServices, CategoryTaxes, CategoryInsurance,
	CategoryMaintenance, CategoryOther,
}

type InvoiceClient struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// LineItem is one billed line. Amount is taken as given when set, otherwise
// quantity times unit price.
type LineItem struct {
	Description string          `json:"description" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Amount      decimal.Decimal `json:"amount" validate:"gte=0"`
}

type InvoicePaymentMethod string

const (
	PayBankTransfer InvoicePaymentMethod = "bank_transfer"
	PayCreditCard   InvoicePaymentMethod = "credit_card"
	PayPaypal       InvoicePaymentMethod = "paypal"
	PayCash         InvoicePaymentMethod = "cash"
	PayOther        InvoicePaymentMethod = "other"
)

type PaymentDetails struct {
	Method        InvoicePaymentMethod `json:"method" validate:"required,oneof=bank_transfer credit_card paypal cash other"`
	BankAccount   string               `json:"bank_account,omitempty"`
	PaymentDate   *time.Time           `json:"payment_date,omitempty"`
	TransactionID string               `json:"transaction_id,omitempty"`
}

type Invoice struct {
	Record
	InvoiceNumber  string          `json:"invoice_number"`
	Client         InvoiceClient   `json:"client"`
	IssueDate      time.Time       `json:"issue_date"`
	DueDate        time.Time       `json:"due_date" validate:"required"`
	Items          []LineItem      `json:"items" validate:"required,min=1,dive"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxRate        decimal.Decimal `json:"tax_rate" validate:"gte=0,lte=100"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Discount       decimal.Decimal `json:"discount" validate:"gte=0"`
	Total          decimal.Decimal `json:"total"`
	Status         Status          `json:"status"`
	Notes          string          `json:"notes,omitempty"`
	Terms          string          `json:"terms,omitempty"`
	PaymentDetails *PaymentDetails `json:"payment_details,omitempty"`
}

func (i *Invoice) CurrentStatus() Status { return i.Status }
func (i *Invoice) SetStatus(s Status)    { i.Status = s }

type BudgetPeriod string

const (
	PeriodMonthly   BudgetPeriod = "monthly"
	PeriodQuarterly BudgetPeriod = "quarterly"
	PeriodYearly    BudgetPeriod = "yearly"
	PeriodCustom    BudgetPeriod = "custom"
)

type BudgetCategory struct {
	Category      ExpenseCategory `json:"category" validate:"required,oneof=office_supplies utilities rent salaries marketing travel software hardware professional_services taxes insurance maintenance other"`
	PlannedAmount decimal.Decimal `json:"planned_amount" validate:"gte=0"`
	ActualAmount  decimal.Decimal `json:"actual_amount"`
	Notes         string          `json:"notes,omitempty"`
}

type Budget struct {
	Record
	Name         string           `json:"name" validate:"required"`
	Description  string           `json:"description,omitempty"`
	Period       BudgetPeriod     `json:"period" validate:"required,oneof=monthly quarterly yearly custom"`
	StartDate    time.Time        `json:"start_date" validate:"required"`
	EndDate      time.Time        `json:"end_date" validate:"required"`
	Categories   []BudgetCategory `json:"categories" validate:"dive"`
	TotalPlanned decimal.Decimal  `json:"total_planned"`
	TotalActual  decimal.Decimal  `json:"total_actual"`
	Status       Status           `json:"status"`
}

func (b *Budget) CurrentStatus() Status { return b.Status }
func (b *Budget) SetStatus(s Status)    { b.Status = s }

type ExpensePaymentMethod string

const (
	ExpenseCash         ExpensePaymentMethod = "cash"
	ExpenseCreditCard   ExpensePaymentMethod = "credit_card"
	ExpenseBankTransfer ExpensePaymentMethod = "bank_transfer"
	ExpenseCheck        ExpensePaymentMethod = "check"
	ExpenseOtherMethod  ExpensePaymentMethod = "other"
)

type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
	FrequencyNone      Frequency = "none"
)

type RecurringDetails struct {
	Frequency   Frequency  `json:"frequency" validate:"omitempty,oneof=weekly monthly quarterly yearly none"`
	NextDueDate *time.Time `json:"next_due_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

type Expense struct {
	Record
	Description      string               `json:"description" validate:"required"`
	Amount           decimal.Decimal      `json:"amount" validate:"gte=0"`
	Date             time.Time            `json:"date"`
	Category         ExpenseCategory      `json:"category" validate:"required,oneof=office_supplies utilities rent salaries marketing travel software hardware professional_services taxes insurance maintenance other"`
	PaymentMethod    ExpensePaymentMethod `json:"payment_method" validate:"required,oneof=cash credit_card bank_transfer check other"`
	Vendor           string               `json:"vendor,omitempty"`
	Receipt          string               `json:"receipt,omitempty"`
	Notes            string               `json:"notes,omitempty"`
	IsRecurring      bool                 `json:"is_recurring"`
	RecurringDetails *RecurringDetails    `json:"recurring_details,omitempty"`
	Status           Status               `json:"status"`
	ApprovedBy       string               `json:"approved_by,omitempty"`
}

func (e *Expense) CurrentStatus() Status { return e.Status }
func (e *Expense) SetStatus(s Status)    { e.Status = s }

type AccountType string

const (
	AccountBank       AccountType = "bank"
	AccountCash       AccountType = "cash"
	AccountCreditCard AccountType = "credit_card"
	AccountLoan       AccountType = "loan"
	AccountInvestment AccountType = "investment"
	AccountOther      AccountType = "other"
)

type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxTransfer   TransactionType = "transfer"
	TxPayment    TransactionType = "payment"
	TxFee        TransactionType = "fee"
	TxInterest   TransactionType = "interest"
	TxOther      TransactionType = "other"
)

type RelatedRef struct {
	Model string `json:"model" validate:"omitempty,oneof=Invoice Expense Transfer Other"`
	ID    string `json:"id,omitempty"`
}

// Transaction is an immutable ledger entry. Amount is unsigned; the type
// decides the sign.
type Transaction struct {
	Date        time.Time       `json:"date"`
	Description string          `json:"description" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"gte=0"`
	Type        TransactionType `json:"type" validate:"required,oneof=deposit withdrawal transfer payment fee interest other"`
	Reference   string          `json:"reference,omitempty"`
	RelatedTo   *RelatedRef     `json:"related_to,omitempty"`
}

type FinancialAccount struct {
	Record
	Name           string          `json:"name" validate:"required"`
	Type           AccountType     `json:"type" validate:"required,oneof=bank cash credit_card loan investment other"`
	AccountNumber  string          `json:"account_number,omitempty"`
	Institution    string          `json:"institution,omitempty"`
	Currency       string          `json:"currency" validate:"omitempty,len=3"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	IsActive       bool            `json:"is_active"`
	Transactions   []Transaction   `json:"transactions"`
}

func (a *FinancialAccount) CurrentStatus() Status { return activeStatus(a.IsActive) }
func (a *FinancialAccount) SetStatus(s Status)    { a.IsActive = s == StatusActive }

func activeStatus(active bool) Status {
	if active {
		return StatusActive
	}
	return StatusInactive
}
