package derive

import (
	"time"

	"github.com/shopspring/decimal"

	"crmline/internal/domain"
)

// SignedAmount returns the transaction amount with the sign its type implies.
func SignedAmount(tx domain.Transaction) decimal.Decimal {
	switch tx.Type {
	case domain.TxDeposit, domain.TxTransfer, domain.TxPayment, domain.TxInterest:
		return tx.Amount
	default:
		return tx.Amount.Neg()
	}
}

// Balance applies every transaction to the opening balance.
func Balance(opening decimal.Decimal, txs []domain.Transaction) decimal.Decimal {
	bal := opening
	for _, tx := range txs {
		bal = bal.Add(SignedAmount(tx))
	}
	return bal
}

// BalanceAt applies transactions dated on or before at.
func BalanceAt(opening decimal.Decimal, txs []domain.Transaction, at time.Time) decimal.Decimal {
	bal := opening
	for _, tx := range txs {
		if tx.Date.After(at) {
			continue
		}
		bal = bal.Add(SignedAmount(tx))
	}
	return bal
}

// TransactionsBetween filters transactions dated within [start, end].
func TransactionsBetween(txs []domain.Transaction, start, end time.Time) []domain.Transaction {
	out := []domain.Transaction{}
	for _, tx := range txs {
		if tx.Date.Before(start) || tx.Date.After(end) {
			continue
		}
		out = append(out, tx)
	}
	return out
}
