package models

import "github.com/shopspring/decimal"

// ApplyTransactionDelta returns the owner balance after a transaction amount moves from
// oldAmount to newAmount. Inserts pass a zero oldAmount, deletes a zero newAmount.
// Debt-like transactions (customer debt, supplier purchase) raise the balance, payments lower it.
//
// Customer.ApplyTransaction and Supplier.ApplyTransaction are the only callers; no other
// code assigns a Balance field.
func ApplyTransactionDelta(balance, oldAmount, newAmount decimal.Decimal, isDebtLike bool) decimal.Decimal {
	delta := newAmount.Sub(oldAmount)
	if isDebtLike {
		return balance.Add(delta)
	}
	return balance.Sub(delta)
}

// SumBalance recomputes a customer balance from its transactions.
func SumBalance(transactions []*Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range transactions {
		total = ApplyTransactionDelta(total, decimal.Zero, t.Amount, t.Type.IsDebtLike())
	}
	return total
}

// SumSupplierBalance recomputes a supplier balance from its transactions.
func SumSupplierBalance(transactions []*SupplierTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range transactions {
		total = ApplyTransactionDelta(total, decimal.Zero, t.Amount, t.Type.IsDebtLike())
	}
	return total
}
