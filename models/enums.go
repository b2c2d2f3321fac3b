package models

import (
	"encoding/json"
	"fmt"
)

type TransactionType string

const (
	TransactionTypeDebt    TransactionType = "debt"
	TransactionTypePayment TransactionType = "payment"
)

func (t TransactionType) IsValid() bool {
	return t == TransactionTypeDebt || t == TransactionTypePayment
}

// IsDebtLike reports whether the transaction raises what the customer owes.
func (t TransactionType) IsDebtLike() bool {
	return t == TransactionTypeDebt
}

func (t *TransactionType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v := TransactionType(s)
	if !v.IsValid() {
		return fmt.Errorf("invalid transaction type %q", s)
	}
	*t = v
	return nil
}

type SupplierTransactionType string

const (
	SupplierTransactionTypePurchase SupplierTransactionType = "purchase"
	SupplierTransactionTypePayment  SupplierTransactionType = "payment"
)

func (t SupplierTransactionType) IsValid() bool {
	return t == SupplierTransactionTypePurchase || t == SupplierTransactionTypePayment
}

// IsDebtLike reports whether the transaction raises what the shop owes the supplier.
func (t SupplierTransactionType) IsDebtLike() bool {
	return t == SupplierTransactionTypePurchase
}

func (t *SupplierTransactionType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v := SupplierTransactionType(s)
	if !v.IsValid() {
		return fmt.Errorf("invalid supplier transaction type %q", s)
	}
	*t = v
	return nil
}

type EntityKind string

const (
	EntityCustomer            EntityKind = "customer"
	EntitySupplier            EntityKind = "supplier"
	EntityProduct             EntityKind = "product"
	EntityTransaction         EntityKind = "transaction"
	EntitySupplierTransaction EntityKind = "supplierTransaction"
	EntityBreadOrder          EntityKind = "breadOrder"
	EntitySale                EntityKind = "sale"
	EntitySetting             EntityKind = "setting"
	EntitySnapshot            EntityKind = "snapshot"
)

type ChangeAction string

const (
	ChangeActionCreate  ChangeAction = "create"
	ChangeActionUpdate  ChangeAction = "update"
	ChangeActionDelete  ChangeAction = "delete"
	ChangeActionReplace ChangeAction = "replace"
)

const (
	SettingBreadUnitPrice     = "breadUnitPrice"
	SettingLastReconcileDate  = "lastReconcileDate"
	SettingLastOrderResetDate = "lastOrderResetDate"
)

// DateLayout is the persisted calendar-day marker format.
const DateLayout = "2006-01-02"
