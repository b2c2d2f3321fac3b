package models

import "gorm.io/gorm"

// AllModels lists the ledger tables in dependency order.
func AllModels() []any {
	return []any{
		&Transaction{}, &SupplierTransaction{}, &Sale{}, &BreadOrder{},
		&Product{}, &Supplier{}, &Customer{}, &Setting{},
	}
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
