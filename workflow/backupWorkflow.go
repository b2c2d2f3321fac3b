package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mmdatafocus/shopledger_backend/config"
	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/xuri/excelize/v2"
)

// ExportBackup writes the whole ledger as one JSON document.
func (s *Service) ExportBackup(ctx context.Context, w io.Writer) error {
	snapshot, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	snapshot.Normalize()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}

// ImportBackup replaces the whole ledger with the document read from r. Nothing is
// merged; a document with duplicate ids or doubly linked orders is rejected unchanged.
// Transactions tagged with an order the document does not contain become plain history.
func (s *Service) ImportBackup(ctx context.Context, r io.Reader) (*models.Snapshot, error) {
	var snapshot models.Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snapshot); err != nil {
		return nil, models.Validation("invalid backup document: %v", err)
	}
	snapshot.Normalize()
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	if detached := snapshot.DetachDanglingOrderLinks(); len(detached) > 0 {
		config.LogWarn(s.logger, "backupWorkflow.go", "ImportBackup", "Detached transactions from missing bread orders", detached, "bread order not in backup")
	}
	ctx, span := tracer.Start(ctx, "ImportBackup")
	defer span.End()
	if err := s.repo.Replace(ctx, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

const (
	balanceSheetCustomers = "Customers"
	balanceSheetSuppliers = "Suppliers"
)

// ExportBalancesXlsx writes a workbook with one balance sheet for customers and one for
// suppliers.
func (s *Service) ExportBalancesXlsx(ctx context.Context, w io.Writer) error {
	customers, err := s.Customers(ctx)
	if err != nil {
		return err
	}
	suppliers, err := s.Suppliers(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", balanceSheetCustomers); err != nil {
		return err
	}
	if _, err := f.NewSheet(balanceSheetSuppliers); err != nil {
		return err
	}

	customerRows := make([][]any, 0, len(customers))
	for _, c := range customers {
		customerRows = append(customerRows, []any{c.ID, c.Name, c.Phone, c.Balance.InexactFloat64()})
	}
	if err := writeSheet(f, balanceSheetCustomers, []string{"ID", "Name", "Phone", "Balance"}, customerRows); err != nil {
		return err
	}

	supplierRows := make([][]any, 0, len(suppliers))
	for _, sup := range suppliers {
		supplierRows = append(supplierRows, []any{sup.ID, sup.Name, sup.Phone, sup.Balance.InexactFloat64()})
	}
	if err := writeSheet(f, balanceSheetSuppliers, []string{"ID", "Name", "Phone", "Balance"}, supplierRows); err != nil {
		return err
	}
	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet string, headings []string, rows [][]any) error {
	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("writing %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}
