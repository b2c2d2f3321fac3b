package workflow

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/xuri/excelize/v2"
)

// RowsFromTable turns a header row plus data rows into header-keyed maps. Blank lines
// are dropped and short rows are padded with empty values.
func RowsFromTable(table [][]string) ([]map[string]string, []string) {
	if len(table) == 0 {
		return []map[string]string{}, []string{}
	}
	headers := make([]string, len(table[0]))
	for i, h := range table[0] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	rows := make([]map[string]string, 0, len(table)-1)
	for _, record := range table[1:] {
		blank := true
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[h] = record[i]
				if strings.TrimSpace(record[i]) != "" {
					blank = false
				}
			} else {
				row[h] = ""
			}
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return rows, headers
}

// ReadCsvRows parses a CSV export whose first line holds the column headers.
func ReadCsvRows(r io.Reader) ([]map[string]string, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	table, err := reader.ReadAll()
	if err != nil {
		return nil, nil, models.Validation("unable to read csv: %v", err)
	}
	rows, headers := RowsFromTable(table)
	return rows, headers, nil
}

// ReadXlsxRows reads sheet, or the first sheet when sheet is empty.
func ReadXlsxRows(r io.Reader, sheet string) ([]map[string]string, []string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, models.Validation("failed to open Excel file: %v", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, nil, models.Validation("sheet %q not found", sheet)
	}
	table, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to read sheet: %v", err)
	}
	rows, headers := RowsFromTable(table)
	return rows, headers, nil
}
