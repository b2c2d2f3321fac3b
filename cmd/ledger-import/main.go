package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mmdatafocus/shopledger_backend/config"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/mmdatafocus/shopledger_backend/utils"
	"github.com/mmdatafocus/shopledger_backend/workflow"
)

func main() {
	kindStr := flag.String("kind", "", "Required: customers | products | suppliers")
	path := flag.String("file", "", "Required: .csv or .xlsx file")
	sheet := flag.String("sheet", "", "Optional: workbook sheet (defaults to the first)")
	mappingStr := flag.String("mapping", "", `Optional: JSON object of column header to field, e.g. {"Full name":"name"}`)
	dryRun := flag.Bool("dry-run", false, "Only print the headers and row count")
	flag.Parse()

	kind, err := workflow.ParseImportKind(*kindStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if strings.TrimSpace(*path) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		os.Exit(1)
	}

	f, err := os.Open(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *path, err)
		os.Exit(1)
	}
	defer f.Close()

	var (
		rows    []map[string]string
		headers []string
	)
	if ext := strings.ToLower(filepath.Ext(*path)); ext == ".xlsx" || ext == ".xlsm" {
		rows, headers, err = workflow.ReadXlsxRows(f, *sheet)
	} else {
		rows, headers, err = workflow.ReadCsvRows(f)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *path, err)
		os.Exit(1)
	}
	fmt.Printf("Headers: %s\nRows: %d\n", strings.Join(headers, ", "), len(rows))
	if *dryRun {
		return
	}

	mapping := map[string]string{}
	if strings.TrimSpace(*mappingStr) != "" {
		if err := json.Unmarshal([]byte(*mappingStr), &mapping); err != nil {
			fmt.Fprintf(os.Stderr, "invalid --mapping: %v\n", err)
			os.Exit(1)
		}
	} else {
		for _, h := range headers {
			mapping[h] = h
		}
	}

	_ = godotenv.Load()
	ctx := utils.SetSourceInContext(context.Background(), "cli")
	repo, err := store.OpenFromEnv(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	opts := []workflow.Option{
		workflow.WithLogger(config.GetLogger()),
		workflow.WithPhoneRegion(config.PhoneCountryCode()),
	}
	if locker := config.GetRedisLock(); locker != nil {
		opts = append(opts, workflow.WithLocker(locker))
	}
	svc := workflow.NewService(repo, opts...)

	result, err := svc.ImportRows(ctx, kind, rows, mapping)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed, nothing was written: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d %s\n", result.Count(), kind)
}
