package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mmdatafocus/shopledger_backend/config"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/mmdatafocus/shopledger_backend/utils"
	"github.com/mmdatafocus/shopledger_backend/workflow"
)

func main() {
	mode := flag.String("mode", "export", "export | restore | balances")
	path := flag.String("file", "", "Output file for export/balances, input file for restore. Defaults to a timestamped name.")
	upload := flag.Bool("upload", false, "Also copy the export to GCS_BUCKET")
	flag.Parse()

	_ = godotenv.Load()
	ctx := utils.SetSourceInContext(context.Background(), "cli")

	repo, err := store.OpenFromEnv(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()
	svc := workflow.NewService(repo, workflow.WithLogger(config.GetLogger()), workflow.WithLocation(config.ShopLocation()))

	stamp := time.Now().UTC().Format("20060102-150405")
	switch strings.ToLower(strings.TrimSpace(*mode)) {
	case "export":
		var buf bytes.Buffer
		if err := svc.ExportBackup(ctx, &buf); err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			os.Exit(1)
		}
		write(ctx, defaultName(*path, "shopledger-backup-"+stamp+".json"), buf.Bytes(), utils.ContentTypeJSON, *upload)
	case "balances":
		var buf bytes.Buffer
		if err := svc.ExportBalancesXlsx(ctx, &buf); err != nil {
			fmt.Fprintf(os.Stderr, "balances export failed: %v\n", err)
			os.Exit(1)
		}
		write(ctx, defaultName(*path, "shopledger-balances-"+stamp+".xlsx"), buf.Bytes(), utils.ContentTypeXlsx, *upload)
	case "restore":
		if strings.TrimSpace(*path) == "" {
			fmt.Fprintln(os.Stderr, "--file is required for restore")
			os.Exit(1)
		}
		f, err := os.Open(*path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open %s: %v\n", *path, err)
			os.Exit(1)
		}
		defer f.Close()
		snapshot, err := svc.ImportBackup(ctx, f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Restored customers=%d transactions=%d orders=%d products=%d suppliers=%d\n",
			len(snapshot.Customers), len(snapshot.Transactions), len(snapshot.BreadOrders), len(snapshot.Products), len(snapshot.Suppliers))
	default:
		fmt.Fprintf(os.Stderr, "unknown --mode %q\n", *mode)
		os.Exit(1)
	}
}

func defaultName(path, fallback string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	return fallback
}

func write(ctx context.Context, path string, data []byte, contentType string, upload bool) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", path, len(data))
	if !upload {
		return
	}
	uri, err := utils.UploadToGCS(ctx, "exports/"+filepath.Base(path), data, contentType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "upload failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Uploaded %s\n", uri)
}
