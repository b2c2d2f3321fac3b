package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mmdatafocus/shopledger_backend/config"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/mmdatafocus/shopledger_backend/utils"
	"github.com/mmdatafocus/shopledger_backend/workflow"
)

func main() {
	checkBalances := flag.Bool("check-balances", false, "Report customers and suppliers whose stored balance differs from their transactions")
	purgeOrphans := flag.Bool("purge-orphans", false, "Delete transactions whose customer no longer exists")
	resetOrders := flag.Bool("reset-orders", false, "Run the nightly bread order reset if it has not run today")
	skipReconcile := flag.Bool("skip-reconcile", false, "Do not run the daily order reconciliation")
	flag.Parse()

	_ = godotenv.Load()
	ctx := utils.SetSourceInContext(context.Background(), "cli")
	logger := config.GetLogger()

	repo, err := store.OpenFromEnv(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	opts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithLocation(config.ShopLocation()),
	}
	if locker := config.GetRedisLock(); locker != nil {
		opts = append(opts, workflow.WithLocker(locker))
	}
	svc := workflow.NewService(repo, opts...)

	exit := 0
	if !*skipReconcile {
		result, err := svc.Reconcile(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
			os.Exit(1)
		}
		if !result.DidSync {
			fmt.Println("Reconcile: already ran today")
		} else {
			fmt.Printf("Reconcile: repaired=%d failed=%d\n", len(result.RepairedOrderIds), len(result.FailedOrderIds))
			for _, id := range result.RepairedOrderIds {
				fmt.Printf("  repaired order %s\n", id)
			}
			for _, id := range result.FailedOrderIds {
				fmt.Printf("  could not repair order %s\n", id)
			}
			if len(result.FailedOrderIds) > 0 {
				exit = 2
			}
		}
	}

	if *purgeOrphans {
		purged, err := svc.PurgeOrphans(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "purge orphans failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Purged %d orphaned transactions\n", len(purged))
	}

	if *resetOrders {
		ran, removed, err := svc.RunDailyReset(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "order reset failed: %v\n", err)
			os.Exit(1)
		}
		if ran {
			fmt.Printf("Reset: removed %d bread orders\n", len(removed))
		} else {
			fmt.Println("Reset: already ran today")
		}
	}

	if *checkBalances {
		drifts, err := svc.CheckBalances(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "check balances failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range drifts {
			fmt.Printf("DRIFT %s %s (%s): stored=%s computed=%s\n", d.Entity, d.ID, d.Name, d.Stored, d.Computed)
		}
		if len(drifts) > 0 {
			exit = 2
		} else {
			fmt.Println("Balances: all consistent")
		}
	}
	if err := repo.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close store: %v\n", err)
		exit = 1
	}
	os.Exit(exit)
}
