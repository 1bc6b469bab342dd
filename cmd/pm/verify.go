package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sps2/pm/pkg/pmerrors"
)

func nowUnix() int64 { return time.Now().Unix() }

var verifyCmd = &cobra.Command{
	Use:   "verify [STATE_ID]",
	Short: "Verify the live (or a given) state's files against the store, optionally healing",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().Bool("store", false, "verify a batch of store objects instead of a state")
	verifyCmd.Flags().Int64("limit", 1000, "maximum number of store objects to check with --store")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg := configFromFlags(cmd)
	storeMode, _ := cmd.Flags().GetBool("store")
	limit, _ := cmd.Flags().GetInt64("limit")

	eng, err := newEngine(cfg)
	if err != nil {
		return &pmerrors.Internal{Cause: err}
	}
	defer eng.Close()

	stop := printEvents(eng)
	defer stop()

	ctx := context.Background()

	if storeMode {
		stats, err := eng.guard.VerifyStoreBatch(ctx, nowUnix(), limit)
		if err != nil {
			return err
		}
		fmt.Printf("Store verify: %d/%d verified, %d quarantined (%.1f objects/s)\n",
			stats.VerifiedCount, stats.TotalObjects, stats.QuarantinedCount, stats.ObjectsPerSecond)
		return nil
	}

	stateID := ""
	if len(args) == 1 {
		stateID = args[0]
	} else {
		stateID, err = eng.db.GetCurrentStateID(ctx)
		if err != nil {
			return &pmerrors.Internal{Cause: err}
		}
		if stateID == "" {
			return &pmerrors.UserError{Message: "no current state to verify; pass a STATE_ID"}
		}
	}

	report, err := eng.guard.VerifyAndHeal(ctx, stateID, filepath.Join(cfg.Root, "live"))
	if err != nil {
		return err
	}

	if len(report.Discrepancies) == 0 {
		fmt.Println("No discrepancies found")
		return nil
	}

	for _, d := range report.Discrepancies {
		fmt.Printf("  %s %s\n", d.Kind, d.RelativePath)
	}
	fmt.Printf("%d discrepancy(ies), %d healed\n", len(report.Discrepancies), countHealed(report.Heals))
	return nil
}
