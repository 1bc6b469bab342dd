package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sps2/pm/pkg/pmerrors"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim states and store objects beyond the retention window",
	Args:  cobra.NoArgs,
	RunE:  runGC,
}

func init() {
	gcCmd.Flags().Int("retention", 0, "override Config.RetentionCount (0 keeps the default)")
}

func runGC(cmd *cobra.Command, args []string) error {
	cfg := configFromFlags(cmd)
	retention, _ := cmd.Flags().GetInt("retention")
	if retention > 0 {
		cfg.RetentionCount = retention
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return &pmerrors.Internal{Cause: err}
	}
	defer eng.Close()

	stop := printEvents(eng)
	defer stop()

	stats, err := eng.transition.GarbageCollect(context.Background(), cfg.RetentionCount, eng.broker)
	if err != nil {
		return err
	}

	fmt.Printf("Reclaimed %d state(s), %d store object(s) (%d bytes)\n",
		stats.StatesReclaimed, stats.Store.ObjectsDeleted, stats.Store.BytesReclaimed)
	return nil
}
