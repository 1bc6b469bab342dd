package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sps2/pm/pkg/pmerrors"
	"github.com/sps2/pm/pkg/transition"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback STATE_ID",
	Short: "Make a previously committed state live again",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollback,
}

func runRollback(cmd *cobra.Command, args []string) error {
	cfg := configFromFlags(cmd)
	stateID := args[0]

	eng, err := newEngine(cfg)
	if err != nil {
		return &pmerrors.Internal{Cause: err}
	}
	defer eng.Close()

	stop := printEvents(eng)
	defer stop()

	ctx := context.Background()
	if _, err := eng.db.GetState(ctx, stateID); err != nil {
		return &pmerrors.UserError{Message: fmt.Sprintf("unknown state %q: %v", stateID, err)}
	}

	if err := eng.transition.Rollback(ctx, transition.RollbackRequest{StateID: stateID, Broker: eng.broker}); err != nil {
		return err
	}

	fmt.Printf("Rolled back to state %s\n", stateID)
	return nil
}
