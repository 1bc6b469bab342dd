package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sps2/pm/pkg/pmerrors"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List committed states, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	cfg := configFromFlags(cmd)

	eng, err := newEngine(cfg)
	if err != nil {
		return &pmerrors.Internal{Cause: err}
	}
	defer eng.Close()

	ctx := context.Background()
	states, err := eng.db.ListStates(ctx)
	if err != nil {
		return &pmerrors.Internal{Cause: err}
	}

	currentID, err := eng.db.GetCurrentStateID(ctx)
	if err != nil {
		return &pmerrors.Internal{Cause: err}
	}

	if len(states) == 0 {
		fmt.Println("No states recorded")
		return nil
	}

	fmt.Printf("%-3s %-38s %-8s %-20s %s\n", "", "ID", "SLOT", "CREATED", "LABEL")
	for _, st := range states {
		marker := " "
		if st.ID == currentID {
			marker = "*"
		}
		fmt.Printf("%-3s %-38s %-8s %-20s %s\n",
			marker, st.ID, slotName(st.Slot),
			time.Unix(st.CreatedAt, 0).Format("2006-01-02 15:04:05"), st.Label)
	}
	return nil
}
