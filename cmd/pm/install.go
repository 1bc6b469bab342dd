package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sps2/pm/pkg/events"
	"github.com/sps2/pm/pkg/guard"
	"github.com/sps2/pm/pkg/pipeline"
	"github.com/sps2/pm/pkg/pmerrors"
	"github.com/sps2/pm/pkg/resolver"
	"github.com/sps2/pm/pkg/transition"
)

var installCmd = &cobra.Command{
	Use:   "install NAME[@RANGE] ...",
	Short: "Resolve, download, stage, and atomically commit a new install",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInstall,
}

func init() {
	installCmd.Flags().String("index", "", "path to the repository index JSON document (required)")
	installCmd.MarkFlagRequired("index")
}

// parseSpec splits "name@range" into a resolver.Spec; a bare name
// requests any version.
func parseSpec(raw string) (resolver.Spec, error) {
	name, rangeExpr, _ := strings.Cut(raw, "@")
	rng, err := resolver.ParseRange(rangeExpr)
	if err != nil {
		return resolver.Spec{}, &pmerrors.UserError{Message: fmt.Sprintf("invalid version range in %q: %v", raw, err)}
	}
	return resolver.Spec{Name: name, Range: rng}, nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg := configFromFlags(cmd)
	indexPath, _ := cmd.Flags().GetString("index")

	idx, err := resolver.LoadIndexFile(indexPath)
	if err != nil {
		return &pmerrors.UserError{Message: err.Error()}
	}

	specs := make([]resolver.Spec, 0, len(args))
	for _, arg := range args {
		spec, err := parseSpec(arg)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return &pmerrors.Internal{Cause: err}
	}
	defer eng.Close()

	stop := printEvents(eng)
	defer stop()

	ctx := context.Background()

	result, err := resolver.NewResolver(idx).Resolve(resolver.ResolutionContext{RuntimeDeps: specs})
	if err != nil {
		return err
	}

	fmt.Printf("Resolved %d package(s) in %d batch(es)\n", len(result.Nodes), len(result.ExecutionPlan.Batches))

	currentSlot, err := eng.transition.CurrentSlot(ctx)
	if err != nil {
		return &pmerrors.Internal{Cause: err}
	}
	targetSlot := 0
	if currentSlot >= 0 {
		targetSlot = transition.OtherSlot(currentSlot)
	}
	slotPath := eng.transition.SlotPath(targetSlot)

	pl := pipeline.New(pipeline.NewHTTPFetcher(), eng.staging, eng.store, cfg, eng.broker)
	staged, err := pl.RunPlan(ctx, result.ExecutionPlan, result.Nodes, slotPath)
	if err != nil {
		return err
	}

	installs := make([]transition.PackageInstall, 0, len(staged))
	for _, sp := range staged {
		installs = append(installs, sp.Install)
	}

	var parentID *string
	if currentID, err := eng.db.GetCurrentStateID(ctx); err == nil && currentID != "" {
		id := currentID
		parentID = &id
	}

	commitResult, err := eng.transition.Commit(ctx, transition.CommitRequest{
		Label:    fmt.Sprintf("install %s", strings.Join(args, " ")),
		ParentID: parentID,
		Slot:     targetSlot,
		Packages: installs,
		Broker:   eng.broker,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Committed state %s (slot %s)\n", commitResult.StateID, slotName(commitResult.Slot))

	report, err := eng.guard.VerifyAndHeal(ctx, commitResult.StateID, filepath.Join(cfg.Root, "live"))
	if err != nil {
		return err
	}
	if len(report.Discrepancies) > 0 {
		fmt.Printf("Guard found %d discrepancy(ies), %d healed\n", len(report.Discrepancies), countHealed(report.Heals))
	}

	eng.broker.Publish(&events.Event{Type: events.EventCommitCompleted, Message: "install complete"})
	return nil
}

func countHealed(heals []guard.HealOutcome) int {
	n := 0
	for _, h := range heals {
		if h.Healed {
			n++
		}
	}
	return n
}

func slotName(slot int) string {
	names := []string{"A", "B"}
	return names[slot%len(names)]
}
