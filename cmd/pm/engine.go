package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sps2/pm/pkg/config"
	"github.com/sps2/pm/pkg/events"
	"github.com/sps2/pm/pkg/guard"
	"github.com/sps2/pm/pkg/staging"
	"github.com/sps2/pm/pkg/state"
	"github.com/sps2/pm/pkg/store"
	"github.com/sps2/pm/pkg/transition"
)

// engine bundles the long-lived components every subcommand drives,
// opened once per invocation against cfg.Root.
type engine struct {
	cfg        config.Config
	store      *store.Store
	db         *state.Manager
	staging    *staging.Manager
	transition *transition.Manager
	guard      *guard.Guard
	broker     *events.Broker
}

func configFromFlags(cmd *cobra.Command) config.Config {
	cfg := config.Default()
	if root, err := cmd.Flags().GetString("root"); err == nil && root != "" {
		cfg.Root = root
	}
	return cfg
}

func newEngine(cfg config.Config) (*engine, error) {
	st, err := store.New(filepath.Join(cfg.Root, "store"))
	if err != nil {
		return nil, fmt.Errorf("open content store: %w", err)
	}

	db, err := state.Open(filepath.Join(cfg.Root, "state", "state.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	stagingMgr, err := staging.New(filepath.Join(cfg.Root, "staging"), cfg.MaxStagingDirs)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open staging manager: %w", err)
	}

	tm, err := transition.New(cfg.Root, db, st)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open transition manager: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()

	return &engine{
		cfg:        cfg,
		store:      st,
		db:         db,
		staging:    stagingMgr,
		transition: tm,
		guard:      guard.New(db, st, cfg, broker),
		broker:     broker,
	}, nil
}

func (e *engine) Close() {
	e.broker.Stop()
	e.db.Close()
}

// printEvents subscribes to the engine's broker and, from its own
// goroutine, prints a line per event until the returned stop func is
// called (which unsubscribes) or the subscription channel is closed.
func printEvents(e *engine) (stop func()) {
	sub := e.broker.Subscribe()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if ev.Package != "" {
					fmt.Printf("  [%s] %s %s\n", ev.Type, ev.Package, ev.Message)
				} else {
					fmt.Printf("  [%s] %s\n", ev.Type, ev.Message)
				}
			case <-done:
				e.broker.Unsubscribe(sub)
				return
			}
		}
	}()
	return func() { close(done) }
}
