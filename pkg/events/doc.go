/*
Package events provides an in-memory event broker for pm's progress and
error stream (spec.md §6).

The broker is topic-agnostic: every subscriber receives every event, and
publish never blocks past its own internal buffer — a slow or absent
subscriber drops events rather than stalling the install pipeline. This
matches the pipeline's cooperative-task concurrency model (§5): emitting
progress is a non-blocking side effect, never a suspension point.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&events.Event{
		Type:    events.EventDownloadProgress,
		Package: "zlib@1.2.11",
		Progress: &events.Progress{
			OperationID: opID,
			Stage:       events.StageDownload,
			Current:     current,
			Total:       total,
		},
	})

CLI progress bars, telemetry, and audit tooling are all just subscribers;
none of them are known to the core.
*/
package events
