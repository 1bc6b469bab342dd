/*
Package state manages pm's SQLite-backed state database (spec.md §4.2):
the single source of truth for which packages are installed, which
content-store objects back them, and which state is currently live.

The database lives at state/state.sqlite, runs in WAL journal mode with
foreign keys enforced, and is accessed through a single pooled
connection: a process-wide mutex serialises write transactions, and
reads take turns with writes on that connection rather than running
concurrently.
Every mutation that touches more than one table — installing a package,
committing a state, running GC — happens inside one transaction, so a
crash mid-operation never leaves the schema's cross-table invariants
(ref counts, current pointer, slot occupancy) in a partial state.
*/
package state
