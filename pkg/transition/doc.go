/*
Package transition implements pm's atomic two-phase commit protocol
(spec.md §4.6): the only code path allowed to make a newly staged state
visible, roll back to a prior one, or reclaim states past the retention
window.

A commit assumes its caller (pkg/pipeline) has already populated the
new state's slot directory and written every referenced object into the
content store; Commit's own job is the database transaction (insert
state/packages/package_file_entries, bump ref counts, rebind the slot,
repoint "current") followed by the one observable step that changes
what a reader sees: an atomic rename of the live symlink. Every step
before the rename is fully reversible by a SQL rollback; the rename
itself is the commit point, guarded by the OS file lock at
state/.lock so two processes can never race it.

Rollback reuses the same symlink-swap primitive in the other direction,
re-materialising a slot from its package_file_entries rows if retention
GC had reclaimed its contents but not its DB rows. GC itself only ever
deletes states that are both past the retention window and not
currently bound to any slot, so a rollback target is always either live
on disk or trivially reconstructable from the store.
*/
package transition
