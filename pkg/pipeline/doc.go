/*
Package pipeline implements the parallel download → validate → extract
→ stage sequence of spec.md §4.5, driven batch by batch from a
resolver.ExecutionPlan.

Within a batch every node downloads and extracts concurrently, bounded
by semaphores sized from config.Config (downloads, hashing, extraction).
A batch is not considered staged until every node in it has landed in
its slot, so the next batch — whose nodes may depend on this one —
never observes a half-installed dependency. Across batches the pipeline
runs strictly in order.

Download failures, validation failures, and storage failures each wipe
only the staging directory involved; no package_file_entries or
store objects already written are touched, since the content store's
deduplication means a partially completed install leaves behind only
valid, hash-addressed bytes that a later GC pass can reclaim.

Retry policy for network failures is explicitly out of scope (spec.md
§1 Non-goals: "delegated to the HTTP client collaborator") — Fetcher
implementations make one attempt per call and return promptly on
context cancellation.
*/
package pipeline
