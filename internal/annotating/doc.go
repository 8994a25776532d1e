// Package annotating owns the annotation state machine: multi-category item
// saves with commit-time validation, skips, best-effort heartbeats, and
// improper marks. All mutations run inside one transaction and re-check the
// claim and lock rules against the snapshot they commit against.
package annotating
