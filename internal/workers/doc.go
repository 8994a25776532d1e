// Package workers manages labeling accounts and their category assignments,
// and reports per-worker and pool-wide labeling progress.
package workers
