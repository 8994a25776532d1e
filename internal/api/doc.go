// Package api exposes the read-side operations the CLI and any outer
// transport build on: the worker's paged item listing with per-category
// progress and the single-item annotation view with lock state and
// navigation.
package api
