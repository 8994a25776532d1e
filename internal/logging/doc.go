// Package logging builds slog loggers for the CLI and labeling services.
//
// It supports a human-oriented console handler and a JSON handler, multi-writer
// output to stdout plus a log file under the configured log directory, and a
// small set of standardized attribute keys (component, worker_id, item_id)
// so log lines stay greppable across packages.
package logging
