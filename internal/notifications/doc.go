// Package notifications delivers labeling events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Per-event toggles let operators silence review, edit-request,
// rework, or error pushes independently. In-app notifications persist in the
// store regardless; this package only handles push delivery.
package notifications
