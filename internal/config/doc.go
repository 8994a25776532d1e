// Package config loads, normalizes, and validates petlabel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PETLABEL_NTFY_TOPIC. The Config type centralizes every knob the CLI and the
// labeling services need: data/log directories, annotation time ceilings, the
// queue allocation policy, and notification settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
