// Package main hosts the petlabel CLI entrypoint and command graph.
//
// The Cobra-based command tree covers both sides of the labeling workflow:
// workers list and annotate their items, file edit requests, and read their
// notifications; admins seed the catalog, manage accounts, grant edits, and
// audit completed work through the review table. It centralizes configuration
// resolution and database access so subcommands can focus on user experience
// instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
