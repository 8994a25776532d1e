// Package review implements the admin-side workflow over completed
// annotations: listing and the denormalized audit table, approval with
// optional reviewer edits, and rework requests that feed back into the
// annotation state machine.
package review
