// Package editlock guards completed work: once a worker completes any
// annotation on an item, further writes to that item require an approved,
// single-use edit request. The package files requests, records admin
// decisions, and authorizes (and hands out for consumption) approved grants
// inside save transactions.
package editlock
