// Package services holds the error taxonomy and context helpers shared by the
// labeling services.
//
// The sentinel errors map one-to-one onto the failure classes the transport
// layer distinguishes: not-found, forbidden, locked, validation, conflict.
// Wrap tags an error with one of those markers while prefixing component and
// operation context, so call sites classify with errors.Is and never parse
// message text.
package services
