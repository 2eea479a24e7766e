// Package composition is the computational core of composite management.
//
// It resolves component identities, aggregates readings from one or more
// analyses into a single normalized composition, compares two compositions and
// enforces the approval state machine. Everything here is a pure function over
// in-memory values: persistence, transactions and scheduling belong to callers
// in pkg/services.
package composition
