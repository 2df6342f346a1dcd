// Package directory serves reads and maintenance of identity records:
// lookups, paged listings, partial updates, deactivation, deletion and
// statistics.
//
// Every call except the two existence checks takes the access.Caller making
// the request and is gated by an access.Policy before the store is touched.
package directory
