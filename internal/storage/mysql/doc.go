// Package mysql provides the transcript archive backends. Sessions are
// memory-resident; the archive is a write-mostly diagnostic trail with a
// JSON-lines file implementation for development and a MySQL implementation
// with embedded schema migrations for real deployments.
package mysql
