// Package storage is the durable state layer of the bot.
//
// A Store wraps a database/sql pool (MySQL or SQLite) and runs every
// operation through a retry policy:
//   - a liveness probe (SELECT 1) runs first; a failed probe recreates the pool
//   - connection-class failures are retried with linear backoff, reconnecting
//     before each retry
//   - other failures are returned immediately as ErrInvalid
//
// Writes are full-row upserts so a retried write is always safe to repeat.
package storage
