// Package storage holds the shared configuration for the durable
// PostgreSQL store and the Redis cache in front of it.
//
// The durable store is always authoritative. Redis is strictly a
// read-through accelerator with bounded TTLs and may be dropped
// entirely without affecting correctness.
package storage
