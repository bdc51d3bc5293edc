// Package cache provides the caching layer of the study companion backend:
// an in-memory TTL cache with lazy expiration plus Redis and ristretto
// backed alternatives behind the same interface. Expired entries are
// removed when read or when CleanupExpired is called; no background work
// happens unless a sweep interval is explicitly configured.
package cache
