// Package bus propagates cache invalidation events between instances of
// the study companion backend. One instance publishes the key it changed;
// the others drop that key from their local caches (see Bind). In-memory,
// Redis, NATS and Kafka transports implement the same Bus interface, and
// the HTTP handlers expose the event stream for a single key over SSE or
// WebSocket.
package bus
