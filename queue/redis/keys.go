package redis

// Redis key naming conventions for queue data.
// All keys are prefixed with "exportq:" to avoid collisions.

const keyPrefix = "exportq:"

// readyKey is the Sorted Set of deliverable messages, scored by the
// unix-millisecond time at which each becomes deliverable.
const readyKey = keyPrefix + "queue:ready"

// inflightKey is the Sorted Set of delivered-but-unacknowledged
// messages, scored by their visibility deadline in unix milliseconds.
const inflightKey = keyPrefix + "queue:inflight"

// deadKey is the List of dead-lettered message envelopes.
const deadKey = keyPrefix + "queue:dead"

// msgKey returns the key holding a message envelope: exportq:msg:{id}
func msgKey(id string) string { return keyPrefix + "msg:" + id }

// ackKey returns the key mapping an ack token to its message id.
func ackKey(token string) string { return keyPrefix + "ack:" + token }
