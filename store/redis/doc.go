// Package redis provides Redis-backed checkpoint storage for task-graph
// runs.
//
// Checkpoints are stored as JSON values with a per-run index set, giving
// low-latency access and letting distributed workers share suspended
// runs. An optional TTL expires abandoned runs automatically.
package redis
