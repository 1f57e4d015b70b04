// Package postgres provides PostgreSQL-backed checkpoint storage for
// task-graph runs.
//
// Checkpoints are stored as JSONB documents with the run id and version
// indexed for the Latest and List queries, making it suitable for
// multi-host deployments where several workers share one durable store.
//
// The store accepts any pool implementing DBPool, so tests can substitute
// a pgxmock pool for a live database.
package postgres
