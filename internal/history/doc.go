// Package history keeps a local SQLite audit trail of state transitions.
//
// Every transition reported by the engine is stored as one row in the
// transitions table. The trail survives restarts and does not depend on the
// time-series database, so the REST API can always answer "what did this
// machine do recently".
//
// Old rows are removed by Pruner according to history.retention_days.
package history
