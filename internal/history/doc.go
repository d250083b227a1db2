// Package history keeps a local audit trail of vacuum status snapshots
// and command outcomes in SQLite.
//
// The trail survives restarts and is available when InfluxDB telemetry
// is disabled. Rows are written by the bridge and pruned by retention.
package history
