// Package influxdb records vacuum telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes, and health monitoring.
//
// # Measurements
//
//   - vacuum_status: one point per poll (battery, areas, minutes, levels)
//   - vacuum_command: one point per command acknowledgement
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteVacuumStatus(sample, time.Now())
//
// # Error Handling
//
// Writes never return errors; batch failures are delivered to the
// SetOnError callback wrapped in ErrWriteFailed.
package influxdb
