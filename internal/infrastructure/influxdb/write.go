package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementVacuumStatus  = "vacuum_status"
	measurementVacuumCommand = "vacuum_command"
)

// VacuumSample is one status reading of a vacuum. Nil numeric fields are
// not written.
type VacuumSample struct {
	Serial       string
	Name         string
	State        string
	Mode         string
	Battery      *int
	CleanArea    *float64
	AllArea      *float64
	CleanMinutes *int
	AllMinutes   *int
	FanLevel     *int
	WaterLevel   *int
	Connected    bool
}

// WriteVacuumStatus records a status sample. The write is non-blocking;
// data is batched and sent asynchronously.
func (c *Client) WriteVacuumStatus(sample VacuumSample, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(vacuumStatusPoint(sample, at))
}

// WriteVacuumCommand records a command outcome.
//
// Parameters:
//   - serial: Device serial number
//   - command: Command name (e.g. "start", "start_plan")
//   - status: Ack status ("accepted" or "failed")
func (c *Client) WriteVacuumCommand(serial, command, status string, latency time.Duration, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(vacuumCommandPoint(serial, command, status, latency, at))
}

// vacuumStatusPoint builds the status point.
//
// Tags: serial, name, state. Fields: connected, mode and every reported
// numeric attribute.
func vacuumStatusPoint(s VacuumSample, at time.Time) *write.Point {
	tags := map[string]string{
		"serial": s.Serial,
		"state":  s.State,
	}
	if s.Name != "" {
		tags["name"] = s.Name
	}

	fields := map[string]interface{}{
		"connected": s.Connected,
		"mode":      s.Mode,
	}
	addInt(fields, "battery", s.Battery)
	addFloat(fields, "clean_area", s.CleanArea)
	addFloat(fields, "all_area", s.AllArea)
	addInt(fields, "clean_minutes", s.CleanMinutes)
	addInt(fields, "all_minutes", s.AllMinutes)
	addInt(fields, "fan_level", s.FanLevel)
	addInt(fields, "water_level", s.WaterLevel)

	return write.NewPoint(measurementVacuumStatus, tags, fields, at)
}

func vacuumCommandPoint(serial, command, status string, latency time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		measurementVacuumCommand,
		map[string]string{
			"serial":  serial,
			"command": command,
			"status":  status,
		},
		map[string]interface{}{
			"latency_ms": latency.Milliseconds(),
		},
		at,
	)
}

func addInt(fields map[string]interface{}, key string, v *int) {
	if v != nil {
		fields[key] = int64(*v)
	}
}

func addFloat(fields map[string]interface{}, key string, v *float64) {
	if v != nil {
		fields[key] = *v
	}
}
