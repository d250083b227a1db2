package influxdb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-conga/internal/infrastructure/config"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "graylogic-dev-token",
		Org:           "graylogic",
		Bucket:        "conga",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// skipIfNoInfluxDB skips the test unless RUN_INTEGRATION is set and a
// server answers.
func skipIfNoInfluxDB(t *testing.T) *Client {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("RUN_INTEGRATION not set, skipping InfluxDB integration test")
	}
	client, err := Connect(context.Background(), testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestBatchSettings(t *testing.T) {
	tests := []struct {
		batch, flush         int
		wantBatch, wantFlush int
	}{
		{batch: 50, flush: 2, wantBatch: 50, wantFlush: 2},
		{batch: 0, flush: 0, wantBatch: defaultBatchSize, wantFlush: defaultFlushInterval},
		{batch: -5, flush: -1, wantBatch: defaultBatchSize, wantFlush: defaultFlushInterval},
	}
	for _, tt := range tests {
		b, f := batchSettings(config.InfluxDBConfig{BatchSize: tt.batch, FlushInterval: tt.flush})
		if b != tt.wantBatch || f != tt.wantFlush {
			t.Errorf("batchSettings(%d, %d) = %d, %d; want %d, %d", tt.batch, tt.flush, b, f, tt.wantBatch, tt.wantFlush)
		}
	}
}

func TestVacuumStatusPoint(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := vacuumStatusPoint(VacuumSample{
		Serial:       "SN001",
		Name:         "Downstairs",
		State:        "cleaning",
		Mode:         "sweep",
		Battery:      intPtr(80),
		CleanArea:    floatPtr(12.5),
		CleanMinutes: intPtr(30),
		Connected:    true,
	}, at)

	if p.Name() != measurementVacuumStatus {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["serial"] != "SN001" || tags["name"] != "Downstairs" || tags["state"] != "cleaning" {
		t.Errorf("tags = %v", tags)
	}

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["battery"] != int64(80) {
		t.Errorf("battery = %v (%T), want int64 80", fields["battery"], fields["battery"])
	}
	if fields["clean_area"] != 12.5 {
		t.Errorf("clean_area = %v", fields["clean_area"])
	}
	if fields["connected"] != true {
		t.Errorf("connected = %v", fields["connected"])
	}
	if _, ok := fields["all_area"]; ok {
		t.Error("unreported all_area should not be written")
	}
}

func TestVacuumCommandPoint(t *testing.T) {
	p := vacuumCommandPoint("SN001", "start_plan", "failed", 1500*time.Millisecond, time.Now())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["command"] != "start_plan" || tags["status"] != "failed" {
		t.Errorf("tags = %v", tags)
	}
	for _, f := range p.FieldList() {
		if f.Key == "latency_ms" && f.Value != int64(1500) {
			t.Errorf("latency_ms = %v", f.Value)
		}
	}
}

func TestWritesWhenDisconnectedAreNoops(t *testing.T) {
	var c *Client
	c.WriteVacuumStatus(VacuumSample{Serial: "SN001"}, time.Now())
	c.WriteVacuumCommand("SN001", "start", "accepted", 0, time.Now())
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestIntegration_WriteVacuumStatus(t *testing.T) {
	client := skipIfNoInfluxDB(t)

	client.WriteVacuumStatus(VacuumSample{Serial: "SN-TEST", State: "docked", Battery: intPtr(100)}, time.Now())
	client.Flush()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
