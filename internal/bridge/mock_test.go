package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-conga/internal/conga"
	"github.com/nerrad567/gray-logic-conga/internal/history"
	"github.com/nerrad567/gray-logic-conga/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-conga/internal/infrastructure/mqtt"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	handlers  map[string]mqtt.MessageHandler
	connected bool
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

// onTopic returns the payloads published to topics with the given prefix.
func (m *MockMQTTClient) onTopic(prefix string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if strings.HasPrefix(p.Topic, prefix) {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockMQTTClient) handler(topic string) mqtt.MessageHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[topic]
}

type issuedCommand struct {
	serial string
	cmd    conga.Command
}

// mockFacade implements Facade for testing.
type mockFacade struct {
	mu        sync.Mutex
	devices   []conga.Device
	listErr   error
	status    map[string]conga.Status
	statusErr error
	issueErr  error
	issued    []issuedCommand
	planNames []string
	refreshed []string
}

func newMockFacade(serials ...string) *mockFacade {
	f := &mockFacade{status: make(map[string]conga.Status)}
	for _, sn := range serials {
		f.devices = append(f.devices, conga.Device{SerialNumber: sn, DisplayName: "Vacuum " + sn})
		f.status[sn] = conga.Status{Mode: "charge", State: conga.StateDocked, Connected: true}
	}
	return f
}

func (f *mockFacade) ListDevices(context.Context) ([]conga.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices, f.listErr
}

func (f *mockFacade) GetStatus(_ context.Context, serial string) (conga.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return conga.Status{}, f.statusErr
	}
	return f.status[serial], nil
}

func (f *mockFacade) Issue(_ context.Context, serial string, cmd conga.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.issueErr != nil {
		return f.issueErr
	}
	f.issued = append(f.issued, issuedCommand{serial: serial, cmd: cmd})
	return nil
}

func (f *mockFacade) RefreshPlans(_ context.Context, serial string) []conga.Plan {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, serial)
	plans := make([]conga.Plan, 0, len(f.planNames))
	for _, n := range f.planNames {
		plans = append(plans, conga.Plan{Name: n})
	}
	return plans
}

func (f *mockFacade) PlanNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.planNames...)
}

func (f *mockFacade) setStatus(serial string, st conga.Status) {
	f.mu.Lock()
	f.status[serial] = st
	f.mu.Unlock()
}

func (f *mockFacade) setStatusErr(err error) {
	f.mu.Lock()
	f.statusErr = err
	f.mu.Unlock()
}

func (f *mockFacade) issuedCommands() []issuedCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]issuedCommand(nil), f.issued...)
}

// mockTelemetry implements Telemetry for testing.
type mockTelemetry struct {
	mu       sync.Mutex
	samples  []influxdb.VacuumSample
	commands []string
}

func (m *mockTelemetry) WriteVacuumStatus(sample influxdb.VacuumSample, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample)
}

func (m *mockTelemetry) WriteVacuumCommand(serial, command, status string, _ time.Duration, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, serial+":"+command+":"+status)
}

// mockHistory implements History for testing.
type mockHistory struct {
	mu       sync.Mutex
	statuses []conga.Status
	commands []history.CommandEntry
	pruned   []time.Duration
}

func (m *mockHistory) RecordStatus(_ context.Context, _ string, st conga.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, st)
	return nil
}

func (m *mockHistory) RecordCommand(_ context.Context, e history.CommandEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, e)
	return nil
}

func (m *mockHistory) Prune(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = append(m.pruned, olderThan)
	return 0, nil
}

func decode[T any](payload []byte) T {
	var v T
	_ = json.Unmarshal(payload, &v) //nolint:errcheck // Test helper, callers assert fields
	return v
}
