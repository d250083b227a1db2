package bridge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-conga/internal/conga"
)

const (
	testStateTopic     = "graylogic/state/conga/"
	testAckTopic       = "graylogic/ack/conga/"
	testHealthTopic    = "graylogic/health/conga"
	testDiscoveryTopic = "graylogic/discovery/conga"
	testCommandPattern = "graylogic/command/conga/+"
)

type testBridge struct {
	*Bridge
	mqtt      *MockMQTTClient
	facade    *mockFacade
	telemetry *mockTelemetry
	history   *mockHistory
}

// newTestBridge builds a bridge with one session over facade whose loops
// never tick during a test.
func newTestBridge(t *testing.T, facade *mockFacade) *testBridge {
	t.Helper()
	client := NewMockMQTTClient()
	tel := &mockTelemetry{}
	hist := &mockHistory{}

	b, err := New(Options{
		ID:             "conga-test",
		Version:        "test",
		Sessions:       []Session{{ID: "home", Facade: facade}},
		MQTT:           client,
		Telemetry:      tel,
		History:        hist,
		PollInterval:   time.Hour,
		HealthInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return &testBridge{Bridge: b, mqtt: client, facade: facade, telemetry: tel, history: hist}
}

func (tb *testBridge) discoverAll(t *testing.T) {
	t.Helper()
	for _, s := range tb.sessions {
		if err := tb.discover(context.Background(), s); err != nil {
			t.Fatalf("discover() error = %v", err)
		}
	}
}

func (tb *testBridge) send(t *testing.T, serial, payload string) error {
	t.Helper()
	return tb.handleCommand("graylogic/command/conga/"+serial, []byte(payload))
}

func (tb *testBridge) lastAck(t *testing.T, serial string) AckMessage {
	t.Helper()
	acks := tb.mqtt.onTopic(testAckTopic + serial)
	if len(acks) == 0 {
		t.Fatalf("no ack published for %s", serial)
	}
	return decode[AckMessage](acks[len(acks)-1].Payload)
}

func TestNew_Validation(t *testing.T) {
	facade := newMockFacade("SN1")
	tests := []struct {
		name string
		opts Options
	}{
		{"no mqtt", Options{Sessions: []Session{{ID: "a", Facade: facade}}}},
		{"no sessions", Options{MQTT: NewMockMQTTClient()}},
		{"session without facade", Options{MQTT: NewMockMQTTClient(), Sessions: []Session{{ID: "a"}}}},
		{"duplicate session", Options{MQTT: NewMockMQTTClient(), Sessions: []Session{
			{ID: "a", Facade: facade}, {ID: "a", Facade: facade},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestStart_PublishesDiscoveryAndState(t *testing.T) {
	facade := newMockFacade("SN1", "SN2")
	facade.planNames = []string{"Kitchen", "Upstairs"}
	tb := newTestBridge(t, facade)

	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if tb.mqtt.handler(testCommandPattern) == nil {
		t.Errorf("not subscribed to %s", testCommandPattern)
	}
	tb.Stop() // waits for the initial poll

	disc := tb.mqtt.onTopic(testDiscoveryTopic)
	if len(disc) != 1 || !disc[0].Retained {
		t.Fatalf("discovery publishes = %d", len(disc))
	}
	msg := decode[DiscoveryMessage](disc[0].Payload)
	if len(msg.Devices) != 2 || msg.Devices[0].Address != "SN1" {
		t.Fatalf("discovered = %+v", msg.Devices)
	}
	if got := msg.Devices[0].Plans; len(got) != 2 || got[0] != "Kitchen" {
		t.Errorf("plans = %v", got)
	}
	if msg.Devices[0].Account != "home" || msg.Devices[0].SuggestedName != "Vacuum SN1" {
		t.Errorf("device = %+v", msg.Devices[0])
	}

	// Plans are loaded from the first listed device only.
	if len(facade.refreshed) != 1 || facade.refreshed[0] != "SN1" {
		t.Errorf("refreshed = %v", facade.refreshed)
	}

	for _, sn := range []string{"SN1", "SN2"} {
		states := tb.mqtt.onTopic(testStateTopic + sn)
		if len(states) != 1 || !states[0].Retained {
			t.Fatalf("state publishes for %s = %d", sn, len(states))
		}
		st := decode[StateMessage](states[0].Payload)
		if st.State.State != "docked" || !st.State.Charging || !st.State.Available {
			t.Errorf("state %s = %+v", sn, st.State)
		}
		if st.Device.Manufacturer != "Cecotec" {
			t.Errorf("device info = %+v", st.Device)
		}
	}

	health := tb.mqtt.onTopic(testHealthTopic)
	if len(health) < 3 {
		t.Fatalf("health publishes = %d, want starting, current and stopping", len(health))
	}
	if first := decode[HealthMessage](health[0].Payload); first.Status != HealthStarting {
		t.Errorf("first health = %s", first.Status)
	}
	if last := decode[HealthMessage](health[len(health)-1].Payload); last.Status != HealthStopping {
		t.Errorf("last health = %s", last.Status)
	}
}

func TestStart_ListingFailureIsFatal(t *testing.T) {
	facade := newMockFacade("SN1")
	facade.listErr = fmt.Errorf("listing: %w", conga.ErrAuthentication)
	tb := newTestBridge(t, facade)

	err := tb.Start(context.Background())
	if !errors.Is(err, conga.ErrAuthentication) {
		t.Fatalf("Start() error = %v, want ErrAuthentication", err)
	}
}

func TestPoll_PublishesOnlyOnChange(t *testing.T) {
	facade := newMockFacade("SN1")
	tb := newTestBridge(t, facade)
	tb.discoverAll(t)
	ctx := context.Background()

	tb.pollAll(ctx)
	tb.pollAll(ctx)
	if n := len(tb.mqtt.onTopic(testStateTopic + "SN1")); n != 1 {
		t.Fatalf("state publishes after identical polls = %d, want 1", n)
	}

	battery := 55
	facade.setStatus("SN1", conga.Status{Mode: "sweep", State: conga.StateCleaning, Battery: &battery, Connected: true})
	tb.pollAll(ctx)

	states := tb.mqtt.onTopic(testStateTopic + "SN1")
	if len(states) != 2 {
		t.Fatalf("state publishes = %d, want 2", len(states))
	}
	st := decode[StateMessage](states[1].Payload)
	if st.State.State != "cleaning" || st.State.BatteryIcon != "mdi:battery-50" {
		t.Errorf("state = %+v", st.State)
	}

	if len(tb.telemetry.samples) != 3 {
		t.Errorf("telemetry samples = %d, want one per poll", len(tb.telemetry.samples))
	}
	if len(tb.history.statuses) != 2 {
		t.Errorf("history rows = %d, want one per change", len(tb.history.statuses))
	}
}

func TestPoll_FailurePublishesUnavailable(t *testing.T) {
	facade := newMockFacade("SN1")
	tb := newTestBridge(t, facade)
	tb.discoverAll(t)

	facade.setStatusErr(fmt.Errorf("shadow: %w", conga.ErrAuthorization))
	tb.pollAll(context.Background())

	states := tb.mqtt.onTopic(testStateTopic + "SN1")
	if len(states) != 1 {
		t.Fatalf("state publishes = %d", len(states))
	}
	st := decode[StateMessage](states[0].Payload)
	if st.State.Available || st.State.Error != ErrCodeAuthError {
		t.Errorf("state = %+v", st.State)
	}

	snap := tb.healthSnapshot()
	if snap.status != HealthDegraded || snap.stats.PollErrors != 1 {
		t.Errorf("health = %+v", snap)
	}

	facade.setStatusErr(nil)
	tb.pollAll(context.Background())
	if snap := tb.healthSnapshot(); snap.status != HealthHealthy {
		t.Errorf("health after recovery = %s (%s)", snap.status, snap.reason)
	}
}

func TestHealth_DegradedWhenMQTTDisconnected(t *testing.T) {
	tb := newTestBridge(t, newMockFacade("SN1"))
	tb.mqtt.setConnected(false)

	snap := tb.healthSnapshot()
	if snap.status != HealthDegraded || snap.reason != "MQTT disconnected" {
		t.Errorf("health = %+v", snap)
	}
}

func TestHandleCommand_Start(t *testing.T) {
	facade := newMockFacade("SN1")
	tb := newTestBridge(t, facade)
	tb.discoverAll(t)

	if err := tb.send(t, "SN1", `{"id":"cmd-1","command":"start","parameters":{"fan_level":2}}`); err != nil {
		t.Fatalf("handleCommand() error = %v", err)
	}
	tb.Stop()

	issued := facade.issuedCommands()
	if len(issued) != 1 || issued[0].serial != "SN1" {
		t.Fatalf("issued = %+v", issued)
	}
	if got, ok := issued[0].cmd.(conga.StartClean); !ok || got.FanLevel != 2 {
		t.Errorf("command = %#v", issued[0].cmd)
	}

	ack := tb.lastAck(t, "SN1")
	if ack.CommandID != "cmd-1" || ack.Status != AckAccepted || ack.Error != nil {
		t.Errorf("ack = %+v", ack)
	}
	if len(tb.history.commands) != 1 || tb.history.commands[0].Status != "accepted" {
		t.Errorf("history = %+v", tb.history.commands)
	}
	if len(tb.telemetry.commands) != 1 || tb.telemetry.commands[0] != "SN1:start:accepted" {
		t.Errorf("telemetry = %v", tb.telemetry.commands)
	}
}

func TestHandleCommand_StartUsesReportedFanLevel(t *testing.T) {
	facade := newMockFacade("SN1")
	fan := 3
	facade.setStatus("SN1", conga.Status{Mode: "charge", State: conga.StateDocked, FanLevel: &fan, Connected: true})
	tb := newTestBridge(t, facade)
	tb.discoverAll(t)
	tb.pollAll(context.Background())

	if err := tb.send(t, "SN1", `{"command":"start"}`); err != nil {
		t.Fatalf("handleCommand() error = %v", err)
	}

	issued := facade.issuedCommands()
	if len(issued) != 1 {
		t.Fatalf("issued = %d", len(issued))
	}
	if got := issued[0].cmd.(conga.StartClean); got.FanLevel != 3 {
		t.Errorf("FanLevel = %d, want 3", got.FanLevel)
	}
	if ack := tb.lastAck(t, "SN1"); ack.CommandID == "" {
		t.Error("ack should carry a generated command id")
	}
}

func TestDiscover_RediscoveryKeepsFanLevel(t *testing.T) {
	facade := newMockFacade("SN1")
	fan := 3
	facade.setStatus("SN1", conga.Status{Mode: "charge", State: conga.StateDocked, FanLevel: &fan, Connected: true})
	tb := newTestBridge(t, facade)
	tb.discoverAll(t)
	tb.pollAll(context.Background())

	tb.discoverAll(t)

	if err := tb.send(t, "SN1", `{"id":"c1","command":"start"}`); err != nil {
		t.Fatalf("handleCommand() error = %v", err)
	}
	issued := facade.issuedCommands()
	if len(issued) != 1 {
		t.Fatalf("issued = %d", len(issued))
	}
	if got := issued[0].cmd.(conga.StartClean); got.FanLevel != 3 {
		t.Errorf("FanLevel after rediscovery = %d, want 3", got.FanLevel)
	}
}

func TestPlanSourceFollowsListingOrder(t *testing.T) {
	facade := newMockFacade("SN9", "SN1")
	tb := newTestBridge(t, facade)
	tb.discoverAll(t)
	tb.refreshPlans(context.Background())
	tb.Stop()

	want := []string{"SN9", "SN9"}
	if len(facade.refreshed) != len(want) {
		t.Fatalf("refreshed = %v, want %v", facade.refreshed, want)
	}
	for i := range want {
		if facade.refreshed[i] != want[i] {
			t.Errorf("refreshed = %v, want %v", facade.refreshed, want)
			break
		}
	}
}

func TestHandleCommand_Failures(t *testing.T) {
	tests := []struct {
		name     string
		serial   string
		payload  string
		issueErr error
		wantCode string
	}{
		{"unknown device", "SN9", `{"command":"return_home"}`, nil, ErrCodeNotFound},
		{"unknown command", "SN1", `{"command":"dance"}`, nil, ErrCodeInvalidCommand},
		{"missing level", "SN1", `{"command":"set_fan_speed"}`, nil, ErrCodeInvalidParameters},
		{"missing plan", "SN1", `{"command":"start_plan","parameters":{}}`, nil, ErrCodeInvalidParameters},
		{"plan not found", "SN1", `{"command":"start_plan","parameters":{"plan":"Attic"}}`,
			fmt.Errorf("issuing run_plan: %w", conga.ErrPlanNotFound), ErrCodePlanNotFound},
		{"level out of range", "SN1", `{"command":"set_water_level","parameters":{"level":7}}`,
			fmt.Errorf("issuing set_water_level: %w", conga.ErrInvalidCommand), ErrCodeInvalidParameters},
		{"unreachable", "SN1", `{"command":"return_home"}`,
			fmt.Errorf("issuing return_home: %w", conga.ErrDeviceUnreachable), ErrCodeDeviceUnreachable},
		{"unauthorised", "SN1", `{"command":"return_home"}`,
			fmt.Errorf("issuing return_home: %w", conga.ErrAuthorization), ErrCodeAuthError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facade := newMockFacade("SN1")
			facade.issueErr = tt.issueErr
			tb := newTestBridge(t, facade)
			tb.discoverAll(t)

			if err := tb.send(t, tt.serial, tt.payload); err != nil {
				t.Fatalf("handleCommand() error = %v", err)
			}

			ack := tb.lastAck(t, tt.serial)
			if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack = %+v, want code %s", ack, tt.wantCode)
			}
			if snap := tb.healthSnapshot(); snap.stats.CommandsFailed != 1 {
				t.Errorf("CommandsFailed = %d", snap.stats.CommandsFailed)
			}
		})
	}
}

func TestHandleCommand_MalformedPayload(t *testing.T) {
	tb := newTestBridge(t, newMockFacade("SN1"))
	tb.discoverAll(t)

	if err := tb.send(t, "SN1", `{not json`); err == nil {
		t.Error("handleCommand() should report a parse error")
	}
	ack := tb.lastAck(t, "SN1")
	if ack.Error == nil || ack.Error.Code != ErrCodeInvalidCommand {
		t.Errorf("ack = %+v", ack)
	}
}

func TestHandleCommand_Refresh(t *testing.T) {
	facade := newMockFacade("SN1")
	facade.planNames = []string{"Kitchen"}
	tb := newTestBridge(t, facade)
	tb.discoverAll(t)

	if err := tb.send(t, "SN1", `{"id":"r1","command":"refresh"}`); err != nil {
		t.Fatalf("handleCommand() error = %v", err)
	}
	tb.Stop()

	if ack := tb.lastAck(t, "SN1"); ack.Status != AckAccepted {
		t.Errorf("ack = %+v", ack)
	}
	if len(facade.issuedCommands()) != 0 {
		t.Error("refresh should not issue a vacuum command")
	}
	if len(facade.refreshed) != 2 {
		t.Errorf("plan refreshes = %d, want discovery plus refresh", len(facade.refreshed))
	}
	if n := len(tb.mqtt.onTopic(testStateTopic + "SN1")); n != 1 {
		t.Errorf("state publishes = %d, want 1 from the follow-up poll", n)
	}
}

func TestHandleCommand_AfterStop(t *testing.T) {
	facade := newMockFacade("SN1")
	tb := newTestBridge(t, facade)
	tb.discoverAll(t)
	tb.Stop()

	if err := tb.send(t, "SN1", `{"command":"return_home"}`); err != nil {
		t.Fatalf("handleCommand() error = %v", err)
	}
	if ack := tb.lastAck(t, "SN1"); ack.Error == nil || ack.Error.Code != ErrCodeBridgeError {
		t.Errorf("ack = %+v", ack)
	}
	if len(facade.issuedCommands()) != 0 {
		t.Error("no command should be issued after Stop")
	}
}

func TestPrune(t *testing.T) {
	tb := newTestBridge(t, newMockFacade("SN1"))
	tb.opts.HistoryRetention = 48 * time.Hour

	tb.prune(context.Background())
	if len(tb.history.pruned) != 1 || tb.history.pruned[0] != 48*time.Hour {
		t.Errorf("pruned = %v", tb.history.pruned)
	}
}

func TestDiscover_SerialClaimedByTwoAccounts(t *testing.T) {
	client := NewMockMQTTClient()
	first := newMockFacade("SN1")
	second := newMockFacade("SN1", "SN2")

	b, err := New(Options{
		ID:       "conga-test",
		MQTT:     client,
		Sessions: []Session{{ID: "a", Facade: first}, {ID: "b", Facade: second}},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(b.Stop)

	for _, s := range b.sessions {
		if err := b.discover(context.Background(), s); err != nil {
			t.Fatalf("discover() error = %v", err)
		}
	}

	v, ok := b.vacuum("SN1")
	if !ok || v.session.id != "a" {
		t.Errorf("SN1 owner = %+v", v)
	}
	if len(second.refreshed) != 1 || second.refreshed[0] != "SN2" {
		t.Errorf("second account plan source = %v, want [SN2]", second.refreshed)
	}
	if b.deviceCount() != 2 {
		t.Errorf("deviceCount() = %d, want 2", b.deviceCount())
	}
}
