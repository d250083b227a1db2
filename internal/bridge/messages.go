package bridge

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-conga/internal/conga"
	"github.com/nerrad567/gray-logic-conga/internal/infrastructure/mqtt"
)

// MQTT message types exchanged between Gray Logic Core and the vacuum bridge.

// CommandMessage is sent from Core to the bridge to control a vacuum.
// Topic: graylogic/command/conga/{serial}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement. The bridge
	// assigns a UUID when Core leaves it empty.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the vacuum serial. Defaults to the topic address.
	DeviceID string `json:"device_id"`

	// Command is one of the Command* constants.
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"fan_level": 2} for start
	//   {"level": 1} for set_fan_speed / set_water_level
	//   {"plan": "Kitchen"} for start_plan
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "automation", ...).
	Source string `json:"source,omitempty"`
}

// Bridge command names.
const (
	CommandStart         = "start"
	CommandReturnHome    = "return_home"
	CommandSetFanSpeed   = "set_fan_speed"
	CommandSetWaterLevel = "set_water_level"
	CommandStartPlan     = "start_plan"
	CommandRefresh       = "refresh"
)

// AckStatus is the outcome of a command.
type AckStatus string

const (
	// AckAccepted indicates the desired state was written to the cloud.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage is sent from the bridge to Core for every command.
// Topic: graylogic/ack/conga/{serial}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Address   string    `json:"address"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeAuthError         = "AUTH_ERROR"
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodePlanNotFound      = "PLAN_NOT_FOUND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// VacuumView is the state payload published for a vacuum.
type VacuumView struct {
	Available    bool     `json:"available"`
	State        string   `json:"state"`
	Mode         string   `json:"mode,omitempty"`
	Charging     bool     `json:"charging"`
	Battery      *int     `json:"battery,omitempty"`
	BatteryIcon  string   `json:"battery_icon"`
	CleanArea    *float64 `json:"clean_area,omitempty"`
	AllArea      *float64 `json:"all_area,omitempty"`
	CleanMinutes *int     `json:"clean_minutes,omitempty"`
	AllMinutes   *int     `json:"all_minutes,omitempty"`
	FanLevel     *int     `json:"fan_level,omitempty"`
	WaterLevel   *int     `json:"water_level,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// viewFromStatus builds the published view of a successfully read status.
func viewFromStatus(st conga.Status) VacuumView {
	return VacuumView{
		Available:    st.Connected,
		State:        string(st.State),
		Mode:         st.Mode,
		Charging:     st.Charging(),
		Battery:      st.Battery,
		BatteryIcon:  st.BatteryIcon(),
		CleanArea:    st.CleanArea,
		AllArea:      st.AllArea,
		CleanMinutes: st.CleanMinutes,
		AllMinutes:   st.AllMinutes,
		FanLevel:     st.FanLevel,
		WaterLevel:   st.WaterLevel,
	}
}

// unavailableView is published when a status read fails.
func unavailableView(code string) VacuumView {
	return VacuumView{
		Available:   false,
		State:       string(conga.StateError),
		BatteryIcon: "mdi:battery-unknown",
		Error:       code,
	}
}

// DeviceInfo describes the vacuum a state message belongs to.
type DeviceInfo struct {
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Account      string `json:"account"`
}

// StateMessage is sent from the bridge to Core when a vacuum's state changes.
// Topic: graylogic/state/conga/{serial}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string     `json:"device_id"`
	Timestamp time.Time  `json:"timestamp"`
	State     VacuumView `json:"state"`
	Device    DeviceInfo `json:"device"`
	Protocol  string     `json:"protocol"`
	Address   string     `json:"address"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/conga
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge         string            `json:"bridge"`
	InstanceID     string            `json:"instance_id,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         HealthStatus      `json:"status"`
	Version        string            `json:"version,omitempty"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	Accounts       int               `json:"accounts"`
	DevicesManaged int               `json:"devices_managed"`
	Statistics     *BridgeStatistics `json:"statistics,omitempty"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// BridgeStatistics contains operational counters since start.
type BridgeStatistics struct {
	Polls            uint64 `json:"polls"`
	PollErrors       uint64 `json:"poll_errors"`
	CommandsAccepted uint64 `json:"commands_accepted"`
	CommandsFailed   uint64 `json:"commands_failed"`
}

// DiscoveryMessage announces the vacuums and plans the bridge manages.
// Topic: graylogic/discovery/conga
// QoS: 1, Retained: Yes
type DiscoveryMessage struct {
	Timestamp time.Time          `json:"timestamp"`
	Bridge    string             `json:"bridge"`
	Devices   []DiscoveredDevice `json:"devices"`
}

// DiscoveredDevice is one vacuum in a discovery message.
type DiscoveredDevice struct {
	Protocol      string   `json:"protocol"`
	Address       string   `json:"address"`
	Type          string   `json:"type"`
	Capabilities  []string `json:"capabilities"`
	Manufacturer  string   `json:"manufacturer"`
	SuggestedName string   `json:"suggested_name"`
	Account       string   `json:"account"`

	// Plans lists the names accepted by start_plan.
	Plans []string `json:"plans"`
}

// Fixed device metadata.
const (
	deviceType   = "vacuum"
	manufacturer = "Cecotec"
	model        = "Conga"
)

// vacuumCapabilities lists the commands every vacuum accepts.
var vacuumCapabilities = []string{
	CommandStart,
	CommandReturnHome,
	CommandSetFanSpeed,
	CommandSetWaterLevel,
	CommandStartPlan,
	CommandRefresh,
}

func newAck(cmd CommandMessage, status AckStatus, at time.Time) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: at.UTC(),
		DeviceID:  cmd.DeviceID,
		Command:   cmd.Command,
		Status:    status,
		Protocol:  mqtt.ProtocolConga,
		Address:   cmd.DeviceID,
	}
}

func newAckError(cmd CommandMessage, code, message string, at time.Time) AckMessage {
	ack := newAck(cmd, AckFailed, at)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// offlinePayload is the health message published as the Last Will and on
// graceful shutdown.
func offlinePayload(bridgeID, reason string) []byte {
	payload, _ := json.Marshal(HealthMessage{ //nolint:errcheck // Plain struct always marshals
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    reason,
	})
	return payload
}

// Presence returns the MQTT presence for a bridge: a "starting" health
// message on every connect and an "offline" one as the Last Will and on
// graceful close. Pass it to mqtt.Connect.
func Presence(bridgeID, version string) mqtt.Presence {
	topics := mqtt.Topics{Protocol: mqtt.ProtocolConga}
	return mqtt.Presence{
		Topic: topics.Health(),
		Online: func() []byte {
			payload, _ := json.Marshal(HealthMessage{ //nolint:errcheck // Plain struct always marshals
				Bridge:    bridgeID,
				Timestamp: time.Now().UTC(),
				Status:    HealthStarting,
				Version:   version,
				Reason:    "mqtt connected",
			})
			return payload
		},
		Offline: func(reason string) []byte {
			return offlinePayload(bridgeID, reason)
		},
	}
}
