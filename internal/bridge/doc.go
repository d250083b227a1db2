// Package bridge connects Gray Logic Core to Cecotec Conga vacuums.
//
// Each configured cloud account is a session backed by a conga.DeviceFacade.
// The bridge polls every vacuum's status, publishes retained state on
// change, executes commands received over MQTT and acknowledges them, and
// reports its own health and the discovered vacuums.
//
// # Topics
//
//   - graylogic/state/conga/{serial}    state (retained)
//   - graylogic/command/conga/{serial}  commands from Core
//   - graylogic/ack/conga/{serial}      command acknowledgements
//   - graylogic/health/conga            health and LWT (retained)
//   - graylogic/discovery/conga         vacuums and plans (retained)
//
// # Commands
//
//	{"id": "...", "command": "start", "parameters": {"fan_level": 2}}
//	{"command": "return_home"}
//	{"command": "set_fan_speed", "parameters": {"level": 3}}
//	{"command": "set_water_level", "parameters": {"level": 1}}
//	{"command": "start_plan", "parameters": {"plan": "Kitchen"}}
//	{"command": "refresh"}
package bridge
