// Package api provides the bridge's local HTTP API and WebSocket feed.
//
// It is an optional side door next to MQTT, for installers and dashboards
// that want to look at the bridge directly:
//
//	GET  /api/v1/health                          bridge health (no auth)
//	GET  /api/v1/devices                         managed vacuums and last state
//	GET  /api/v1/devices/{serial}                one vacuum
//	GET  /api/v1/devices/{serial}/history        state history (?limit=)
//	GET  /api/v1/devices/{serial}/commands       command log (?limit=)
//	POST /api/v1/devices/{serial}/commands       send a command (operator)
//	GET  /api/v1/ws?token=...                    live state and ack events
//
// Everything except health requires a bearer JWT (see package auth).
// Commands posted here go through the same path as MQTT commands and are
// acknowledged on MQTT as well as in the response.
//
// Lifecycle:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
