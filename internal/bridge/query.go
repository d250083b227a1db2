package bridge

import (
	"sort"

	"github.com/nerrad567/gray-logic-conga/internal/infrastructure/mqtt"
)

// DeviceSnapshot is a managed vacuum with its last published state.
type DeviceSnapshot struct {
	DiscoveredDevice

	// State is nil until the first successful publish.
	State *StateMessage `json:"state,omitempty"`
}

// Health returns the bridge's current health, as it would be published.
func (b *Bridge) Health() HealthMessage {
	return b.health.message(b.healthSnapshot())
}

// Devices returns every managed vacuum, ordered by serial.
func (b *Bridge) Devices() []DeviceSnapshot {
	serials := b.serials()
	out := make([]DeviceSnapshot, 0, len(serials))
	for _, serial := range serials {
		if d, ok := b.Device(serial); ok {
			out = append(out, d)
		}
	}
	return out
}

// Device returns one managed vacuum. ok is false for unknown serials.
func (b *Bridge) Device(serial string) (DeviceSnapshot, bool) {
	v, ok := b.vacuum(serial)
	if !ok {
		return DeviceSnapshot{}, false
	}

	snap := DeviceSnapshot{DiscoveredDevice: discovered(v)}

	b.stateCacheMu.Lock()
	if msg, ok := b.views[serial]; ok {
		snap.State = &msg
	}
	b.stateCacheMu.Unlock()

	return snap, true
}

// discovered describes v as it appears in discovery.
func discovered(v *vacuum) DiscoveredDevice {
	return DiscoveredDevice{
		Protocol:      mqtt.ProtocolConga,
		Address:       v.device.SerialNumber,
		Type:          deviceType,
		Capabilities:  vacuumCapabilities,
		Manufacturer:  manufacturer,
		SuggestedName: v.device.Name(),
		Account:       v.session.id,
		Plans:         v.session.plans(),
	}
}

// sortDevices orders devices by address.
func sortDevices(devices []DiscoveredDevice) {
	sort.Slice(devices, func(i, j int) bool { return devices[i].Address < devices[j].Address })
}
