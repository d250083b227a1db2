package mqtt

import "fmt"

// TopicPrefix is the root of every Gray Logic topic.
//
// Bridge topics use the flat scheme: graylogic/{category}/{protocol}/{address}
const TopicPrefix = "graylogic"

// ProtocolConga is the protocol segment used by the vacuum bridge.
const ProtocolConga = "conga"

// Topics provides builders for the bridge's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Protocol: mqtt.ProtocolConga}
//	topics.State("22100XXXXXXX")
//	// Returns: "graylogic/state/conga/22100XXXXXXX"
type Topics struct {
	Protocol string
}

// State returns the retained state topic for a device.
//
// Example: graylogic/state/conga/{serial}
func (t Topics) State(address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, t.Protocol, address)
}

// Command returns the topic on which commands for a device arrive.
//
// Example: graylogic/command/conga/{serial}
func (t Topics) Command(address string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, t.Protocol, address)
}

// Ack returns the topic for command acknowledgements.
//
// Example: graylogic/ack/conga/{serial}
func (t Topics) Ack(address string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, t.Protocol, address)
}

// Health returns the bridge health topic. It doubles as the LWT topic.
//
// Example: graylogic/health/conga
func (t Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, t.Protocol)
}

// Discovery returns the topic listing the bridge's devices.
//
// Example: graylogic/discovery/conga
func (t Topics) Discovery() string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, t.Protocol)
}

// AllCommands returns a pattern matching commands for every device.
//
// Pattern: graylogic/command/conga/+
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, t.Protocol)
}

// AllStates returns a pattern matching state for every device.
//
// Pattern: graylogic/state/conga/+
func (t Topics) AllStates() string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, t.Protocol)
}

// AllAcks returns a pattern matching every acknowledgement.
//
// Pattern: graylogic/ack/conga/+
func (t Topics) AllAcks() string {
	return fmt.Sprintf("%s/ack/%s/+", TopicPrefix, t.Protocol)
}

// AddressFromTopic returns the last segment of a device topic, or "" if
// topic has no address segment.
func AddressFromTopic(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return ""
}
