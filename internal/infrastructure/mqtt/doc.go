// Package mqtt provides MQTT client connectivity for the Gray Logic Conga
// bridge.
//
// This package manages:
//   - Connection to the Gray Logic broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Retained presence with a Last Will for offline detection
//
// # Architecture
//
// The bridge speaks to Gray Logic Core only through the broker:
//
//	Gray Logic Core ↔ MQTT Broker ↔ Conga bridge ↔ vacuum cloud
//
// # Usage
//
//	topics := mqtt.Topics{Protocol: mqtt.ProtocolConga}
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Presence{
//	    Topic:   topics.Health(),
//	    Online:  onlinePayload,
//	    Offline: offlinePayload,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        serial := mqtt.AddressFromTopic(topic)
//	        ...
//	    })
package mqtt
