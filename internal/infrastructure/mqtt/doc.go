// Package mqtt provides MQTT client connectivity for smart-home nodes.
//
// This package manages:
//   - Connection to the broker with connect-retry and auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on every reconnect
//   - Connection state callbacks for the liveness and scheduling layers
//
// # Architecture
//
// Devices and clients never talk directly. Every exchange crosses the broker:
//
//	client monitor ↔ MQTT broker ↔ device node
//
// The protocol package owns topic names and envelope shapes; this package
// only moves bytes.
//
// # Security Considerations
//
//   - TLS is selected with mqtt.broker.tls and uses TLS 1.2 or newer
//   - Credentials come from the config file or SMARTHOME_MQTT_USERNAME/PASSWORD
//   - Payloads are not encrypted beyond the transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("smarthome/+/state", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("state: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish("smarthome/esp32-01/command", payload, 1, false)
package mqtt
