// Package mqtt provides MQTT client connectivity for statesd.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// statesd mirrors every machine onto the broker and accepts remote set-state
// commands from it:
//
//	State engine → bridge → MQTT Broker → dashboards, other controllers
//	State engine ← bridge ← MQTT Broker ← remote commands
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllMachineCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        machine, _ := topics.ParseCommandTopic(topic)
//	        log.Printf("set %s to %s", machine, payload)
//	        return nil
//	    })
//
// Use TLS (mqtt.broker.tls) outside the lab; payloads are not encrypted
// beyond the transport.
package mqtt
