// Package mqtt publishes newsdesk account and session events to an MQTT
// broker.
//
// The client is publish-only. It connects with auto-reconnect, announces
// itself on a retained status topic, and registers a Last Will so that
// subscribers see an offline status if the process dies.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.AuthEvent("login")
//	err = client.Publish(topic, payload, 1, false)
//
// Event payloads are JSON. They never contain passwords, hashes or session
// tokens.
package mqtt
