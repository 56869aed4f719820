// Package mqtt mirrors tenant entity state onto the site MQTT broker.
//
// Growgate publishes every state change it observes so site-local
// consumers (dashboards, controllers, recorders) can follow device
// state without holding their own hub session:
//
//	Tenant hub → Growgate Core → MQTT broker → local consumers
//
// The mirror is one-way: Growgate never subscribes. State topics
// follow growgate/state/{tenant_id}/{entity_id} and are retained, so a
// consumer attaching late immediately receives current state. The
// gateway's own online/offline status is retained on
// growgate/system/status, with a Last Will message distinguishing a
// crash from a graceful shutdown.
//
// TLS and broker credentials are required for production deployments;
// anonymous plaintext is for local development only.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	publisher := mqtt.NewStatePublisher(client)
//	publisher.PublishState("tenant-1", "light.grow_1", "on")
package mqtt
