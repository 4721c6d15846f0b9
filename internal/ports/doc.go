// Package ports defines the capability interfaces that connect the zonecast
// core to the outside world.
//
// # Port Interfaces
//
//   - [Actor]: the external automation actor (browser session, webhook, fake)
//   - [LocationProvider]: a source of location samples (replay file, MQTT)
//   - [TriggerSink]: where the delivery queue hands trigger records
//   - [EventPublisher]: optional fanout of session and delivery events
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The core packages (zone, trigger, queue, session, dispatch, app) depend only
// on these interfaces. Concrete implementations live under internal/adapters.
package ports
