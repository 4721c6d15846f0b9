// Package domain contains the core entities and value objects for zonecast.
//
// It has no dependencies on infrastructure (HTTP, browsers, brokers, logging)
// and holds only data and the invariants that travel with it.
//
// # Entities
//
//   - [Coordinate], [Zone], [Payload]: the static zone catalog
//   - [LocationSample]: one position reading from a location provider
//   - [ZoneMembership]: per-zone Inside/Outside state owned by a tracking session
//   - [Transition], [TriggerRecord]: what the evaluator and trigger gate produce
//   - [DeliveryAttempt], [Outcome]: one try at posting a record to the actor
package domain
