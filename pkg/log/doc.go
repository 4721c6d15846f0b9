// Package log provides the structured logging abstraction used across zonecast.
//
// Components never import a logging library directly. They accept a [Logger]
// and emit messages with typed [Field] values:
//
//	logger.Info("session ready", log.String("state", "Ready"), log.Duration("took", d))
//
// [NewZerologAdapter] builds the production logger from a level and format
// ("console" or "json"). [NewNoopLogger] discards everything and is what tests use.
package log
