// Package internal documents the TradeConnect server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, response envelope, and routing
// - domain: business logic (speakers, capacity, attendance, fel, certs,
//   webhooks, reports, users, localization)
// - storage: Postgres repositories and migrations
// - jobs: River background workers and queues
// - auth, audit, cache, clock, config, email, metrics: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
