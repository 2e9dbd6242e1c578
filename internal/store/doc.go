// Package store is the durable boundary of the agent: per-user settings and
// credentials, append-only run outcomes, and the published-post history that
// future cycles dedupe against.
//
// The in-memory scheduling registry is deliberately NOT persisted here; on
// restart it is rehydrated from Schedules().
package store
