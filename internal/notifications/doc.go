// Package notifications delivers pipeline events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Enumerated event types cover the major pipeline milestones so
// stage handlers can emit consistent, user-friendly messages without
// duplicating HTTP glue. A handful of high-frequency events (stage started,
// queue progress) are intentionally suppressed to avoid paging fatigue.
//
// Extend this package if you need alternative transports; all pipeline code
// depends only on the simple Service interface.
package notifications
