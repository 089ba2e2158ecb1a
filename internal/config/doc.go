// Package config loads, normalizes, and validates clipline configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for
// provider credentials. The Config type centralizes every knob the daemon
// and CLI need: state directories, LLM routing, resource ceilings,
// translation batching, stage retry budgets, checkpoint behavior,
// notifications, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log levels, and clear validation errors.
package config
