// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// One file configures the shared component settings and the list of monitored
// networks; each network gets its own bus client, aggregators and tracker.
package config
