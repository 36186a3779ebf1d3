// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Bus connection state, reconnects and frame rates per tag
//   - Frames dropped before dispatch, by reason
//   - Subscriber handler failures
//   - Feed flush counts and delivered items
//   - Latest milestone index and store write failures
package metrics
