// Package hooks provides ready-made hook implementations for the
// pipeline: console progress output, interactive console approvals, ntfy
// push notifications, and Prometheus metrics.
package hooks
