// Package api serves the agent over HTTP: tool descriptors for the current
// wallet, asynchronous action invocations backed by the task queue, and the
// Prometheus registry when metrics are enabled.
package api
