// Package notifications delivers batch lifecycle alerts.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled. The
// batch finalizer depends only on the Service interface.
package notifications
