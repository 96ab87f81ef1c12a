// Package records is the SQLite persistence layer: finished call records
// and user-authored action configurations. The store enforces that at
// most one configuration is enabled at any point.
package records
