// Package call contains the call session owned by the orchestrator and the
// record persisted when a session ends.
package call
