// Package guard is the daemon entry point: it loads settings, wires the
// platform capabilities to the trigger dispatcher, the action pipeline
// and the call orchestrator, and runs until stopped.
package guard
