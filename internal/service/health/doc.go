// Package health evaluates enabled health-kind configurations against
// periodically polled metric readings and raises trigger events when a
// threshold condition holds.
package health
