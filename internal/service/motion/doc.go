// Package motion classifies the acceleration sample stream into discrete
// activity states and detects dangerous transition patterns such as a rapid
// stationary-to-running escalation.
//
// The classifier is deterministic over its bounded sample window; the
// sampling loop around it degrades to silence when the motion capability is
// unavailable.
package motion
