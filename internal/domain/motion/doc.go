// Package motion contains the value types of the activity classification
// domain: acceleration samples, the closed set of activity states and the
// transition records the danger detector scans.
package motion
