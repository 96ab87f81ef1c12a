// Package dispatcher receives trigger events from all signal sources and
// resolves them into at most one action execution at a time.
//
// It debounces button-origin events, consults the enabled configuration
// fresh on every dispatch, arms and cancels the delayed countdown and
// re-derives the set of listening sources when configurations change.
package dispatcher
