// Package trigger contains the core domain types of the dispatch flow:
// trigger events, user-authored action configurations, threshold operators
// and the context snapshot used to enrich outgoing actions.
package trigger
