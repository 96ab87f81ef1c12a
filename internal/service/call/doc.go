// Package call drives emergency voice calls end to end: channel
// selection by severity and preference, dialing with a single fallback,
// remote status monitoring and teardown. Finished sessions are persisted
// as call records.
package call
