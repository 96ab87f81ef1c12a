package motion

import "time"

// Sample is one smoothed acceleration reading from the motion hardware.
// Samples are ephemeral: they are classified on arrival and never persisted.
type Sample struct {
	// Timestamp is when the reading was taken.
	Timestamp time.Time
	// Magnitude is the smoothed net acceleration magnitude in g units.
	Magnitude float64
	// RotationRate is the optional gyroscope rotation rate in rad/s.
	RotationRate float64
}

// State is the discrete activity classification of the user.
type State string

// Activity states, ordered by increasing severity.
const (
	StateStationary   State = "stationary"
	StateWalking      State = "walking"
	StateRunning      State = "running"
	StateDriving      State = "driving"
	StateHighActivity State = "high-activity"
	StateShaking      State = "shaking"
	StateFalling      State = "falling"
)

// severityRanks orders states for threshold comparison.
//
//nolint:gochecknoglobals // Immutable lookup table.
var severityRanks = map[State]int{
	StateStationary:   0,
	StateWalking:      1,
	StateRunning:      2,
	StateDriving:      3,
	StateHighActivity: 4,
	StateShaking:      5,
	StateFalling:      6,
}

// Rank returns the severity ordering of the state, higher meaning more severe.
// Unknown states rank below stationary.
func (s State) Rank() int {
	if rank, ok := severityRanks[s]; ok {
		return rank
	}

	return -1
}

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// Transition records the moment the classified state changed.
type Transition struct {
	// State is the newly entered activity state.
	State State
	// Timestamp is when the transition occurred, taken from the sample clock.
	Timestamp time.Time
	// Magnitude is the acceleration magnitude at the transition.
	Magnitude float64
}
