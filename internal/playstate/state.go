// Package playstate implements the three-valued play-state machine and the
// independent playback-mode toggles (repeat-one, repeat-all, consume).
package playstate

// State is the daemon's three-valued playback state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

// String returns the lower-case state name. Status replies carry the
// numeric State value, not this name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// ModeRequest is the tri-state request accepted by every mode-mutating
// command.
type ModeRequest int

const (
	Leave ModeRequest = iota
	Set
	Unset
	Toggle
)

// Apply merges a ModeRequest into a current bool: Leave keeps, Set forces
// true, Unset forces false, Toggle flips.
func (r ModeRequest) Apply(current bool) bool {
	switch r {
	case Set:
		return true
	case Unset:
		return false
	case Toggle:
		return !current
	default: // Leave
		return current
	}
}

// Modes holds the three independent playback-mode toggles.
type Modes struct {
	RepeatOne bool
	RepeatAll bool
	Consume   bool
}

// ModeUpdate carries one ModeRequest per field; Leave in every field is a
// no-op merge.
type ModeUpdate struct {
	RepeatOne ModeRequest
	RepeatAll ModeRequest
	Consume   ModeRequest
}

// Merge applies update to m in place and returns the result for convenience.
func (m *Modes) Merge(update ModeUpdate) Modes {
	m.RepeatOne = update.RepeatOne.Apply(m.RepeatOne)
	m.RepeatAll = update.RepeatAll.Apply(m.RepeatAll)
	m.Consume = update.Consume.Apply(m.Consume)
	return *m
}
