package journal

import "time"

// EventType classifies a runtime lifecycle event
type EventType int

const (
	ModuleLoaded EventType = iota
	ModuleReloaded
	ModuleReleased
	FrameAborted
	ArenaReset
	StateDiscarded
	RecordingStarted
	RecordingStopped
	PlaybackStarted
	PlaybackRestored
	SessionPersisted
	SessionLoaded
)

// Event is one entry of the runtime journal
type Event struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Frame     uint64    `json:"frame"`
	Details   string    `json:"details,omitempty"`
}

// String returns the string representation of the EventType
func (et EventType) String() string {
	switch et {
	case ModuleLoaded:
		return "ModuleLoaded"
	case ModuleReloaded:
		return "ModuleReloaded"
	case ModuleReleased:
		return "ModuleReleased"
	case FrameAborted:
		return "FrameAborted"
	case ArenaReset:
		return "ArenaReset"
	case StateDiscarded:
		return "StateDiscarded"
	case RecordingStarted:
		return "RecordingStarted"
	case RecordingStopped:
		return "RecordingStopped"
	case PlaybackStarted:
		return "PlaybackStarted"
	case PlaybackRestored:
		return "PlaybackRestored"
	case SessionPersisted:
		return "SessionPersisted"
	case SessionLoaded:
		return "SessionLoaded"
	default:
		return "Unknown"
	}
}
