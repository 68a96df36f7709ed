package playback

import "fmt"

// Status is the playback state machine position
type Status int

const (
	StatusStopped Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "STOPPED"
	case StatusPlaying:
		return "PLAYING"
	case StatusPaused:
		return "PAUSED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "STOPPED":
		*s = StatusStopped
	case "PLAYING":
		*s = StatusPlaying
	case "PAUSED":
		*s = StatusPaused
	default:
		return fmt.Errorf("unknown playback status %q", text)
	}
	return nil
}

// State is a snapshot of the player. Offset is the timeline position where
// playback began (PLAYING) or will resume (PAUSED). EngineStartTime is the
// engine clock reading when playback began and is only set while PLAYING.
type State struct {
	Status          Status  `json:"status"`
	Offset          float64 `json:"offset"`
	EngineStartTime float64 `json:"engine_start_time,omitempty"`
}
