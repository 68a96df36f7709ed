package token

import (
	"fmt"
	"sort"

	"github.com/skypro1111/narration-engine/internal/audio"
)

// Stored is the persistence shape of a token. Audio tokens drop their
// buffer reference; the recording is stored separately.
type Stored struct {
	Idx      int     `json:"idx"`
	Type     Kind    `json:"type"`
	Start    float64 `json:"start,omitempty"`
	Duration float64 `json:"duration"`
}

// ToStorageForm converts a sequence for persistence
func ToStorageForm(s Sequence) []Stored {
	out := make([]Stored, 0, len(s))
	for _, t := range s {
		out = append(out, ToStored(t))
	}
	return out
}

// ToStored converts a single token
func ToStored(t Token) Stored {
	st := Stored{Idx: t.Index(), Type: t.Kind(), Duration: t.Seconds()}
	if a, ok := t.(Audio); ok {
		st.Start = a.Start
	}
	return st
}

// FromStorageForm rebuilds a sequence, attaching source to every audio
// token. Records may arrive in any order.
func FromStorageForm(stored []Stored, source *audio.Buffer) (Sequence, error) {
	sorted := make([]Stored, len(stored))
	copy(sorted, stored)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Idx < sorted[j].Idx })

	seq := make(Sequence, 0, len(sorted))
	for _, st := range sorted {
		switch st.Type {
		case KindAudio:
			if source == nil {
				return nil, fmt.Errorf("%w: audio token %d without a source recording", ErrInvalidSequence, st.Idx)
			}
			seq = append(seq, Audio{Idx: st.Idx, Start: st.Start, Duration: st.Duration, Source: source})
		case KindPause:
			seq = append(seq, Pause{Idx: st.Idx, Duration: st.Duration})
		case KindParagraph:
			seq = append(seq, Paragraph{Idx: st.Idx, Duration: st.Duration})
		default:
			return nil, fmt.Errorf("%w: token %d has unknown type %d", ErrInvalidSequence, st.Idx, st.Type)
		}
	}

	if err := seq.Validate(); err != nil {
		return nil, err
	}
	return seq, nil
}

// Placement is a read-only view of a token for visualization. Position is
// where the token begins on the timeline.
type Placement struct {
	Idx      int     `json:"idx"`
	Type     Kind    `json:"type"`
	Start    float64 `json:"start,omitempty"`
	Duration float64 `json:"duration"`
	Position float64 `json:"position"`
}

// Snapshot lays out the sequence on the timeline
func Snapshot(s Sequence) []Placement {
	out := make([]Placement, 0, len(s))
	var cursor float64
	for _, t := range s {
		st := ToStored(t)
		out = append(out, Placement{
			Idx:      st.Idx,
			Type:     st.Type,
			Start:    st.Start,
			Duration: st.Duration,
			Position: cursor,
		})
		if d := t.Seconds(); d > 0 {
			cursor += d
		}
	}
	return out
}
