package token

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/skypro1111/narration-engine/internal/audio"
)

var (
	// ErrInvalidSequence is returned when tokens break the ordering rules
	ErrInvalidSequence = errors.New("invalid token sequence")
	// ErrNotFound is returned when no token has the requested index
	ErrNotFound = errors.New("token not found")
	// ErrNotAudio is returned when an audio-only edit targets a silence token
	ErrNotAudio = errors.New("token is not an audio token")
)

// LeadingGap is the duration forced onto a silence that opens a timeline.
const LeadingGap = 0.1

// Kind discriminates token variants
type Kind int

const (
	KindAudio Kind = iota
	KindPause
	KindParagraph
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "AUDIO"
	case KindPause:
		return "PAUSE"
	case KindParagraph:
		return "PARAGRAPH"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses the textual token type
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(s) {
	case "AUDIO":
		return KindAudio, nil
	case "PAUSE":
		return KindPause, nil
	case "PARAGRAPH":
		return KindParagraph, nil
	}
	return 0, fmt.Errorf("unknown token type %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < KindAudio || k > KindParagraph {
		return nil, fmt.Errorf("unknown token kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Token is one unit of the timeline
type Token interface {
	Index() int
	Kind() Kind
	// Seconds is the span the token occupies on the timeline. Negative
	// values only occur for degenerate audio segments.
	Seconds() float64
}

// Audio is a range of the shared source recording
type Audio struct {
	Idx      int
	Start    float64 // seconds into Source
	Duration float64
	Source   *audio.Buffer
}

func (a Audio) Index() int       { return a.Idx }
func (a Audio) Kind() Kind       { return KindAudio }
func (a Audio) Seconds() float64 { return a.Duration }

// End returns the end of the range in source seconds
func (a Audio) End() float64 { return a.Start + a.Duration }

// Degenerate reports whether the segment has nothing to play
func (a Audio) Degenerate() bool { return !(a.Duration > 0) }

// Pause is a short silence between segments
type Pause struct {
	Idx      int
	Duration float64
}

func (p Pause) Index() int       { return p.Idx }
func (p Pause) Kind() Kind       { return KindPause }
func (p Pause) Seconds() float64 { return p.Duration }

// Paragraph is a structural break, rendered as a longer silence
type Paragraph struct {
	Idx      int
	Duration float64
}

func (p Paragraph) Index() int       { return p.Idx }
func (p Paragraph) Kind() Kind       { return KindParagraph }
func (p Paragraph) Seconds() float64 { return p.Duration }

// Sequence is an ordered timeline. Sequences are treated as immutable values;
// edits produce a new Sequence sharing the untouched tokens.
type Sequence []Token

// Validate checks that indices run from 0 without gaps and that every audio
// token references the same source recording.
func (s Sequence) Validate() error {
	var source *audio.Buffer
	for i, t := range s {
		if t == nil {
			return fmt.Errorf("%w: nil token at position %d", ErrInvalidSequence, i)
		}
		if t.Index() != i {
			return fmt.Errorf("%w: token at position %d has idx %d", ErrInvalidSequence, i, t.Index())
		}
		if math.IsNaN(t.Seconds()) || math.IsInf(t.Seconds(), 0) {
			return fmt.Errorf("%w: token %d has non-finite duration", ErrInvalidSequence, i)
		}

		a, ok := t.(Audio)
		if !ok {
			continue
		}
		if a.Source == nil {
			return fmt.Errorf("%w: audio token %d has no source", ErrInvalidSequence, i)
		}
		if source == nil {
			source = a.Source
		} else if a.Source != source {
			return fmt.Errorf("%w: audio token %d references a different recording", ErrInvalidSequence, i)
		}
		if a.Start < 0 || math.IsNaN(a.Start) {
			return fmt.Errorf("%w: audio token %d has start %f", ErrInvalidSequence, i, a.Start)
		}
	}
	return nil
}

// Total returns the timeline length. Tokens with non-positive duration add nothing.
func (s Sequence) Total() float64 {
	var total float64
	for _, t := range s {
		if d := t.Seconds(); d > 0 {
			total += d
		}
	}
	return total
}

// Find returns the token with the given index
func (s Sequence) Find(idx int) (Token, error) {
	if idx >= 0 && idx < len(s) && s[idx].Index() == idx {
		return s[idx], nil
	}
	for _, t := range s {
		if t.Index() == idx {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: idx %d", ErrNotFound, idx)
}

// Source returns the recording referenced by the audio tokens, or nil when
// the sequence holds only silences.
func (s Sequence) Source() *audio.Buffer {
	for _, t := range s {
		if a, ok := t.(Audio); ok {
			return a.Source
		}
	}
	return nil
}

// AudioCount returns the number of audio tokens
func (s Sequence) AudioCount() int {
	n := 0
	for _, t := range s {
		if t.Kind() == KindAudio {
			n++
		}
	}
	return n
}

// WithTrim returns a copy of s with the audio token idx moved to the given
// source range. The receiver is left untouched.
func (s Sequence) WithTrim(idx int, start, duration float64) (Sequence, error) {
	if math.IsNaN(start) || math.IsInf(start, 0) || start < 0 {
		return nil, fmt.Errorf("%w: trim start must be a non-negative number, got %f", ErrInvalidSequence, start)
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		return nil, fmt.Errorf("%w: trim duration must be a non-negative number, got %f", ErrInvalidSequence, duration)
	}

	t, err := s.Find(idx)
	if err != nil {
		return nil, err
	}
	a, ok := t.(Audio)
	if !ok {
		return nil, fmt.Errorf("%w: idx %d is %s", ErrNotAudio, idx, t.Kind())
	}

	a.Start = start
	a.Duration = duration

	out := make(Sequence, len(s))
	copy(out, s)
	for i := range out {
		if out[i].Index() == idx {
			out[i] = a
			break
		}
	}
	return out, nil
}

// Normalize forces a leading Pause or Paragraph to LeadingGap so a timeline
// never opens with a long silence.
func Normalize(s Sequence) Sequence {
	if len(s) == 0 {
		return s
	}

	switch first := s[0].(type) {
	case Pause:
		first.Duration = LeadingGap
		return replaceFirst(s, first)
	case Paragraph:
		first.Duration = LeadingGap
		return replaceFirst(s, first)
	}
	return s
}

func replaceFirst(s Sequence, t Token) Sequence {
	out := make(Sequence, len(s))
	copy(out, s)
	out[0] = t
	return out
}
