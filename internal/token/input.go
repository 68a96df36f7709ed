package token

import (
	"fmt"
	"math"
	"sort"

	"github.com/skypro1111/narration-engine/internal/audio"
)

// Default silence lengths for inputs that carry no duration
const (
	DefaultPauseDuration     = 0.3
	DefaultParagraphDuration = 1.0
)

// InputType is the type of a record produced by the script tokenizer or the
// recognizer.
type InputType string

const (
	InputText      InputType = "TEXT"
	InputTiming    InputType = "TIMING"
	InputPause     InputType = "PAUSE"
	InputParagraph InputType = "PARAGRAPH"
)

// Input is one record of the tokenizer/recognizer stream. TEXT records carry
// script text awaiting alignment, TIMING records carry approximate
// recognizer timestamps in milliseconds.
type Input struct {
	Type     InputType `json:"type"`
	Idx      int       `json:"idx"`
	Text     string    `json:"text,omitempty"`
	StartMs  float64   `json:"start_ms,omitempty"`
	EndMs    float64   `json:"end_ms,omitempty"`
	Duration float64   `json:"duration,omitempty"` // seconds, PAUSE and PARAGRAPH only
}

// Validate checks a single input record
func (in Input) Validate() error {
	switch in.Type {
	case InputText:
		if in.Text == "" {
			return fmt.Errorf("input %d: TEXT record has no text", in.Idx)
		}
	case InputTiming:
		if math.IsNaN(in.StartMs) || math.IsNaN(in.EndMs) {
			return fmt.Errorf("input %d: TIMING record has NaN timestamps", in.Idx)
		}
		if in.StartMs < 0 {
			return fmt.Errorf("input %d: start_ms cannot be negative, got %f", in.Idx, in.StartMs)
		}
	case InputPause, InputParagraph:
		if in.Duration < 0 || math.IsNaN(in.Duration) {
			return fmt.Errorf("input %d: duration must be non-negative, got %f", in.Idx, in.Duration)
		}
	default:
		return fmt.Errorf("input %d: unknown type %q", in.Idx, in.Type)
	}
	return nil
}

// Span is the refined source range of one TIMING input, in seconds
type Span struct {
	Start    float64
	Duration float64
}

// SortInputs orders inputs by idx and rejects duplicates
func SortInputs(inputs []Input) ([]Input, error) {
	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Idx < sorted[j].Idx })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Idx == sorted[i-1].Idx {
			return nil, fmt.Errorf("%w: duplicate input idx %d", ErrInvalidSequence, sorted[i].Idx)
		}
	}
	return sorted, nil
}

// Build turns aligned inputs into a normalized Sequence. spans maps the idx of
// every TIMING input to its refined range. Output tokens are re-indexed from 0
// in input order. TEXT inputs must be aligned before calling Build.
func Build(inputs []Input, source *audio.Buffer, spans map[int]Span) (Sequence, error) {
	sorted, err := SortInputs(inputs)
	if err != nil {
		return nil, err
	}

	seq := make(Sequence, 0, len(sorted))
	for _, in := range sorted {
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSequence, err)
		}

		idx := len(seq)
		switch in.Type {
		case InputTiming:
			if source == nil {
				return nil, fmt.Errorf("%w: TIMING input %d without a source recording", ErrInvalidSequence, in.Idx)
			}
			span, ok := spans[in.Idx]
			if !ok {
				return nil, fmt.Errorf("%w: no refined span for input %d", ErrInvalidSequence, in.Idx)
			}
			seq = append(seq, Audio{Idx: idx, Start: span.Start, Duration: span.Duration, Source: source})
		case InputPause:
			seq = append(seq, Pause{Idx: idx, Duration: orDefault(in.Duration, DefaultPauseDuration)})
		case InputParagraph:
			seq = append(seq, Paragraph{Idx: idx, Duration: orDefault(in.Duration, DefaultParagraphDuration)})
		case InputText:
			return nil, fmt.Errorf("%w: input %d is unaligned TEXT", ErrInvalidSequence, in.Idx)
		}
	}

	return Normalize(seq), nil
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
