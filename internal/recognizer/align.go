package recognizer

import (
	"fmt"

	"github.com/skypro1111/narration-engine/internal/token"
)

// Lines collects the TEXT inputs that need timings
func Lines(inputs []token.Input) []Line {
	var lines []Line
	for _, in := range inputs {
		if in.Type == token.InputText {
			lines = append(lines, Line{Idx: in.Idx, Text: in.Text})
		}
	}
	return lines
}

// Apply replaces every TEXT input with a TIMING input carrying the
// recognizer's timestamps. Every TEXT input must have a segment.
func Apply(inputs []token.Input, resp *Response) ([]token.Input, error) {
	byIdx := make(map[int]Segment, len(resp.Segments))
	for _, seg := range resp.Segments {
		byIdx[seg.Idx] = seg
	}

	out := make([]token.Input, len(inputs))
	for i, in := range inputs {
		if in.Type != token.InputText {
			out[i] = in
			continue
		}

		seg, ok := byIdx[in.Idx]
		if !ok {
			return nil, fmt.Errorf("recognizer returned no timing for line %d", in.Idx)
		}
		out[i] = token.Input{
			Type:    token.InputTiming,
			Idx:     in.Idx,
			Text:    in.Text,
			StartMs: seg.StartMs,
			EndMs:   seg.EndMs,
		}
	}
	return out, nil
}
