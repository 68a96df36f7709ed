package playback

import (
	"github.com/skypro1111/narration-engine/internal/audio"
	"github.com/skypro1111/narration-engine/internal/token"
)

// Segment is one planned playback of a source range
type Segment struct {
	Idx      int           // token index
	Delay    float64       // seconds after the start of playback
	Offset   float64       // seconds into Source
	Duration float64       // seconds of Source to play
	Source   *audio.Buffer // shared recording
}

// Schedule walks tokens in order and returns the audio segments that play
// when the timeline starts at startTime, trimming a segment that startTime
// falls inside. skipped counts degenerate audio tokens, which occupy no time.
func Schedule(tokens token.Sequence, startTime float64) (segments []Segment, skipped int) {
	var cursor float64

	for _, t := range tokens {
		d := t.Seconds()
		if !(d > 0) {
			if t.Kind() == token.KindAudio {
				skipped++
			}
			continue
		}

		a, ok := t.(token.Audio)
		if ok && cursor+d > startTime {
			skip := max(0, startTime-cursor)
			if remaining := d - skip; remaining > 0 {
				segments = append(segments, Segment{
					Idx:      a.Idx,
					Delay:    max(0, cursor-startTime),
					Offset:   a.Start + skip,
					Duration: remaining,
					Source:   a.Source,
				})
			}
		}

		cursor += d
	}

	return segments, skipped
}
