package token

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/narration-engine/internal/audio"
)

func testSource(t *testing.T) *audio.Buffer {
	t.Helper()
	buf, err := audio.NewSilentBuffer(8000, 1, 8000*5)
	require.NoError(t, err)
	return buf
}

func testSequence(t *testing.T) Sequence {
	src := testSource(t)
	return Sequence{
		Paragraph{Idx: 0, Duration: 0.1},
		Audio{Idx: 1, Start: 0.4, Duration: 1.2, Source: src},
		Pause{Idx: 2, Duration: 0.3},
		Audio{Idx: 3, Start: 2.0, Duration: 0.8, Source: src},
	}
}

func TestKindText(t *testing.T) {
	for _, k := range []Kind{KindAudio, KindPause, KindParagraph} {
		text, err := k.MarshalText()
		require.NoError(t, err)

		var parsed Kind
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("TEXT")
	assert.Error(t, err)

	_, err = Kind(7).MarshalText()
	assert.Error(t, err)
}

func TestSequenceValidate(t *testing.T) {
	src := testSource(t)
	other := testSource(t)

	tests := []struct {
		name    string
		seq     Sequence
		wantErr bool
	}{
		{"empty", Sequence{}, false},
		{"ordered", testSequence(t), false},
		{"gap", Sequence{Pause{Idx: 0}, Pause{Idx: 2}}, true},
		{"not starting at zero", Sequence{Pause{Idx: 1}}, true},
		{"nil token", Sequence{nil}, true},
		{"missing source", Sequence{Audio{Idx: 0, Duration: 1}}, true},
		{"two recordings", Sequence{
			Audio{Idx: 0, Duration: 1, Source: src},
			Audio{Idx: 1, Duration: 1, Source: other},
		}, true},
		{"negative start", Sequence{Audio{Idx: 0, Start: -1, Duration: 1, Source: src}}, true},
		{"degenerate audio is allowed", Sequence{Audio{Idx: 0, Start: 1, Duration: -0.2, Source: src}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.seq.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSequence)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSequenceTotal(t *testing.T) {
	seq := testSequence(t)
	assert.InDelta(t, 2.4, seq.Total(), 1e-9)

	// Degenerate segments occupy no time
	seq = append(seq, Audio{Idx: 4, Start: 3, Duration: -0.5, Source: seq.Source()})
	assert.InDelta(t, 2.4, seq.Total(), 1e-9)

	assert.Zero(t, Sequence{}.Total())
}

func TestSequenceFind(t *testing.T) {
	seq := testSequence(t)

	tok, err := seq.Find(2)
	require.NoError(t, err)
	assert.Equal(t, KindPause, tok.Kind())

	_, err = seq.Find(9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTrim(t *testing.T) {
	seq := testSequence(t)

	trimmed, err := seq.WithTrim(1, 0.5, 1.0)
	require.NoError(t, err)

	tok, err := trimmed.Find(1)
	require.NoError(t, err)
	a := tok.(Audio)
	assert.Equal(t, 0.5, a.Start)
	assert.Equal(t, 1.0, a.Duration)
	assert.Same(t, seq.Source(), a.Source)

	// Original untouched
	orig := seq[1].(Audio)
	assert.Equal(t, 0.4, orig.Start)
	assert.Equal(t, 1.2, orig.Duration)

	_, err = seq.WithTrim(2, 0, 1)
	assert.ErrorIs(t, err, ErrNotAudio)

	_, err = seq.WithTrim(1, -0.1, 1)
	assert.ErrorIs(t, err, ErrInvalidSequence)

	_, err = seq.WithTrim(42, 0, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNormalize(t *testing.T) {
	seq := Normalize(Sequence{Paragraph{Idx: 0, Duration: 1.0}, Pause{Idx: 1, Duration: 1.0}})
	assert.Equal(t, LeadingGap, seq[0].Seconds())
	assert.Equal(t, 1.0, seq[1].Seconds())

	seq = Normalize(Sequence{Pause{Idx: 0, Duration: 2.0}})
	assert.Equal(t, LeadingGap, seq[0].Seconds())

	src := testSource(t)
	seq = Normalize(Sequence{Audio{Idx: 0, Start: 1, Duration: 2, Source: src}})
	assert.Equal(t, 2.0, seq[0].Seconds())

	assert.Empty(t, Normalize(nil))
}

func TestStorageRoundTrip(t *testing.T) {
	seq := testSequence(t)

	stored := ToStorageForm(seq)
	data, err := json.Marshal(stored)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"PARAGRAPH"`)

	var decoded []Stored
	require.NoError(t, json.Unmarshal(data, &decoded))

	restored, err := FromStorageForm(decoded, seq.Source())
	require.NoError(t, err)
	require.Len(t, restored, len(seq))

	for i := range seq {
		assert.Equal(t, ToStored(seq[i]), ToStored(restored[i]))
	}
}

func TestFromStorageFormSortsByIdx(t *testing.T) {
	src := testSource(t)
	stored := []Stored{
		{Idx: 2, Type: KindAudio, Start: 1, Duration: 1},
		{Idx: 0, Type: KindParagraph, Duration: 0.1},
		{Idx: 1, Type: KindPause, Duration: 0.3},
	}

	seq, err := FromStorageForm(stored, src)
	require.NoError(t, err)
	for i, tok := range seq {
		assert.Equal(t, i, tok.Index())
	}

	_, err = FromStorageForm(stored, nil)
	assert.ErrorIs(t, err, ErrInvalidSequence)

	_, err = FromStorageForm(stored[:2], src)
	assert.ErrorIs(t, err, ErrInvalidSequence)
}

func TestSnapshot(t *testing.T) {
	placements := Snapshot(testSequence(t))
	require.Len(t, placements, 4)

	assert.Equal(t, 0.0, placements[0].Position)
	assert.InDelta(t, 0.1, placements[1].Position, 1e-9)
	assert.InDelta(t, 1.3, placements[2].Position, 1e-9)
	assert.InDelta(t, 1.6, placements[3].Position, 1e-9)
	assert.Equal(t, 2.0, placements[3].Start)
	assert.Equal(t, KindAudio, placements[3].Type)
}
