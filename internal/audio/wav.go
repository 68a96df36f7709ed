package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM    = 1
	defaultBitDepth = 16
)

// WAVInfo describes the stream carried by a WAV file
type WAVInfo struct {
	SampleRate    int     `json:"sample_rate"`
	Channels      int     `json:"channels"`
	BitsPerSample int     `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	NumFrames     int     `json:"num_frames"`
}

// EncodeWAV encodes a buffer as integer PCM WAV. bitDepth 0 means 16-bit.
// Samples outside [-1, 1] are clipped.
func EncodeWAV(buf *Buffer, bitDepth int) ([]byte, error) {
	if buf == nil || buf.Len() == 0 {
		return nil, fmt.Errorf("cannot encode empty audio buffer")
	}

	if bitDepth == 0 {
		bitDepth = defaultBitDepth
	}
	if bitDepth != 8 && bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}

	numChannels := buf.NumChannels()
	scale := float64(int64(1)<<(bitDepth-1) - 1)

	// Interleave frames the way the encoder expects them
	data := make([]int, buf.Len()*numChannels)
	for ch := 0; ch < numChannels; ch++ {
		samples := buf.Channel(ch)
		for i, s := range samples {
			v := math.Max(-1, math.Min(1, float64(s)))
			data[i*numChannels+ch] = int(math.Round(v * scale))
		}
	}

	// 8-bit WAV is unsigned
	if bitDepth == 8 {
		for i := range data {
			data[i] += 128
		}
	}

	out := &writeSeeker{}
	enc := wav.NewEncoder(out, buf.SampleRate(), bitDepth, numChannels, wavFormatPCM)

	pcm := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: numChannels,
			SampleRate:  buf.SampleRate(),
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	if err := enc.Write(pcm); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize WAV header: %w", err)
	}

	return out.Bytes(), nil
}

// DecodeWAV decodes integer PCM WAV data of any channel count to a Buffer.
func DecodeWAV(data []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV file", ErrDecode)
	}

	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: WAV audio format %d (only integer PCM is supported)",
			ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read PCM data: %w", ErrDecode, err)
	}

	numChannels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if numChannels <= 0 {
		return nil, fmt.Errorf("%w: WAV file declares %d channels", ErrDecode, numChannels)
	}
	if bitDepth != 8 && bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrUnsupportedFormat, bitDepth)
	}
	if len(pcm.Data) == 0 {
		return nil, fmt.Errorf("%w: no audio data found", ErrDecode)
	}

	frames := len(pcm.Data) / numChannels
	channels := make([][]float32, numChannels)
	for ch := range channels {
		channels[ch] = make([]float32, frames)
	}

	scale := float32(int64(1) << (bitDepth - 1))
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numChannels; ch++ {
			v := pcm.Data[i*numChannels+ch]
			if bitDepth == 8 {
				v -= 128
			}
			channels[ch][i] = float32(v) / scale
		}
	}

	return NewBuffer(int(dec.SampleRate), channels)
}

// ValidateWAV checks that data carries a readable WAV header
func ValidateWAV(data []byte) error {
	if len(data) < 44 {
		return fmt.Errorf("WAV data too short: need at least 44 bytes, got %d", len(data))
	}

	if !wav.NewDecoder(bytes.NewReader(data)).IsValidFile() {
		return fmt.Errorf("invalid WAV file: missing RIFF/WAVE header")
	}

	return nil
}

// GetWAVDuration calculates the duration of a WAV file in seconds
func GetWAVDuration(data []byte) (float64, error) {
	info, err := GetWAVInfo(data)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// GetWAVInfo extracts stream metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV data: %w", err)
	}
	if dec.SampleRate == 0 || dec.NumChans == 0 {
		return nil, fmt.Errorf("invalid WAV format: sample rate %d, channels %d", dec.SampleRate, dec.NumChans)
	}

	frames := len(pcm.Data) / int(dec.NumChans)

	return &WAVInfo{
		SampleRate:    int(dec.SampleRate),
		Channels:      int(dec.NumChans),
		BitsPerSample: int(dec.BitDepth),
		Duration:      float64(frames) / float64(dec.SampleRate),
		NumFrames:     frames,
	}, nil
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes once all samples are written.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:end]
		}
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(len(w.buf))
	default:
		return 0, errors.New("invalid whence")
	}

	next := base + offset
	if next < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(next)
	return next, nil
}

func (w *writeSeeker) Bytes() []byte {
	return w.buf
}
