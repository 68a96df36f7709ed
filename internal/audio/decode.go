package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

var (
	// ErrUnsupportedFormat is returned for containers or encodings the editor cannot read.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrDecode is returned when a recognized container is malformed.
	ErrDecode = errors.New("audio decode failed")
)

// Format identifies an audio container
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
)

// DetectFormat sniffs the container from the leading bytes of data
func DetectFormat(data []byte) Format {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG frame sync
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// Decode decodes a complete recording to PCM. It either returns a full
// buffer or an error; there are no partial results.
func Decode(data []byte) (*Buffer, error) {
	switch format := DetectFormat(data); format {
	case FormatWAV:
		return DecodeWAV(data)
	case FormatMP3:
		return DecodeMP3(data)
	default:
		return nil, fmt.Errorf("%w: unrecognized container (%d bytes)", ErrUnsupportedFormat, len(data))
	}
}

// DecodeMP3 decodes MPEG audio. The decoder always produces 16-bit stereo.
func DecodeMP3(data []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create MP3 decoder: %w", ErrDecode, err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read MP3 frames: %w", ErrDecode, err)
	}

	const bytesPerFrame = 4 // 2 channels * 16 bit
	frames := len(raw) / bytesPerFrame
	if frames == 0 {
		return nil, fmt.Errorf("%w: no audio data found", ErrDecode)
	}

	left := make([]float32, frames)
	right := make([]float32, frames)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(raw[i*bytesPerFrame:]))
		r := int16(binary.LittleEndian.Uint16(raw[i*bytesPerFrame+2:]))
		left[i] = float32(l) / 32768
		right[i] = float32(r) / 32768
	}

	return NewBuffer(dec.SampleRate(), [][]float32{left, right})
}
