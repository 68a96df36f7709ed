// Package audio holds the decoded source recording of a narration document.
// It sniffs the container of imported recordings, decodes WAV and MP3 data to
// float PCM, and encodes rendered PCM back to 16-bit WAV for export.
package audio
