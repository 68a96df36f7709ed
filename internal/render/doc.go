// Package render produces the exported narration. It replays the playback
// schedule from time zero on a private mixer as fast as possible and encodes
// the result as WAV.
package render
