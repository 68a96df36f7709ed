// Package playback drives live, seekable playback of a token timeline.
//
// Schedule plans which source ranges play when, for any start offset. The
// Player turns a plan into voices on an engine.Engine and owns the
// STOPPED/PLAYING/PAUSED state machine. The offline renderer reuses
// Schedule so an export matches uninterrupted playback sample for sample.
package playback
