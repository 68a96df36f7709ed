// Package engine is the audio engine behind playback and export.
//
// A Mixer keeps a sample-counting clock and executes declarative Voice
// commands ("play this source range at engine time T for D seconds")
// sample-accurately, applying a linear fade at both ends of every voice.
// Sinks drain a mixer: Device plays through the system audio output via
// miniaudio, NullSink advances the clock in real time without sound. The
// offline renderer drives a Mixer directly.
package engine
