// Package vad locates speech in a decoded recording. It derives a band-limited
// amplitude envelope from PCM and uses it to snap approximate recognizer
// timestamps onto the true onset and offset of each spoken segment.
package vad
