// Package recognizer is the HTTP client for the external speech recognizer.
//
// The recognizer receives the recording together with the script lines and
// answers with approximate start and end times per line. Those timings are
// imprecise at both edges; the vad package refines them afterwards.
package recognizer
