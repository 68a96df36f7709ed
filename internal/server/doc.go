// Package server exposes documents over HTTP: creation from an uploaded
// recording, token trimming, transport control with a websocket state feed,
// WAV export, and the health, stats and Prometheus endpoints.
package server
