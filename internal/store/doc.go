// Package store persists documents on disk. Each document lives in its own
// directory holding the original encoded recording, the token list in
// storage form and a small metadata record. Writes are atomic.
package store
