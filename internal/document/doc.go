// Package document owns the lifecycle of open narration documents: decoding
// the recording, aligning and refining line timings, building the token
// timeline, attaching a player and persisting edits.
package document
