// Package token models the narration timeline.
//
// A timeline is an ordered Sequence of tokens indexed from 0 without gaps.
// Audio tokens reference ranges of a single shared decoded recording; Pause
// and Paragraph tokens are silences. The package also converts recognizer
// input records into tokens and tokens to and from their storage form.
package token
