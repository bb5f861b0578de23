// Package capture fingerprints captured terminal output for cheap change
// detection and provides the line-level helpers the delta broadcast
// protocol is built on.
package capture

import (
	"hash/fnv"
	"strings"
)

// Fingerprint returns a cheap non-cryptographic hash of captured text.
// Collisions are acceptable: a missed change is repaired by the next poll,
// and a false change only costs one redundant broadcast.
func Fingerprint(text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(text))
	return h.Sum64()
}

// SplitLines splits captured output into lines without a trailing phantom
// entry when the text ends in a newline.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// FingerprintLines hashes the first n lines of the given line slice. The
// hub uses this to decide whether a new buffer is a strict extension of
// what a client already holds.
func FingerprintLines(lines []string, n int) uint64 {
	if n > len(lines) {
		n = len(lines)
	}
	h := fnv.New64a()
	for _, line := range lines[:n] {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return h.Sum64()
}
