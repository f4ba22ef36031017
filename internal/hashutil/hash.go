// Package hashutil computes the stable, length-independent response
// fingerprint the worker pool stores as Span.ResponseHash (§4.3 step 3).
package hashutil

import (
	"encoding/hex"
	"strings"
	"sync"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// ResponseHash normalises text (lowercase, whitespace-collapsed) and
// returns a stable hex-encoded xxhash64 fingerprint.
func ResponseHash(text string) string {
	normalized := Normalize(text)
	sum := xxhash.Sum64String(normalized)
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(sum >> (8 * (7 - i)))
	}
	return hex.EncodeToString(buf[:])
}

// Normalize lowercases text and collapses runs of whitespace to a single
// space, so near-identical responses hash identically regardless of
// incidental formatting differences.
func Normalize(text string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteByte(' ')
				lastWasSpace = true
			}
			continue
		}
		b.WriteRune(unicode.ToLower(r))
		lastWasSpace = false
	}
	return b.String()
}

// Similarity returns a coarse [0,1] similarity between two response hashes:
// 1 when equal or when either hash is empty, 0 otherwise. The hash is opaque
// by design (§9), so this is
// the only comparison the core itself can make without the semantic
// scoring hook; internal/anomaly uses it as the hash_similarity signal.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 1
	}
	if a == b {
		return 1
	}
	return 0
}

// modalKey identifies one (service, endpoint) pair's response-hash frequency
// table.
type modalKey struct {
	service  string
	endpoint string
}

// ModalTracker keeps a running count of ResponseHash values per (service,
// endpoint) and tracks whichever hash is currently most frequent — the
// "modal response" the hash-only quality_drop rule (§4.4) compares against
// when no external scoring.Scorer is wired.
type ModalTracker struct {
	mu     sync.Mutex
	counts map[modalKey]map[string]int
	modal  map[modalKey]string
}

// NewModalTracker builds an empty ModalTracker.
func NewModalTracker() *ModalTracker {
	return &ModalTracker{
		counts: make(map[modalKey]map[string]int),
		modal:  make(map[modalKey]string),
	}
}

// Observe records hash as a new observation for (service, endpoint) and
// returns its Similarity against the modal hash as it stood *before* this
// observation was folded in, so a span is never scored against itself. The
// first hash ever seen for a pair has no modal to compare against yet and
// reports similarity 1 (no baseline, no drop).
func (t *ModalTracker) Observe(service, endpoint, hash string) float64 {
	if hash == "" {
		return 1
	}
	k := modalKey{service: service, endpoint: endpoint}

	t.mu.Lock()
	defer t.mu.Unlock()

	prevModal := t.modal[k]
	similarity := 1.0
	if prevModal != "" {
		similarity = Similarity(hash, prevModal)
	}

	counts, ok := t.counts[k]
	if !ok {
		counts = make(map[string]int)
		t.counts[k] = counts
	}
	counts[hash]++
	if prevModal == "" || counts[hash] > counts[prevModal] {
		t.modal[k] = hash
	}

	return similarity
}
