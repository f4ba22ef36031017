package hashutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseHash_StableAcrossWhitespaceAndCase(t *testing.T) {
	a := ResponseHash("Hello   World")
	b := ResponseHash("hello world")
	assert.Equal(t, a, b)
}

func TestResponseHash_DiffersOnContent(t *testing.T) {
	a := ResponseHash("hello world")
	b := ResponseHash("goodbye world")
	assert.NotEqual(t, a, b)
}

func TestNormalize_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  A\t\tB\n C  "))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("abc", "abc"))
	assert.Equal(t, 0.0, Similarity("abc", "def"))
	assert.Equal(t, 1.0, Similarity("", "def"))
}

func TestModalTracker_FirstObservationHasNoModalToCompareAgainst(t *testing.T) {
	tr := NewModalTracker()
	assert.Equal(t, 1.0, tr.Observe("svc", "/chat", "hash-a"))
}

func TestModalTracker_MatchingModalScoresSimilar(t *testing.T) {
	tr := NewModalTracker()
	tr.Observe("svc", "/chat", "hash-a")
	tr.Observe("svc", "/chat", "hash-a")
	assert.Equal(t, 1.0, tr.Observe("svc", "/chat", "hash-a"))
}

func TestModalTracker_DivergingResponseScoresDissimilar(t *testing.T) {
	tr := NewModalTracker()
	// Establish "hash-a" as the modal response with repeated observations.
	tr.Observe("svc", "/chat", "hash-a")
	tr.Observe("svc", "/chat", "hash-a")
	tr.Observe("svc", "/chat", "hash-a")

	assert.Equal(t, 0.0, tr.Observe("svc", "/chat", "hash-b"))
}

func TestModalTracker_PairsAreIndependent(t *testing.T) {
	tr := NewModalTracker()
	tr.Observe("svc", "/chat", "hash-a")
	tr.Observe("svc", "/chat", "hash-a")

	// A different (service, endpoint) pair has never seen "hash-a" as
	// modal, so it starts fresh regardless of the other pair's history.
	assert.Equal(t, 1.0, tr.Observe("other-svc", "/other", "hash-z"))
}
