package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuzzyScoreIdentical(t *testing.T) {
	assert.Equal(t, 1.0, fuzzyScore("auth-refactor", "auth-refactor"))
}

func TestFuzzyScoreEmptyBoth(t *testing.T) {
	assert.Equal(t, 1.0, fuzzyScore("", ""))
}

func TestFuzzyScoreBoundary(t *testing.T) {
	// "kitten" -> "sitten" is a single substitution; max len 6, so
	// score is 1 - 1/6 ~= 0.833, well above the 0.4 cutoff.
	got := fuzzyScore("kitten", "sitten")
	assert.InDelta(t, 1.0-1.0/6.0, got, 1e-9)
}

func TestFuzzyScoreExactlyAtThresholdPasses(t *testing.T) {
	// "abcde" -> "xyzde" is 3 substitutions over a max length of 5, so
	// the score lands exactly on the 0.4 cutoff, which ChainSearch
	// filters with >=, not >.
	got := fuzzyScore("abcde", "xyzde")
	assert.InDelta(t, fuzzyThreshold, got, 1e-9)
	assert.GreaterOrEqual(t, got, fuzzyThreshold)
}

func TestFuzzyScoreBelowThreshold(t *testing.T) {
	got := fuzzyScore("alpha", "zzzzzzzz")
	assert.Less(t, got, fuzzyThreshold)
}

func TestLevenshteinEmptyOperand(t *testing.T) {
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 3, levenshtein("abc", ""))
}

func TestLevenshteinUnicode(t *testing.T) {
	// Runs on runes, not bytes, so multi-byte characters count as one edit.
	assert.Equal(t, 1, levenshtein("café", "cafe"))
}

func TestSubstringBonusCapsAtOne(t *testing.T) {
	// An exact match scores 1.0 before the bonus; substringBonus must not
	// push it past the documented cap.
	score := minF(fuzzyScore("release-v2", "release-v2")+substringBonus, 1.0)
	assert.Equal(t, 1.0, score)
}

func TestSnippetShortBodyReturnedWhole(t *testing.T) {
	body := "short body with the needle in it"
	assert.Equal(t, body, snippet(body, "needle"))
}

func TestSnippetNoMatchTruncatesFromStart(t *testing.T) {
	body := make([]byte, snippetWidth+50)
	for i := range body {
		body[i] = 'a'
	}
	got := snippet(string(body), "needle")
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSnippetCentersOnMatch(t *testing.T) {
	prefix := make([]byte, snippetWidth)
	for i := range prefix {
		prefix[i] = 'x'
	}
	body := string(prefix) + "NEEDLE" + string(prefix)
	got := snippet(body, "NEEDLE")
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Contains(t, got, "NEEDLE")
}
