// Package alignment maps free-text snippets onto spans of a word timeline.
//
// The scan is a fixed-width window: target word k is compared with timeline
// token i+k only, so the cost is O(N*M). The first window that meets its
// threshold wins, even when a later window would match more exactly.
package alignment

import (
	"strings"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
)

// fuzzyThreshold is the share of target words a window must match once any
// word in it matched by containment or edit distance.
const fuzzyThreshold = 0.8

type wordMatch int

const (
	noMatch wordMatch = iota
	exactMatch
	fuzzyMatch
)

// Engine is a stateless aligner; the zero value is ready to use.
type Engine struct{}

func (Engine) Locate(snippet string, tl review.WordTimeline) review.AlignmentResult {
	return Locate(snippet, tl)
}

func (Engine) LocateExcluding(snippet string, tl review.WordTimeline, claimed []review.TokenRange) review.AlignmentResult {
	return LocateExcluding(snippet, tl, claimed)
}

// Locate returns the first window of tl matching snippet, or a not-found result.
func Locate(snippet string, tl review.WordTimeline) review.AlignmentResult {
	return LocateExcluding(snippet, tl, nil)
}

// LocateExcluding behaves like Locate but skips any window that overlaps a
// claimed range.
func LocateExcluding(snippet string, tl review.WordTimeline, claimed []review.TokenRange) review.AlignmentResult {
	targets := strings.Fields(review.Normalize(snippet))
	m := len(targets)
	n := len(tl)
	if m == 0 || n < m {
		return review.NotFound()
	}

	for i := 0; i <= n-m; i++ {
		if overlapsAny(review.TokenRange{Start: i, End: i + m - 1}, claimed) {
			continue
		}
		count, fuzzy := matchWindow(targets, tl[i:i+m])
		if !accepted(count, m, fuzzy) {
			continue
		}
		last := i + count - 1
		start := tl[i].StartSec
		end := tl[last].EndSec
		quality := review.MatchExact
		if fuzzy {
			quality = review.MatchFuzzy
		}
		return review.AlignmentResult{
			Found:             true,
			StartSec:          &start,
			EndSec:            &end,
			MatchedTokenRange: &review.TokenRange{Start: i, End: last},
			MatchQuality:      quality,
		}
	}
	return review.NotFound()
}

// matchWindow compares targets to window positionally and stops at the first
// word that does not match.
func matchWindow(targets []string, window review.WordTimeline) (count int, fuzzy bool) {
	for k, target := range targets {
		switch matchWord(window[k].Normalized(), target) {
		case exactMatch:
			count++
		case fuzzyMatch:
			count++
			fuzzy = true
		default:
			return count, fuzzy
		}
	}
	return count, fuzzy
}

func matchWord(token, target string) wordMatch {
	if token == "" {
		return noMatch
	}
	if token == target {
		return exactMatch
	}
	if strings.Contains(token, target) || strings.Contains(target, token) {
		return fuzzyMatch
	}
	if levenshtein(token, target) <= maxEdits(target) {
		return fuzzyMatch
	}
	return noMatch
}

func accepted(count, m int, fuzzy bool) bool {
	if count == 0 {
		return false
	}
	if fuzzy {
		return float64(count) >= fuzzyThreshold*float64(m)
	}
	return count == m
}

func overlapsAny(r review.TokenRange, claimed []review.TokenRange) bool {
	for _, c := range claimed {
		if r.Overlaps(c) {
			return true
		}
	}
	return false
}
