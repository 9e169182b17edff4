package review

type MatchQuality string

const (
	MatchExact MatchQuality = "exact"
	MatchFuzzy MatchQuality = "fuzzy"
	MatchNone  MatchQuality = "none"
)

// TokenRange is an inclusive span of timeline indexes.
type TokenRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r TokenRange) Overlaps(o TokenRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

type AlignmentResult struct {
	Found             bool         `json:"found"`
	StartSec          *float64     `json:"start_sec,omitempty"`
	EndSec            *float64     `json:"end_sec,omitempty"`
	MatchedTokenRange *TokenRange  `json:"matched_token_range,omitempty"`
	MatchQuality      MatchQuality `json:"match_quality"`
}

// NotFound is the result of a snippet that could not be located.
func NotFound() AlignmentResult {
	return AlignmentResult{Found: false, MatchQuality: MatchNone}
}
