package review

import (
	"fmt"
	"math"
	"strings"
)

// Token is one transcribed word pinned to the audio.
type Token struct {
	Text           string  `json:"text"`
	NormalizedText string  `json:"normalized_text"`
	StartSec       float64 `json:"start_sec"`
	EndSec         float64 `json:"end_sec"`
	Confidence     float64 `json:"confidence"`
}

// overlapTolerance absorbs rounding in provider timestamps (one millisecond).
const overlapTolerance = 0.001

// WordTimeline is the ordered, immutable token sequence of one transcript.
type WordTimeline []Token

// stripped is the fixed punctuation set removed before any comparison.
var stripped = strings.NewReplacer(
	".", "",
	",", "",
	"?", "",
	"!", "",
	";", "",
	":", "",
	"'", "",
	`"`, "",
)

// Normalize lower-cases s, strips the punctuation set, and collapses whitespace.
func Normalize(s string) string {
	s = stripped.Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

// NewWordTimeline copies tokens, fills NormalizedText, and checks ordering.
func NewWordTimeline(tokens []Token) (WordTimeline, error) {
	out := make(WordTimeline, len(tokens))
	for i, tok := range tokens {
		if !finite(tok.StartSec) || !finite(tok.EndSec) {
			return nil, &ProviderContractError{
				Provider: "transcriber",
				Field:    fmt.Sprintf("tokens[%d]", i),
				Reason:   "timestamp is not a finite number",
			}
		}
		if tok.StartSec > tok.EndSec {
			return nil, &ProviderContractError{
				Provider: "transcriber",
				Field:    fmt.Sprintf("tokens[%d]", i),
				Reason:   fmt.Sprintf("start %.3f after end %.3f", tok.StartSec, tok.EndSec),
			}
		}
		if i > 0 {
			prev := tokens[i-1]
			if tok.StartSec < prev.StartSec {
				return nil, &ProviderContractError{
					Provider: "transcriber",
					Field:    fmt.Sprintf("tokens[%d]", i),
					Reason:   "start time decreases",
				}
			}
			if tok.StartSec < prev.EndSec-overlapTolerance {
				return nil, &ProviderContractError{
					Provider: "transcriber",
					Field:    fmt.Sprintf("tokens[%d]", i),
					Reason:   "overlaps previous token",
				}
			}
		}
		tok.NormalizedText = Normalize(tok.Text)
		out[i] = tok
	}
	return out, nil
}

// Normalized returns the token's comparison form, computing it when the
// timeline was built without NewWordTimeline.
func (t Token) Normalized() string {
	if t.NormalizedText != "" {
		return t.NormalizedText
	}
	return Normalize(t.Text)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
