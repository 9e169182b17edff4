package flagging

import (
	"strings"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
	"github.com/yungbote/clipreview-backend/internal/modules/review/alignment"
)

// Locator is the slice of the alignment engine the assembler needs.
type Locator interface {
	Locate(snippet string, tl review.WordTimeline) review.AlignmentResult
	LocateExcluding(snippet string, tl review.WordTimeline, claimed []review.TokenRange) review.AlignmentResult
}

type Options struct {
	// DistinctDuplicates makes a repeated phrase skip the spans already
	// claimed by its earlier occurrences. Off by default: every occurrence
	// resolves to the earliest matching window.
	DistinctDuplicates bool
}

type Assembler struct {
	locator Locator
	opts    Options
}

func NewAssembler(locator Locator, opts Options) *Assembler {
	if locator == nil {
		locator = alignment.Engine{}
	}
	return &Assembler{locator: locator, opts: opts}
}

// Assemble aligns each classified section once, keeping classifier order.
func (a *Assembler) Assemble(transcriptText string, tl review.WordTimeline, cls review.ClassificationResult) []review.FlaggedSegment {
	out := make([]review.FlaggedSegment, 0, len(cls.Sections))
	lowerTranscript := strings.ToLower(transcriptText)
	claimed := map[string][]review.TokenRange{}

	for _, cand := range cls.Sections {
		var res review.AlignmentResult
		if a.opts.DistinctDuplicates {
			key := review.Normalize(cand.Text)
			res = a.locator.LocateExcluding(cand.Text, tl, claimed[key])
			if res.Found && res.MatchedTokenRange != nil {
				claimed[key] = append(claimed[key], *res.MatchedTokenRange)
			}
		} else {
			res = a.locator.Locate(cand.Text, tl)
		}

		out = append(out, review.FlaggedSegment{
			Text:           cand.Text,
			Reason:         cand.Reason,
			Severity:       cand.Severity,
			CategoryScores: cls.CategoryScores,
			Alignment:      res,
			TextOffset:     textOffset(lowerTranscript, cand.Text),
		})
	}
	return out
}

func textOffset(lowerTranscript, snippet string) int {
	s := strings.ToLower(strings.TrimSpace(snippet))
	if s == "" {
		return -1
	}
	return strings.Index(lowerTranscript, s)
}
