package flagging

import (
	"testing"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
	"github.com/yungbote/clipreview-backend/internal/modules/review/alignment"
)

type countingLocator struct {
	alignment.Engine
	calls    int
	excluded int
}

func (c *countingLocator) Locate(snippet string, tl review.WordTimeline) review.AlignmentResult {
	c.calls++
	return c.Engine.Locate(snippet, tl)
}

func (c *countingLocator) LocateExcluding(snippet string, tl review.WordTimeline, claimed []review.TokenRange) review.AlignmentResult {
	c.excluded++
	return c.Engine.LocateExcluding(snippet, tl, claimed)
}

func timeline(t *testing.T) (string, review.WordTimeline) {
	t.Helper()
	text := "Shut up. I said shut up, you idiot."
	tl, err := review.NewWordTimeline([]review.Token{
		{Text: "Shut", StartSec: 0.0, EndSec: 0.3},
		{Text: "up.", StartSec: 0.3, EndSec: 0.5},
		{Text: "I", StartSec: 1.0, EndSec: 1.1},
		{Text: "said", StartSec: 1.1, EndSec: 1.4},
		{Text: "shut", StartSec: 1.4, EndSec: 1.7},
		{Text: "up,", StartSec: 1.7, EndSec: 1.9},
		{Text: "you", StartSec: 1.9, EndSec: 2.0},
		{Text: "idiot.", StartSec: 2.0, EndSec: 2.5},
	})
	if err != nil {
		t.Fatalf("NewWordTimeline: %v", err)
	}
	return text, tl
}

func TestAssemblePreservesOrderAndLength(t *testing.T) {
	text, tl := timeline(t)
	scores := map[string]float64{"harassment": 0.91}
	cls := review.ClassificationResult{
		Flagged:        true,
		CategoryScores: scores,
		Sections: []review.FlaggedCandidate{
			{Text: "you idiot", Reason: "insult", Severity: review.SeverityMedium},
			{Text: "never said this", Reason: "hallucinated", Severity: review.SeverityLow},
			{Text: "Shut up", Reason: "hostile", Severity: review.SeverityHigh},
		},
	}

	loc := &countingLocator{}
	segs := NewAssembler(loc, Options{}).Assemble(text, tl, cls)

	if len(segs) != 3 {
		t.Fatalf("len: want=3 got=%d", len(segs))
	}
	if loc.calls != 3 || loc.excluded != 0 {
		t.Fatalf("locator calls: want=3/0 got=%d/%d", loc.calls, loc.excluded)
	}
	wantText := []string{"you idiot", "never said this", "Shut up"}
	for i, s := range segs {
		if s.Text != wantText[i] {
			t.Fatalf("order: idx %d want=%q got=%q", i, wantText[i], s.Text)
		}
		if s.CategoryScores["harassment"] != 0.91 {
			t.Fatalf("scores not shared on idx %d", i)
		}
	}
	if !segs[0].Alignment.Found || *segs[0].Alignment.StartSec != 1.9 {
		t.Fatalf("first segment alignment: %+v", segs[0].Alignment)
	}
	if segs[1].Alignment.Found || segs[1].Alignment.MatchQuality != review.MatchNone {
		t.Fatalf("unlocated segment: %+v", segs[1].Alignment)
	}
	if segs[1].TextOffset != -1 {
		t.Fatalf("unlocated offset: want=-1 got=%d", segs[1].TextOffset)
	}
	if segs[2].Severity != review.SeverityHigh || segs[2].Reason != "hostile" {
		t.Fatalf("candidate fields not carried: %+v", segs[2])
	}
	if segs[2].TextOffset != 0 {
		t.Fatalf("offset: want=0 got=%d", segs[2].TextOffset)
	}
}

func TestAssembleDuplicatesCollapseByDefault(t *testing.T) {
	text, tl := timeline(t)
	cls := review.ClassificationResult{
		CategoryScores: map[string]float64{},
		Sections: []review.FlaggedCandidate{
			{Text: "shut up", Reason: "a", Severity: review.SeverityLow},
			{Text: "shut up", Reason: "b", Severity: review.SeverityLow},
		},
	}
	loc := &countingLocator{}
	segs := NewAssembler(loc, Options{}).Assemble(text, tl, cls)
	if loc.calls != 2 {
		t.Fatalf("duplicate phrases must each be aligned: calls=%d", loc.calls)
	}
	if *segs[0].Alignment.StartSec != 0 || *segs[1].Alignment.StartSec != 0 {
		t.Fatalf("both duplicates should land on the first window: %v %v", *segs[0].Alignment.StartSec, *segs[1].Alignment.StartSec)
	}
}

func TestAssembleDistinctDuplicates(t *testing.T) {
	text, tl := timeline(t)
	cls := review.ClassificationResult{
		CategoryScores: map[string]float64{},
		Sections: []review.FlaggedCandidate{
			{Text: "shut up", Severity: review.SeverityLow},
			{Text: "Shut up!", Severity: review.SeverityLow},
			{Text: "shut up", Severity: review.SeverityLow},
		},
	}
	segs := NewAssembler(nil, Options{DistinctDuplicates: true}).Assemble(text, tl, cls)
	if *segs[0].Alignment.StartSec != 0 {
		t.Fatalf("first: want=0 got=%v", *segs[0].Alignment.StartSec)
	}
	if *segs[1].Alignment.StartSec != 1.4 {
		t.Fatalf("second: want=1.4 got=%v", *segs[1].Alignment.StartSec)
	}
	if segs[2].Alignment.Found {
		t.Fatalf("third: no unclaimed occurrence left, got=%+v", segs[2].Alignment)
	}
}

func TestAssembleNoSections(t *testing.T) {
	text, tl := timeline(t)
	segs := NewAssembler(nil, Options{}).Assemble(text, tl, review.ClassificationResult{CategoryScores: map[string]float64{}})
	if segs == nil || len(segs) != 0 {
		t.Fatalf("want empty non-nil slice got=%v", segs)
	}
}
