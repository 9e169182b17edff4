package pipeline

type Stage string

const (
	StageIdle         Stage = "idle"
	StageResolving    Stage = "resolving"
	StageDownloading  Stage = "downloading"
	StageTranscribing Stage = "transcribing"
	StageClassifying  Stage = "classifying"
	StageAssembling   Stage = "assembling"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// order is the happy path. Failed is reachable from every non-terminal stage.
var order = []Stage{
	StageIdle,
	StageResolving,
	StageDownloading,
	StageTranscribing,
	StageClassifying,
	StageAssembling,
	StageDone,
}

func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

func (s Stage) String() string { return string(s) }

// CanTransition reports whether a run may move from one stage to another.
func CanTransition(from, to Stage) bool {
	if from.Terminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	for i := 0; i+1 < len(order); i++ {
		if order[i] == from {
			return order[i+1] == to
		}
	}
	return false
}
