package invoiceflow

import "fmt"

// Stage identifies one named step in the fixed processing pipeline.
type Stage string

const (
	StageIntake         Stage = "INTAKE"
	StageUnderstand     Stage = "UNDERSTAND"
	StagePrepare        Stage = "PREPARE"
	StageRetrieve       Stage = "RETRIEVE"
	StageMatchTwoWay    Stage = "MATCH_TWO_WAY"
	StageCheckpointHITL Stage = "CHECKPOINT_HITL"
	StageHITLDecision   Stage = "HITL_DECISION"
	StageReconcile      Stage = "RECONCILE"
	StageApprove        Stage = "APPROVE"
	StagePosting        Stage = "POSTING"
	StageNotify         Stage = "NOTIFY"
	StageComplete       Stage = "COMPLETE"
)

// StageOrder is the canonical pipeline order. CHECKPOINT_HITL and
// HITL_DECISION only execute on runs whose match score fails the threshold;
// every other stage is unconditional.
var StageOrder = []Stage{
	StageIntake,
	StageUnderstand,
	StagePrepare,
	StageRetrieve,
	StageMatchTwoWay,
	StageCheckpointHITL,
	StageHITLDecision,
	StageReconcile,
	StageApprove,
	StagePosting,
	StageNotify,
	StageComplete,
}

var stageIndex = func() map[Stage]int {
	m := make(map[Stage]int, len(StageOrder))
	for i, s := range StageOrder {
		m[s] = i
	}
	return m
}()

// ParseStage converts a string into a known Stage.
func ParseStage(name string) (Stage, error) {
	s := Stage(name)
	if _, ok := stageIndex[s]; !ok {
		return "", fmt.Errorf("unknown stage %q", name)
	}
	return s, nil
}

// Index returns the stage's position in the canonical order, or -1 for an
// unknown stage.
func (s Stage) Index() int {
	i, ok := stageIndex[s]
	if !ok {
		return -1
	}
	return i
}

// Before reports whether s precedes other in the canonical order.
func (s Stage) Before(other Stage) bool {
	return s.Index() < other.Index()
}

// successor returns the next stage in the canonical order. The MATCH_TWO_WAY
// branch and the suspend/resume jump are decided by the engine, not here.
func (s Stage) successor() (Stage, bool) {
	i := s.Index()
	if i < 0 || i == len(StageOrder)-1 {
		return "", false
	}
	return StageOrder[i+1], true
}
