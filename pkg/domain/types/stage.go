package types

import "fmt"

// Stage is one of the fixed pipeline steps of a case workflow
type Stage string

const (
	StageIntake   Stage = "intake"
	StageResearch Stage = "research"
	StageDocument Stage = "document"
	StageStrategy Stage = "strategy"
	StageDrafting Stage = "drafting"
)

// AllStages returns the pipeline stages in execution order
func AllStages() []Stage {
	return []Stage{
		StageIntake,
		StageResearch,
		StageDocument,
		StageStrategy,
		StageDrafting,
	}
}

// StageCount is the number of stages in a full pipeline
const StageCount = 5

// IsValid checks if the stage is one of the pipeline stages
func (s Stage) IsValid() bool {
	return s.Index() >= 0
}

// Index returns the position of the stage in the pipeline, or -1 for unknown stages
func (s Stage) Index() int {
	for i, st := range AllStages() {
		if st == s {
			return i
		}
	}
	return -1
}

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}

// ParseStage parses a string into a Stage
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if !stage.IsValid() {
		return "", fmt.Errorf("invalid stage: %s", s)
	}
	return stage, nil
}
