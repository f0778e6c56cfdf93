// Package models contains domain types for the blueprint service.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is a session's position in the workflow.
// Statuses are totally ordered:
//
//	started → clarified → answers_submitted → conflict_found → resolved → validated → prioritized → complete
type SessionStatus string

const (
	StatusStarted          SessionStatus = "started"
	StatusClarified        SessionStatus = "clarified"
	StatusAnswersSubmitted SessionStatus = "answers_submitted"
	StatusConflictFound    SessionStatus = "conflict_found"
	StatusResolved         SessionStatus = "resolved"
	StatusValidated        SessionStatus = "validated"
	StatusPrioritized      SessionStatus = "prioritized"
	StatusComplete         SessionStatus = "complete"
)

// ValidSessionStatuses lists every status in progress order.
var ValidSessionStatuses = []SessionStatus{
	StatusStarted,
	StatusClarified,
	StatusAnswersSubmitted,
	StatusConflictFound,
	StatusResolved,
	StatusValidated,
	StatusPrioritized,
	StatusComplete,
}

// Rank returns the position of s in the progress order, or -1 if s is unknown.
func (s SessionStatus) Rank() int {
	for i, v := range ValidSessionStatuses {
		if v == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	return s.Rank() >= 0
}

// AtLeast reports whether s has reached or passed other.
func (s SessionStatus) AtLeast(other SessionStatus) bool {
	return s.Valid() && s.Rank() >= other.Rank()
}

// Stage identifies one of the four generative steps.
type Stage string

const (
	StageClarifier        Stage = "clarifier"
	StageConflictResolver Stage = "conflict-resolver"
	StageValidator        Stage = "validator"
	StagePrioritizer      Stage = "prioritizer"
)

// AllStages lists the stages in pipeline order.
var AllStages = []Stage{
	StageClarifier,
	StageConflictResolver,
	StageValidator,
	StagePrioritizer,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, v := range AllStages {
		if v == s {
			return true
		}
	}
	return false
}

// Session is one product idea's progress through the stages.
// A stage output is set once the status reaches that stage; only a re-run
// of the same stage replaces it.
type Session struct {
	ID                 uuid.UUID           `json:"id"`
	UserIdea           string              `json:"userIdea"`
	UserID             uuid.UUID           `json:"userId"`
	Status             SessionStatus       `json:"status"`
	ClarifierOutput    *ClarifierOutput    `json:"clarifierOutput,omitempty"`
	ClarifierAnswers   map[string]any      `json:"clarifierAnswers,omitempty"`
	ConflictOutput     *ConflictOutput     `json:"conflictOutput,omitempty"`
	ConflictResolution *ConflictResolution `json:"conflictResolution,omitempty"`
	ValidatorOutput    *ValidatorOutput    `json:"validatorOutput,omitempty"`
	PrioritizerOutput  *PrioritizerOutput  `json:"prioritizerOutput,omitempty"`
	StageRuns          map[Stage]StageRun  `json:"stageRuns,omitempty"`
	Revision           int64               `json:"revision"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// StageRun records how often a stage has produced output and when it last did.
type StageRun struct {
	Runs      int       `json:"runs"`
	LastRunAt time.Time `json:"lastRunAt"`
}

// DraftRequirements is the clarifier's first cut at the product's requirements.
type DraftRequirements struct {
	CoreFeatures   []string `json:"coreFeatures"`
	Aesthetics     string   `json:"aesthetics"`
	TargetAudience string   `json:"targetAudience"`
}

// ClarifierOutput holds the clarifying questions and draft requirements.
type ClarifierOutput struct {
	Questions         []string          `json:"questions"`
	DraftRequirements DraftRequirements `json:"draftRequirements"`
}

// Conflict is a tension between requirements with the ways it could be resolved.
type Conflict struct {
	Issue   string   `json:"issue"`
	Options []string `json:"options"`
}

// ConflictOutput lists the conflicts found in the draft requirements.
type ConflictOutput struct {
	Conflicts []Conflict `json:"conflicts"`
}

// ConflictResolution records the user's choice together with the conflicts it answered.
type ConflictResolution struct {
	ChosenOption      int        `json:"chosenOption"`
	OriginalConflicts []Conflict `json:"originalConflicts"`
}

// RiskLevel is the validator's overall risk rating.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is one of low, medium or high.
func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// FeasibilityReport assesses the product from three angles.
type FeasibilityReport struct {
	Technical string `json:"technical"`
	Market    string `json:"market"`
	Business  string `json:"business"`
}

// ValidatorOutput is the validator's feasibility assessment.
type ValidatorOutput struct {
	FeasibilityReport FeasibilityReport `json:"feasibilityReport"`
	RiskLevel         RiskLevel         `json:"riskLevel"`
}

// PrioritizerOutput sorts features into release buckets.
type PrioritizerOutput struct {
	MustHave   []string `json:"mustHave"`
	ShouldHave []string `json:"shouldHave"`
	NiceToHave []string `json:"niceToHave"`
}
