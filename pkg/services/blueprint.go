package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/repositories"
)

// RiskNotAssessed is reported in summaries until the validator has run.
const RiskNotAssessed = "Not assessed"

// BlueprintService assembles read views of a session.
type BlueprintService interface {
	// CompileBlueprint merges every stage output of a prioritized or complete
	// session. Earlier statuses return *apperrors.NotReadyError.
	CompileBlueprint(ctx context.Context, sessionID uuid.UUID) (*BlueprintView, error)
	// CompileSummary renders whatever the session has so far. Absent outputs
	// are replaced by empty values; it does not fail on partial sessions.
	CompileSummary(ctx context.Context, sessionID uuid.UUID) (*SummaryView, error)
}

// BlueprintView is the merged document for a finished session.
type BlueprintView struct {
	SessionID          uuid.UUID                  `json:"sessionId"`
	UserIdea           string                     `json:"userIdea"`
	Status             models.SessionStatus       `json:"status"`
	ClarifierOutput    models.ClarifierOutput     `json:"clarifierOutput"`
	ClarifierAnswers   map[string]any             `json:"clarifierAnswers"`
	ConflictOutput     models.ConflictOutput      `json:"conflictOutput"`
	ConflictResolution *models.ConflictResolution `json:"conflictResolution"`
	ValidatorOutput    models.ValidatorOutput     `json:"validatorOutput"`
	PrioritizerOutput  models.PrioritizerOutput   `json:"prioritizerOutput"`
	CreatedAt          time.Time                  `json:"createdAt"`
	UpdatedAt          time.Time                  `json:"updatedAt"`

	// Field names kept for existing blueprint consumers.
	ProjectName       string                   `json:"projectName"`
	Requirements      models.DraftRequirements `json:"requirements"`
	ConflictsResolved []models.Conflict        `json:"conflictsResolved"`
	FeasibilityReport models.FeasibilityReport `json:"feasibilityReport"`
	Roadmap           models.PrioritizerOutput `json:"roadmap"`
	LastUpdated       time.Time                `json:"lastUpdated"`
}

// SummaryView is the progress report for a session at any status.
type SummaryView struct {
	SessionID      uuid.UUID                  `json:"sessionId"`
	UserID         uuid.UUID                  `json:"userId"`
	ProjectIdea    string                     `json:"projectIdea"`
	Status         models.SessionStatus       `json:"status"`
	CreatedAt      time.Time                  `json:"createdAt"`
	UpdatedAt      time.Time                  `json:"updatedAt"`
	Clarifier      ClarifierSummary           `json:"clarifier"`
	Conflicts      []models.Conflict          `json:"conflicts"`
	Resolution     *models.ConflictResolution `json:"resolution"`
	Validation     ValidationSummary          `json:"validation"`
	Prioritization models.PrioritizerOutput   `json:"prioritization"`
	StaleStages    []models.Stage             `json:"staleStages"`
	FinalSummary   string                     `json:"finalSummary"`
}

// ClarifierSummary groups the clarifier output with the user's answers.
type ClarifierSummary struct {
	Questions         []string                 `json:"questions"`
	DraftRequirements models.DraftRequirements `json:"draftRequirements"`
	UserAnswers       map[string]any           `json:"userAnswers"`
}

// ValidationSummary is the validator output with the risk level as display text.
type ValidationSummary struct {
	FeasibilityReport models.FeasibilityReport `json:"feasibilityReport"`
	RiskLevel         string                   `json:"riskLevel"`
}

type blueprintService struct {
	sessions repositories.SessionRepository
}

var _ BlueprintService = (*blueprintService)(nil)

// NewBlueprintService creates a BlueprintService.
func NewBlueprintService(sessions repositories.SessionRepository) BlueprintService {
	return &blueprintService{sessions: sessions}
}

func (s *blueprintService) CompileBlueprint(ctx context.Context, sessionID uuid.UUID) (*BlueprintView, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusPrioritized && sess.Status != models.StatusComplete {
		return nil, &apperrors.NotReadyError{Status: string(sess.Status)}
	}
	return BuildBlueprint(sess), nil
}

func (s *blueprintService) CompileSummary(ctx context.Context, sessionID uuid.UUID) (*SummaryView, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return BuildSummary(sess), nil
}

// BuildBlueprint merges sess into a BlueprintView without checking its status.
func BuildBlueprint(sess *models.Session) *BlueprintView {
	clarifier := clarifierOrEmpty(sess.ClarifierOutput)
	conflicts := conflictsOrEmpty(sess.ConflictOutput)
	validation := validationOrEmpty(sess.ValidatorOutput)
	priorities := prioritiesOrEmpty(sess.PrioritizerOutput)

	return &BlueprintView{
		SessionID:          sess.ID,
		UserIdea:           sess.UserIdea,
		Status:             sess.Status,
		ClarifierOutput:    clarifier,
		ClarifierAnswers:   answersOrEmpty(sess.ClarifierAnswers),
		ConflictOutput:     models.ConflictOutput{Conflicts: conflicts},
		ConflictResolution: sess.ConflictResolution,
		ValidatorOutput:    validation,
		PrioritizerOutput:  priorities,
		CreatedAt:          sess.CreatedAt,
		UpdatedAt:          sess.UpdatedAt,

		ProjectName:       sess.UserIdea,
		Requirements:      clarifier.DraftRequirements,
		ConflictsResolved: conflicts,
		FeasibilityReport: validation.FeasibilityReport,
		Roadmap:           priorities,
		LastUpdated:       sess.UpdatedAt,
	}
}

// BuildSummary renders sess at whatever status it has reached.
func BuildSummary(sess *models.Session) *SummaryView {
	clarifier := clarifierOrEmpty(sess.ClarifierOutput)
	priorities := prioritiesOrEmpty(sess.PrioritizerOutput)

	risk := RiskNotAssessed
	var report models.FeasibilityReport
	if sess.ValidatorOutput != nil {
		report = sess.ValidatorOutput.FeasibilityReport
		if sess.ValidatorOutput.RiskLevel != "" {
			risk = string(sess.ValidatorOutput.RiskLevel)
		}
	}

	v := &SummaryView{
		SessionID:   sess.ID,
		UserID:      sess.UserID,
		ProjectIdea: sess.UserIdea,
		Status:      sess.Status,
		CreatedAt:   sess.CreatedAt,
		UpdatedAt:   sess.UpdatedAt,
		Clarifier: ClarifierSummary{
			Questions:         clarifier.Questions,
			DraftRequirements: clarifier.DraftRequirements,
			UserAnswers:       answersOrEmpty(sess.ClarifierAnswers),
		},
		Conflicts:  conflictsOrEmpty(sess.ConflictOutput),
		Resolution: sess.ConflictResolution,
		Validation: ValidationSummary{
			FeasibilityReport: report,
			RiskLevel:         risk,
		},
		Prioritization: priorities,
		StaleStages:    StaleStages(sess),
	}
	v.FinalSummary = digest(v)
	return v
}

// StaleStages lists stages whose last run is older than the last run of an
// earlier stage, in pipeline order. Stages that never ran are not stale.
func StaleStages(sess *models.Session) []models.Stage {
	stale := []models.Stage{}
	var newestUpstream time.Time
	for _, stage := range models.AllStages {
		run, ok := sess.StageRuns[stage]
		if !ok || run.Runs == 0 {
			continue
		}
		if run.LastRunAt.Before(newestUpstream) {
			stale = append(stale, stage)
		}
		if run.LastRunAt.After(newestUpstream) {
			newestUpstream = run.LastRunAt
		}
	}
	return stale
}

func digest(v *SummaryView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project Idea: %s\n", v.ProjectIdea)
	fmt.Fprintf(&b, "Status: %s\n", v.Status)
	fmt.Fprintf(&b, "Feasibility: %s\n", v.Validation.RiskLevel)
	fmt.Fprintf(&b, "Number of Clarifier Questions: %d\n", len(v.Clarifier.Questions))
	fmt.Fprintf(&b, "Number of Conflicts Resolved: %d\n", len(v.Conflicts))
	fmt.Fprintf(&b, "Must-Have Features: %s\n", joinOrNone(v.Prioritization.MustHave))
	fmt.Fprintf(&b, "Should-Have Features: %s\n", joinOrNone(v.Prioritization.ShouldHave))
	fmt.Fprintf(&b, "Nice-to-Have Features: %s", joinOrNone(v.Prioritization.NiceToHave))
	return b.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}

func clarifierOrEmpty(c *models.ClarifierOutput) models.ClarifierOutput {
	out := models.ClarifierOutput{}
	if c != nil {
		out = *c
	}
	out.Questions = stringsOrEmpty(out.Questions)
	out.DraftRequirements.CoreFeatures = stringsOrEmpty(out.DraftRequirements.CoreFeatures)
	return out
}

func conflictsOrEmpty(c *models.ConflictOutput) []models.Conflict {
	if c == nil || c.Conflicts == nil {
		return []models.Conflict{}
	}
	return c.Conflicts
}

func validationOrEmpty(v *models.ValidatorOutput) models.ValidatorOutput {
	if v == nil {
		return models.ValidatorOutput{}
	}
	return *v
}

func prioritiesOrEmpty(p *models.PrioritizerOutput) models.PrioritizerOutput {
	out := models.PrioritizerOutput{}
	if p != nil {
		out = *p
	}
	out.MustHave = stringsOrEmpty(out.MustHave)
	out.ShouldHave = stringsOrEmpty(out.ShouldHave)
	out.NiceToHave = stringsOrEmpty(out.NiceToHave)
	return out
}

func answersOrEmpty(a map[string]any) map[string]any {
	if a == nil {
		return map[string]any{}
	}
	return a
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
