package services

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/artifact"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/logging"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
)

type opArgs struct {
	answers      map[string]any
	chosenOption *int
}

// transition is one row of the workflow table.
//
// An operation advances the session when its status is in from. When the
// status has already reached to (and the session is not complete) the
// operation is a re-run: the output is replaced and the status is kept.
// Any other status is rejected with a PreconditionError naming requires.
type transition struct {
	from     []models.SessionStatus
	to       models.SessionStatus
	requires string

	// guard reports a missing prerequisite as a guardFailure; other errors are returned as-is.
	guard func(s *models.Session, args opArgs) error

	// Agent operations set stage, input and apply.
	stage models.Stage
	input func(s *models.Session) map[string]any
	apply func(s *models.Session, rec artifact.Record) error

	// Operations without an agent set mutate.
	mutate func(s *models.Session, args opArgs)
}

// guardFailure names a prerequisite that is not met.
type guardFailure string

func (g guardFailure) Error() string { return string(g) }

var transitions = map[Operation]transition{
	OpRunClarifier: {
		from:     []models.SessionStatus{models.StatusStarted},
		to:       models.StatusClarified,
		requires: "session must be started",
		guard: func(s *models.Session, _ opArgs) error {
			if strings.TrimSpace(s.UserIdea) == "" {
				return guardFailure("session has no user idea")
			}
			return nil
		},
		stage: models.StageClarifier,
		input: func(s *models.Session) map[string]any {
			return map[string]any{"userIdea": s.UserIdea}
		},
		apply: applyClarifier,
	},
	OpSubmitAnswers: {
		from:     []models.SessionStatus{models.StatusClarified},
		to:       models.StatusAnswersSubmitted,
		requires: "clarifier agent must be run first",
		guard: func(s *models.Session, args opArgs) error {
			if s.ClarifierOutput == nil {
				return guardFailure("clarifier output is missing")
			}
			if len(args.answers) == 0 {
				return apperrors.NewValidationError("userAnswers", "must not be empty")
			}
			return nil
		},
		mutate: func(s *models.Session, args opArgs) {
			s.ClarifierAnswers = args.answers
		},
	},
	OpRunConflictResolver: {
		from:     []models.SessionStatus{models.StatusClarified, models.StatusAnswersSubmitted},
		to:       models.StatusConflictFound,
		requires: "clarifier agent must be run first",
		guard: func(s *models.Session, _ opArgs) error {
			if s.ClarifierOutput == nil {
				return guardFailure("draft requirements are missing")
			}
			return nil
		},
		stage: models.StageConflictResolver,
		input: func(s *models.Session) map[string]any {
			in := map[string]any{"draftRequirements": s.ClarifierOutput.DraftRequirements}
			if len(s.ClarifierAnswers) > 0 {
				in["clarifierAnswers"] = s.ClarifierAnswers
			}
			return in
		},
		apply: applyConflicts,
	},
	OpResolveConflict: {
		from:     []models.SessionStatus{models.StatusConflictFound},
		to:       models.StatusResolved,
		requires: "conflict resolver agent must be run first",
		guard: func(s *models.Session, args opArgs) error {
			if s.ConflictOutput == nil {
				return guardFailure("conflict output is missing")
			}
			if args.chosenOption == nil {
				return guardFailure("chosen option index is required")
			}
			return checkOptionIndex(s.ConflictOutput.Conflicts, *args.chosenOption)
		},
		mutate: func(s *models.Session, args opArgs) {
			snapshot := make([]models.Conflict, len(s.ConflictOutput.Conflicts))
			copy(snapshot, s.ConflictOutput.Conflicts)
			s.ConflictResolution = &models.ConflictResolution{
				ChosenOption:      *args.chosenOption,
				OriginalConflicts: snapshot,
			}
		},
	},
	OpRunValidator: {
		from:     []models.SessionStatus{models.StatusConflictFound, models.StatusResolved},
		to:       models.StatusValidated,
		requires: "conflict resolver agent must be run first",
		guard: func(s *models.Session, _ opArgs) error {
			if s.ClarifierOutput == nil {
				return guardFailure("draft requirements are missing")
			}
			if s.ConflictOutput == nil {
				return guardFailure("conflicts are missing")
			}
			return nil
		},
		stage: models.StageValidator,
		input: func(s *models.Session) map[string]any {
			in := map[string]any{
				"draftRequirements": s.ClarifierOutput.DraftRequirements,
				"conflicts":         nonNilConflicts(s.ConflictOutput.Conflicts),
			}
			if s.ConflictResolution != nil {
				in["conflictResolution"] = s.ConflictResolution
			}
			return in
		},
		apply: applyValidation,
	},
	OpRunPrioritizer: {
		from:     []models.SessionStatus{models.StatusValidated},
		to:       models.StatusPrioritized,
		requires: "validator agent must be run first",
		guard: func(s *models.Session, _ opArgs) error {
			if s.ValidatorOutput == nil {
				return guardFailure("feasibility report is missing")
			}
			return nil
		},
		stage: models.StagePrioritizer,
		input: func(s *models.Session) map[string]any {
			in := map[string]any{"feasibilityReport": s.ValidatorOutput.FeasibilityReport}
			if s.ClarifierOutput != nil {
				in["draftRequirements"] = s.ClarifierOutput.DraftRequirements
			}
			return in
		},
		apply: applyPriorities,
	},
	OpFinalize: {
		from:     []models.SessionStatus{models.StatusPrioritized},
		to:       models.StatusComplete,
		requires: "prioritizer agent must be run first",
		guard: func(s *models.Session, _ opArgs) error {
			if s.PrioritizerOutput == nil {
				return guardFailure("prioritizer output is missing")
			}
			return nil
		},
		mutate: func(*models.Session, opArgs) {},
	},
}

// admit checks status and guard. It reports whether the operation advances
// the status (false for a re-run).
func (t transition) admit(op Operation, s *models.Session, args opArgs) (bool, error) {
	advance := false
	for _, st := range t.from {
		if s.Status == st {
			advance = true
			break
		}
	}

	if !advance {
		switch {
		case s.Status == models.StatusComplete:
			return false, &apperrors.PreconditionError{Operation: string(op), Missing: "session is already complete"}
		case !s.Status.AtLeast(t.to):
			return false, &apperrors.PreconditionError{Operation: string(op), Missing: t.requires}
		}
	}

	if err := t.guard(s, args); err != nil {
		if gf, ok := err.(guardFailure); ok {
			return false, &apperrors.PreconditionError{Operation: string(op), Missing: string(gf)}
		}
		return false, err
	}
	return advance, nil
}

// checkOptionIndex accepts an index valid for at least one conflict's options.
func checkOptionIndex(conflicts []models.Conflict, idx int) error {
	maxOptions := 0
	for _, c := range conflicts {
		if len(c.Options) > maxOptions {
			maxOptions = len(c.Options)
		}
	}
	if maxOptions == 0 {
		return apperrors.NewValidationError("chosenOptionIndex", "there are no options to choose from")
	}
	if idx < 0 || idx >= maxOptions {
		return apperrors.NewValidationError("chosenOptionIndex",
			fmt.Sprintf("must be between 0 and %d", maxOptions-1))
	}
	return nil
}

func nonNilConflicts(c []models.Conflict) []models.Conflict {
	if c == nil {
		return []models.Conflict{}
	}
	return c
}

// Stage responses as the model may phrase them. jsonutil types absorb
// scalars where strings are expected and a single string where a list is.

type clarifierResponse struct {
	Questions         jsonutil.StringList `json:"questions"`
	DraftRequirements *struct {
		CoreFeatures   jsonutil.StringList `json:"coreFeatures"`
		Aesthetics     jsonutil.String     `json:"aesthetics"`
		TargetAudience jsonutil.String     `json:"targetAudience"`
	} `json:"draftRequirements"`
}

type conflictResponse struct {
	Conflicts *[]struct {
		Issue   jsonutil.String     `json:"issue"`
		Options jsonutil.StringList `json:"options"`
	} `json:"conflicts"`
}

type validatorResponse struct {
	FeasibilityReport *struct {
		Technical jsonutil.String `json:"technical"`
		Market    jsonutil.String `json:"market"`
		Business  jsonutil.String `json:"business"`
	} `json:"feasibilityReport"`
	RiskLevel jsonutil.String `json:"riskLevel"`
}

type prioritizerResponse struct {
	MustHave   *jsonutil.StringList `json:"mustHave"`
	ShouldHave *jsonutil.StringList `json:"shouldHave"`
	NiceToHave *jsonutil.StringList `json:"niceToHave"`
}

func applyClarifier(s *models.Session, rec artifact.Record) error {
	resp, err := artifact.Decode[clarifierResponse](rec)
	if err != nil {
		return err
	}
	if len(resp.Questions) == 0 {
		return fmt.Errorf("clarifier returned no questions")
	}
	if resp.DraftRequirements == nil {
		return fmt.Errorf("clarifier returned no draftRequirements")
	}

	s.ClarifierOutput = &models.ClarifierOutput{
		Questions: []string(resp.Questions),
		DraftRequirements: models.DraftRequirements{
			CoreFeatures:   emptyIfNil(resp.DraftRequirements.CoreFeatures),
			Aesthetics:     string(resp.DraftRequirements.Aesthetics),
			TargetAudience: string(resp.DraftRequirements.TargetAudience),
		},
	}
	return nil
}

func applyConflicts(s *models.Session, rec artifact.Record) error {
	resp, err := artifact.Decode[conflictResponse](rec)
	if err != nil {
		return err
	}
	if resp.Conflicts == nil {
		return fmt.Errorf("conflict resolver returned no conflicts list")
	}

	conflicts := make([]models.Conflict, 0, len(*resp.Conflicts))
	for i, c := range *resp.Conflicts {
		if c.Issue == "" {
			return fmt.Errorf("conflict %d has no issue", i)
		}
		conflicts = append(conflicts, models.Conflict{
			Issue:   string(c.Issue),
			Options: emptyIfNil(c.Options),
		})
	}

	s.ConflictOutput = &models.ConflictOutput{Conflicts: conflicts}
	return nil
}

func applyValidation(s *models.Session, rec artifact.Record) error {
	resp, err := artifact.Decode[validatorResponse](rec)
	if err != nil {
		return err
	}
	if resp.FeasibilityReport == nil {
		return fmt.Errorf("validator returned no feasibilityReport")
	}
	risk := models.RiskLevel(strings.ToLower(string(resp.RiskLevel)))
	if !risk.Valid() {
		return fmt.Errorf("validator returned risk level %q, want low, medium or high", logging.TruncateString(string(resp.RiskLevel), 20))
	}

	s.ValidatorOutput = &models.ValidatorOutput{
		FeasibilityReport: models.FeasibilityReport{
			Technical: string(resp.FeasibilityReport.Technical),
			Market:    string(resp.FeasibilityReport.Market),
			Business:  string(resp.FeasibilityReport.Business),
		},
		RiskLevel: risk,
	}
	return nil
}

func applyPriorities(s *models.Session, rec artifact.Record) error {
	resp, err := artifact.Decode[prioritizerResponse](rec)
	if err != nil {
		return err
	}
	var missing []string
	if resp.MustHave == nil {
		missing = append(missing, "mustHave")
	}
	if resp.ShouldHave == nil {
		missing = append(missing, "shouldHave")
	}
	if resp.NiceToHave == nil {
		missing = append(missing, "niceToHave")
	}
	if len(missing) > 0 {
		return fmt.Errorf("prioritizer response is missing %s", strings.Join(missing, ", "))
	}

	s.PrioritizerOutput = &models.PrioritizerOutput{
		MustHave:   emptyIfNil(*resp.MustHave),
		ShouldHave: emptyIfNil(*resp.ShouldHave),
		NiceToHave: emptyIfNil(*resp.NiceToHave),
	}
	return nil
}

func emptyIfNil(l jsonutil.StringList) []string {
	if l == nil {
		return []string{}
	}
	return []string(l)
}
