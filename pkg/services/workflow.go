package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/agents"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/repositories"
)

// WorkflowService moves a session through the stages.
// Every operation loads the session, checks the transition table, runs the
// stage if there is one, and commits with a single compare-and-swap write.
// A failed operation never modifies the stored session.
type WorkflowService interface {
	RunClarifier(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	SubmitAnswers(ctx context.Context, sessionID uuid.UUID, answers map[string]any) (*models.Session, error)
	RunConflictResolver(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	ResolveConflict(ctx context.Context, sessionID uuid.UUID, chosenOption *int) (*models.Session, error)
	RunValidator(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	RunPrioritizer(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	Finalize(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
}

// Operation names a workflow transition.
type Operation string

const (
	OpRunClarifier        Operation = "runClarifier"
	OpSubmitAnswers       Operation = "submitAnswers"
	OpRunConflictResolver Operation = "runConflictResolver"
	OpResolveConflict     Operation = "resolveConflict"
	OpRunValidator        Operation = "runValidator"
	OpRunPrioritizer      Operation = "runPrioritizer"
	OpFinalize            Operation = "finalize"
)

type workflowService struct {
	sessions repositories.SessionRepository
	invoker  agents.Invoker
	logger   *zap.Logger
	now      func() time.Time
}

var _ WorkflowService = (*workflowService)(nil)

// NewWorkflowService creates a WorkflowService.
func NewWorkflowService(sessions repositories.SessionRepository, invoker agents.Invoker, logger *zap.Logger) WorkflowService {
	return &workflowService{
		sessions: sessions,
		invoker:  invoker,
		logger:   logger.Named("workflow"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *workflowService) RunClarifier(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return s.execute(ctx, sessionID, OpRunClarifier, opArgs{})
}

func (s *workflowService) SubmitAnswers(ctx context.Context, sessionID uuid.UUID, answers map[string]any) (*models.Session, error) {
	return s.execute(ctx, sessionID, OpSubmitAnswers, opArgs{answers: answers})
}

func (s *workflowService) RunConflictResolver(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return s.execute(ctx, sessionID, OpRunConflictResolver, opArgs{})
}

func (s *workflowService) ResolveConflict(ctx context.Context, sessionID uuid.UUID, chosenOption *int) (*models.Session, error) {
	return s.execute(ctx, sessionID, OpResolveConflict, opArgs{chosenOption: chosenOption})
}

func (s *workflowService) RunValidator(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return s.execute(ctx, sessionID, OpRunValidator, opArgs{})
}

func (s *workflowService) RunPrioritizer(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return s.execute(ctx, sessionID, OpRunPrioritizer, opArgs{})
}

func (s *workflowService) Finalize(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return s.execute(ctx, sessionID, OpFinalize, opArgs{})
}

func (s *workflowService) execute(ctx context.Context, sessionID uuid.UUID, op Operation, args opArgs) (*models.Session, error) {
	t, ok := transitions[op]
	if !ok {
		return nil, errors.New("unknown workflow operation: " + string(op))
	}

	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	from := sess.Status
	advance, err := t.admit(op, sess, args)
	if err != nil {
		s.logger.Debug("Transition rejected",
			zap.String("session_id", sessionID.String()),
			zap.String("operation", string(op)),
			zap.String("status", string(from)),
			zap.Error(err))
		return nil, err
	}

	if t.stage != "" {
		rec, err := s.invoker.Invoke(ctx, t.stage, t.input(sess))
		if err != nil {
			return nil, err
		}
		if err := t.apply(sess, rec); err != nil {
			s.logger.Warn("Stage output failed shape validation",
				zap.String("session_id", sessionID.String()),
				zap.String("stage", string(t.stage)),
				zap.Error(err))
			return nil, agents.NewInvalidResponse(t.stage, err)
		}
		s.recordRun(sess, t.stage)
	} else {
		t.mutate(sess, args)
	}

	if advance {
		sess.Status = t.to
	}

	if err := s.sessions.Update(ctx, sess); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			s.logger.Warn("Concurrent session update lost",
				zap.String("session_id", sessionID.String()),
				zap.String("operation", string(op)))
		}
		return nil, err
	}

	s.logger.Info("Session transition committed",
		zap.String("session_id", sessionID.String()),
		zap.String("operation", string(op)),
		zap.String("from", string(from)),
		zap.String("to", string(sess.Status)),
		zap.Bool("rerun", !advance),
		zap.Int64("revision", sess.Revision))

	return sess, nil
}

func (s *workflowService) recordRun(sess *models.Session, stage models.Stage) {
	if sess.StageRuns == nil {
		sess.StageRuns = make(map[models.Stage]models.StageRun)
	}
	run := sess.StageRuns[stage]
	run.Runs++
	run.LastRunAt = s.now()
	sess.StageRuns[stage] = run
}
