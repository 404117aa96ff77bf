// Package review runs a submission through the ledger gate and, only when the
// ledger accepts it, through the scoring oracle.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/reviewledger/internal/archive"
	"github.com/jmerrifield20/reviewledger/internal/ledger"
	"github.com/jmerrifield20/reviewledger/internal/scoring"
	"go.uber.org/zap"
)

// Recorder receives gate and scoring outcomes, e.g. for metrics.
type Recorder interface {
	RecordDecision(decision string)
	RecordVerdict(label string)
}

// Service contains the gate-then-score flow.
type Service struct {
	scorer   scoring.Scorer
	archive  archive.Archive // nil = no archive writes
	recorder Recorder        // nil = no metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates a Service. archive may be nil.
func NewService(scorer scoring.Scorer, arch archive.Archive, logger *zap.Logger) *Service {
	return &Service{
		scorer:  scorer,
		archive: arch,
		now:     time.Now,
		logger:  logger,
	}
}

// SetRecorder configures the outcome recorder.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// Check returns the decision the ledger's policy would reach for sub,
// without appending anything or calling the scorer.
func (s *Service) Check(l *ledger.Ledger, sub Submission) ledger.Decision {
	return l.Evaluate(sub.payload(s.now()))
}

// Analyze validates sub, offers it to the ledger and scores it if accepted.
// A rejection by the ledger is reported through Outcome, not as an error;
// the scorer is never called for rejected submissions.
func (s *Service) Analyze(ctx context.Context, l *ledger.Ledger, sessionID uuid.UUID, sub Submission) (*Outcome, error) {
	if err := sub.Validate(l.Policy().Name()); err != nil {
		return nil, err
	}

	rec, decision := l.Submit(sub.payload(s.now()))
	s.recordDecision(decision)
	if decision != ledger.Accepted {
		s.logger.Info("submission rejected by ledger",
			zap.String("user_id", sub.UserID),
			zap.String("product_id", sub.ProductID),
			zap.String("decision", decision.String()),
		)
		return &Outcome{Accepted: false, Decision: decision.String()}, nil
	}

	s.archiveRecord(ctx, sessionID, l.Policy().Name(), rec)

	score, err := s.scorer.Score(ctx, sub.Review)
	if err != nil {
		return nil, fmt.Errorf("score review: %w", err)
	}
	verdict, err := scoring.Classify(score)
	if err != nil {
		return nil, fmt.Errorf("classify score: %w", err)
	}
	if s.recorder != nil {
		s.recorder.RecordVerdict(verdict.Label)
	}

	s.logger.Info("review scored",
		zap.Int("sequence", rec.Sequence),
		zap.String("label", verdict.Label),
		zap.Float64("score", verdict.Score),
	)
	return &Outcome{
		Accepted: true,
		Decision: decision.String(),
		Record:   &rec,
		Verdict:  &verdict,
	}, nil
}

// archiveRecord mirrors rec to the archive in a non-fatal manner.
func (s *Service) archiveRecord(ctx context.Context, sessionID uuid.UUID, policy string, rec ledger.Record) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Store(ctx, sessionID, policy, rec); err != nil {
		s.logger.Error("archive store failed (non-fatal)",
			zap.Int("sequence", rec.Sequence),
			zap.Error(err),
		)
	}
}

func (s *Service) recordDecision(d ledger.Decision) {
	if s.recorder != nil {
		s.recorder.RecordDecision(d.String())
	}
}
