// Package service orchestrates judging: it admits submissions, runs the
// sandbox, applies scores through the registry, persists settles, and
// fans state out to subscribers.
package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"arena/internal/admission"
	"arena/internal/common/mq"
	"arena/internal/contest"
	"arena/internal/realtime"
	"arena/internal/sandbox"
	"arena/internal/store"
	"arena/internal/taskbank"
	"arena/pkg/errors"
	"arena/pkg/utils/logger"
)

// Deps bundles everything a ContestService needs. All fields are required
// except Sources and Producer, which degrade to no-ops.
type Deps struct {
	Registry  *contest.Registry
	Store     store.Store
	Sources   *store.SourceArchive
	Bank      taskbank.Provider
	Runner    sandbox.Runner
	Admission *admission.Controller
	Hub       *realtime.Hub
	Producer  mq.Producer
	Topic     string
}

// ContestService is the application-level facade over the judging core.
// One instance is constructed at startup and shared by all handlers.
type ContestService struct {
	registry  *contest.Registry
	store     store.Store
	sources   *store.SourceArchive
	bank      taskbank.Provider
	runner    sandbox.Runner
	admission *admission.Controller
	hub       *realtime.Hub
	producer  mq.Producer
	topic     string
}

// NewContestService wires the service from its dependencies.
func NewContestService(deps Deps) *ContestService {
	producer := deps.Producer
	if producer == nil {
		producer = mq.NopProducer{}
	}
	return &ContestService{
		registry:  deps.Registry,
		store:     deps.Store,
		sources:   deps.Sources,
		bank:      deps.Bank,
		runner:    deps.Runner,
		admission: deps.Admission,
		hub:       deps.Hub,
		producer:  producer,
		topic:     deps.Topic,
	}
}

// TestDetail is one per-test line in a submission response.
type TestDetail struct {
	TestNum int    `json:"test_num"`
	Verdict string `json:"verdict"`
	Error   string `json:"error,omitempty"`
}

// PracticeResult is the outcome of a practice-mode run, outside any
// contest.
type PracticeResult struct {
	PassedCount int          `json:"passed_count"`
	TotalTests  int          `json:"total_tests"`
	Correct     bool         `json:"correct"`
	Details     []TestDetail `json:"details"`
}

// SubmitResult is the outcome of a contest-mode submission.
type SubmitResult struct {
	PassedCount int          `json:"passed_count"`
	TotalTests  int          `json:"total_tests"`
	NewScore    int          `json:"new_score"`
	Attempts    int          `json:"attempts"`
	Penalty     int          `json:"penalty"`
	Passed      bool         `json:"passed"`
	Details     []TestDetail `json:"details"`
}

// judge runs one batch under the global admission bound.
func (s *ContestService) judge(ctx context.Context, submission sandbox.Submission, tests []sandbox.TestCase) (*sandbox.BatchResult, error) {
	start := time.Now()
	defer func() { judgeDuration.Observe(time.Since(start).Seconds()) }()

	if err := s.admission.Acquire(ctx); err != nil {
		judgedTotal.WithLabelValues(outcomeError).Inc()
		return nil, errors.Wrapf(err, errors.JudgeSystemError, "waiting for judging slot")
	}
	defer s.admission.Release()

	result, err := s.runner.Run(ctx, submission, tests)
	if err != nil {
		judgedTotal.WithLabelValues(outcomeError).Inc()
		return nil, errors.Wrapf(err, errors.JudgeSystemError, "sandbox run failed")
	}
	judgedTotal.WithLabelValues(outcomeOf(result.FullyAccepted())).Inc()
	return result, nil
}

// detailsOf expands a batch result into per-test lines. A global error is
// reported against every test in the battery.
func detailsOf(result *sandbox.BatchResult, totalTests int) []TestDetail {
	if result.GlobalError != nil {
		details := make([]TestDetail, totalTests)
		for i := range details {
			details[i] = TestDetail{
				TestNum: i + 1,
				Verdict: string(result.GlobalError.Kind),
				Error:   result.GlobalError.Detail,
			}
		}
		return details
	}
	details := make([]TestDetail, 0, len(result.Verdicts))
	for _, v := range result.Verdicts {
		details = append(details, TestDetail{
			TestNum: v.TestNum,
			Verdict: string(v.Verdict),
			Error:   v.Stderr,
		})
	}
	return details
}

// PracticeRun judges a submission against a task outside any contest.
func (s *ContestService) PracticeRun(ctx context.Context, taskID int64, language, source string) (*PracticeResult, error) {
	lang, err := sandbox.ParseLanguage(language)
	if err != nil {
		return nil, err
	}
	tests, err := s.bank.Tests(ctx, taskID)
	if err != nil {
		return nil, err
	}

	result, err := s.judge(ctx, sandbox.Submission{Source: source, Language: lang}, tests)
	if err != nil {
		return nil, err
	}
	return &PracticeResult{
		PassedCount: result.PassedCount(),
		TotalTests:  len(tests),
		Correct:     result.FullyAccepted(),
		Details:     detailsOf(result, len(tests)),
	}, nil
}

// Submit judges a contest submission end to end. The in-flight slot
// reserved by BeginSubmission is released on every exit path, and the
// participant's state is autosaved after each settle.
func (s *ContestService) Submit(ctx context.Context, contestID, participantID string, taskID int64, language, source string) (*SubmitResult, error) {
	ctx = logger.WithValues(ctx, contestID, participantID)

	lang, err := sandbox.ParseLanguage(language)
	if err != nil {
		return nil, err
	}

	begin, err := s.registry.BeginSubmission(ctx, contestID, participantID, taskID, source)
	if err != nil {
		return nil, err
	}
	defer func() {
		s.registry.ReleaseSubmission(contestID, participantID)
		s.autosave(ctx, contestID, participantID)
		s.broadcastStatus(ctx, contestID)
	}()

	tests, err := s.bank.Tests(ctx, taskID)
	if err != nil {
		return nil, err
	}

	s.hub.Broadcast(ctx, contestID, realtime.Event{
		Type:    realtime.EventSubmissionPending,
		Payload: realtime.PendingPayload{ParticipantID: participantID, TaskID: taskID},
	})

	result, err := s.judge(ctx, sandbox.Submission{Source: source, Language: lang}, tests)
	if err != nil {
		return nil, err
	}

	newScore, err := s.registry.SettleSubmission(ctx, contestID, participantID, taskID, begin, result)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, eventSubmissionSettled, contestID)

	return &SubmitResult{
		PassedCount: result.PassedCount(),
		TotalTests:  len(tests),
		NewScore:    newScore.Score,
		Attempts:    newScore.Attempts,
		Penalty:     newScore.Penalty,
		Passed:      newScore.Passed,
		Details:     detailsOf(result, len(tests)),
	}, nil
}

// CreateContest validates the task list against the bank and registers a
// new contest, persisting it immediately so a restart can rebuild it.
func (s *ContestService) CreateContest(ctx context.Context, taskIDs []int64, cfg contest.Config) (*contest.Contest, error) {
	for _, tid := range taskIDs {
		if _, err := s.bank.Task(ctx, tid); err != nil {
			return nil, err
		}
	}
	c, err := s.registry.Create(ctx, taskIDs, cfg)
	if err != nil {
		return nil, err
	}
	s.persistContest(ctx, c)
	return c, nil
}

// Join admits a participant and pushes a fresh snapshot to the room.
func (s *ContestService) Join(ctx context.Context, contestID string, req contest.JoinRequest) (*contest.JoinResult, error) {
	res, err := s.registry.Join(ctx, contestID, req)
	if err != nil {
		return nil, err
	}
	s.broadcastStatus(ctx, contestID)
	return res, nil
}

// StartContest transitions a contest to running and announces it.
func (s *ContestService) StartContest(ctx context.Context, contestID string) error {
	if err := s.registry.Start(ctx, contestID); err != nil {
		return err
	}
	if c, err := s.registry.Export(contestID); err == nil {
		s.persistContest(ctx, c)
	}
	s.hub.Broadcast(ctx, contestID, realtime.Event{Type: realtime.EventContestStarted})
	s.broadcastStatus(ctx, contestID)
	s.publishEvent(ctx, realtime.EventContestStarted, contestID)
	return nil
}

// FinishContest ends a contest on the host's request: the final state is
// archived, the room is closed, and the live entry is evicted.
func (s *ContestService) FinishContest(ctx context.Context, contestID string) error {
	archived, err := s.registry.FinishByHost(ctx, contestID)
	if err != nil {
		return err
	}
	s.archiveContest(ctx, archived)
	s.hub.CloseRoom(ctx, contestID, realtime.Event{
		Type:    realtime.EventContestFinished,
		Payload: contest.SnapshotOf(archived),
	})
	s.publishEvent(ctx, realtime.EventContestFinished, contestID)
	contestsFinished.WithLabelValues(triggerHost).Inc()
	return nil
}

// Disqualify bars a participant and pushes the updated scoreboard.
func (s *ContestService) Disqualify(ctx context.Context, contestID, participantID string) error {
	if err := s.registry.Disqualify(ctx, contestID, participantID); err != nil {
		return err
	}
	s.autosave(ctx, contestID, participantID)
	s.broadcastStatus(ctx, contestID)
	return nil
}

// FinishEarly records a participant's own terminal exit.
func (s *ContestService) FinishEarly(ctx context.Context, contestID, participantID string) error {
	if err := s.registry.FinishEarly(ctx, contestID, participantID); err != nil {
		return err
	}
	s.autosave(ctx, contestID, participantID)
	s.broadcastStatus(ctx, contestID)
	return nil
}

// State is what a status read returns: a live snapshot while the contest
// is in memory, archived standings afterwards.
type State struct {
	Live     *contest.Snapshot      `json:"live,omitempty"`
	Archived *store.ArchivedResults `json:"archived,omitempty"`
}

// State returns the current view of a contest, falling back to the store
// once the contest has left memory.
func (s *ContestService) State(ctx context.Context, contestID string) (*State, error) {
	snap, err := s.registry.Snapshot(ctx, contestID)
	if err == nil {
		return &State{Live: snap}, nil
	}
	if !errors.Is(err, errors.ContestNotFound) && !errors.Is(err, errors.ContestEnded) {
		return nil, err
	}
	archived, archErr := s.store.FetchArchivedResults(ctx, contestID)
	if archErr != nil {
		if errors.Is(archErr, errors.RecordNotFound) {
			return nil, errors.New(errors.ContestNotFound)
		}
		return nil, archErr
	}
	return &State{Archived: archived}, nil
}

// Snapshot returns the live projection only.
func (s *ContestService) Snapshot(ctx context.Context, contestID string) (*contest.Snapshot, error) {
	return s.registry.Snapshot(ctx, contestID)
}

// Whitelist management for closed contests.

func (s *ContestService) AddWhitelistEntry(ctx context.Context, contestID, nickname, organization, password string) error {
	return s.store.AddWhitelistEntry(ctx, contestID, nickname, organization, password)
}

func (s *ContestService) RemoveWhitelistEntry(ctx context.Context, contestID, nickname string) error {
	return s.store.RemoveWhitelistEntry(ctx, contestID, nickname)
}

func (s *ContestService) ListWhitelist(ctx context.Context, contestID string) ([]contest.WhitelistEntry, error) {
	return s.store.ListWhitelist(ctx, contestID)
}

// broadcastStatus pushes the latest full snapshot to the contest room.
func (s *ContestService) broadcastStatus(ctx context.Context, contestID string) {
	snap, err := s.registry.Snapshot(ctx, contestID)
	if err != nil {
		return
	}
	s.hub.Broadcast(ctx, contestID, realtime.Event{
		Type:    realtime.EventFullStatusUpdate,
		Payload: snap,
	})
}

// autosave persists one participant's state. Failures are logged and
// never surface; the live registry stays the source of truth.
func (s *ContestService) autosave(ctx context.Context, contestID, participantID string) {
	saved, err := s.registry.ExportParticipant(contestID, participantID)
	if err != nil {
		return
	}
	if err := s.store.UpsertParticipant(ctx, contestID, participantID, saved); err != nil {
		logger.Error(ctx, "participant autosave failed", zap.Error(err))
	}
	if err := s.store.UpsertSubmissions(ctx, contestID, participantID, saved.LastSubmissions); err != nil {
		logger.Error(ctx, "submissions autosave failed", zap.Error(err))
	}
}

// archiveContest flushes an evicted contest to durable storage.
func (s *ContestService) archiveContest(ctx context.Context, c *contest.Contest) {
	s.persistContest(ctx, c)
	for id, p := range c.Participants {
		saved := &contest.SavedParticipant{
			Nickname:        p.Nickname,
			Organization:    p.Organization,
			Scores:          p.Scores,
			LastSubmissions: p.LastSubmissions,
			Disqualified:    p.Disqualified,
		}
		if err := s.store.UpsertParticipant(ctx, c.ID, id, saved); err != nil {
			logger.Error(ctx, "archive participant failed",
				zap.String("participant_id", id), zap.Error(err))
		}
		if err := s.store.UpsertSubmissions(ctx, c.ID, id, p.LastSubmissions); err != nil {
			logger.Error(ctx, "archive submissions failed",
				zap.String("participant_id", id), zap.Error(err))
		}
		if s.sources != nil {
			if err := s.sources.ArchiveSources(ctx, c.ID, id, p.LastSubmissions); err != nil {
				logger.Warn(ctx, "archive sources failed",
					zap.String("participant_id", id), zap.Error(err))
			}
		}
	}
}

func (s *ContestService) persistContest(ctx context.Context, c *contest.Contest) {
	saved := &contest.SavedContest{
		ID:        c.ID,
		Status:    c.Status,
		TaskIDs:   c.TaskIDs,
		Config:    c.Config,
		StartTime: c.StartTime,
	}
	if err := s.store.UpsertContest(ctx, saved); err != nil {
		logger.Error(ctx, "contest persist failed",
			zap.String("contest_id", c.ID), zap.Error(err))
	}
}

// eventSubmissionSettled is stream-only; rooms get the full snapshot
// broadcast instead.
const eventSubmissionSettled = "submission_settled"

// publishEvent mirrors a lifecycle event onto the stream, best-effort.
func (s *ContestService) publishEvent(ctx context.Context, eventType, contestID string) {
	if s.topic == "" {
		return
	}
	body, err := json.Marshal(map[string]interface{}{
		"event":      eventType,
		"contest_id": contestID,
		"at":         time.Now().UTC(),
	})
	if err != nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.producer.Publish(publishCtx, s.topic, &mq.Message{
		Key:  []byte(contestID),
		Body: body,
	}); err != nil {
		logger.Warn(ctx, "publish lifecycle event failed",
			zap.String("event", eventType), zap.Error(err))
	}
}
