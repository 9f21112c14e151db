package contest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"arena/internal/sandbox"
	"arena/pkg/errors"
	"arena/pkg/utils/logger"
)

// contestIDLength is the length of the short opaque contest token.
const contestIDLength = 8

// Store is the narrow persistence surface the registry consults for
// recovery and closed-contest credentials. Failures are tolerated
// everywhere except whitelist validation.
type Store interface {
	FetchContest(ctx context.Context, contestID string) (*SavedContest, error)
	FetchParticipant(ctx context.Context, contestID, participantID string) (*SavedParticipant, error)
	ValidateWhitelist(ctx context.Context, contestID, nickname, password string) (*WhitelistEntry, error)
}

// Registry owns all live contests under one coarse mutex. Every read and
// write of contest state happens while holding it. The mutex is never held
// across a sandbox invocation.
type Registry struct {
	mu       sync.Mutex
	contests map[string]*Contest

	store Store
	now   func() time.Time
}

// NewRegistry creates an empty registry backed by the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{
		contests: make(map[string]*Contest),
		store:    store,
		now:      time.Now,
	}
}

// WithClock overrides the registry's time source. Used by tests that
// need to move contests across their deadlines.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// lookupLocked finds a live contest, rebuilding it from the store on a
// miss so that a restart does not lose running contests. Callers must
// hold r.mu.
func (r *Registry) lookupLocked(ctx context.Context, contestID string) (*Contest, error) {
	if c, ok := r.contests[contestID]; ok {
		return c, nil
	}
	saved, err := r.store.FetchContest(ctx, contestID)
	if err != nil {
		if !errors.Is(err, errors.RecordNotFound) {
			logger.Warn(ctx, "contest rebuild lookup failed", zap.Error(err))
		}
		return nil, errors.New(errors.ContestNotFound)
	}
	if saved.Status == StatusFinished {
		return nil, errors.New(errors.ContestEnded)
	}
	c := &Contest{
		ID:           saved.ID,
		Status:       saved.Status,
		TaskIDs:      append([]int64(nil), saved.TaskIDs...),
		Config:       saved.Config,
		StartTime:    saved.StartTime,
		Participants: make(map[string]*Participant),
	}
	r.contests[contestID] = c
	logger.Info(ctx, "contest rebuilt from store", zap.String("contest_id", contestID))
	return c, nil
}

// Create registers a new waiting contest and returns its short id.
func (r *Registry) Create(ctx context.Context, taskIDs []int64, cfg Config) (*Contest, error) {
	if len(taskIDs) == 0 {
		return nil, errors.Newf(errors.InvalidParams, "a contest needs at least one task")
	}
	if cfg.DurationMinutes <= 0 {
		return nil, errors.Newf(errors.InvalidParams, "duration must be positive")
	}
	switch cfg.Scoring {
	case ScoringAllOrNothing, ScoringPerTest, ScoringICPC:
	default:
		return nil, errors.Newf(errors.InvalidParams, "unknown scoring mode %q", cfg.Scoring)
	}
	if cfg.Access == "" {
		cfg.Access = AccessOpen
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()[:contestIDLength]
	for {
		if _, taken := r.contests[id]; !taken {
			break
		}
		id = uuid.NewString()[:contestIDLength]
	}

	c := &Contest{
		ID:           id,
		Status:       StatusWaiting,
		TaskIDs:      append([]int64(nil), taskIDs...),
		Config:       cfg,
		Participants: make(map[string]*Participant),
	}
	r.contests[id] = c
	return copyContest(c), nil
}

// JoinRequest carries a join attempt. ParticipantID is optional and set
// only when a returning client still holds its previous id.
type JoinRequest struct {
	Nickname      string
	Organization  string
	Password      string
	ParticipantID string
}

// JoinResult is the outcome of a successful join.
type JoinResult struct {
	ParticipantID string
	Status        Status
	Restored      bool
}

// Join admits a participant to a contest, restoring saved progress when
// available. Restoration failure never blocks the join.
func (r *Registry) Join(ctx context.Context, contestID string, req JoinRequest) (*JoinResult, error) {
	if req.Nickname == "" {
		return nil, errors.Newf(errors.InvalidParams, "nickname is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookupLocked(ctx, contestID)
	if err != nil {
		return nil, err
	}

	switch c.Config.Access {
	case AccessClosed:
		return r.joinClosedLocked(ctx, c, req)
	default:
		return r.joinOpenLocked(ctx, c, req)
	}
}

func (r *Registry) joinOpenLocked(ctx context.Context, c *Contest, req JoinRequest) (*JoinResult, error) {
	// A nickname belongs to one participant; reconnecting with it reuses
	// the existing id unless that participant is done.
	for id, p := range c.Participants {
		if p.Nickname != req.Nickname {
			continue
		}
		if p.Disqualified {
			return nil, errors.New(errors.Disqualified)
		}
		if p.FinishedEarly {
			return nil, errors.New(errors.AlreadyFinished)
		}
		return &JoinResult{ParticipantID: id, Status: c.Status}, nil
	}

	id := req.ParticipantID
	if id == "" {
		id = uuid.NewString()
	}
	restored := r.admitLocked(ctx, c, id, req.Nickname, req.Organization)
	return &JoinResult{ParticipantID: id, Status: c.Status, Restored: restored}, nil
}

func (r *Registry) joinClosedLocked(ctx context.Context, c *Contest, req JoinRequest) (*JoinResult, error) {
	if req.Password == "" {
		return nil, errors.New(errors.WhitelistRequired)
	}
	entry, err := r.store.ValidateWhitelist(ctx, c.ID, req.Nickname, req.Password)
	if err != nil {
		if errors.Is(err, errors.RecordNotFound) || errors.Is(err, errors.WhitelistRejected) {
			return nil, errors.New(errors.WhitelistRejected)
		}
		logger.Error(ctx, "whitelist validation failed", zap.Error(err))
		return nil, errors.Wrapf(err, errors.DatabaseError, "whitelist validation failed")
	}

	if p, ok := c.Participants[entry.ID]; ok {
		if p.Disqualified {
			return nil, errors.New(errors.Disqualified)
		}
		if p.FinishedEarly {
			return nil, errors.New(errors.AlreadyFinished)
		}
		return &JoinResult{ParticipantID: entry.ID, Status: c.Status}, nil
	}

	organization := entry.Organization
	if organization == "" {
		organization = req.Organization
	}
	restored := r.admitLocked(ctx, c, entry.ID, req.Nickname, organization)
	return &JoinResult{ParticipantID: entry.ID, Status: c.Status, Restored: restored}, nil
}

// admitLocked inserts a participant, restoring stored progress when the
// store has any. Returns whether restoration happened.
func (r *Registry) admitLocked(ctx context.Context, c *Contest, id, nickname, organization string) bool {
	saved, err := r.store.FetchParticipant(ctx, c.ID, id)
	if err != nil {
		if !errors.Is(err, errors.RecordNotFound) {
			logger.Warn(ctx, "participant restore failed, joining fresh", zap.Error(err))
		}
		c.Participants[id] = newParticipant(id, nickname, organization, c.TaskIDs)
		return false
	}

	p := newParticipant(id, nickname, organization, c.TaskIDs)
	p.Disqualified = saved.Disqualified
	if saved.Organization != "" {
		p.Organization = saved.Organization
	}
	for tid, score := range saved.Scores {
		if _, known := p.Scores[tid]; known {
			s := *score
			p.Scores[tid] = &s
		}
	}
	for tid, source := range saved.LastSubmissions {
		if _, known := p.LastSubmissions[tid]; known {
			p.LastSubmissions[tid] = source
		}
	}
	c.Participants[id] = p
	logger.Info(ctx, "participant restored from store",
		zap.String("contest_id", c.ID), zap.String("participant_id", id))
	return true
}

// Start transitions a waiting contest to running and fixes its start time.
func (r *Registry) Start(ctx context.Context, contestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookupLocked(ctx, contestID)
	if err != nil {
		return err
	}
	if c.Status == StatusFinished {
		return errors.New(errors.ContestEnded)
	}
	if c.Status == StatusRunning {
		return nil
	}
	c.Status = StatusRunning
	c.StartTime = r.now()
	return nil
}

// FinishByHost marks a contest finished and evicts it, returning a deep
// copy for archival. Reads after eviction fall back to the store. Lookup
// goes through the store rebuild so a restarted server can still finish
// a persisted running contest.
func (r *Registry) FinishByHost(ctx context.Context, contestID string) (*Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookupLocked(ctx, contestID)
	if err != nil {
		return nil, err
	}
	c.Status = StatusFinished
	archived := copyContest(c)
	delete(r.contests, contestID)
	return archived, nil
}

// FinishExpired finishes and evicts every running contest whose deadline
// has passed, returning deep copies for archival and broadcast. Called by
// the periodic sweeper so that unobserved contests still terminate.
func (r *Registry) FinishExpired(ctx context.Context) []*Contest {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*Contest
	for id, c := range r.contests {
		if c.Status != StatusRunning || c.StartTime.IsZero() {
			continue
		}
		if now.Before(c.deadline()) {
			continue
		}
		c.Status = StatusFinished
		expired = append(expired, copyContest(c))
		delete(r.contests, id)
	}
	return expired
}

// Disqualify zeroes every task score of a participant, preserving attempts
// and penalties, and bars further participation.
func (r *Registry) Disqualify(ctx context.Context, contestID, participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookupLocked(ctx, contestID)
	if err != nil {
		return err
	}
	p, ok := c.Participants[participantID]
	if !ok {
		return errors.New(errors.NotAParticipant)
	}
	p.Disqualified = true
	p.FinishedEarly = true
	for _, score := range p.Scores {
		score.Score = 0
	}
	return nil
}

// FinishEarly is a participant's terminal self-transition.
func (r *Registry) FinishEarly(ctx context.Context, contestID, participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookupLocked(ctx, contestID)
	if err != nil {
		return err
	}
	p, ok := c.Participants[participantID]
	if !ok {
		return errors.New(errors.NotAParticipant)
	}
	p.FinishedEarly = true
	return nil
}

// BeginSubmission validates and reserves one in-flight submission slot,
// recording the source as the task's last submission. Every accepted call
// must be paired with exactly one ReleaseSubmission on any outcome. A
// rejected call consumes no slot.
func (r *Registry) BeginSubmission(ctx context.Context, contestID, participantID string, taskID int64, source string) (TaskScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero TaskScore
	c, err := r.lookupLocked(ctx, contestID)
	if err != nil {
		return zero, err
	}
	p, ok := c.Participants[participantID]
	if !ok {
		return zero, errors.New(errors.NotAParticipant)
	}
	score, ok := p.Scores[taskID]
	if !ok {
		return zero, errors.New(errors.TaskNotFound)
	}

	if p.Disqualified {
		return zero, errors.New(errors.Disqualified)
	}
	if p.FinishedEarly {
		return zero, errors.New(errors.AlreadyFinished)
	}
	if c.Status == StatusWaiting {
		return zero, errors.New(errors.ContestNotStarted)
	}
	if c.Status != StatusRunning {
		return zero, errors.New(errors.ContestEnded)
	}
	if r.now().After(c.deadline()) {
		return zero, errors.New(errors.ContestTimeUp)
	}
	if p.pending >= MaxInFlight {
		return zero, errors.New(errors.TooManyInFlight)
	}

	p.pending++
	p.LastSubmissions[taskID] = source

	// Passed tasks never re-enter the executor in these modes; the slot
	// just reserved is handed back immediately.
	if (c.Config.Scoring == ScoringAllOrNothing || c.Config.Scoring == ScoringICPC) && score.Passed {
		p.pending--
		return zero, errors.New(errors.AlreadySolved)
	}
	return *score, nil
}

// ReleaseSubmission hands back an in-flight slot. Safe to call when the
// contest or participant has meanwhile been evicted.
func (r *Registry) ReleaseSubmission(contestID, participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contests[contestID]
	if !ok {
		return
	}
	p, ok := c.Participants[participantID]
	if !ok {
		return
	}
	if p.pending > 0 {
		p.pending--
	}
}

// SettleSubmission applies a judged batch to the participant's task state.
// begin is the TaskScore returned by BeginSubmission; its attempt count
// anchors the ICPC penalty so failures that settled while this batch was
// in the sandbox do not inflate it. If the contest ended or the
// participant was disqualified while the sandbox ran, the result is
// discarded.
func (r *Registry) SettleSubmission(ctx context.Context, contestID, participantID string, taskID int64, begin TaskScore, result *sandbox.BatchResult) (TaskScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero TaskScore
	c, ok := r.contests[contestID]
	if !ok || c.Status != StatusRunning {
		return zero, errors.New(errors.ContestEnded)
	}
	p, ok := c.Participants[participantID]
	if !ok {
		return zero, errors.New(errors.ParticipantGone)
	}
	if p.Disqualified {
		return zero, errors.New(errors.Disqualified)
	}
	score, ok := p.Scores[taskID]
	if !ok {
		return zero, errors.New(errors.TaskNotFound)
	}

	next := applyBatch(c.Config.Scoring, *score, begin.Attempts, result, r.now().Sub(c.StartTime))
	*score = next
	return next, nil
}

// ExportParticipant returns a deep copy of a participant's durable state
// for persistence.
func (r *Registry) ExportParticipant(contestID, participantID string) (*SavedParticipant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contests[contestID]
	if !ok {
		return nil, errors.New(errors.ContestNotFound)
	}
	p, ok := c.Participants[participantID]
	if !ok {
		return nil, errors.New(errors.NotAParticipant)
	}
	return exportParticipant(p), nil
}

// Export returns a deep copy of a live contest, or ContestNotFound if it
// was evicted.
func (r *Registry) Export(contestID string) (*Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contests[contestID]
	if !ok {
		return nil, errors.New(errors.ContestNotFound)
	}
	return copyContest(c), nil
}

func exportParticipant(p *Participant) *SavedParticipant {
	scores := make(map[int64]*TaskScore, len(p.Scores))
	for tid, s := range p.Scores {
		c := *s
		scores[tid] = &c
	}
	sources := make(map[int64]string, len(p.LastSubmissions))
	for tid, src := range p.LastSubmissions {
		sources[tid] = src
	}
	return &SavedParticipant{
		Nickname:        p.Nickname,
		Organization:    p.Organization,
		Scores:          scores,
		LastSubmissions: sources,
		Disqualified:    p.Disqualified,
	}
}

func copyContest(c *Contest) *Contest {
	out := &Contest{
		ID:           c.ID,
		Status:       c.Status,
		TaskIDs:      append([]int64(nil), c.TaskIDs...),
		Config:       c.Config,
		StartTime:    c.StartTime,
		Participants: make(map[string]*Participant, len(c.Participants)),
	}
	for id, p := range c.Participants {
		saved := exportParticipant(p)
		out.Participants[id] = &Participant{
			ID:              id,
			Nickname:        saved.Nickname,
			Organization:    saved.Organization,
			Scores:          saved.Scores,
			LastSubmissions: saved.LastSubmissions,
			FinishedEarly:   p.FinishedEarly,
			Disqualified:    p.Disqualified,
			pending:         p.pending,
		}
	}
	return out
}
