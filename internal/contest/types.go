// Package contest holds the authoritative in-memory state of all live
// contests and the scoring rules that mutate it. All state is guarded by
// one coarse registry lock; the lock is never held across a sandbox call.
package contest

import (
	"time"
)

// Status is the lifecycle state of a contest.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
)

// ScoringMode selects how verdict batches map to scores.
type ScoringMode string

const (
	ScoringAllOrNothing ScoringMode = "all_or_nothing"
	ScoringPerTest      ScoringMode = "per_test"
	ScoringICPC         ScoringMode = "icpc"
)

// AccessMode selects how participants join.
type AccessMode string

const (
	// AccessOpen allows self-registration by nickname.
	AccessOpen AccessMode = "open"
	// AccessClosed requires a pre-provisioned nickname and password.
	AccessClosed AccessMode = "closed"
)

// Config is the immutable contest configuration fixed at creation.
type Config struct {
	DurationMinutes int         `json:"duration_minutes" yaml:"durationMinutes"`
	Scoring         ScoringMode `json:"scoring" yaml:"scoring"`
	Access          AccessMode  `json:"access" yaml:"access"`
}

// TaskScore is one participant's state for one task.
// Penalty is in minutes and used by ICPC scoring only; once Passed flips
// true it is frozen permanently.
type TaskScore struct {
	Score    int  `json:"score"`
	Attempts int  `json:"attempts"`
	Passed   bool `json:"passed"`
	Penalty  int  `json:"penalty"`
}

// Participant is one contestant's live state. Participants are never
// deleted, only flagged.
type Participant struct {
	ID              string
	Nickname        string
	Organization    string
	Scores          map[int64]*TaskScore
	LastSubmissions map[int64]string
	FinishedEarly   bool
	Disqualified    bool

	// pending counts in-flight submissions, bounded by MaxInFlight.
	pending int
}

// MaxInFlight bounds concurrent submissions per participant.
const MaxInFlight = 3

// Contest is one live contest entry owned by the registry until evicted.
type Contest struct {
	ID           string
	Status       Status
	TaskIDs      []int64
	Config       Config
	StartTime    time.Time
	Participants map[string]*Participant
}

// deadline returns the instant the contest ends, valid once started.
func (c *Contest) deadline() time.Time {
	return c.StartTime.Add(time.Duration(c.Config.DurationMinutes) * time.Minute)
}

// remaining returns seconds left at the given instant while running.
func (c *Contest) remaining(now time.Time) float64 {
	if c.Status != StatusRunning || c.StartTime.IsZero() {
		return 0
	}
	left := c.deadline().Sub(now).Seconds()
	if left < 0 {
		return 0
	}
	return left
}

func newParticipant(id, nickname, organization string, taskIDs []int64) *Participant {
	scores := make(map[int64]*TaskScore, len(taskIDs))
	sources := make(map[int64]string, len(taskIDs))
	for _, tid := range taskIDs {
		scores[tid] = &TaskScore{}
		sources[tid] = ""
	}
	return &Participant{
		ID:              id,
		Nickname:        nickname,
		Organization:    organization,
		Scores:          scores,
		LastSubmissions: sources,
	}
}

// SavedParticipant is the durable form of a participant, as stored and
// restored by the persistence layer.
type SavedParticipant struct {
	Nickname        string
	Organization    string
	Scores          map[int64]*TaskScore
	LastSubmissions map[int64]string
	Disqualified    bool
}

// SavedContest is the durable form of a contest entry, used to rebuild a
// live contest after a restart.
type SavedContest struct {
	ID        string
	Status    Status
	TaskIDs   []int64
	Config    Config
	StartTime time.Time
}

// WhitelistEntry is one pre-provisioned closed-contest credential. ID is
// the stable participant id reused across reconnects.
type WhitelistEntry struct {
	ID           string `json:"id"`
	Nickname     string `json:"nickname"`
	Organization string `json:"organization,omitempty"`
}
