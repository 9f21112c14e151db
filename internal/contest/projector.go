package contest

import (
	"context"
	"sort"
	"time"
)

// ScoreboardRow is one participant's line in a snapshot.
type ScoreboardRow struct {
	ParticipantID string              `json:"participant_id"`
	Nickname      string              `json:"nickname"`
	Organization  string              `json:"organization,omitempty"`
	Scores        map[int64]TaskScore `json:"scores"`
	TotalScore    int                 `json:"total_score"`
	TotalPenalty  int                 `json:"total_penalty"`
	Disqualified  bool                `json:"disqualified"`
}

// Snapshot is an immutable full-state projection of one contest, built
// under a single lock acquisition and safe to hand to any number of
// readers. Each broadcast is a full-state replace, never a delta.
type Snapshot struct {
	ContestID        string          `json:"contest_id"`
	Status           Status          `json:"status"`
	Scoring          ScoringMode     `json:"scoring"`
	DurationMinutes  int             `json:"duration_minutes"`
	RemainingSeconds float64         `json:"remaining_seconds"`
	TaskIDs          []int64         `json:"task_ids"`
	Participants     []string        `json:"participants"`
	Scoreboard       []ScoreboardRow `json:"scoreboard"`
}

// Snapshot projects the current state of a live contest. The status is
// reported as stored; expiry transitions are driven by the sweeper, not
// by reads.
func (r *Registry) Snapshot(ctx context.Context, contestID string) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookupLocked(ctx, contestID)
	if err != nil {
		return nil, err
	}
	return project(c, r.now()), nil
}

// SnapshotOf projects an exported contest copy, used for a finished
// contest that already left the registry.
func SnapshotOf(c *Contest) *Snapshot {
	return project(c, time.Now())
}

func project(c *Contest, now time.Time) *Snapshot {
	snap := &Snapshot{
		ContestID:        c.ID,
		Status:           c.Status,
		Scoring:          c.Config.Scoring,
		DurationMinutes:  c.Config.DurationMinutes,
		RemainingSeconds: c.remaining(now),
		TaskIDs:          append([]int64(nil), c.TaskIDs...),
		Participants:     make([]string, 0, len(c.Participants)),
		Scoreboard:       make([]ScoreboardRow, 0, len(c.Participants)),
	}

	for id, p := range c.Participants {
		snap.Participants = append(snap.Participants, p.Nickname)

		row := ScoreboardRow{
			ParticipantID: id,
			Nickname:      p.Nickname,
			Organization:  p.Organization,
			Scores:        make(map[int64]TaskScore, len(p.Scores)),
			Disqualified:  p.Disqualified,
		}
		for tid, s := range p.Scores {
			row.Scores[tid] = *s
			row.TotalScore += s.Score
			if s.Passed {
				row.TotalPenalty += s.Penalty
			}
		}
		snap.Scoreboard = append(snap.Scoreboard, row)
	}

	sort.Strings(snap.Participants)
	if c.Config.Scoring == ScoringICPC {
		// Higher score wins; at equal score the lower penalty ranks first.
		sort.Slice(snap.Scoreboard, func(i, j int) bool {
			a, b := snap.Scoreboard[i], snap.Scoreboard[j]
			if a.TotalScore != b.TotalScore {
				return a.TotalScore > b.TotalScore
			}
			if a.TotalPenalty != b.TotalPenalty {
				return a.TotalPenalty < b.TotalPenalty
			}
			return a.Nickname < b.Nickname
		})
	} else {
		sort.Slice(snap.Scoreboard, func(i, j int) bool {
			a, b := snap.Scoreboard[i], snap.Scoreboard[j]
			if a.TotalScore != b.TotalScore {
				return a.TotalScore > b.TotalScore
			}
			return a.Nickname < b.Nickname
		})
	}
	return snap
}
