// Package store persists contest state durably. Every settle event is
// upserted so a crashed server can rebuild live contests and restore
// participants; finished contests remain queryable as archived results.
package store

import (
	"context"
	"sort"

	"arena/internal/contest"
)

// ArchivedRow is one participant's final standing in a finished contest.
type ArchivedRow struct {
	ParticipantID string                       `json:"participant_id"`
	Nickname      string                       `json:"nickname"`
	Organization  string                       `json:"organization,omitempty"`
	Scores        map[int64]*contest.TaskScore `json:"scores"`
	TotalScore    int                          `json:"total_score"`
	TotalPenalty  int                          `json:"total_penalty"`
	Disqualified  bool                         `json:"disqualified"`
}

// ArchivedResults is the stored standings of a contest that left memory.
type ArchivedResults struct {
	ContestID string              `json:"contest_id"`
	Scoring   contest.ScoringMode `json:"scoring"`
	Rows      []ArchivedRow       `json:"rows"`
}

// sortArchivedRows orders standings the way the live scoreboard does:
// score descending, then penalty ascending, then nickname.
func sortArchivedRows(r *ArchivedResults) {
	sort.Slice(r.Rows, func(i, j int) bool {
		a, b := r.Rows[i], r.Rows[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.TotalPenalty != b.TotalPenalty {
			return a.TotalPenalty < b.TotalPenalty
		}
		return a.Nickname < b.Nickname
	})
}

// Store is the full persistence contract. It embeds the narrow surface
// the contest registry consults for recovery and credentials.
type Store interface {
	contest.Store

	UpsertContest(ctx context.Context, c *contest.SavedContest) error
	UpsertParticipant(ctx context.Context, contestID, participantID string, p *contest.SavedParticipant) error
	UpsertSubmissions(ctx context.Context, contestID, participantID string, sources map[int64]string) error
	FetchArchivedResults(ctx context.Context, contestID string) (*ArchivedResults, error)

	AddWhitelistEntry(ctx context.Context, contestID, nickname, organization, password string) error
	RemoveWhitelistEntry(ctx context.Context, contestID, nickname string) error
	ListWhitelist(ctx context.Context, contestID string) ([]contest.WhitelistEntry, error)
}
