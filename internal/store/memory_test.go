package store

import (
	"context"
	"testing"

	"arena/internal/contest"
	"arena/pkg/errors"
)

func TestArchivedResultsOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.UpsertContest(ctx, &contest.SavedContest{
		ID:     "c1",
		Status: contest.StatusFinished,
		Config: contest.Config{DurationMinutes: 60, Scoring: contest.ScoringICPC},
	}); err != nil {
		t.Fatalf("UpsertContest: %v", err)
	}

	rows := map[string]*contest.SavedParticipant{
		"slow": {Nickname: "slow", Scores: map[int64]*contest.TaskScore{
			1: {Score: 1, Passed: true, Penalty: 90},
		}},
		"fast": {Nickname: "fast", Scores: map[int64]*contest.TaskScore{
			1: {Score: 1, Passed: true, Penalty: 12},
		}},
		"stuck": {Nickname: "stuck", Scores: map[int64]*contest.TaskScore{
			1: {Attempts: 4},
		}},
	}
	for id, p := range rows {
		if err := s.UpsertParticipant(ctx, "c1", id, p); err != nil {
			t.Fatalf("UpsertParticipant(%s): %v", id, err)
		}
	}

	results, err := s.FetchArchivedResults(ctx, "c1")
	if err != nil {
		t.Fatalf("FetchArchivedResults: %v", err)
	}
	if results.Scoring != contest.ScoringICPC {
		t.Errorf("scoring = %q", results.Scoring)
	}
	got := []string{results.Rows[0].Nickname, results.Rows[1].Nickname, results.Rows[2].Nickname}
	want := []string{"fast", "slow", "stuck"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("standings order = %v, want %v", got, want)
		}
	}
}

func TestArchivedResultsMissingContest(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.FetchArchivedResults(context.Background(), "nope"); !errors.Is(err, errors.RecordNotFound) {
		t.Errorf("expected RecordNotFound, got %v", err)
	}
}

func TestMemoryWhitelistLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.AddWhitelistEntry(ctx, "c1", "carol", "MIT", "s3cret"); err != nil {
		t.Fatalf("AddWhitelistEntry: %v", err)
	}

	entry, err := s.ValidateWhitelist(ctx, "c1", "carol", "s3cret")
	if err != nil {
		t.Fatalf("ValidateWhitelist: %v", err)
	}
	if entry.Organization != "MIT" || entry.ID == "" {
		t.Errorf("unexpected entry: %+v", entry)
	}

	if _, err := s.ValidateWhitelist(ctx, "c1", "carol", "wrong"); !errors.Is(err, errors.WhitelistRejected) {
		t.Errorf("wrong password: got %v", err)
	}

	listed, err := s.ListWhitelist(ctx, "c1")
	if err != nil || len(listed) != 1 {
		t.Fatalf("ListWhitelist = %v, %v", listed, err)
	}

	if err := s.RemoveWhitelistEntry(ctx, "c1", "carol"); err != nil {
		t.Fatalf("RemoveWhitelistEntry: %v", err)
	}
	if err := s.RemoveWhitelistEntry(ctx, "c1", "carol"); !errors.Is(err, errors.RecordNotFound) {
		t.Errorf("double remove: got %v", err)
	}
}
