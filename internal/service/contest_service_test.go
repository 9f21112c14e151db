package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"arena/internal/admission"
	"arena/internal/contest"
	"arena/internal/realtime"
	"arena/internal/sandbox"
	"arena/internal/store"
	"arena/internal/taskbank"
	"arena/pkg/errors"
)

// fakeRunner returns scripted batch results in order.
type fakeRunner struct {
	mu      sync.Mutex
	results []*sandbox.BatchResult
	err     error
	calls   int
}

func (f *fakeRunner) Run(ctx context.Context, sub sandbox.Submission, tests []sandbox.TestCase) (*sandbox.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return &sandbox.BatchResult{}, nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeBank serves a fixed battery for every task.
type fakeBank struct {
	tests map[int64][]sandbox.TestCase
}

func (f *fakeBank) Task(ctx context.Context, taskID int64) (*taskbank.Task, error) {
	if _, ok := f.tests[taskID]; !ok {
		return nil, errors.New(errors.TaskNotFound)
	}
	return &taskbank.Task{ID: taskID, Title: "task"}, nil
}

func (f *fakeBank) Tests(ctx context.Context, taskID int64) ([]sandbox.TestCase, error) {
	tests, ok := f.tests[taskID]
	if !ok {
		return nil, errors.New(errors.TestsNotFound)
	}
	return tests, nil
}

func accepted(n int) *sandbox.BatchResult {
	res := &sandbox.BatchResult{}
	for i := 0; i < n; i++ {
		res.Verdicts = append(res.Verdicts, sandbox.TestResult{TestNum: i + 1, Verdict: sandbox.VerdictAccepted})
	}
	return res
}

func partial(acceptedCount, total int) *sandbox.BatchResult {
	res := &sandbox.BatchResult{}
	for i := 0; i < total; i++ {
		v := sandbox.VerdictWrongAnswer
		if i < acceptedCount {
			v = sandbox.VerdictAccepted
		}
		res.Verdicts = append(res.Verdicts, sandbox.TestResult{TestNum: i + 1, Verdict: v})
	}
	return res
}

type fixture struct {
	svc    *ContestService
	runner *fakeRunner
	store  *store.MemoryStore
	clock  *time.Time
}

func newFixture(t *testing.T, testsPerTask map[int64][]sandbox.TestCase) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := &now

	memStore := store.NewMemoryStore()
	registry := contest.NewRegistry(memStore).WithClock(func() time.Time { return *clock })
	runner := &fakeRunner{}

	svc := NewContestService(Deps{
		Registry:  registry,
		Store:     memStore,
		Bank:      &fakeBank{tests: testsPerTask},
		Runner:    runner,
		Admission: admission.NewController(4),
		Hub:       realtime.NewHub(),
	})
	return &fixture{svc: svc, runner: runner, store: memStore, clock: clock}
}

func threeTests() map[int64][]sandbox.TestCase {
	return map[int64][]sandbox.TestCase{
		1: {{TimeLimit: 1}, {TimeLimit: 1}, {TimeLimit: 1}},
		2: {{TimeLimit: 1}, {TimeLimit: 1}, {TimeLimit: 1}},
	}
}

func (f *fixture) createRunning(t *testing.T, mode contest.ScoringMode) string {
	t.Helper()
	ctx := context.Background()
	c, err := f.svc.CreateContest(ctx, []int64{1, 2}, contest.Config{
		DurationMinutes: 60, Scoring: mode, Access: contest.AccessOpen,
	})
	if err != nil {
		t.Fatalf("CreateContest: %v", err)
	}
	if err := f.svc.StartContest(ctx, c.ID); err != nil {
		t.Fatalf("StartContest: %v", err)
	}
	return c.ID
}

func (f *fixture) join(t *testing.T, contestID, nickname string) string {
	t.Helper()
	res, err := f.svc.Join(context.Background(), contestID, contest.JoinRequest{Nickname: nickname})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	return res.ParticipantID
}

func TestScenarioAllOrNothingSolveOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeTests())
	id := f.createRunning(t, contest.ScoringAllOrNothing)
	alice := f.join(t, id, "alice")

	f.runner.results = []*sandbox.BatchResult{accepted(3)}
	res, err := f.svc.Submit(ctx, id, alice, 1, "Python", "print(1)")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.NewScore != 100 || !res.Passed || res.Attempts != 0 {
		t.Errorf("first submit: %+v", res)
	}
	if res.PassedCount != 3 || res.TotalTests != 3 {
		t.Errorf("pass counts: %+v", res)
	}

	// The second submission is rejected before any execution.
	if _, err := f.svc.Submit(ctx, id, alice, 1, "Python", "print(1)"); !errors.Is(err, errors.AlreadySolved) {
		t.Fatalf("resubmit: got %v", err)
	}
	if f.runner.callCount() != 1 {
		t.Errorf("sandbox ran %d times, want 1", f.runner.callCount())
	}
}

func TestScenarioICPCPenalty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeTests())
	id := f.createRunning(t, contest.ScoringICPC)
	alice := f.join(t, id, "alice")

	*f.clock = f.clock.Add(125 * time.Second)
	f.runner.results = []*sandbox.BatchResult{partial(2, 3)}
	res, err := f.svc.Submit(ctx, id, alice, 1, "Python", "print(1)")
	if err != nil {
		t.Fatalf("failing submit: %v", err)
	}
	if res.Attempts != 1 || res.Passed {
		t.Fatalf("after failure: %+v", res)
	}

	*f.clock = f.clock.Add(485 * time.Second) // now 610s after start
	f.runner.results = []*sandbox.BatchResult{accepted(3)}
	res, err = f.svc.Submit(ctx, id, alice, 1, "Python", "print(1)")
	if err != nil {
		t.Fatalf("passing submit: %v", err)
	}
	if !res.Passed || res.NewScore != 1 {
		t.Fatalf("after pass: %+v", res)
	}
	if res.Penalty != 30 {
		t.Errorf("penalty = %d, want floor(610/60) + 20*1 = 30", res.Penalty)
	}
}

func TestScenarioPerTestMonotonicScore(t *testing.T) {
	ctx := context.Background()
	tests := map[int64][]sandbox.TestCase{
		1: {{TimeLimit: 1}, {TimeLimit: 1}, {TimeLimit: 1}, {TimeLimit: 1}, {TimeLimit: 1}},
		2: {{TimeLimit: 1}},
	}
	f := newFixture(t, tests)
	id := f.createRunning(t, contest.ScoringPerTest)
	alice := f.join(t, id, "alice")

	wantScores := []int{2, 4, 5, 5}
	f.runner.results = []*sandbox.BatchResult{partial(2, 5), partial(4, 5), accepted(5), partial(3, 5)}
	for i, want := range wantScores {
		res, err := f.svc.Submit(ctx, id, alice, 1, "Python", "print(1)")
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if res.NewScore != want {
			t.Errorf("submit %d: score = %d, want %d", i, res.NewScore, want)
		}
		if (i >= 2) != res.Passed {
			t.Errorf("submit %d: passed = %v", i, res.Passed)
		}
	}
}

func TestScenarioCompilationError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeTests())
	id := f.createRunning(t, contest.ScoringAllOrNothing)
	alice := f.join(t, id, "alice")

	f.runner.results = []*sandbox.BatchResult{{
		GlobalError: &sandbox.GlobalError{Kind: sandbox.GlobalCompilationError, Detail: "line 2: expected ';'"},
	}}
	res, err := f.svc.Submit(ctx, id, alice, 1, "C++", "int main( {}")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.PassedCount != 0 || res.Attempts != 0 || res.Passed {
		t.Errorf("global error changed score state: %+v", res)
	}
	if len(res.Details) != 3 {
		t.Fatalf("details length = %d, want one per test", len(res.Details))
	}
	for _, d := range res.Details {
		if d.Verdict != string(sandbox.GlobalCompilationError) {
			t.Errorf("detail verdict = %q", d.Verdict)
		}
	}

	// The in-flight slot was released: the next submission is admitted.
	f.runner.results = []*sandbox.BatchResult{accepted(3)}
	if _, err := f.svc.Submit(ctx, id, alice, 1, "C++", "int main() {}"); err != nil {
		t.Fatalf("submit after global error: %v", err)
	}
}

func TestInFlightReleasedOnRunnerFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeTests())
	id := f.createRunning(t, contest.ScoringPerTest)
	alice := f.join(t, id, "alice")

	f.runner.err = errors.Newf(errors.JudgeSystemError, "docker daemon unreachable")
	for i := 0; i < contest.MaxInFlight+1; i++ {
		if _, err := f.svc.Submit(ctx, id, alice, 1, "Python", "print(1)"); !errors.Is(err, errors.JudgeSystemError) {
			t.Fatalf("submit %d: got %v", i, err)
		}
	}
	// If any slot leaked, the loop above would have hit TooManyInFlight.
}

func TestUnsupportedLanguageRejectedBeforeAdmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeTests())
	id := f.createRunning(t, contest.ScoringPerTest)
	alice := f.join(t, id, "alice")

	if _, err := f.svc.Submit(ctx, id, alice, 1, "Rust", "fn main() {}"); !errors.Is(err, errors.LanguageNotSupported) {
		t.Fatalf("got %v", err)
	}
	if f.runner.callCount() != 0 {
		t.Error("sandbox ran for an unsupported language")
	}
}

func TestAutosavePersistsAfterSettle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeTests())
	id := f.createRunning(t, contest.ScoringPerTest)
	alice := f.join(t, id, "alice")

	f.runner.results = []*sandbox.BatchResult{partial(2, 3)}
	if _, err := f.svc.Submit(ctx, id, alice, 1, "Python", "print('v1')"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	saved, err := f.store.FetchParticipant(ctx, id, alice)
	if err != nil {
		t.Fatalf("FetchParticipant: %v", err)
	}
	if saved.Scores[1].Score != 2 || saved.Scores[1].Attempts != 1 {
		t.Errorf("persisted score = %+v", saved.Scores[1])
	}
	if saved.LastSubmissions[1] != "print('v1')" {
		t.Errorf("persisted source = %q", saved.LastSubmissions[1])
	}
}

func TestRestorationAfterRestart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeTests())
	id := f.createRunning(t, contest.ScoringPerTest)
	alice := f.join(t, id, "alice")

	f.runner.results = []*sandbox.BatchResult{partial(2, 3)}
	if _, err := f.svc.Submit(ctx, id, alice, 1, "Python", "print('v1')"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// A fresh registry over the same store simulates a restart. The
	// contest rebuilds lazily and the participant restores on join.
	rebootClock := *f.clock
	registry := contest.NewRegistry(f.store).WithClock(func() time.Time { return rebootClock })
	svc := NewContestService(Deps{
		Registry:  registry,
		Store:     f.store,
		Bank:      &fakeBank{tests: threeTests()},
		Runner:    f.runner,
		Admission: admission.NewController(4),
		Hub:       realtime.NewHub(),
	})

	res, err := svc.Join(ctx, id, contest.JoinRequest{Nickname: "alice", ParticipantID: alice})
	if err != nil {
		t.Fatalf("Join after restart: %v", err)
	}
	if !res.Restored {
		t.Fatal("participant not restored from store")
	}

	state, err := svc.State(ctx, id)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Live == nil {
		t.Fatal("expected live snapshot after rebuild")
	}
	var row *contest.ScoreboardRow
	for i := range state.Live.Scoreboard {
		if state.Live.Scoreboard[i].ParticipantID == alice {
			row = &state.Live.Scoreboard[i]
		}
	}
	if row == nil || row.Scores[1].Score != 2 || row.Scores[1].Attempts != 1 {
		t.Errorf("restored scoreboard row = %+v", row)
	}
}

func TestSweeperArchivesExpiredContest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeTests())
	id := f.createRunning(t, contest.ScoringAllOrNothing)
	alice := f.join(t, id, "alice")

	f.runner.results = []*sandbox.BatchResult{accepted(3)}
	if _, err := f.svc.Submit(ctx, id, alice, 1, "Python", "print(1)"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	*f.clock = f.clock.Add(2 * time.Hour)
	f.svc.sweep(ctx)

	// The live entry is gone; reads serve archived standings.
	state, err := f.svc.State(ctx, id)
	if err != nil {
		t.Fatalf("State after sweep: %v", err)
	}
	if state.Live != nil || state.Archived == nil {
		t.Fatalf("expected archived state, got %+v", state)
	}
	if state.Archived.Rows[0].Nickname != "alice" || state.Archived.Rows[0].TotalScore != 100 {
		t.Errorf("archived row = %+v", state.Archived.Rows[0])
	}

	savedContest, err := f.store.FetchContest(ctx, id)
	if err != nil {
		t.Fatalf("FetchContest: %v", err)
	}
	if savedContest.Status != contest.StatusFinished {
		t.Errorf("archived contest status = %q", savedContest.Status)
	}

	// Submissions against the finished contest are refused.
	if _, err := f.svc.Submit(ctx, id, alice, 2, "Python", "print(1)"); !errors.Is(err, errors.ContestEnded) {
		t.Errorf("submit after sweep: got %v", err)
	}
}

func TestFinishByHostArchivesAndEvicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeTests())
	id := f.createRunning(t, contest.ScoringICPC)
	alice := f.join(t, id, "alice")

	f.runner.results = []*sandbox.BatchResult{accepted(3)}
	if _, err := f.svc.Submit(ctx, id, alice, 1, "Python", "print(1)"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := f.svc.FinishContest(ctx, id); err != nil {
		t.Fatalf("FinishContest: %v", err)
	}

	state, err := f.svc.State(ctx, id)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Archived == nil || state.Archived.Scoring != contest.ScoringICPC {
		t.Fatalf("archived state = %+v", state)
	}
	// The archive persists the finished status, so a second finish is
	// refused as ended rather than unknown.
	if err := f.svc.FinishContest(ctx, id); !errors.Is(err, errors.ContestEnded) {
		t.Errorf("double finish: got %v", err)
	}
}

func TestPracticeRunReportsVerdicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeTests())

	f.runner.results = []*sandbox.BatchResult{partial(2, 3)}
	res, err := f.svc.PracticeRun(ctx, 1, "Python", "print(1)")
	if err != nil {
		t.Fatalf("PracticeRun: %v", err)
	}
	if res.PassedCount != 2 || res.Correct {
		t.Errorf("practice result = %+v", res)
	}
	if _, err := f.svc.PracticeRun(ctx, 99, "Python", "print(1)"); !errors.Is(err, errors.TestsNotFound) {
		t.Errorf("missing task: got %v", err)
	}
}
