package contest

import (
	"testing"
	"time"

	"arena/internal/sandbox"
)

func batchOf(verdicts ...sandbox.Verdict) *sandbox.BatchResult {
	res := &sandbox.BatchResult{}
	for i, v := range verdicts {
		res.Verdicts = append(res.Verdicts, sandbox.TestResult{TestNum: i + 1, Verdict: v})
	}
	return res
}

func globalErr(kind sandbox.GlobalErrorKind) *sandbox.BatchResult {
	return &sandbox.BatchResult{GlobalError: &sandbox.GlobalError{Kind: kind}}
}

func TestAllOrNothingFullPass(t *testing.T) {
	prior := TaskScore{Attempts: 2}
	got := applyBatch(ScoringAllOrNothing, prior, prior.Attempts,
		batchOf(sandbox.VerdictAccepted, sandbox.VerdictAccepted, sandbox.VerdictAccepted), time.Minute)

	want := TaskScore{Score: 100, Attempts: 2, Passed: true}
	if got != want {
		t.Errorf("applyBatch = %+v, want %+v", got, want)
	}
}

func TestAllOrNothingFailureCountsAttempt(t *testing.T) {
	got := applyBatch(ScoringAllOrNothing, TaskScore{}, 0,
		batchOf(sandbox.VerdictAccepted, sandbox.VerdictWrongAnswer), time.Minute)
	if got.Score != 0 || got.Passed || got.Attempts != 1 {
		t.Errorf("unexpected state after partial pass: %+v", got)
	}
}

func TestGlobalErrorNeverCountsAttempt(t *testing.T) {
	for _, mode := range []ScoringMode{ScoringAllOrNothing, ScoringPerTest, ScoringICPC} {
		got := applyBatch(mode, TaskScore{Attempts: 1}, 1, globalErr(sandbox.GlobalCompilationError), time.Minute)
		if got.Attempts != 1 {
			t.Errorf("%s: attempts changed on global error: %+v", mode, got)
		}
		if got.Passed || got.Score != 0 {
			t.Errorf("%s: score state changed on global error: %+v", mode, got)
		}
	}
}

func TestICPCPenaltyFormula(t *testing.T) {
	// One failed attempt, then a full pass 610 seconds in:
	// floor(610/60) + 20*1 = 30.
	afterFail := applyBatch(ScoringICPC, TaskScore{}, 0,
		batchOf(sandbox.VerdictWrongAnswer, sandbox.VerdictAccepted), 125*time.Second)
	if afterFail.Attempts != 1 || afterFail.Passed {
		t.Fatalf("unexpected state after failed attempt: %+v", afterFail)
	}

	afterPass := applyBatch(ScoringICPC, afterFail, afterFail.Attempts,
		batchOf(sandbox.VerdictAccepted, sandbox.VerdictAccepted), 610*time.Second)
	if !afterPass.Passed || afterPass.Score != 1 {
		t.Fatalf("expected pass, got %+v", afterPass)
	}
	if afterPass.Penalty != 30 {
		t.Errorf("penalty = %d, want 30", afterPass.Penalty)
	}
}

func TestICPCPenaltyFrozenAfterPass(t *testing.T) {
	passed := TaskScore{Score: 1, Attempts: 1, Passed: true, Penalty: 30}
	got := applyBatch(ScoringICPC, passed, passed.Attempts,
		batchOf(sandbox.VerdictWrongAnswer), 2*time.Hour)
	if got != passed {
		t.Errorf("passed state mutated: %+v", got)
	}
}

func TestPerTestScoreMonotonic(t *testing.T) {
	state := TaskScore{}
	steps := []struct {
		verdicts  []sandbox.Verdict
		wantScore int
		wantPass  bool
	}{
		{[]sandbox.Verdict{sandbox.VerdictAccepted, sandbox.VerdictAccepted, sandbox.VerdictWrongAnswer, sandbox.VerdictWrongAnswer, sandbox.VerdictWrongAnswer}, 2, false},
		{[]sandbox.Verdict{sandbox.VerdictAccepted, sandbox.VerdictAccepted, sandbox.VerdictAccepted, sandbox.VerdictAccepted, sandbox.VerdictWrongAnswer}, 4, false},
		{[]sandbox.Verdict{sandbox.VerdictAccepted, sandbox.VerdictAccepted, sandbox.VerdictAccepted, sandbox.VerdictAccepted, sandbox.VerdictAccepted}, 5, true},
		{[]sandbox.Verdict{sandbox.VerdictAccepted, sandbox.VerdictWrongAnswer, sandbox.VerdictWrongAnswer, sandbox.VerdictWrongAnswer, sandbox.VerdictWrongAnswer}, 5, true},
	}
	for i, step := range steps {
		state = applyBatch(ScoringPerTest, state, state.Attempts, batchOf(step.verdicts...), time.Minute)
		if state.Score != step.wantScore {
			t.Errorf("step %d: score = %d, want %d", i, state.Score, step.wantScore)
		}
		if state.Passed != step.wantPass {
			t.Errorf("step %d: passed = %v, want %v", i, state.Passed, step.wantPass)
		}
	}
	// Attempts counted for steps 1, 2 and 4 (non-full, non-global).
	if state.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", state.Attempts)
	}
}
