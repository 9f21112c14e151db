package sandbox

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeExecutor struct {
	stdout []byte
	stderr []byte
	err    error

	// blockUntilDeadline makes Run wait for context expiry.
	blockUntilDeadline bool

	gotName string
	gotArgs []string
}

func (f *fakeExecutor) Run(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
	f.gotName = name
	f.gotArgs = args
	if f.blockUntilDeadline {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	return f.stdout, f.stderr, f.err
}

func newTestRunner(t *testing.T, exec commandExecutor) *DockerRunner {
	t.Helper()
	r, err := NewDockerRunner(DefaultDockerConfig())
	if err != nil {
		t.Fatalf("NewDockerRunner: %v", err)
	}
	r.executor = exec
	return r
}

func harnessJSON(t *testing.T, verdicts ...string) []byte {
	t.Helper()
	entries := make([]harnessResult, len(verdicts))
	for i, v := range verdicts {
		entries[i] = harnessResult{TestNum: i + 1, Verdict: v}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal harness output: %v", err)
	}
	return data
}

func sampleTests(n int) []TestCase {
	tests := make([]TestCase, n)
	for i := range tests {
		tests[i] = TestCase{Input: "1 2", ExpectedOutput: "3", TimeLimit: 1.0}
	}
	return tests
}

func TestParseVerdictFallback(t *testing.T) {
	cases := map[string]Verdict{
		"Accepted":            VerdictAccepted,
		"Wrong Answer":        VerdictWrongAnswer,
		"Time Limit Exceeded": VerdictTimeLimitExceeded,
		"Runtime Error":       VerdictRuntimeError,
		"Internal Error":      VerdictInternalError,
		"accepted":            VerdictInternalError,
		"Segfault":            VerdictInternalError,
		"":                    VerdictInternalError,
	}
	for raw, want := range cases {
		if got := ParseVerdict(raw); got != want {
			t.Errorf("ParseVerdict(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestStageWorkspaceLayout(t *testing.T) {
	dir, err := stageWorkspace(Submission{Source: "print(input())", Language: LanguagePython}, sampleTests(2))
	if err != nil {
		t.Fatalf("stageWorkspace: %v", err)
	}
	defer removeWorkspace(dir)

	for _, name := range []string{"script.py", "judge.py", "tests.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected staged file %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "tests.json"))
	if err != nil {
		t.Fatalf("read tests.json: %v", err)
	}
	var staged []harnessTest
	if err := json.Unmarshal(data, &staged); err != nil {
		t.Fatalf("unmarshal tests.json: %v", err)
	}
	if len(staged) != 2 {
		t.Fatalf("expected 2 staged tests, got %d", len(staged))
	}
	if staged[0].Output != "3" || staged[0].Limit != 1.0 {
		t.Errorf("unexpected staged test: %+v", staged[0])
	}
}

func TestBuildCommandSubstitution(t *testing.T) {
	r, err := NewDockerRunner(DefaultDockerConfig())
	if err != nil {
		t.Fatalf("NewDockerRunner: %v", err)
	}
	cmd, err := r.buildCommand("/tmp/ws with space", "arena-judge-python")
	if err != nil {
		t.Fatalf("buildCommand: %v", err)
	}
	if cmd[0] != "docker" || cmd[1] != "run" {
		t.Fatalf("unexpected command head: %v", cmd[:2])
	}
	foundMount, foundImage := false, false
	for _, tok := range cmd {
		if tok == "/tmp/ws with space:/home/appuser/run:ro" {
			foundMount = true
		}
		if tok == "arena-judge-python" {
			foundImage = true
		}
	}
	if !foundMount {
		t.Error("workspace placeholder not substituted as a single token")
	}
	if !foundImage {
		t.Error("image placeholder not substituted")
	}
}

func TestRunAllAccepted(t *testing.T) {
	exec := &fakeExecutor{stdout: harnessJSON(t, "Accepted", "Accepted", "Accepted")}
	r := newTestRunner(t, exec)

	res, err := r.Run(context.Background(), Submission{Source: "x", Language: LanguagePython}, sampleTests(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed() {
		t.Fatalf("unexpected global error: %v", res.GlobalError)
	}
	if !res.FullyAccepted() || res.PassedCount() != 3 {
		t.Errorf("expected fully accepted batch, got %+v", res)
	}
	if exec.gotName != "docker" {
		t.Errorf("expected docker invocation, got %q", exec.gotName)
	}
}

func TestRunMixedVerdicts(t *testing.T) {
	exec := &fakeExecutor{stdout: harnessJSON(t, "Accepted", "Wrong Answer", "Time Limit Exceeded")}
	r := newTestRunner(t, exec)

	res, err := r.Run(context.Background(), Submission{Source: "x", Language: LanguagePython}, sampleTests(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PassedCount() != 1 || res.FullyAccepted() {
		t.Errorf("expected 1 passed of 3, got %+v", res)
	}
	if res.Verdicts[2].Verdict != VerdictTimeLimitExceeded {
		t.Errorf("expected TLE on test 3, got %q", res.Verdicts[2].Verdict)
	}
}

func TestRunCompilationError(t *testing.T) {
	entries := []harnessResult{{Verdict: "Compilation Error", Error: "line 3: expected ';'"}}
	data, _ := json.Marshal(entries)
	r := newTestRunner(t, &fakeExecutor{stdout: data})

	res, err := r.Run(context.Background(), Submission{Source: "x", Language: LanguageCPP}, sampleTests(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Failed() || res.GlobalError.Kind != GlobalCompilationError {
		t.Fatalf("expected compilation error, got %+v", res)
	}
	if res.GlobalError.Detail != "line 3: expected ';'" {
		t.Errorf("compiler diagnostics not carried: %q", res.GlobalError.Detail)
	}
	if res.PassedCount() != 0 {
		t.Errorf("passed count must be 0 on global error")
	}
}

func TestRunJudgeErrorOnStderr(t *testing.T) {
	exec := &fakeExecutor{stdout: harnessJSON(t, "Accepted"), stderr: []byte("docker: permission denied")}
	r := newTestRunner(t, exec)

	res, err := r.Run(context.Background(), Submission{Source: "x", Language: LanguagePython}, sampleTests(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Failed() || res.GlobalError.Kind != GlobalJudgeError {
		t.Fatalf("expected judge error, got %+v", res)
	}
}

func TestRunJudgeErrorOnMalformedOutput(t *testing.T) {
	r := newTestRunner(t, &fakeExecutor{stdout: []byte("Traceback (most recent call last):")})

	res, err := r.Run(context.Background(), Submission{Source: "x", Language: LanguagePython}, sampleTests(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Failed() || res.GlobalError.Kind != GlobalJudgeError {
		t.Fatalf("expected judge error, got %+v", res)
	}
}

func TestRunJudgeErrorOnVerdictCountMismatch(t *testing.T) {
	r := newTestRunner(t, &fakeExecutor{stdout: harnessJSON(t, "Accepted")})

	res, err := r.Run(context.Background(), Submission{Source: "x", Language: LanguagePython}, sampleTests(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Failed() || res.GlobalError.Kind != GlobalJudgeError {
		t.Fatalf("expected judge error on count mismatch, got %+v", res)
	}
}

func TestRunOverallTimeout(t *testing.T) {
	cfg := DefaultDockerConfig()
	cfg.Overhead = 10 * time.Millisecond
	r := &DockerRunner{cfg: cfg, executor: &fakeExecutor{blockUntilDeadline: true}}

	start := time.Now()
	res, err := r.Run(context.Background(), Submission{Source: "x", Language: LanguagePython}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Failed() || res.GlobalError.Kind != GlobalTimeout {
		t.Fatalf("expected overall timeout, got %+v", res)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout took far longer than the configured deadline")
	}
}

func TestRunUnknownLanguage(t *testing.T) {
	r := newTestRunner(t, &fakeExecutor{})
	if _, err := r.Run(context.Background(), Submission{Source: "x", Language: "Rust"}, sampleTests(1)); err == nil {
		t.Fatal("expected error for unknown language")
	}
}

func TestOverallDeadlineSumsLimits(t *testing.T) {
	r, err := NewDockerRunner(DefaultDockerConfig())
	if err != nil {
		t.Fatalf("NewDockerRunner: %v", err)
	}
	tests := []TestCase{{TimeLimit: 2.0}, {TimeLimit: 0.5}, {TimeLimit: 3.0}}
	// 2.0 + max(1.0, 0.5) + 3.0 = 6s plus 15s overhead.
	if got, want := r.overallDeadline(tests), 21*time.Second; got != want {
		t.Errorf("overallDeadline = %v, want %v", got, want)
	}
}
