package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"

	"arena/pkg/utils/logger"
)

// DockerConfig holds the container invocation settings.
type DockerConfig struct {
	// ImagePython and ImageCPP name the judge images per language.
	ImagePython string `yaml:"imagePython"`
	ImageCPP    string `yaml:"imageCPP"`

	// RunTemplate is the full container command line. The placeholders
	// {workspace} and {image} are substituted after shell-style
	// tokenization, so paths with spaces survive intact.
	RunTemplate string `yaml:"runTemplate"`

	// Overhead is added to the sum of per-test limits to form the
	// overall deadline. It covers image startup and compilation.
	Overhead time.Duration `yaml:"overhead"`
}

// DefaultDockerConfig returns the stock isolation settings: no network,
// bounded memory, CPU and process count, unprivileged user, read-only
// workspace mount.
func DefaultDockerConfig() DockerConfig {
	return DockerConfig{
		ImagePython: "arena-judge-python",
		ImageCPP:    "arena-judge-cpp",
		RunTemplate: "docker run --rm --network=none --memory=256m --cpus=1.0 --pids-limit=16 " +
			"--user=appuser -w /home/appuser/run -v {workspace}:/home/appuser/run:ro " +
			"{image} python3 /home/appuser/run/judge.py",
		Overhead: 15 * time.Second,
	}
}

// commandExecutor runs one external command to completion. It exists so
// tests can substitute a fake for the docker binary.
type commandExecutor interface {
	Run(ctx context.Context, name string, args []string) (stdout, stderr []byte, err error)
}

type execExecutor struct{}

func (execExecutor) Run(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// DockerRunner judges batches by launching one container per submission.
type DockerRunner struct {
	cfg      DockerConfig
	executor commandExecutor
}

// NewDockerRunner creates a Runner backed by the docker CLI.
func NewDockerRunner(cfg DockerConfig) (*DockerRunner, error) {
	if cfg.RunTemplate == "" {
		return nil, fmt.Errorf("run template is required")
	}
	if !strings.Contains(cfg.RunTemplate, "{workspace}") || !strings.Contains(cfg.RunTemplate, "{image}") {
		return nil, fmt.Errorf("run template must contain {workspace} and {image} placeholders")
	}
	if _, err := shlex.Split(cfg.RunTemplate); err != nil {
		return nil, fmt.Errorf("parse run template: %w", err)
	}
	if cfg.Overhead <= 0 {
		cfg.Overhead = DefaultDockerConfig().Overhead
	}
	return &DockerRunner{cfg: cfg, executor: execExecutor{}}, nil
}

func (r *DockerRunner) imageFor(lang Language) (string, error) {
	switch lang {
	case LanguagePython:
		return r.cfg.ImagePython, nil
	case LanguageCPP:
		return r.cfg.ImageCPP, nil
	default:
		return "", fmt.Errorf("no judge image for language %q", lang)
	}
}

func (r *DockerRunner) buildCommand(workspace, image string) ([]string, error) {
	tokens, err := shlex.Split(r.cfg.RunTemplate)
	if err != nil {
		return nil, err
	}
	for i, tok := range tokens {
		tok = strings.ReplaceAll(tok, "{workspace}", workspace)
		tok = strings.ReplaceAll(tok, "{image}", image)
		tokens[i] = tok
	}
	return tokens, nil
}

// overallDeadline is the sum of per-test limits plus fixed overhead.
// Exceeding it is a global Timeout, distinct from a per-test TLE.
func (r *DockerRunner) overallDeadline(tests []TestCase) time.Duration {
	total := r.cfg.Overhead
	for _, t := range tests {
		limit := t.TimeLimit
		if limit < 1.0 {
			limit = 1.0
		}
		total += time.Duration(limit * float64(time.Second))
	}
	return total
}

// Run executes the whole batch in one container invocation. The workspace
// is reclaimed on every exit path.
func (r *DockerRunner) Run(ctx context.Context, submission Submission, tests []TestCase) (*BatchResult, error) {
	image, err := r.imageFor(submission.Language)
	if err != nil {
		return nil, err
	}

	workspace, err := stageWorkspace(submission, tests)
	if err != nil {
		return nil, fmt.Errorf("stage workspace: %w", err)
	}
	defer removeWorkspace(workspace)

	command, err := r.buildCommand(workspace, image)
	if err != nil {
		return nil, fmt.Errorf("build command: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.overallDeadline(tests))
	defer cancel()

	stdout, stderr, runErr := r.executor.Run(runCtx, command[0], command[1:])

	if runCtx.Err() == context.DeadlineExceeded {
		return &BatchResult{GlobalError: &GlobalError{
			Kind:   GlobalTimeout,
			Detail: "overall judging deadline exceeded",
		}}, nil
	}
	if runErr != nil && len(stdout) == 0 {
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = runErr.Error()
		}
		return &BatchResult{GlobalError: &GlobalError{
			Kind:   GlobalJudgeError,
			Detail: detail,
		}}, nil
	}
	// Diagnostics on the container's own error channel mean the harness
	// itself misbehaved, not the submission.
	if len(bytes.TrimSpace(stderr)) > 0 {
		return &BatchResult{GlobalError: &GlobalError{
			Kind:   GlobalJudgeError,
			Detail: strings.TrimSpace(string(stderr)),
		}}, nil
	}

	return parseHarnessOutput(ctx, stdout, len(tests))
}

// harnessResult mirrors one entry of the JSON array the judge script emits.
type harnessResult struct {
	TestNum int    `json:"test_num"`
	Verdict string `json:"verdict"`
	Output  string `json:"output"`
	Error   string `json:"error"`
}

func parseHarnessOutput(ctx context.Context, stdout []byte, testCount int) (*BatchResult, error) {
	var raw []harnessResult
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &raw); err != nil {
		logger.Warn(ctx, "malformed harness output", zap.ByteString("stdout", stdout))
		return &BatchResult{GlobalError: &GlobalError{
			Kind:   GlobalJudgeError,
			Detail: "malformed harness output",
		}}, nil
	}

	// A compile failure arrives as a single-entry array.
	if len(raw) > 0 && raw[0].Verdict == string(GlobalCompilationError) {
		return &BatchResult{GlobalError: &GlobalError{
			Kind:   GlobalCompilationError,
			Detail: raw[0].Error,
		}}, nil
	}

	verdicts := make([]TestResult, 0, len(raw))
	for i, entry := range raw {
		num := entry.TestNum
		if num == 0 {
			num = i + 1
		}
		verdicts = append(verdicts, TestResult{
			TestNum: num,
			Verdict: ParseVerdict(entry.Verdict),
			Output:  entry.Output,
			Stderr:  entry.Error,
		})
	}
	if len(verdicts) != testCount {
		return &BatchResult{GlobalError: &GlobalError{
			Kind:   GlobalJudgeError,
			Detail: fmt.Sprintf("harness returned %d verdicts for %d tests", len(verdicts), testCount),
		}}, nil
	}
	return &BatchResult{Verdicts: verdicts}, nil
}
