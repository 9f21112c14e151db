package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"arena/pkg/utils/logger"
)

const (
	harnessFile = "judge.py"
	testsFile   = "tests.json"

	cleanupRetries = 5
	cleanupBackoff = 200 * time.Millisecond
)

// harnessTest is the wire form the judge script reads from tests.json.
type harnessTest struct {
	Input  string  `json:"input"`
	Output string  `json:"output"`
	Limit  float64 `json:"limit"`
}

// stageWorkspace creates an ephemeral directory holding the submission
// source, the judge harness, and the serialized test battery. The directory
// is mounted read-only into the container.
func stageWorkspace(submission Submission, tests []TestCase) (string, error) {
	spec, ok := languageSpecs[submission.Language]
	if !ok {
		return "", fmt.Errorf("no staging layout for language %q", submission.Language)
	}

	dir, err := os.MkdirTemp("", "arena-judge-*")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}

	wireTests := make([]harnessTest, len(tests))
	for i, t := range tests {
		wireTests[i] = harnessTest{Input: t.Input, Output: t.ExpectedOutput, Limit: t.TimeLimit}
	}
	testsJSON, err := json.Marshal(wireTests)
	if err != nil {
		removeWorkspace(dir)
		return "", fmt.Errorf("encode tests: %w", err)
	}

	files := map[string][]byte{
		spec.sourceFile: []byte(submission.Source),
		harnessFile:     []byte(spec.harness),
		testsFile:       testsJSON,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			removeWorkspace(dir)
			return "", fmt.Errorf("stage %s: %w", name, err)
		}
	}
	return dir, nil
}

// removeWorkspace deletes the staging directory, retrying with backoff.
// A lingering container process can hold the mount open briefly after the
// run returns.
func removeWorkspace(dir string) {
	var lastErr error
	for i := 0; i < cleanupRetries; i++ {
		lastErr = os.RemoveAll(dir)
		if lastErr == nil {
			return
		}
		time.Sleep(cleanupBackoff)
	}
	logger.Warn(context.Background(), "failed to remove judge workspace",
		zap.String("dir", dir),
		zap.Error(lastErr))
}
