// Package sandbox executes untrusted submissions against ordered test
// batteries inside isolated containers. One container invocation judges the
// whole batch to amortize startup cost.
package sandbox

import (
	"context"

	"arena/pkg/errors"
)

// Language identifies a supported submission language.
type Language string

const (
	LanguagePython Language = "Python"
	LanguageCPP    Language = "C++"
)

// ParseLanguage validates a raw language name.
func ParseLanguage(raw string) (Language, error) {
	switch Language(raw) {
	case LanguagePython, LanguageCPP:
		return Language(raw), nil
	default:
		return "", errors.Newf(errors.LanguageNotSupported, "unsupported language %q", raw)
	}
}

// Submission is the unit of code handed to the executor.
type Submission struct {
	Source   string
	Language Language
}

// TestCase is one hidden test with its wall-clock limit in seconds.
type TestCase struct {
	Input          string
	ExpectedOutput string
	TimeLimit      float64
}

// TestResult is the judged outcome of one test.
type TestResult struct {
	TestNum int
	Verdict Verdict
	Output  string
	Stderr  string
}

// BatchResult carries either per-test verdicts or one global error,
// never both.
type BatchResult struct {
	Verdicts    []TestResult
	GlobalError *GlobalError
}

// Failed reports whether the whole batch was invalidated.
func (r *BatchResult) Failed() bool {
	return r.GlobalError != nil
}

// PassedCount returns the number of accepted tests in the batch.
func (r *BatchResult) PassedCount() int {
	if r.GlobalError != nil {
		return 0
	}
	n := 0
	for _, v := range r.Verdicts {
		if v.Verdict == VerdictAccepted {
			n++
		}
	}
	return n
}

// FullyAccepted reports whether every test in the batch was accepted.
func (r *BatchResult) FullyAccepted() bool {
	if r.GlobalError != nil || len(r.Verdicts) == 0 {
		return false
	}
	return r.PassedCount() == len(r.Verdicts)
}

// Runner judges one submission against an ordered test battery.
// Implementations must reclaim all staging resources on every exit path.
type Runner interface {
	Run(ctx context.Context, submission Submission, tests []TestCase) (*BatchResult, error)
}
