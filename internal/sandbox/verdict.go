package sandbox

// Verdict classifies the outcome of running a submission against one test.
type Verdict string

const (
	VerdictAccepted          Verdict = "Accepted"
	VerdictWrongAnswer       Verdict = "Wrong Answer"
	VerdictTimeLimitExceeded Verdict = "Time Limit Exceeded"
	VerdictRuntimeError      Verdict = "Runtime Error"
	VerdictInternalError     Verdict = "Internal Error"
)

// ParseVerdict maps a raw harness verdict string to a known Verdict.
// Anything unrecognized collapses to VerdictInternalError so that a
// misbehaving harness cannot introduce untracked verdict classes.
func ParseVerdict(raw string) Verdict {
	switch Verdict(raw) {
	case VerdictAccepted, VerdictWrongAnswer, VerdictTimeLimitExceeded, VerdictRuntimeError:
		return Verdict(raw)
	default:
		return VerdictInternalError
	}
}

// GlobalErrorKind classifies a failure that invalidates an entire batch.
type GlobalErrorKind string

const (
	GlobalCompilationError GlobalErrorKind = "Compilation Error"
	GlobalRuntimeError     GlobalErrorKind = "Runtime Error"
	GlobalJudgeError       GlobalErrorKind = "Judge Error"
	GlobalTimeout          GlobalErrorKind = "Timeout"
)

// GlobalError describes a batch-wide failure. When present, no per-test
// verdicts were produced.
type GlobalError struct {
	Kind   GlobalErrorKind
	Detail string
}

func (e *GlobalError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}
