package contest

import (
	"time"

	"arena/internal/sandbox"
)

// icpcAttemptPenalty is the per-failed-attempt penalty in minutes.
const icpcAttemptPenalty = 20

// applyBatch is the pure scoring function. Given a mode, the prior task
// state, the attempt count observed when the submission was admitted, a
// judged batch, and the time elapsed since contest start, it returns the
// new task state. The input is never mutated.
//
// Global errors never count as attempts; only judged non-passing outcomes
// do. Per-test scores are monotonically non-decreasing. An ICPC penalty is
// computed from whole elapsed minutes plus failed attempts as of admission,
// not settle, so a concurrent failure that settles first does not inflate
// it. The penalty is frozen at first pass.
func applyBatch(mode ScoringMode, prior TaskScore, beginAttempts int, result *sandbox.BatchResult, elapsed time.Duration) TaskScore {
	next := prior
	fullyAccepted := result.FullyAccepted()
	globalErr := result.Failed()

	switch mode {
	case ScoringICPC:
		if next.Passed {
			return next
		}
		if fullyAccepted {
			next.Passed = true
			next.Score = 1
			next.Penalty = int(elapsed.Minutes()) + beginAttempts*icpcAttemptPenalty
		} else if !globalErr {
			next.Attempts++
		}

	case ScoringPerTest:
		if passed := result.PassedCount(); passed > next.Score {
			next.Score = passed
		}
		if fullyAccepted {
			next.Passed = true
		} else if !globalErr {
			next.Attempts++
		}

	default: // all_or_nothing
		if fullyAccepted {
			next.Score = 100
			next.Passed = true
		} else if !globalErr {
			next.Attempts++
		}
	}
	return next
}
