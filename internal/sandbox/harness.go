package sandbox

import (
	_ "embed"
)

// The harness scripts run inside the container as an unprivileged user.
// They read tests.json from the read-only workspace, run each test in
// order under the coreutils timeout wrapper, and emit one JSON array of
// per-test verdicts on stdout. For C++ the harness compiles first; a
// compile failure produces a single Compilation Error entry and skips
// every test.

//go:embed harness/judge_python.py
var harnessPython string

//go:embed harness/judge_cpp.py
var harnessCPP string

// languageSpec binds a language to its staging layout and harness.
type languageSpec struct {
	// sourceFile is the filename the submission is staged as.
	sourceFile string
	// harness is the judge script staged next to the source.
	harness string
}

var languageSpecs = map[Language]languageSpec{
	LanguagePython: {sourceFile: "script.py", harness: harnessPython},
	LanguageCPP:    {sourceFile: "source.cpp", harness: harnessCPP},
}
