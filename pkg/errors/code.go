package errors

import "net/http"

// ErrorCode represents a unique error identifier.
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13999: Submission & Judge errors
// 14000-14999: Contest errors
// 15000-15999: Storage & Persistence errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	Timeout             ErrorCode = 10008

	ValidationFailed ErrorCode = 10300

	// ========== Submission & Judge Errors (13000-13999) ==========

	LanguageNotSupported ErrorCode = 13003
	TaskNotFound         ErrorCode = 13010
	TestsNotFound        ErrorCode = 13011

	JudgeSystemError ErrorCode = 13101
	CompilationError ErrorCode = 13102
	JudgeTimeout     ErrorCode = 13107

	// ========== Contest Errors (14000-14999) ==========

	ContestNotFound   ErrorCode = 14000
	ContestNotStarted ErrorCode = 14001
	ContestEnded      ErrorCode = 14002
	ContestTimeUp     ErrorCode = 14003

	NotAParticipant   ErrorCode = 14100
	NicknameTaken     ErrorCode = 14101
	WhitelistRequired ErrorCode = 14102
	WhitelistRejected ErrorCode = 14103

	AlreadySolved   ErrorCode = 14200
	TooManyInFlight ErrorCode = 14201
	Disqualified    ErrorCode = 14202
	AlreadyFinished ErrorCode = 14203
	ParticipantGone ErrorCode = 14204

	// ========== Storage & Persistence Errors (15000-15999) ==========

	DatabaseError  ErrorCode = 15000
	RecordNotFound ErrorCode = 15001
	CacheError     ErrorCode = 15100
	StorageError   ErrorCode = 15200
)

// errorMessages maps error codes to their default English messages.
var errorMessages = map[ErrorCode]string{
	Success: "Success",

	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	Timeout:             "Request timeout",
	ValidationFailed:    "Validation failed",

	LanguageNotSupported: "Language is not supported",
	TaskNotFound:         "Task not found",
	TestsNotFound:        "No tests configured for this task",
	JudgeSystemError:     "Judge system error",
	CompilationError:     "Compilation error",
	JudgeTimeout:         "Judging timed out",

	ContestNotFound:   "Contest not found",
	ContestNotStarted: "Contest has not started",
	ContestEnded:      "Contest has ended",
	ContestTimeUp:     "Contest time is up",

	NotAParticipant:   "You are not a participant of this contest",
	NicknameTaken:     "Nickname already joined and cannot rejoin",
	WhitelistRequired: "This contest requires a password",
	WhitelistRejected: "Invalid nickname or password for this contest",

	AlreadySolved:   "Task is already solved",
	TooManyInFlight: "Too many concurrent submissions, wait for the previous ones to finish",
	Disqualified:    "You have been disqualified",
	AlreadyFinished: "You have already finished this contest",
	ParticipantGone: "Participant no longer present in this contest",

	DatabaseError:  "Database operation failed",
	RecordNotFound: "Record not found",
	CacheError:     "Cache operation failed",
	StorageError:   "Object storage operation failed",
}

// httpStatus maps error codes to HTTP status codes. Codes not listed map to 500.
var httpStatus = map[ErrorCode]int{
	Success: http.StatusOK,

	InvalidParams:    http.StatusBadRequest,
	ValidationFailed: http.StatusBadRequest,
	NotFound:         http.StatusNotFound,
	Unauthorized:     http.StatusUnauthorized,
	Forbidden:        http.StatusForbidden,
	TooManyRequests:  http.StatusTooManyRequests,
	Timeout:          http.StatusGatewayTimeout,

	LanguageNotSupported: http.StatusBadRequest,
	TaskNotFound:         http.StatusNotFound,
	TestsNotFound:        http.StatusNotFound,

	ContestNotFound:   http.StatusNotFound,
	ContestNotStarted: http.StatusConflict,
	ContestEnded:      http.StatusConflict,
	ContestTimeUp:     http.StatusBadRequest,

	NotAParticipant:   http.StatusForbidden,
	NicknameTaken:     http.StatusConflict,
	WhitelistRequired: http.StatusUnauthorized,
	WhitelistRejected: http.StatusUnauthorized,

	AlreadySolved:   http.StatusBadRequest,
	TooManyInFlight: http.StatusTooManyRequests,
	Disqualified:    http.StatusForbidden,
	AlreadyFinished: http.StatusForbidden,
	ParticipantGone: http.StatusConflict,

	RecordNotFound: http.StatusNotFound,
}

// Message returns the default message for the error code.
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the HTTP status code for the error code.
func (c ErrorCode) HTTPStatus() int {
	if status, ok := httpStatus[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}
