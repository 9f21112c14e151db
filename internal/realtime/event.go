// Package realtime fans contest state out to websocket subscribers.
// Every state-changing event triggers a fresh full-state push; clients
// never receive deltas, so a missed message costs nothing but latency.
package realtime

import "encoding/json"

// Event types pushed to contest rooms.
const (
	EventFullStatusUpdate  = "full_status_update"
	EventSubmissionPending = "submission_pending"
	EventContestStarted    = "contest_started"
	EventContestFinished   = "contest_finished"
)

// Event is one message on a contest channel.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

// PendingPayload announces that a submission entered judging.
type PendingPayload struct {
	ParticipantID string `json:"participant_id"`
	TaskID        int64  `json:"task_id"`
}
