// Package pipeline sequences one retrieval-to-publish run and owns its
// state, retry policy and error classification.
package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Status is a run's terminal (or in-flight) state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Stage is one discrete phase of a run.
type Stage string

const (
	StageRetrieval   Stage = "retrieval"
	StageSummarize   Stage = "summarization"
	StageCompose     Stage = "composition"
	StageMediaSelect Stage = "media-selection"
	StagePublish     Stage = "publish"
)

// Event is one recorded stage transition or outcome.
type Event struct {
	Time    time.Time `json:"time"`
	Stage   Stage     `json:"stage"`
	Outcome string    `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
}

// Run is one pipeline execution. Created when triggered, owned by the
// orchestrator for its lifetime, archived to the run log on completion.
type Run struct {
	ID           string        `json:"id"`
	Mode         string        `json:"mode"`
	Domain       string        `json:"domain"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	CurrentStage Stage         `json:"current_stage,omitempty"`
	Status       Status        `json:"status"`
	Attempts     map[Stage]int `json:"attempts"`
	Events       []Event       `json:"events"`
	FailStage    Stage         `json:"fail_stage,omitempty"`
	FailCause    string        `json:"fail_cause,omitempty"`
	// AuthExpired flags that external re-authentication is required;
	// subsequent runs will keep failing with the same cause until a
	// human resolves it.
	AuthExpired bool `json:"auth_expired,omitempty"`
}

func NewRun(mode, domain string) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Mode:      mode,
		Domain:    domain,
		StartedAt: time.Now(),
		Status:    StatusRunning,
		Attempts:  make(map[Stage]int),
	}
}

// AddEvent appends a stage transition or outcome to the run record.
func (r *Run) AddEvent(stage Stage, outcome, detail string) {
	r.Events = append(r.Events, Event{
		Time:    time.Now(),
		Stage:   stage,
		Outcome: outcome,
		Detail:  detail,
	})
}

func (r *Run) finish(status Status) {
	now := time.Now()
	r.EndedAt = &now
	r.Status = status
	r.CurrentStage = ""
}

// Elapsed reports the run duration so far (or total once finished).
func (r *Run) Elapsed() time.Duration {
	if r.EndedAt != nil {
		return r.EndedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}
