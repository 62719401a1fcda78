package domain

import "time"

type RunOutcome string

const (
	OutcomeCompleted RunOutcome = "completed"
	OutcomeFailed    RunOutcome = "failed"
)

// RunRecord is the archived summary of a finished workflow run.
type RunRecord struct {
	Identifier string         `json:"identifier"`
	RiskType   RiskType       `json:"riskType"`
	Title      string         `json:"title"`
	Outcome    RunOutcome     `json:"outcome"`
	JobID      string         `json:"jobId,omitempty"`
	Stage      string         `json:"stage,omitempty"`
	Error      string         `json:"error,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Polls      int            `json:"polls"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
}
