package workflow

import (
	"time"

	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseAwaiting   Phase = "awaiting_payment_confirmation"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// Stage names the step a failed run stopped at.
type Stage string

const (
	StageSubmission Stage = "submission"
	StagePayment    Stage = "payment"
	StagePoll       Stage = "poll"
	StageReported   Stage = "reported"
	StageDeadline   Stage = "deadline"
)

// State is one of Idle, Submitting, AwaitingPayment, Completed or Failed.
type State interface {
	Phase() Phase
	state()
}

type Idle struct{}

type Submitting struct {
	Identifier string
	StartedAt  time.Time
}

type AwaitingPayment struct {
	Identifier          string
	Descriptor          domain.JobDescriptor
	Polls               int
	Last                *domain.JobStatus
	ConsecutiveFailures int
	LastError           string
	StartedAt           time.Time
}

type Completed struct {
	Identifier  string
	Descriptor  domain.JobDescriptor
	Result      map[string]any
	Polls       int
	StartedAt   time.Time
	CompletedAt time.Time
}

type Failed struct {
	Identifier string
	Stage      Stage
	Message    string
	Err        error
	// Descriptor is nil when submission never produced one.
	Descriptor *domain.JobDescriptor
	Polls      int
	StartedAt  time.Time
	FailedAt   time.Time
}

func (Idle) Phase() Phase            { return PhaseIdle }
func (Submitting) Phase() Phase      { return PhaseSubmitting }
func (AwaitingPayment) Phase() Phase { return PhaseAwaiting }
func (Completed) Phase() Phase       { return PhaseCompleted }
func (Failed) Phase() Phase          { return PhaseFailed }

func (Idle) state()            {}
func (Submitting) state()      {}
func (AwaitingPayment) state() {}
func (Completed) state()       {}
func (Failed) state()          {}

// Busy reports whether s has a run in flight.
func Busy(s State) bool {
	switch s.(type) {
	case Submitting, AwaitingPayment:
		return true
	}
	return false
}

// Terminal reports whether s ends a run.
func Terminal(s State) bool {
	switch s.(type) {
	case Completed, Failed:
		return true
	}
	return false
}

// Transition is delivered to observers after every state change.
type Transition struct {
	RiskType domain.RiskType
	Title    string
	From     State
	To       State
	At       time.Time
}
