package workflow

import (
	"fmt"
	"time"

	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

const (
	ControlReady      = "ready"
	ControlSubmitting = "submitting"
	ControlAwaiting   = "awaiting"
	ControlCompleted  = "completed"
	ControlFailed     = "failed"

	DetailConfirmingPayment = "confirming_payment"
	DetailProcessingJob     = "processing_job"
)

// View is the presentation of one feature card's control.
type View struct {
	Title      string          `json:"title"`
	RiskType   domain.RiskType `json:"riskType"`
	Control    string          `json:"control"`
	Detail     string          `json:"detail,omitempty"`
	Label      string          `json:"label"`
	Enabled    bool            `json:"enabled"`
	Identifier string          `json:"identifier,omitempty"`
	JobID      string          `json:"jobId,omitempty"`
	Polls      int             `json:"polls,omitempty"`
	Stage      Stage           `json:"stage,omitempty"`
	Error      string          `json:"error,omitempty"`
	Result     map[string]any  `json:"result,omitempty"`
}

// Render builds the control for feature f in state s. pollInterval only feeds
// the in-progress label.
func Render(f domain.Feature, s State, pollInterval time.Duration) View {
	v := View{Title: f.Title, RiskType: f.RiskType}
	noun := "Assessment"
	progress := "Assessing..."
	if f.Action == domain.ActionExecuteStrategy {
		noun = "Execution"
		progress = "Executing..."
	}

	switch st := s.(type) {
	case Submitting:
		v.Control = ControlSubmitting
		v.Label = "Initializing..."
		v.Identifier = st.Identifier
	case AwaitingPayment:
		v.Control = ControlAwaiting
		v.Detail = DetailConfirmingPayment
		if st.Last != nil && st.Last.PaymentStatus == domain.PaymentCompleted {
			v.Detail = DetailProcessingJob
		}
		v.Label = fmt.Sprintf("%s (Polling every %s)", progress, humanInterval(pollInterval))
		v.Identifier = st.Identifier
		v.JobID = st.Descriptor.JobID
		v.Polls = st.Polls
		v.Error = st.LastError
	case Completed:
		v.Control = ControlCompleted
		v.Label = noun + " Complete"
		v.Enabled = true
		v.Identifier = st.Identifier
		v.JobID = st.Descriptor.JobID
		v.Polls = st.Polls
		v.Result = st.Result
	case Failed:
		v.Control = ControlFailed
		v.Label = "Retry " + noun
		v.Enabled = true
		v.Identifier = st.Identifier
		if st.Descriptor != nil {
			v.JobID = st.Descriptor.JobID
		}
		v.Polls = st.Polls
		v.Stage = st.Stage
		v.Error = st.Message
	default:
		v.Control = ControlReady
		v.Label = f.Action
		v.Enabled = true
	}
	return v
}

func humanInterval(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 min"
		}
		return fmt.Sprintf("%d min", m)
	}
	return d.Round(time.Millisecond).String()
}
