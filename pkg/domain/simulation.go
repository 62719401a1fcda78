package domain

import "time"

// SimulatedJob is the agent simulator's record of one accepted job. The job
// completes once PollsSincePurchase reaches the simulator's threshold.
type SimulatedJob struct {
	Descriptor         JobDescriptor  `json:"descriptor"`
	Request            JobRequest     `json:"request"`
	Status             JobState       `json:"status"`
	PaymentStatus      PaymentState   `json:"paymentStatus"`
	Purchased          bool           `json:"purchased"`
	PollsSincePurchase int            `json:"pollsSincePurchase"`
	Result             map[string]any `json:"result,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

func (j SimulatedJob) Snapshot() JobStatus {
	st := JobStatus{Status: j.Status, PaymentStatus: j.PaymentStatus}
	if j.Status == JobCompleted && j.PaymentStatus == PaymentCompleted {
		st.Result = j.Result
	}
	return st
}
