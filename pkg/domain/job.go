package domain

import (
	"encoding"
	"encoding/json"
	"time"
)

type RiskType string

const (
	RiskTrading                RiskType = "trading"
	RiskLendingBorrowing       RiskType = "lending_borrowing"
	RiskProtocolSecurity       RiskType = "protocol_security"
	RiskLiquidityConcentration RiskType = "liquidity_concentration"
	RiskHedgeFund              RiskType = "hedge_fund"
)

type JobState string

const (
	JobSubmitted  JobState = "submitted"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

type PaymentState string

const (
	PaymentPending    PaymentState = "pending"
	PaymentProcessing PaymentState = "processing"
	PaymentCompleted  PaymentState = "completed"
	PaymentFailed     PaymentState = "failed"
)

var (
	_ encoding.TextMarshaler = RiskType("")
	_ encoding.TextMarshaler = JobState("")
	_ encoding.TextMarshaler = PaymentState("")
)

func (r RiskType) MarshalText() ([]byte, error)     { return []byte(string(r)), nil }
func (s JobState) MarshalText() ([]byte, error)     { return []byte(string(s)), nil }
func (s PaymentState) MarshalText() ([]byte, error) { return []byte(string(s)), nil }

func (s JobState) Valid() bool {
	switch s {
	case JobSubmitted, JobProcessing, JobCompleted, JobFailed:
		return true
	}
	return false
}

func (s PaymentState) Valid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed:
		return true
	}
	return false
}

type JobRequest struct {
	IdentifierFromPurchaser string         `json:"identifier_from_purchaser"`
	RiskType                RiskType       `json:"risk_type"`
	InputData               map[string]any `json:"input_data"`
}

// JobDescriptor is what the agent returns for an accepted job. Timestamps are
// epoch milliseconds.
type JobDescriptor struct {
	JobID                     string `json:"job_id"`
	BlockchainIdentifier      string `json:"blockchainIdentifier"`
	PayByTime                 int64  `json:"payByTime"`
	SubmitResultTime          int64  `json:"submitResultTime"`
	UnlockTime                int64  `json:"unlockTime"`
	ExternalDisputeUnlockTime int64  `json:"externalDisputeUnlockTime"`
	AgentIdentifier           string `json:"agentIdentifier"`
	InputHash                 string `json:"input_hash"`
}

// CheckTimeline reports whether payByTime < submitResultTime < unlockTime <
// externalDisputeUnlockTime.
func (d JobDescriptor) CheckTimeline() bool {
	return d.PayByTime < d.SubmitResultTime &&
		d.SubmitResultTime < d.UnlockTime &&
		d.UnlockTime < d.ExternalDisputeUnlockTime
}

func (d JobDescriptor) SubmitResultDeadline() time.Time {
	return time.UnixMilli(d.SubmitResultTime)
}

type PaymentSettings struct {
	Network     string `yaml:"network"`
	SellerVkey  string `yaml:"sellerVkey"`
	PaymentType string `yaml:"paymentType"`
	Token       string `yaml:"token"`
	TokenHeader string `yaml:"tokenHeader"`
}

type PaymentRequest struct {
	IdentifierFromPurchaser   string `json:"identifierFromPurchaser"`
	Network                   string `json:"network"`
	SellerVkey                string `json:"sellerVkey"`
	PaymentType               string `json:"paymentType"`
	BlockchainIdentifier      string `json:"blockchainIdentifier"`
	PayByTime                 int64  `json:"payByTime"`
	SubmitResultTime          int64  `json:"submitResultTime"`
	UnlockTime                int64  `json:"unlockTime"`
	ExternalDisputeUnlockTime int64  `json:"externalDisputeUnlockTime"`
	AgentIdentifier           string `json:"agentIdentifier"`
	InputHash                 string `json:"inputHash"`
}

func NewPaymentRequest(req JobRequest, job JobDescriptor, settings PaymentSettings) PaymentRequest {
	return PaymentRequest{
		IdentifierFromPurchaser:   req.IdentifierFromPurchaser,
		Network:                   settings.Network,
		SellerVkey:                settings.SellerVkey,
		PaymentType:               settings.PaymentType,
		BlockchainIdentifier:      job.BlockchainIdentifier,
		PayByTime:                 job.PayByTime,
		SubmitResultTime:          job.SubmitResultTime,
		UnlockTime:                job.UnlockTime,
		ExternalDisputeUnlockTime: job.ExternalDisputeUnlockTime,
		AgentIdentifier:           job.AgentIdentifier,
		InputHash:                 job.InputHash,
	}
}

type PaymentReceipt json.RawMessage

type JobStatus struct {
	Status        JobState       `json:"status"`
	PaymentStatus PaymentState   `json:"payment_status"`
	Result        map[string]any `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
}

func (s JobStatus) IsComplete() bool {
	return s.Status == JobCompleted && s.PaymentStatus == PaymentCompleted && s.Result != nil
}

func (s JobStatus) IsFailed() bool {
	return s.Status == JobFailed || s.PaymentStatus == PaymentFailed
}
