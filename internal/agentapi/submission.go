package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

// SubmissionClient posts job requests to the agent's start_job endpoint.
type SubmissionClient struct {
	url string
	t   transport
}

func NewSubmissionClient(url string, opts ...Option) *SubmissionClient {
	return &SubmissionClient{url: url, t: newTransport(opts)}
}

// Submit sends req once. It never retries.
func (c *SubmissionClient) Submit(ctx context.Context, req domain.JobRequest) (domain.JobDescriptor, error) {
	code, body, err := c.t.do(ctx, "submit", http.MethodPost, c.url, req, nil)
	if err != nil {
		return domain.JobDescriptor{}, &SubmissionError{StatusCode: code, Err: err}
	}
	if !isSuccess(code) {
		return domain.JobDescriptor{}, &SubmissionError{StatusCode: code, Body: string(body)}
	}

	var desc domain.JobDescriptor
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&desc); err != nil {
		return domain.JobDescriptor{}, &ProtocolViolationError{Reason: "Invalid job response: " + err.Error(), Body: string(body)}
	}
	if strings.TrimSpace(desc.JobID) == "" {
		return domain.JobDescriptor{}, &ProtocolViolationError{Reason: "No job_id received.", Body: string(body)}
	}
	if !desc.CheckTimeline() {
		c.t.logger.Warn("job descriptor timeline out of order",
			"job_id", desc.JobID,
			"payByTime", desc.PayByTime,
			"submitResultTime", desc.SubmitResultTime,
			"unlockTime", desc.UnlockTime,
			"externalDisputeUnlockTime", desc.ExternalDisputeUnlockTime)
	}
	return desc, nil
}
