package agentapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

// StatusPoller fetches one job status snapshot per call; scheduling belongs to
// the caller.
type StatusPoller struct {
	url string
	t   transport
}

func NewStatusPoller(statusURL string, opts ...Option) *StatusPoller {
	return &StatusPoller{url: statusURL, t: newTransport(opts)}
}

type statusPayload struct {
	Status        *domain.JobState     `json:"status"`
	PaymentStatus *domain.PaymentState `json:"payment_status"`
	Result        json.RawMessage      `json:"result"`
	Error         json.RawMessage      `json:"error"`
}

func (p *StatusPoller) PollOnce(ctx context.Context, jobID string) (domain.JobStatus, error) {
	u, err := url.Parse(p.url)
	if err != nil {
		return domain.JobStatus{}, &PollError{Reason: "invalid status url", Err: err}
	}
	q := u.Query()
	q.Set("job_id", jobID)
	u.RawQuery = q.Encode()

	code, body, err := p.t.do(ctx, "status", http.MethodGet, u.String(), nil, nil)
	if err != nil {
		return domain.JobStatus{}, &PollError{Transient: true, StatusCode: code, Err: err}
	}
	if !isSuccess(code) {
		return domain.JobStatus{}, &PollError{Transient: transientStatus(code), StatusCode: code, Body: string(body)}
	}
	return decodeStatus(body)
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

func decodeStatus(body []byte) (domain.JobStatus, error) {
	fatal := func(reason string) (domain.JobStatus, error) {
		return domain.JobStatus{}, &PollError{Reason: reason, Body: string(body)}
	}

	var raw statusPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return fatal("malformed status response: " + err.Error())
	}
	if msg := errorMessage(raw.Error); msg != "" {
		return fatal(msg)
	}
	if raw.Status == nil {
		return fatal("status missing from response")
	}
	if raw.PaymentStatus == nil {
		return fatal("payment_status missing from response")
	}
	if !raw.Status.Valid() {
		return fatal(fmt.Sprintf("unknown job status %q", *raw.Status))
	}
	if !raw.PaymentStatus.Valid() {
		return fatal(fmt.Sprintf("unknown payment status %q", *raw.PaymentStatus))
	}

	st := domain.JobStatus{Status: *raw.Status, PaymentStatus: *raw.PaymentStatus}
	if len(raw.Result) > 0 && string(raw.Result) != "null" {
		if err := json.Unmarshal(raw.Result, &st.Result); err != nil {
			return fatal("result is not an object")
		}
	}
	return st, nil
}

// errorMessage extracts an explicit error payload. Empty strings, false and
// null are not errors.
func errorMessage(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	switch s {
	case "", "null", "false", `""`:
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var obj struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Detail != "" {
			return obj.Detail
		}
	}
	return s
}
